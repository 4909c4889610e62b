// Package catalog normalizes raw store replies into canonical values.
// Collection listings may come back as qualified name strings or as records
// exposing a bare name field; command replies may report failure in an
// embedded errmsg or an ok of 0.
package catalog

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// Qualify returns the "<database>.<name>" form of a collection name.
func Qualify(database, name string) string {
	return database + "." + name
}

// QualifiedNames converts raw catalog entries into qualified collection names.
// A string entry is already qualified. A record holds the bare name and is
// always qualified with database, even when the name itself contains a dot.
// Entries without a readable name are dropped.
func QualifiedNames(database string, entries []any) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name, ok := EntryName(e)
		if !ok || name == "" {
			continue
		}
		if _, qualified := e.(string); !qualified {
			name = Qualify(database, name)
		}
		names = append(names, name)
	}
	return names
}

// Contains reports whether the qualified name appears in the listing.
func Contains(names []string, qualified string) bool {
	for _, n := range names {
		if n == qualified {
			return true
		}
	}
	return false
}

// EntryName extracts a collection name from one catalog entry.
func EntryName(entry any) (string, bool) {
	switch v := entry.(type) {
	case string:
		return v, true
	case bson.M:
		return stringField(v["name"])
	case map[string]any:
		return stringField(v["name"])
	case bson.D:
		for _, e := range v {
			if e.Key == "name" {
				return stringField(e.Value)
			}
		}
	case bson.Raw:
		return v.Lookup("name").StringValueOK()
	}
	return "", false
}

func stringField(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// ErrEmbedded marks a command that replied with an embedded failure.
var ErrEmbedded = errors.New("command reply reported failure")

// CommandFailure returns an error when a command reply carries an errmsg
// field or an ok of 0, even if the transport reported success.
func CommandFailure(reply bson.M) error {
	if reply == nil {
		return nil
	}
	msg, _ := reply["errmsg"].(string)
	if msg == "" && !notOK(reply["ok"]) {
		return nil
	}
	if msg == "" {
		msg = "command failed"
	}
	return &EmbeddedError{Message: msg, Code: codeOf(reply["code"])}
}

// notOK reports whether an ok field is present and false or zero.
func notOK(v any) bool {
	switch n := v.(type) {
	case bool:
		return !n
	case int:
		return n == 0
	case int32:
		return n == 0
	case int64:
		return n == 0
	case float64:
		return n == 0
	}
	return false
}

// EmbeddedError is the failure carried inside a command reply.
type EmbeddedError struct {
	Message string
	Code    int64
}

func (e *EmbeddedError) Error() string {
	return e.Message
}

// Is matches ErrEmbedded.
func (e *EmbeddedError) Is(target error) bool {
	return target == ErrEmbedded
}

func codeOf(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
