// Package spec provides the flat provisioning units derived from a setup
// configuration. Specs are immutable snapshots: the normalizer builds them
// once and the provisioning operations only read them.
package spec

import "strings"

// Credentials is a user/password pair granted on a database.
type Credentials struct {
	User     string
	Password string
}

// DatabaseSpec describes one database to provision.
type DatabaseSpec struct {
	Name string
	// Auth is the per-database user, nil when none is declared.
	Auth *Credentials
	// Options holds the remaining, uninterpreted database options.
	Options map[string]any
}

// CollectionSpec describes one collection. (Database, Name) is its identity.
type CollectionSpec struct {
	Database string
	Name     string
}

// Qualified returns the "<database>.<name>" idempotence key.
func (c CollectionSpec) Qualified() string {
	return c.Database + "." + c.Name
}

// DocumentSpec describes one seed document.
// Query is the existence probe; Body is inserted when nothing matches.
type DocumentSpec struct {
	Database   string
	Collection string
	Query      any
	Body       any
}

// Namespace returns "<database>.<collection>".
func (d DocumentSpec) Namespace() string {
	return d.Database + "." + d.Collection
}

// ShardSpec lists shard addresses to register, in order.
type ShardSpec struct {
	Hosts []string
}

// ShardTag pins a tag onto a registered shard.
type ShardTag struct {
	Shard string
	Tag   string
}

// KeyRange maps a host key value to a tag.
type KeyRange struct {
	Host string
	Tag  string
}

// ShardTagConfig drives tag-range assignment once sharding is enabled.
type ShardTagConfig struct {
	ShardDB         string
	ShardCollection string
	ShardKey        string
	Tags            []ShardTag
	KeyMap          []KeyRange
}

// Namespace returns the sharded collection namespace. A shard collection
// that already carries a database prefix is used as is.
func (c ShardTagConfig) Namespace() string {
	if strings.Contains(c.ShardCollection, ".") {
		return c.ShardCollection
	}
	return c.ShardDB + "." + c.ShardCollection
}

// Enabled reports whether enough is declared to shard a collection.
func (c ShardTagConfig) Enabled() bool {
	return c.ShardDB != "" && c.ShardCollection != "" && c.ShardKey != ""
}

// RangeMax is the open-ended upper bound for a tag range. Tag values are
// assumed to sort as strings, so appending "z" covers the tag's key space.
func RangeMax(tag string) string {
	return tag + "z"
}

// Plan is the full set of specs for one run. Every list is nil when empty.
type Plan struct {
	Databases   []DatabaseSpec
	Collections []CollectionSpec
	Documents   []DocumentSpec
	Shards      *ShardSpec
	ShardTags   *ShardTagConfig
}

// Empty reports whether the plan has nothing to provision.
func (p Plan) Empty() bool {
	return p.Databases == nil && p.Collections == nil && p.Documents == nil &&
		p.Shards == nil && p.ShardTags == nil
}
