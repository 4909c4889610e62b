package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/artpar/mongopenter/config"
	"github.com/artpar/mongopenter/core/extension"
	"gopkg.in/yaml.v3"
)

// Resolved is a concrete query/payload pair.
type Resolved struct {
	Query any
	Doc   any
}

// SourceLookup finds named document sources registered by extensions.
type SourceLookup interface {
	Lookup(name string) (extension.Source, bool)
}

// Resolver turns document entries into concrete query/doc pairs.
// String references resolve against registered sources first, then as
// files relative to the setup file's directory.
type Resolver struct {
	resolvePath func(string) string
	sources     SourceLookup
}

// NewResolver creates a resolver for setup. sources may be nil.
func NewResolver(setup *config.Setup, sources SourceLookup) *Resolver {
	return &Resolver{resolvePath: setup.ResolvePath, sources: sources}
}

// Resolve produces the query/doc pair for one docs entry.
func (r *Resolver) Resolve(entry config.DocEntry) (Resolved, error) {
	if !entry.Inline() {
		return r.resolveRef(entry.Ref)
	}

	resolved := Resolved{Query: entry.Query, Doc: entry.Doc}
	if entry.DocRef != "" {
		doc, err := r.loadFile(entry.DocRef)
		if err != nil {
			return Resolved{}, err
		}
		resolved.Doc = doc
	}
	return resolved, nil
}

func (r *Resolver) resolveRef(ref string) (Resolved, error) {
	if r.sources != nil {
		if src, ok := r.sources.Lookup(ref); ok {
			query, doc, err := src()
			if err != nil {
				return Resolved{}, fmt.Errorf("document source %q: %w", ref, err)
			}
			return Resolved{Query: query, Doc: doc}, nil
		}
	}

	data, err := r.loadFile(ref)
	if err != nil {
		return Resolved{}, err
	}
	m, ok := data.(map[string]any)
	if !ok {
		return Resolved{}, fmt.Errorf("document reference %q: expected a mapping with query and doc", ref)
	}
	return Resolved{Query: m["query"], Doc: m["doc"]}, nil
}

// loadFile reads a YAML or JSON file relative to the setup directory.
func (r *Resolver) loadFile(ref string) (any, error) {
	path := r.resolvePath(ref)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(ErrResourceNotFound, "resolve "+ref, fmt.Errorf("%s does not exist", filepath.Clean(path)))
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}
