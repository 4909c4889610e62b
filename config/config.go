// Package config provides setup file loading and validation.
//
// Setup files are YAML or JSON (JSON is parsed by the YAML decoder).
// Mappings whose order matters (databases, keyMap) are decoded through
// yaml.Node so that declaration order is preserved.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the setup file looked up when none is given.
const DefaultFile = "mongopenter.json"

// ErrNotFound is returned when the setup file does not exist.
var ErrNotFound = errors.New("setup file not found")

// Setup is the root configuration structure.
type Setup struct {
	Databases Databases `yaml:"databases"`
	Auth      *Auth     `yaml:"auth,omitempty"`
	Shards    *Shards   `yaml:"shards,omitempty"`
	Scripts   []string  `yaml:"scripts,omitempty"`

	path string
}

// Auth is a user granted on every database (global) or on one database.
type Auth struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Database configures one database. Keys other than auth and collections
// are kept in Options untouched.
type Database struct {
	Name        string         `yaml:"-"`
	Auth        *Auth          `yaml:"auth,omitempty"`
	Collections []Collection   `yaml:"collections,omitempty"`
	Options     map[string]any `yaml:",inline"`
}

// Databases keeps database declarations in file order.
type Databases []Database

// UnmarshalYAML decodes a name->options mapping preserving order.
func (d *Databases) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: databases must be a mapping", node.Line)
	}
	out := make(Databases, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var db Database
		if !isNull(value) {
			if err := value.Decode(&db); err != nil {
				return fmt.Errorf("database %q: %w", key.Value, err)
			}
		}
		db.Name = key.Value
		out = append(out, db)
	}
	*d = out
	return nil
}

// Collection is a collection entry: a bare name or {name, docs}.
type Collection struct {
	Name string     `yaml:"name"`
	Docs []DocEntry `yaml:"docs,omitempty"`
}

// UnmarshalYAML accepts both the bare-name and the object form.
func (c *Collection) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Name = node.Value
		return nil
	}
	type plain Collection
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Collection(p)
	return nil
}

// DocEntry is a seed document entry. Exactly one form is set:
// Ref for a string reference, or Query plus Doc/DocRef for the inline form.
type DocEntry struct {
	Ref    string
	Query  any
	Doc    any
	DocRef string
}

// Inline reports whether the entry uses the {query, doc} form.
func (e DocEntry) Inline() bool {
	return e.Ref == ""
}

// UnmarshalYAML decodes a string reference or an inline {query, doc}.
func (e *DocEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Ref = node.Value
		return nil
	}
	var raw struct {
		Query any       `yaml:"query"`
		Doc   yaml.Node `yaml:"doc"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	e.Query = raw.Query
	if raw.Doc.Kind == yaml.ScalarNode && raw.Doc.Tag == "!!str" {
		e.DocRef = raw.Doc.Value
		return nil
	}
	if raw.Doc.Kind != 0 && !isNull(&raw.Doc) {
		var doc any
		if err := raw.Doc.Decode(&doc); err != nil {
			return err
		}
		e.Doc = doc
	}
	return nil
}

// Shards configures shard registration and tag ranges.
type Shards struct {
	Hosts           []string   `yaml:"hosts,omitempty"`
	ShardDB         string     `yaml:"shardDb,omitempty"`
	ShardCollection string     `yaml:"shardCollection,omitempty"`
	ShardKey        string     `yaml:"shardKey,omitempty"`
	Tags            []ShardTag `yaml:"tags,omitempty"`
	KeyMap          KeyMap     `yaml:"keyMap,omitempty"`
}

// ShardTag adds Tag to the tag set of Shard.
type ShardTag struct {
	Shard string `yaml:"shard"`
	Tag   string `yaml:"tag"`
}

// KeyMapping maps one host key to a tag.
type KeyMapping struct {
	Host string
	Tag  string
}

// KeyMap keeps host->tag declarations in file order.
type KeyMap []KeyMapping

// UnmarshalYAML decodes a host->tag mapping preserving order.
func (k *KeyMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: keyMap must be a mapping", node.Line)
	}
	out := make(KeyMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, KeyMapping{Host: node.Content[i].Value, Tag: node.Content[i+1].Value})
	}
	*k = out
	return nil
}

// Load reads a setup file.
func Load(path string) (*Setup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read setup: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	setup, err := Parse(data)
	if err != nil {
		return nil, err
	}
	setup.path = absPath
	return setup, nil
}

// Parse decodes and validates setup content. Paths inside the result
// resolve against the working directory.
func Parse(data []byte) (*Setup, error) {
	data = expandEnv(data)

	var setup Setup
	if err := yaml.Unmarshal(data, &setup); err != nil {
		return nil, fmt.Errorf("parse setup: %w", err)
	}

	if err := validate(&setup); err != nil {
		return nil, fmt.Errorf("validate setup: %w", err)
	}
	return &setup, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with environment values. Bare $name
// text is kept since query operators and passwords use it.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

// Path returns the absolute path the setup was loaded from.
func (s *Setup) Path() string {
	return s.path
}

// Dir returns the directory references resolve against.
func (s *Setup) Dir() string {
	if s.path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "."
		}
		return wd
	}
	return filepath.Dir(s.path)
}

// ResolvePath resolves a reference relative to the setup file's directory.
func (s *Setup) ResolvePath(ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(s.Dir(), ref)
}

func validate(s *Setup) error {
	var errs []string

	seen := make(map[string]bool, len(s.Databases))
	for _, db := range s.Databases {
		if strings.TrimSpace(db.Name) == "" {
			errs = append(errs, "database name is required")
			continue
		}
		if seen[db.Name] {
			errs = append(errs, fmt.Sprintf("database %q declared twice", db.Name))
		}
		seen[db.Name] = true

		if db.Auth != nil && db.Auth.User == "" {
			errs = append(errs, fmt.Sprintf("database %q: auth.user is required", db.Name))
		}

		for i, c := range db.Collections {
			if strings.TrimSpace(c.Name) == "" {
				errs = append(errs, fmt.Sprintf("database %q: collections[%d]: name is required", db.Name, i))
				continue
			}
			for j, d := range c.Docs {
				if d.Inline() && d.Query == nil {
					errs = append(errs, fmt.Sprintf("%s.%s: docs[%d]: query is required", db.Name, c.Name, j))
				}
				if d.Inline() && d.Doc == nil && d.DocRef == "" {
					errs = append(errs, fmt.Sprintf("%s.%s: docs[%d]: doc is required", db.Name, c.Name, j))
				}
			}
		}
	}

	if s.Auth != nil && s.Auth.User == "" {
		errs = append(errs, "auth.user is required")
	}

	if sh := s.Shards; sh != nil && (len(sh.Tags) > 0 || len(sh.KeyMap) > 0 || sh.ShardCollection != "") {
		if sh.ShardDB == "" {
			errs = append(errs, "shards.shardDb is required for tagging")
		}
		if sh.ShardCollection == "" {
			errs = append(errs, "shards.shardCollection is required for tagging")
		}
		if sh.ShardKey == "" {
			errs = append(errs, "shards.shardKey is required for tagging")
		}
	}

	for i, script := range s.Scripts {
		if strings.TrimSpace(script) == "" {
			errs = append(errs, fmt.Sprintf("scripts[%d] is empty", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}
