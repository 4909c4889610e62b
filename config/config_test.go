package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/mongopenter/config"
)

func TestLoad_JSONSetup(t *testing.T) {
	content := `{
  "auth": {"user": "g", "password": "h"},
  "databases": {
    "zeta": {"auth": {"user": "x", "password": "y"}},
    "alpha": {
      "collections": [
        "sessions",
        {"name": "users", "docs": [
          "docs/admin.json",
          {"query": {"name": "guest"}, "doc": {"name": "guest", "role": "viewer"}},
          {"query": {"name": "root"}, "doc": "docs/root.json"}
        ]}
      ]
    }
  },
  "scripts": ["scripts/after.yaml"]
}`

	setup := writeAndLoad(t, content)

	if setup.Auth == nil || setup.Auth.User != "g" {
		t.Errorf("Auth = %+v, want user g", setup.Auth)
	}
	if len(setup.Databases) != 2 {
		t.Fatalf("len(Databases) = %d, want 2", len(setup.Databases))
	}
	// declaration order, not sorted
	if setup.Databases[0].Name != "zeta" || setup.Databases[1].Name != "alpha" {
		t.Errorf("database order = %s, %s, want zeta, alpha", setup.Databases[0].Name, setup.Databases[1].Name)
	}
	if setup.Databases[0].Auth == nil || setup.Databases[0].Auth.User != "x" {
		t.Errorf("zeta auth = %+v, want user x", setup.Databases[0].Auth)
	}

	colls := setup.Databases[1].Collections
	if len(colls) != 2 {
		t.Fatalf("len(Collections) = %d, want 2", len(colls))
	}
	if colls[0].Name != "sessions" || len(colls[0].Docs) != 0 {
		t.Errorf("collections[0] = %+v, want bare sessions", colls[0])
	}
	if colls[1].Name != "users" || len(colls[1].Docs) != 3 {
		t.Fatalf("collections[1] = %+v, want users with 3 docs", colls[1])
	}

	docs := colls[1].Docs
	if docs[0].Ref != "docs/admin.json" || docs[0].Inline() {
		t.Errorf("docs[0] = %+v, want string reference", docs[0])
	}
	if !docs[1].Inline() || docs[1].DocRef != "" {
		t.Errorf("docs[1] = %+v, want inline doc", docs[1])
	}
	if m, ok := docs[1].Doc.(map[string]any); !ok || m["role"] != "viewer" {
		t.Errorf("docs[1].Doc = %#v, want role viewer", docs[1].Doc)
	}
	if docs[2].DocRef != "docs/root.json" || docs[2].Doc != nil {
		t.Errorf("docs[2] = %+v, want doc file reference", docs[2])
	}

	if len(setup.Scripts) != 1 || setup.Scripts[0] != "scripts/after.yaml" {
		t.Errorf("Scripts = %v", setup.Scripts)
	}
}

func TestLoad_YAMLShards(t *testing.T) {
	content := `
shards:
  hosts: ["rs1/h1:27018", "rs2/h2:27018"]
  shardDb: app
  shardCollection: app.users
  shardKey: region
  tags:
    - shard: shard0000
      tag: east
  keyMap:
    host2: west
    host1: east
`
	setup := writeAndLoad(t, content)

	sh := setup.Shards
	if sh == nil {
		t.Fatal("Shards is nil")
	}
	if len(sh.Hosts) != 2 || sh.Hosts[0] != "rs1/h1:27018" {
		t.Errorf("Hosts = %v", sh.Hosts)
	}
	if sh.ShardKey != "region" {
		t.Errorf("ShardKey = %s, want region", sh.ShardKey)
	}
	if len(sh.Tags) != 1 || sh.Tags[0].Shard != "shard0000" || sh.Tags[0].Tag != "east" {
		t.Errorf("Tags = %+v", sh.Tags)
	}
	want := config.KeyMap{{Host: "host2", Tag: "west"}, {Host: "host1", Tag: "east"}}
	if len(sh.KeyMap) != len(want) {
		t.Fatalf("KeyMap = %+v, want %+v", sh.KeyMap, want)
	}
	for i := range want {
		if sh.KeyMap[i] != want[i] {
			t.Errorf("KeyMap[%d] = %+v, want %+v", i, sh.KeyMap[i], want[i])
		}
	}
}

func TestLoad_NoDatabases(t *testing.T) {
	setup := writeAndLoad(t, `{"auth": {"user": "g", "password": "h"}}`)
	if setup.Databases != nil {
		t.Errorf("Databases = %v, want nil", setup.Databases)
	}
}

func TestLoad_DatabaseWithoutOptions(t *testing.T) {
	setup := writeAndLoad(t, "databases:\n  logs:\n")
	if len(setup.Databases) != 1 || setup.Databases[0].Name != "logs" {
		t.Fatalf("Databases = %+v, want [logs]", setup.Databases)
	}
}

func TestLoad_ExtraOptionsKept(t *testing.T) {
	setup := writeAndLoad(t, `{"databases": {"app": {"capped": true}}}`)
	if setup.Databases[0].Options["capped"] != true {
		t.Errorf("Options = %v, want capped: true", setup.Databases[0].Options)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("MONGOPENTER_TEST_PASSWORD", "s3cret")
	setup := writeAndLoad(t, `{"auth": {"user": "g", "password": "${MONGOPENTER_TEST_PASSWORD}"}}`)
	if setup.Auth.Password != "s3cret" {
		t.Errorf("Password = %s, want s3cret", setup.Auth.Password)
	}
}

func TestLoad_DollarTextKept(t *testing.T) {
	t.Setenv("x", "expanded")
	setup := writeAndLoad(t, `{
		"auth": {"user": "g", "password": "pa$$w0rd$x"},
		"databases": {"app": {"collections": [{"name": "users", "docs": [{"query": {"n": {"$exists": false}}, "doc": {"n": 1}}]}]}}
	}`)

	if setup.Auth.Password != "pa$$w0rd$x" {
		t.Errorf("Password = %q, want pa$$w0rd$x", setup.Auth.Password)
	}

	query, ok := setup.Databases[0].Collections[0].Docs[0].Query.(map[string]any)
	if !ok {
		t.Fatalf("Query = %T, want map", setup.Databases[0].Collections[0].Docs[0].Query)
	}
	n, ok := query["n"].(map[string]any)
	if !ok {
		t.Fatalf("query.n = %T, want map", query["n"])
	}
	if v, ok := n["$exists"]; !ok || v != false {
		t.Errorf("query.n = %v, want $exists: false", n)
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, config.ErrNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrNotFound", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "inline doc without query",
			content: `{"databases": {"app": {"collections": [{"name": "users", "docs": [{"doc": {"a": 1}}]}]}}}`,
			wantErr: "query is required",
		},
		{
			name:    "inline doc without body",
			content: `{"databases": {"app": {"collections": [{"name": "users", "docs": [{"query": {"a": 1}}]}]}}}`,
			wantErr: "doc is required",
		},
		{
			name:    "collection without name",
			content: `{"databases": {"app": {"collections": [{"docs": []}]}}}`,
			wantErr: "name is required",
		},
		{
			name:    "tagging without shard key",
			content: `{"shards": {"shardDb": "app", "shardCollection": "users", "tags": [{"shard": "s0", "tag": "east"}]}}`,
			wantErr: "shardKey is required",
		},
		{
			name:    "databases not a mapping",
			content: `{"databases": ["app"]}`,
			wantErr: "databases must be a mapping",
		},
		{
			name:    "auth without user",
			content: `{"auth": {"password": "h"}}`,
			wantErr: "auth.user is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSetup_ResolvePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mongopenter.json")
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatalf("write setup: %v", err)
	}
	setup, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if got := setup.ResolvePath("docs/a.json"); got != filepath.Join(dir, "docs", "a.json") {
		t.Errorf("ResolvePath(relative) = %s", got)
	}
	abs := filepath.Join(string(filepath.Separator), "etc", "a.json")
	if got := setup.ResolvePath(abs); got != abs {
		t.Errorf("ResolvePath(absolute) = %s, want %s", got, abs)
	}
}

func writeAndLoad(t *testing.T, content string) *config.Setup {
	t.Helper()
	setup, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return setup
}

func writeAndLoadErr(t *testing.T, content string) (*config.Setup, error) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "mongopenter.json")

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write setup: %v", err)
	}

	return config.Load(path)
}
