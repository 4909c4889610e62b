package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/artpar/mongopenter/app"
	"github.com/artpar/mongopenter/core/extension"
	"github.com/artpar/mongopenter/ports"
	"github.com/rs/zerolog"
)

const teaParty = `
on: setupComplete
steps:
  - database: reports
    collection: seeds
    query: {kind: tea}
    insert: {kind: tea, note: what a lovely tea party}
  - database: admin
    command:
      setParameter: 1
      logLevel: 0
`

func TestLoadExtensions_ScriptFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "scripts/tea.yaml", teaParty)
	path := writeFile(t, dir, "mongopenter.yaml", `
databases:
  reports: {collections: [seeds]}
scripts: [scripts/tea.yaml]
`)
	setup := loadSetup(t, path)
	f := newFixtureWithSetup(t, setup)

	if err := app.LoadExtensions(setup, nil, f.reg, zerolog.Nop()); err != nil {
		t.Fatalf("LoadExtensions failed: %v", err)
	}
	if n := len(f.reg.Hooks(extension.EventSetupComplete)); n != 1 {
		t.Fatalf("hooks = %d, want 1", n)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := f.p.Setup(ctx); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
	}

	docs := f.store.Documents("reports", "seeds")
	if len(docs) != 1 || docs[0]["note"] != "what a lovely tea party" {
		t.Errorf("seeds = %v, want one tea party", docs)
	}

	cmds := f.store.Commands()
	if len(cmds) != 2 {
		t.Fatalf("commands = %d, want 2", len(cmds))
	}
	if cmds[0].Name != "setParameter" || cmds[0].Database != "admin" {
		t.Errorf("command = %+v", cmds[0])
	}
	if len(cmds[0].Cmd) != 2 || cmds[0].Cmd[1].Key != "logLevel" {
		t.Errorf("command keys = %v, want setParameter then logLevel", cmds[0].Cmd)
	}
}

func TestLoadExtensions_Catalog(t *testing.T) {
	setup := loadSetup(t, writeFile(t, t.TempDir(), "mongopenter.yaml", `{scripts: [audit]}`))
	reg := extension.NewRegistry()

	loaded := false
	catalog := extension.Catalog{
		"audit": func(r extension.Registrar) error {
			loaded = true
			r.On(extension.EventSetupComplete, func(ctx context.Context, conn ports.Conn) error { return nil })
			return nil
		},
	}

	if err := app.LoadExtensions(setup, catalog, reg, zerolog.Nop()); err != nil {
		t.Fatalf("LoadExtensions failed: %v", err)
	}
	if !loaded {
		t.Error("catalog factory should run")
	}
	if len(reg.Hooks(extension.EventSetupComplete)) != 1 {
		t.Error("expected one hook")
	}
}

func TestLoadExtensions_FactoryError(t *testing.T) {
	setup := loadSetup(t, writeFile(t, t.TempDir(), "mongopenter.yaml", `{scripts: [audit]}`))
	boom := errors.New("boom")
	catalog := extension.Catalog{
		"audit": func(r extension.Registrar) error { return boom },
	}

	err := app.LoadExtensions(setup, catalog, extension.NewRegistry(), zerolog.Nop())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestLoadExtensions_MissingScript(t *testing.T) {
	setup := loadSetup(t, writeFile(t, t.TempDir(), "mongopenter.yaml", `{scripts: [nowhere.yaml]}`))

	err := app.LoadExtensions(setup, nil, extension.NewRegistry(), zerolog.Nop())
	if !errors.Is(err, app.ErrResourceNotFound) {
		t.Errorf("err = %v, want ErrResourceNotFound", err)
	}
}

func TestLoadExtensions_InvalidScript(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", `{steps: [{database: d}]}`)
	setup := loadSetup(t, writeFile(t, dir, "mongopenter.yaml", `{scripts: [bad.yaml]}`))

	err := app.LoadExtensions(setup, nil, extension.NewRegistry(), zerolog.Nop())
	if err == nil {
		t.Fatal("expected validation error")
	}
	if errors.Is(err, app.ErrResourceNotFound) {
		t.Errorf("err = %v, invalid script reported as not found", err)
	}
}

func TestLoadScript_Validation(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"no database", `{steps: [{collection: c, query: {a: 1}, insert: {a: 1}}]}`},
		{"no action", `{steps: [{database: d}]}`},
		{"both actions", `{steps: [{database: d, collection: c, query: {a: 1}, insert: {a: 1}, command: {ping: 1}}]}`},
		{"insert without query", `{steps: [{database: d, collection: c, insert: {a: 1}}]}`},
		{"scalar command", `{steps: [{database: d, command: ping}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "script.yaml", tt.script)
			if _, err := app.LoadScript(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadScript_DefaultEvent(t *testing.T) {
	path := writeFile(t, t.TempDir(), "script.yaml", `{steps: [{database: admin, command: {ping: 1}}]}`)

	s, err := app.LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript failed: %v", err)
	}
	if s.On != extension.EventSetupComplete {
		t.Errorf("On = %q, want %q", s.On, extension.EventSetupComplete)
	}
}
