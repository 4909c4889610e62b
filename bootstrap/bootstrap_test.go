package bootstrap_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/mongopenter/adapters/memory"
	"github.com/artpar/mongopenter/app"
	"github.com/artpar/mongopenter/bootstrap"
	"github.com/artpar/mongopenter/core/extension"
	"github.com/artpar/mongopenter/ports"
	"github.com/rs/zerolog"
)

func nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func writeSetup(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mongopenter.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEnv_TargetURL(t *testing.T) {
	tests := []struct {
		name string
		env  bootstrap.Env
		urls []string
		want string
	}{
		{"default", bootstrap.Env{}, nil, bootstrap.DefaultURL},
		{"fallback", bootstrap.Env{FallbackURL: "mongodb://fb/db"}, nil, "mongodb://fb/db"},
		{"primary wins", bootstrap.Env{URL: "mongodb://p/db", FallbackURL: "mongodb://fb/db"}, nil, "mongodb://p/db"},
		{"flags win", bootstrap.Env{URL: "mongodb://p/db"}, []string{"mongodb://flag/db"}, "mongodb://flag/db"},
		{"fragments", bootstrap.Env{}, []string{"mongodb://u:p@h1:1/db", "mongodb://h2:1/db", "mongodb://h3:1/db"}, "mongodb://u:p@h1:1,h2:1/db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.env.TargetURL(tt.urls); got != tt.want {
				t.Errorf("TargetURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv(bootstrap.EnvURL, "mongodb://env/admin")
	t.Setenv(bootstrap.EnvLogLevel, "debug")

	e, err := bootstrap.LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	if e.URL != "mongodb://env/admin" {
		t.Errorf("URL = %q", e.URL)
	}
	if e.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", e.LogLevel)
	}
	if e.LogFormat != "console" {
		t.Errorf("LogFormat = %q, want console", e.LogFormat)
	}
}

func TestNew_MissingSetup(t *testing.T) {
	store := memory.NewStore()

	a, err := bootstrap.New(bootstrap.Options{
		ConfigPath: filepath.Join(t.TempDir(), "absent.json"),
		Store:      store,
		Logger:     nop(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.Setup != nil {
		t.Error("Setup should be nil")
	}

	_, err = a.Provisioner.Setup(context.Background())
	if !errors.Is(err, app.ErrNoConfiguration) {
		t.Errorf("err = %v, want ErrNoConfiguration", err)
	}
	if store.Connects() != 0 {
		t.Error("should not connect without a setup")
	}
}

func TestNew_InvalidSetup(t *testing.T) {
	path := writeSetup(t, `databases: [not, a, mapping]`)

	if _, err := bootstrap.New(bootstrap.Options{ConfigPath: path, Logger: nop()}); err == nil {
		t.Error("expected error for invalid setup")
	}
}

func TestNew_Setup(t *testing.T) {
	t.Setenv(bootstrap.EnvURL, "")
	t.Setenv(bootstrap.EnvFallbackURL, "")
	path := writeSetup(t, `
databases:
  app:
    collections: [users]
scripts: [audit]
`)
	store := memory.NewStore()

	hooked := false
	a, err := bootstrap.New(bootstrap.Options{
		ConfigPath: path,
		URLs:       []string{"mongodb://h1:1/app", "mongodb://h2:1/app", "mongodb://h3:1/app"},
		Store:      store,
		Logger:     nop(),
		Extensions: extension.Catalog{
			"audit": func(r extension.Registrar) error {
				r.On(extension.EventSetupComplete, func(ctx context.Context, conn ports.Conn) error {
					hooked = true
					return nil
				})
				return nil
			},
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.URL != "mongodb://h1:1,h2:1/app" {
		t.Errorf("URL = %q", a.URL)
	}

	if _, err := a.Provisioner.Setup(context.Background()); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if !hooked {
		t.Error("extension hook should run")
	}
	if got := store.Collections("app"); len(got) != 1 || got[0] != "users" {
		t.Errorf("collections = %v", got)
	}
	for _, uri := range store.URIs() {
		if uri != a.URL {
			t.Errorf("connected to %q, want %q", uri, a.URL)
		}
	}

	metricsPath := filepath.Join(t.TempDir(), "mongopenter.prom")
	if err := a.WriteMetrics(metricsPath); err != nil {
		t.Fatalf("WriteMetrics failed: %v", err)
	}
	data, _ := os.ReadFile(metricsPath)
	if !strings.Contains(string(data), "mongopenter_runs_total") {
		t.Error("metrics file should contain runs_total")
	}
}

func TestNew_UnknownScript(t *testing.T) {
	path := writeSetup(t, `{scripts: [missing.yaml]}`)

	_, err := bootstrap.New(bootstrap.Options{ConfigPath: path, Store: memory.NewStore(), Logger: nop()})
	if !errors.Is(err, app.ErrResourceNotFound) {
		t.Errorf("err = %v, want ErrResourceNotFound", err)
	}
}

func TestWriteMetrics_EmptyPath(t *testing.T) {
	a, err := bootstrap.NewWithSetup(nil, bootstrap.Options{Store: memory.NewStore(), Logger: nop()})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.WriteMetrics(""); err != nil {
		t.Errorf("WriteMetrics(\"\") = %v", err)
	}
}
