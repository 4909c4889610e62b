// Package bootstrap wires all dependencies for a provisioning run.
// The setup comes from the configuration file; only the target address and
// logging come from the environment.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/artpar/mongopenter/adapters/metrics"
	"github.com/artpar/mongopenter/adapters/mongostore"
	"github.com/artpar/mongopenter/app"
	"github.com/artpar/mongopenter/config"
	"github.com/artpar/mongopenter/core/extension"
	"github.com/artpar/mongopenter/domain/connstr"
	"github.com/artpar/mongopenter/ports"
	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Environment variable names for bootstrap configuration.
const (
	EnvURL         = "MONGOPENTER_URL"
	EnvFallbackURL = "MONGODB_URL"
	EnvLogLevel    = "MONGOPENTER_LOG_LEVEL"
	EnvLogFormat   = "MONGOPENTER_LOG_FORMAT"
)

// DefaultURL is the target when neither flags nor environment name one.
const DefaultURL = "mongodb://localhost/admin"

// Env is the environment-sourced configuration.
type Env struct {
	URL         string `env:"MONGOPENTER_URL"`
	FallbackURL string `env:"MONGODB_URL"`
	LogLevel    string `env:"MONGOPENTER_LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"MONGOPENTER_LOG_FORMAT" envDefault:"console"`
}

// LoadEnv reads Env from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// TargetURL normalizes urls into one connection string. With no urls the
// environment is consulted, then DefaultURL.
func (e Env) TargetURL(urls []string) string {
	if joined := connstr.Join(urls); joined != "" {
		return joined
	}
	if e.URL != "" {
		return e.URL
	}
	if e.FallbackURL != "" {
		return e.FallbackURL
	}
	return DefaultURL
}

// App is a wired provisioning run.
type App struct {
	Logger      zerolog.Logger
	Setup       *config.Setup
	URL         string
	Registry    *extension.Registry
	Provisioner *app.Provisioner
	Metrics     *metrics.Collector
}

// Options provides optional configuration for application initialization.
type Options struct {
	// ConfigPath is the setup file. Defaults to config.DefaultFile.
	ConfigPath string

	// URLs are connection string fragments. Empty means use the environment.
	URLs []string

	// Extensions are compiled-in extensions that scripts may name.
	Extensions extension.Catalog

	// Store overrides the MongoDB store, mainly for tests.
	Store ports.Store

	// Metrics overrides the collector. Defaults to a private registry.
	Metrics *metrics.Collector

	// Logger overrides the environment-configured logger.
	Logger *zerolog.Logger
}

// New loads the setup file and wires the application. A missing setup file
// is not an error here; the provisioner reports it when a run starts.
func New(opts Options) (*App, error) {
	e, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	logger := loggerFor(e, opts)

	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultFile
	}

	setup, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			return nil, fmt.Errorf("load setup: %w", err)
		}
		logger.Warn().Str("path", path).Msg("no mongopenter setup found")
		setup = nil
	}

	return build(setup, e, logger, opts)
}

// NewWithSetup wires the application around an already loaded setup.
func NewWithSetup(setup *config.Setup, opts Options) (*App, error) {
	e, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	return build(setup, e, loggerFor(e, opts), opts)
}

func build(setup *config.Setup, e Env, logger zerolog.Logger, opts Options) (*App, error) {
	a := &App{
		Logger:   logger,
		Setup:    setup,
		URL:      e.TargetURL(opts.URLs),
		Registry: extension.NewRegistry(),
		Metrics:  opts.Metrics,
	}
	if a.Metrics == nil {
		a.Metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	}

	store := opts.Store
	if store == nil {
		store = mongostore.New(logger)
	}

	if err := app.LoadExtensions(setup, opts.Extensions, a.Registry, logger); err != nil {
		return nil, fmt.Errorf("load extensions: %w", err)
	}

	p, err := app.NewProvisioner(app.Options{
		Store:      store,
		Setup:      setup,
		URL:        a.URL,
		Extensions: a.Registry,
		Metrics:    a.Metrics,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("prepare setup: %w", err)
	}
	a.Provisioner = p

	logger.Debug().
		Str("url", connstr.Redact(a.URL)).
		Bool("setup", setup != nil).
		Msg("mongopenter initialized")
	return a, nil
}

// WriteMetrics exports the run metrics to a textfile. An empty path is a
// no-op.
func (a *App) WriteMetrics(path string) error {
	if path == "" {
		return nil
	}
	return a.Metrics.WriteTextfile(path)
}

// Logger builds the logger described by the environment.
func (e Env) Logger() zerolog.Logger {
	return setupLoggerFromEnv(e)
}

func loggerFor(e Env, opts Options) zerolog.Logger {
	if opts.Logger != nil {
		return *opts.Logger
	}
	return setupLoggerFromEnv(e)
}

// setupLoggerFromEnv builds the logger. Console output is the default
// since mongopenter is run interactively; json suits log shippers.
func setupLoggerFromEnv(e Env) zerolog.Logger {
	level, err := zerolog.ParseLevel(e.LogLevel)
	if err != nil || e.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if e.LogFormat == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}
