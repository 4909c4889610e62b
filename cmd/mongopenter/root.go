package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/artpar/mongopenter/app"
	"github.com/artpar/mongopenter/bootstrap"
	"github.com/artpar/mongopenter/config"
	"github.com/artpar/mongopenter/ports"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile     string
	urls        []string
	timeout     time.Duration
	metricsFile string

	// storeOverride replaces the MongoDB store in tests.
	storeOverride ports.Store
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mongopenter",
	Short: "Declarative, idempotent MongoDB provisioning",
	Long: `mongopenter brings a MongoDB deployment up to the state described in a
setup file: shards, users, collections, seed documents and tag ranges.
Running it again only creates what is missing.

Quick start:
  mongopenter validate   # Check the setup file
  mongopenter setup      # Provision everything

Single tasks:
  mongopenter setup-db          # Grant users
  mongopenter setup-collection  # Create collections
  mongopenter setup-doc         # Seed documents`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit status.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultFile, "setup file path")
	rootCmd.PersistentFlags().StringArrayVarP(&urls, "url", "u", nil,
		"connection string or fragment, repeat for multiple hosts (default $"+bootstrap.EnvURL+", $"+bootstrap.EnvFallbackURL+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "bound a whole run, 0 for none")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")
}

// entry selects a provisioner entry point.
type entry func(p *app.Provisioner) func(context.Context) (app.Report, error)

func setupEntry(p *app.Provisioner) func(context.Context) (app.Report, error) { return p.Setup }

func options() bootstrap.Options {
	return bootstrap.Options{
		ConfigPath: cfgFile,
		URLs:       urls,
		Extensions: builtinExtensions,
		Store:      storeOverride,
	}
}

// runEntry loads the setup file and runs one entry point.
func runEntry(ctx context.Context, run entry) error {
	a, err := bootstrap.New(options())
	if err != nil {
		return err
	}
	return execute(ctx, a, run)
}

// execute runs an entry point, exports metrics and logs the final status.
func execute(ctx context.Context, a *bootstrap.App, run entry) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	report, err := run(a.Provisioner)(ctx)

	if merr := a.WriteMetrics(metricsFile); merr != nil {
		a.Logger.Warn().Err(merr).Str("path", metricsFile).Msg("failed to write metrics")
	}

	if err != nil {
		a.Logger.Error().Err(err).Str("run_id", report.RunID).Msg("mongopenter failed")
		return err
	}

	event := a.Logger.Info().Str("run_id", report.RunID).Str("entry", report.Entry)
	for _, t := range report.Tasks {
		event = event.Int(t.Name, t.Created)
	}
	if n := len(report.GrantErrors); n > 0 {
		event = event.Int("grant_errors", n)
	}
	event.Msg("mongopenter done")
	return nil
}
