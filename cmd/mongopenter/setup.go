package main

import (
	"context"
	"sync"

	"github.com/artpar/mongopenter/bootstrap"
	"github.com/artpar/mongopenter/config"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision shards, users, collections, documents and tag ranges",
	Long: `Run every provisioning task in order:

  createShards, createDatabases, createCollections, createDocuments, addShards

then run the extensions registered for setupComplete. Only what is missing
is created.

With --watch, setup runs again whenever the setup file changes or the
process receives SIGHUP, until interrupted.

Examples:
  mongopenter setup
  mongopenter setup -c deploy/mongopenter.yaml -u mongodb://admin:pw@db1:27017/admin
  mongopenter setup --watch`,
	RunE: runSetup,
}

var setupWatch bool

func init() {
	rootCmd.AddCommand(setupCmd)

	setupCmd.Flags().BoolVar(&setupWatch, "watch", false, "re-run setup when the setup file changes")
}

func runSetup(cmd *cobra.Command, args []string) error {
	if setupWatch {
		return watchSetup(cmd.Context())
	}
	return runEntry(cmd.Context(), setupEntry)
}

// watchSetup runs setup once, then again on every setup change. Runs never
// overlap. Failures are logged and the watch continues.
func watchSetup(ctx context.Context) error {
	e, err := bootstrap.LoadEnv()
	if err != nil {
		return err
	}
	logger := e.Logger()

	holder, err := config.NewHolder(cfgFile, logger)
	if err != nil {
		return err
	}
	defer holder.Stop()

	var mu sync.Mutex
	run := func(setup *config.Setup) error {
		mu.Lock()
		defer mu.Unlock()

		opts := options()
		opts.Logger = &logger
		a, err := bootstrap.NewWithSetup(setup, opts)
		if err != nil {
			logger.Error().Err(err).Msg("failed to prepare setup")
			return err
		}
		return execute(ctx, a, setupEntry)
	}

	if err := run(holder.Get()); err != nil {
		logger.Warn().Msg("initial setup failed, waiting for changes")
	}

	holder.OnChange(func(setup *config.Setup) {
		if ctx.Err() != nil {
			return
		}
		run(setup)
	})
	if err := holder.WatchFile(); err != nil {
		return err
	}
	holder.WatchSignals()

	<-ctx.Done()
	logger.Info().Msg("stopped watching")
	return nil
}
