package main

import (
	"context"

	"github.com/artpar/mongopenter/app"
	"github.com/spf13/cobra"
)

var setupDBCmd = &cobra.Command{
	Use:   "setup-db",
	Short: "Grant the configured users on every database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEntry(cmd.Context(), func(p *app.Provisioner) func(context.Context) (app.Report, error) {
			return p.CreateDatabases
		})
	},
}

var setupCollectionCmd = &cobra.Command{
	Use:   "setup-collection",
	Short: "Create every missing collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEntry(cmd.Context(), func(p *app.Provisioner) func(context.Context) (app.Report, error) {
			return p.CreateCollections
		})
	},
}

var setupDocCmd = &cobra.Command{
	Use:   "setup-doc",
	Short: "Insert every seed document whose query matches nothing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEntry(cmd.Context(), func(p *app.Provisioner) func(context.Context) (app.Report, error) {
			return p.CreateDocuments
		})
	},
}

func init() {
	rootCmd.AddCommand(setupDBCmd, setupCollectionCmd, setupDocCmd)
}
