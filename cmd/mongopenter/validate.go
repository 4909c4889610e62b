package main

import (
	"fmt"
	"os"

	"github.com/artpar/mongopenter/bootstrap"
	"github.com/artpar/mongopenter/domain/connstr"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the setup file without connecting",
	Long: `Validate the mongopenter setup file.

Checks:
  - YAML/JSON syntax is valid
  - Required fields are present
  - Document references and scripts resolve

Examples:
  mongopenter validate
  mongopenter validate --config deploy/mongopenter.yaml`,
	RunE: runValidate,
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); err != nil {
		fmt.Fprintf(out, "  %s Setup file exists\n", crossMark)
		return fmt.Errorf("setup file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Setup file exists\n", checkMark)

	opts := options()
	nop := zerolog.Nop()
	opts.Logger = &nop
	a, err := bootstrap.New(opts)
	if err != nil {
		fmt.Fprintf(out, "  %s Setup valid\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Setup valid\n", checkMark)

	plan := a.Provisioner.Plan()
	fmt.Fprintf(out, "  %s Target: %s\n", checkMark, connstr.Redact(a.URL))
	fmt.Fprintf(out, "  %s Databases: %d\n", checkMark, len(plan.Databases))
	fmt.Fprintf(out, "  %s Collections: %d\n", checkMark, len(plan.Collections))
	fmt.Fprintf(out, "  %s Documents: %d\n", checkMark, len(plan.Documents))
	if plan.Shards != nil {
		fmt.Fprintf(out, "  %s Shard hosts: %d\n", checkMark, len(plan.Shards.Hosts))
	}
	if plan.ShardTags != nil {
		fmt.Fprintf(out, "  %s Sharded collection: %s on %s\n", checkMark, plan.ShardTags.Namespace(), plan.ShardTags.ShardKey)
	}
	fmt.Fprintf(out, "  %s Scripts: %d\n", checkMark, len(a.Setup.Scripts))

	if plan.Empty() {
		fmt.Fprintln(out, "\nSetup is valid. Nothing to provision.")
		return nil
	}

	fmt.Fprintln(out, "\nSetup is valid.")
	return nil
}
