package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stackvity/ontaudit/internal/cli/config"
	"github.com/stackvity/ontaudit/pkg/audit"
)

var (
	// These are set during build time using -ldflags
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ontaudit",
		Short: "Audits ontology corpora and aggregates the audit reports.",
		Long: `ontaudit walks a corpus of OWL and Turtle ontologies and writes one set of
audit reports per ontology under the output root.

It features:
  - Class and property statistics with a seeded class sample.
  - Used-namespace extraction and Turtle to RDF/XML conversion.
  - Pitfall, FAIR and quality assessments from the remote services, retried
    until each report is complete.
  - A reasoner consistency check.
  - Corpus-wide aggregations and a reconciler for missing reports.

Every generator is idempotent: a report that already exists with content is
never regenerated, so interrupted runs resume where they stopped.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{.Use}} version {{.Version}}` + "\n")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", audit.ErrArgument, err)
	})
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newAnalyzeCmd(),
		newSampleCmd(),
		newQualityCmd(),
		newFairCmd(),
		newPitfallsCmd(),
		newReasonerCmd(),
		newNamespacesCmd(),
		newConvertCmd(),
		newSumNamespacesCmd(),
		newSumClassesCmd(),
		newSumPitfallsCmd(),
		newMeanScoresCmd(),
		newReconcileCmd(),
	)
	return root
}

// Execute runs the root command. Any error exits with code 1; argument
// errors also print the usage of the command that rejected them.
func Execute() {
	if err := execute(rootCmd); err != nil {
		os.Exit(1)
	}
}

func execute(root *cobra.Command) error {
	cmd, err := root.ExecuteC()
	if err == nil {
		return nil
	}
	cmd.PrintErrln("Error:", err)
	if errors.Is(err, audit.ErrArgument) {
		cmd.PrintErr(cmd.UsageString())
	}
	return err
}

// loadOptions resolves configuration for cmd from its merged flag set.
func loadOptions(cmd *cobra.Command) (audit.Options, *slog.Logger, error) {
	flags := cmd.Flags()
	cfgFile, _ := flags.GetString("config")
	profileName, _ := flags.GetString("profile")
	verbose, _ := flags.GetBool("verbose")
	return config.LoadAndValidate(cfgFile, profileName, version, verbose, flags)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
