// Package main provides the rageval binary: retrieval metrics on the command
// line, the evaluation HTTP service, and the course chapter generator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	apperrors "github.com/aiengineer/rageval/internal/pkg/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// Exit codes: 2 for bad input, 3 for unknown queries, 1 otherwise.
func exitCode(err error) int {
	switch {
	case apperrors.IsValidation(err), apperrors.IsLengthMismatch(err):
		return 2
	case apperrors.IsNotFound(err):
		return 3
	default:
		return 1
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rageval",
		Short: "rageval - retrieval evaluation toolkit",
		Long: `rageval scores ranked retrieval output against ground truth.

Run 'rageval prf1 TP FP FN' for precision, recall and F1.
Run 'rageval eval dataset.yaml' to score a dataset.
Run 'rageval serve' to start the evaluation HTTP service.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		serveCmd(),
		prf1Cmd(),
		evalCmd(),
		judgmentsCmd(),
		chaptersCmd(),
		versionCmd(),
	)

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rageval %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
