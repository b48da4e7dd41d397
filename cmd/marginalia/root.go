package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// envFile is loaded before any command runs, if present.
const envFile = ".env"

// NewRootCmd creates the root command for marginalia.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marginalia",
		Short: "Reconcile highlights and handwritten comments on scanned documents",
		Long: `marginalia extracts the printed text, marker highlights and handwritten
comments from images of annotated documents using a vision model, then
reconciles the model's output against the text it transcribed.

Spans that point outside the text or at the wrong words are repaired or
dropped, and every decision is reported as a diagnostic.

API keys are read from the environment (OPENAI_API_KEY, ANTHROPIC_API_KEY,
MISTRAL_API_KEY). A .env file in the current directory is loaded first.`,
		Version:           getVersion(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadEnv,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .marginalia in current or home directory)")

	cmd.AddCommand(NewExtractCmd())
	cmd.AddCommand(NewReconcileCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewPingCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadEnv loads .env into the process environment. Variables that are
// already set win over the file.
func loadEnv(_ *cobra.Command, _ []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
