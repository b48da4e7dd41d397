package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/marginalia/internal/extract"
)

// NewPingCmd creates the ping command.
func NewPingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the vision model is reachable",
		Long: `Ping sends a trivial prompt to the configured model and prints the answer.
Use it to verify API keys and endpoints before processing documents.

Examples:
  marginalia ping
  marginalia ping --provider ollama --model llava`,
		Args: cobra.NoArgs,
		RunE: runPingCmd,
	}

	cmd.Flags().StringP("provider", "P", "",
		"Vision model provider (default: from config, or openai)")
	cmd.Flags().StringP("model", "M", "",
		"Model name (default: provider default, or OPENAI_MODEL)")
	cmd.Flags().String("base-url", "",
		"Custom API endpoint or ollama host")

	return cmd
}

// runPingCmd executes the ping command.
func runPingCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	for name, dst := range map[string]*string{
		"provider": &cfg.Provider,
		"model":    &cfg.Model,
		"base-url": &cfg.BaseURL,
	} {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	ctx, cancel := signalContext(logger)
	defer cancel()

	extractCfg := cfg.ExtractConfig("")
	v, err := extract.New(extractCfg, extract.WithLogger(logger))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Model: %s (%s)\n", extractCfg.Model, extractCfg.Provider)
	fmt.Fprintf(out, "Prompt: %s\n", extract.PingPrompt)

	answer, err := v.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed (%s): %w", extract.Classify(err), err)
	}
	fmt.Fprintf(out, "Answer: %s\n", answer)
	return nil
}
