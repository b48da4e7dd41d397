package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/marginalia/internal/config"
	"github.com/nao1215/marginalia/internal/database"
	"github.com/nao1215/marginalia/internal/extract"
	"github.com/nao1215/marginalia/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reconciliation HTTP API",
		Long: `Serve starts an HTTP server exposing reconciliation to other programs.

Endpoints:
  GET  /healthz              liveness check
  POST /v1/reconcile         reconcile a raw extraction result
  POST /v1/extract           extract and reconcile {"imageUrl": "..."}
  GET  /v1/documents         list stored documents
  GET  /v1/documents/{id}    show a stored document

/v1/extract is disabled when no API key is configured for the provider.
Local file paths are not accepted by /v1/extract.

Examples:
  # Listen on the default address
  marginalia serve

  # Listen on all interfaces without storing documents
  marginalia serve --addr :8080 --no-save`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("addr", "a", config.DefaultListenAddress,
		"Address to listen on")
	cmd.Flags().StringP("provider", "P", config.DefaultProvider,
		"Vision model provider (openai, anthropic, ollama, mistral)")
	cmd.Flags().StringP("model", "M", "",
		"Model name (default: provider default, or OPENAI_MODEL)")
	cmd.Flags().Bool("no-fuzzy", false,
		"Disable approximate relocation of misspelled highlights")
	cmd.Flags().Bool("no-save", false,
		"Do not store extracted documents")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)

	ctx, cancel := signalContext(logger)
	defer cancel()

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithReconcileOptions(cfg.ReconcileOptions()...),
		// Retries happen inside the extractor; this bounds the whole request.
		server.WithExtractTimeout(cfg.Timeout * time.Duration(cfg.MaxRetries+2)),
	}

	extractor, err := extract.New(cfg.ExtractConfig(""), extract.WithLogger(logger))
	switch {
	case errors.Is(err, extract.ErrMissingAPIKey):
		logger.Warn("extraction disabled", "reason", err)
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v; /v1/extract is disabled.\n", err)
	case err != nil:
		return err
	default:
		opts = append(opts, server.WithExtractor(extractor))
	}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		opts = append(opts, server.WithStore(db))
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Listening on http://%s\n", cfg.ListenAddress)
	return server.New(opts...).ListenAndServe(ctx, cfg.ListenAddress)
}

// buildServeConfig creates a Config from the config file and the serve
// command flags.
func buildServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if cfg.ListenAddress, err = flags.GetString("addr"); err != nil {
		return nil, err
	}
	if flags.Changed("provider") {
		if cfg.Provider, err = flags.GetString("provider"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("model") {
		if cfg.Model, err = flags.GetString("model"); err != nil {
			return nil, err
		}
	}

	noFuzzy, err := flags.GetBool("no-fuzzy")
	if err != nil {
		return nil, err
	}
	if noFuzzy {
		cfg.Fuzzy = false
	}

	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave

	return cfg, nil
}
