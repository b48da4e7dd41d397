package main

import (
	"testing"

	"github.com/nao1215/marginalia/internal/config"
)

// TestNewServeCmd tests the serve command creation.
func TestNewServeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewServeCmd()
	if cmd.Use != "serve" {
		t.Errorf("expected use 'serve', got %q", cmd.Use)
	}

	flag := cmd.Flags().Lookup("addr")
	if flag == nil {
		t.Fatal("expected addr flag")
	}
	if flag.DefValue != config.DefaultListenAddress {
		t.Errorf("expected default %q, got %q", config.DefaultListenAddress, flag.DefValue)
	}
	for _, name := range []string{"provider", "model", "no-fuzzy", "no-save"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

// TestBuildServeConfig tests flag handling of the serve command.
func TestBuildServeConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cmd := parseSubcommand(t, "serve", "-c", emptyConfig(t))

		cfg, err := buildServeConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ListenAddress != config.DefaultListenAddress {
			t.Errorf("unexpected address %q", cfg.ListenAddress)
		}
		if !cfg.SaveToDB || !cfg.Fuzzy {
			t.Error("expected saving and fuzzy relocation by default")
		}
	})

	t.Run("flags", func(t *testing.T) {
		t.Parallel()
		cmd := parseSubcommand(t, "serve", "-c", emptyConfig(t),
			"-a", ":9090", "-P", "ollama", "-M", "llava", "--no-save", "--no-fuzzy")

		cfg, err := buildServeConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ListenAddress != ":9090" || cfg.Provider != "ollama" || cfg.Model != "llava" {
			t.Errorf("unexpected settings: %s %s %s", cfg.ListenAddress, cfg.Provider, cfg.Model)
		}
		if cfg.SaveToDB || cfg.Fuzzy {
			t.Error("expected --no-save and --no-fuzzy to apply")
		}
	})
}
