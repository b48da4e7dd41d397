package main

import (
	"strings"
	"testing"

	"github.com/nao1215/marginalia/internal/config"
)

// TestNewPingCmd tests the ping command creation.
func TestNewPingCmd(t *testing.T) {
	t.Parallel()

	cmd := NewPingCmd()
	if cmd.Use != "ping" {
		t.Errorf("expected use 'ping', got %q", cmd.Use)
	}
	for _, name := range []string{"provider", "model", "base-url"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

// TestRunPingCmdValidation tests errors raised before the model is
// contacted.
func TestRunPingCmdValidation(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "", "ping", "-c", emptyConfig(t), "--provider", "acme")
	if err == nil || !strings.Contains(err.Error(), config.ErrUnknownProvider.Error()) {
		t.Errorf("expected unknown provider error, got %v", err)
	}
}
