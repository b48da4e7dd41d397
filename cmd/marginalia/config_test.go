package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// TestOpenOutput tests report destinations.
func TestOpenOutput(t *testing.T) {
	t.Parallel()

	t.Run("falls back without a path", func(t *testing.T) {
		t.Parallel()
		var fallback bytes.Buffer

		out, closeOutput, err := openOutput("", &fallback)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != &fallback {
			t.Error("expected fallback writer")
		}
		if err := closeOutput(); err != nil {
			t.Errorf("unexpected close error: %v", err)
		}
	})

	t.Run("creates file and directories", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "a", "b", "report.txt")

		out, closeOutput, err := openOutput(path, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := out.Write([]byte("report")); err != nil {
			t.Fatal(err)
		}
		if err := closeOutput(); err != nil {
			t.Fatal(err)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(content) != "report" {
			t.Errorf("unexpected content %q", content)
		}

		if runtime.GOOS != "windows" {
			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if perm := info.Mode().Perm(); perm != 0600 {
				t.Errorf("expected permissions 0600, got %o", perm)
			}
		}
	})
}

// TestGetFlagsFallback tests global flag lookup on a detached command.
func TestGetFlagsFallback(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCmd()
	if getVerboseFlag(cmd) {
		t.Error("expected verbose false without the flag")
	}
	if got := getConfigFlag(cmd); got != "" {
		t.Errorf("expected empty config path, got %q", got)
	}

	sub := parseSubcommand(t, "extract", "-v", "-c", "custom.yaml")
	if !getVerboseFlag(sub) {
		t.Error("expected verbose from the global flag")
	}
	if got := getConfigFlag(sub); got != "custom.yaml" {
		t.Errorf("expected custom.yaml, got %q", got)
	}
}
