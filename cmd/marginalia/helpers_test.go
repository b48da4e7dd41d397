package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

// catRawJSON is a raw extraction result whose comment has an empty anchor.
const catRawJSON = `{
  "baseText": "The cat sat.",
  "highlights": [
    {"startIndex": 4, "endIndex": 7, "backgroundColor": "#ffff00", "highlightedText": "cat"}
  ],
  "comments": [
    {"startIndex": 8, "endIndex": 8, "commentText": "good verb"}
  ]
}`

// catWire is catRawJSON after reconciliation, in wire format.
const catWire = `{"baseText":"The cat sat.",` +
	`"highlights":[{"startIndex":4,"endIndex":7,"backgroundColor":"#FFFF00"}],` +
	`"comments":[{"startIndex":8,"endIndex":11,"commentText":"good verb"}]}`

// writeFile writes content to name in a new temp directory.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// emptyConfig returns an explicit config file so that tests never pick up
// a .marginalia from the working or home directory.
func emptyConfig(t *testing.T) string {
	t.Helper()
	return writeFile(t, ".marginalia", "extractor:\n  provider: openai\n")
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(bytes.NewBufferString(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// parseSubcommand returns the named subcommand of a fresh root with args
// parsed, including the global flags.
func parseSubcommand(t *testing.T, name string, args ...string) *cobra.Command {
	t.Helper()

	root := NewRootCmd()
	sub, _, err := root.Find([]string{name})
	if err != nil {
		t.Fatal(err)
	}
	if err := sub.ParseFlags(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return sub
}
