package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "chartbot dev") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestSetupRequiresDomain(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"setup"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "domain") {
		t.Fatalf("err = %v", err)
	}
}

func TestSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "setup", "version"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %s missing: %v", name, err)
		}
	}
}
