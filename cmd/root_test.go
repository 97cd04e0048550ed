package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	want := []string{"ingest", "query", "feedback", "delete", "reset", "version"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "twindex ") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestResetCmd_RequiresConfirmation(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"reset", "--tenant", "11111111-2222-3333-4444-555555555555",
		"--clone", "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"})

	err := root.Execute()
	if err == nil {
		t.Fatal("reset without --yes must fail")
	}
	if !strings.Contains(err.Error(), "--yes") {
		t.Errorf("error = %v, want confirmation hint", err)
	}
}
