// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToSubcommand(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name:   "openbug",
		Output: &bytes.Buffer{},
		Subcommands: []*Command{
			{Name: "relay", Run: func(args []string) error { called = "relay"; return nil }},
			{Name: "logs", Run: func(args []string) error {
				called = "logs"
				receivedArgs = args
				return nil
			}},
		},
	}

	if err := root.Execute([]string{"logs", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "logs" {
		t.Errorf("dispatched to %q, want %q", called, "logs")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra" {
		t.Errorf("args = %v, want [extra]", receivedArgs)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var windowID int64
	var positional []string

	command := &Command{
		Name: "logs",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("logs", pflag.ContinueOnError)
			flagSet.Int64Var(&windowID, "window-id", 0, "instance")
			return flagSet
		},
		Run: func(args []string) error {
			positional = args
			return nil
		},
	}

	if err := command.Execute([]string{"--window-id", "42", "rest"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if windowID != 42 {
		t.Errorf("windowID = %d, want 42", windowID)
	}
	if len(positional) != 1 || positional[0] != "rest" {
		t.Errorf("args = %v, want [rest]", positional)
	}
}

func TestExecuteSuggestsFlag(t *testing.T) {
	command := &Command{
		Name: "logs",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("logs", pflag.ContinueOnError)
			flagSet.Int64("window-id", 0, "instance")
			flagSet.Int("tail", 0, "lines")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--windw-id", "3"})
	if err == nil {
		t.Fatal("Execute succeeded, want unknown flag error")
	}
	message := err.Error()
	if !strings.Contains(message, "did you mean --window-id") {
		t.Errorf("error = %q, want a --window-id suggestion", message)
	}
	if !strings.Contains(message, "--help") {
		t.Errorf("error = %q, should point to --help", message)
	}

	err = command.Execute([]string{"--zzzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute succeeded, want unknown flag error")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for a distant flag", err.Error())
	}
}

func TestExecuteSuggestsCommand(t *testing.T) {
	root := &Command{
		Name:   "openbug",
		Output: &bytes.Buffer{},
		Subcommands: []*Command{
			{Name: "attach"},
			{Name: "projects"},
		},
	}

	err := root.Execute([]string{"atach"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "attach"`) {
		t.Errorf("Execute(atach) = %v, want an attach suggestion", err)
	}
	err = root.Execute([]string{"zzzzzzzz"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("Execute(zzzzzzzz) = %v, want an error without suggestion", err)
	}
}

func TestExecuteHelpAndMissingSubcommand(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			var output bytes.Buffer
			root := &Command{
				Name:        "openbug",
				Output:      &output,
				Subcommands: []*Command{{Name: "relay", Summary: "Run the relay"}},
			}
			if err := root.Execute([]string{helpArg}); err != nil {
				t.Errorf("Execute(%q): %v", helpArg, err)
			}
			if !strings.Contains(output.String(), "Run the relay") {
				t.Errorf("help output missing subcommand summary:\n%s", output.String())
			}
		})
	}

	root := &Command{
		Name:        "openbug",
		Output:      &bytes.Buffer{},
		Subcommands: []*Command{{Name: "relay"}},
	}
	err := root.Execute(nil)
	if err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("Execute(nil) = %v, want 'subcommand required'", err)
	}
}

func TestHelpOutputIsInherited(t *testing.T) {
	var output bytes.Buffer
	root := &Command{
		Name:   "openbug",
		Output: &output,
		Subcommands: []*Command{
			{Name: "logs", Summary: "Print buffered output"},
		},
	}
	if err := root.Execute([]string{"logs", "--help"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(output.String(), "openbug logs [flags]") {
		t.Errorf("subcommand help not written to the root's output:\n%s", output.String())
	}
}

func TestPrintHelp(t *testing.T) {
	command := &Command{
		Name:        "openbug",
		Description: "Debug running services.",
		Subcommands: []*Command{
			{Name: "attach", Summary: "Stream a service's output"},
			{Name: "chat", Summary: "Ask the assistant"},
		},
		Examples: []Example{
			{Description: "Attach a service", Command: "npm start | openbug attach"},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Debug running services.",
		"Usage:",
		"openbug <command> [flags]",
		"Commands:",
		"Stream a service's output",
		"Ask the assistant",
		"Examples:",
		"# Attach a service",
		"npm start | openbug attach",
		"Run 'openbug <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestPrintHelpListsFlags(t *testing.T) {
	command := &Command{
		Name: "logs",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("logs", pflag.ContinueOnError)
			flagSet.Int("tail", 0, "print only the last N lines")
			return flagSet
		},
	}
	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	if !strings.Contains(buffer.String(), "--tail") || !strings.Contains(buffer.String(), "print only the last N lines") {
		t.Errorf("help output missing flag usage:\n%s", buffer.String())
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 3}
	coder, ok := err.(interface{ ExitCode() int })
	if !ok || coder.ExitCode() != 3 {
		t.Errorf("ExitError does not report code 3")
	}
	if err.Error() != "exit code 3" {
		t.Errorf("Error() = %q, want %q", err.Error(), "exit code 3")
	}
}
