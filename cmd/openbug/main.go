// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Command openbug wraps services, runs the local relay, and hosts the
// chat client. See "openbug --help".
package main

import (
	"fmt"
	"os"

	"github.com/openbug-ai/cli/cmd/openbug/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that already reported their outcome return an
		// ExitError carrying the code.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
