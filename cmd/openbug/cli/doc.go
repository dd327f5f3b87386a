// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the openbug binary.
//
// A [Command] is a named node with an optional pflag set factory,
// nested subcommands and a Run function. [Command.Execute] routes the
// first positional argument to a subcommand, parses flags, and prints
// structured help. Unknown commands and flags get a "did you mean"
// suggestion when one is within edit distance 3.
//
// Commands that have already reported their outcome return an
// [ExitError] to pick the process exit code without an extra error
// line.
package cli
