// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger returns the logger for interactive commands: text
// when stderr is a terminal, JSON when it is piped or redirected.
//
// Callers scope it with With():
//
//	logger := cli.NewCommandLogger(slog.LevelInfo).With("command", "attach")
func NewCommandLogger(level slog.Leveler) *slog.Logger {
	return newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level)
}

// NewServiceLogger returns the logger for long-running processes
// such as the relay. It always writes JSON.
func NewServiceLogger(level slog.Leveler) *slog.Logger {
	return newLogger(os.Stderr, false, level)
}

func newLogger(w io.Writer, text bool, level slog.Leveler) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if text {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
