// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/openbug-ai/cli/cmd/openbug/cli"
	"github.com/openbug-ai/cli/lib/config"
	"github.com/openbug-ai/cli/relay"
)

func relayCommand() *cli.Command {
	var flags commonFlags
	return &cli.Command{
		Name:    "relay",
		Summary: "Run the local relay in the foreground",
		Description: `Run the local relay in the foreground.

The relay tracks which services are attached to each project and keeps
a bounded buffer of each service's recent output. It binds the
configured relay.host and relay.port. If another relay already holds
that address, this command reports it and exits successfully.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("relay", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRelay(ctx, cfg, cli.NewServiceLogger(flags.level(slog.LevelInfo)), os.Stdout)
		},
	}
}

// runRelay serves until ctx is cancelled.
func runRelay(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	server := relay.NewServer(relay.ConfigFrom(cfg.Relay, logger))
	if err := server.Listen(); err != nil {
		if errors.Is(err, relay.ErrAddressInUse) {
			fmt.Fprintf(out, "relay already running on %s\n", cfg.Relay.Address())
			return nil
		}
		return err
	}
	return server.Serve(ctx)
}
