// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/openbug-ai/cli/lib/clock"
)

// WatchRetryInterval is the delay between redial attempts.
const WatchRetryInterval = 3 * time.Second

// WatchOptions configures Watch.
type WatchOptions struct {
	URL       string
	ProjectID string
	Clock     clock.Clock
	Logger    *slog.Logger

	// OnUpdate receives the full membership after every snapshot and
	// change. A reconnect delivers a fresh snapshot.
	OnUpdate func([]Service)

	// OnDisconnect, if set, is called each time the connection is
	// lost or a dial fails.
	OnDisconnect func(error)
}

// Watch keeps a subscription to the project alive until ctx is
// cancelled, redialling every WatchRetryInterval after a failure.
// Returns ctx.Err().
func Watch(ctx context.Context, options WatchOptions) error {
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for {
		err := watchOnce(ctx, options, logger)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Debug("relay subscription lost, will redial",
			"error", err,
			"retry_in", WatchRetryInterval,
		)
		if options.OnDisconnect != nil {
			options.OnDisconnect(err)
		}

		select {
		case <-clk.After(WatchRetryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// watchOnce runs one connection until it ends.
func watchOnce(ctx context.Context, options WatchOptions, logger *slog.Logger) error {
	client, err := Dial(ctx, options.URL, &ClientOptions{Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	snapshot, changes, err := client.Subscribe(ctx, options.ProjectID)
	if err != nil {
		return err
	}
	options.OnUpdate(snapshot)

	for {
		select {
		case services, ok := <-changes:
			if !ok {
				if err := client.Err(); err != nil {
					return err
				}
				return ErrClosed
			}
			options.OnUpdate(services)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
