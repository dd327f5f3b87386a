// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/openbug-ai/cli/chat"
	"github.com/openbug-ai/cli/cmd/openbug/cli"
	"github.com/openbug-ai/cli/lib/config"
	"github.com/openbug-ai/cli/relay"
)

func chatCommand() *cli.Command {
	var (
		flags        commonFlags
		projectID    string
		planningPath string
	)
	return &cli.Command{
		Name:    "chat",
		Summary: "Ask the assistant about the attached services",
		Description: `Ask the assistant about the attached services.

Follows the project's membership on the local relay, connects to the
backend once a service is attached, and reads questions one per line.

  /retry       reconnect after the connection gave up
  /interrupt   stop the current response and disconnect
  /quit        leave (end of input does the same)`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("chat", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&projectID, "project", "", "project id (default: client.project_id)")
			flagSet.StringVar(&planningPath, "planning-doc", "", "file with an investigation plan sent with every question")
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
			if projectID != "" {
				cfg.Client.ProjectID = projectID
			}
			var planningDoc string
			if planningPath != "" {
				data, err := os.ReadFile(planningPath)
				if err != nil {
					return fmt.Errorf("reading planning doc: %w", err)
				}
				planningDoc = string(data)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, chatConfig{
				Config:      cfg,
				Stdin:       os.Stdin,
				Stdout:      os.Stdout,
				Interactive: cli.IsTerminal(os.Stdin),
				Logger:      cli.NewCommandLogger(flags.level(slog.LevelWarn)).With("command", "chat"),
				PlanningDoc: planningDoc,
			})
		},
	}
}

type chatConfig struct {
	Config      *config.Config
	Stdin       io.Reader
	Stdout      io.Writer
	Interactive bool
	Logger      *slog.Logger
	PlanningDoc string

	// Session overrides the session built from Config. Tests use it.
	Session *chat.SessionConfig
}

// runChat runs the REPL until input ends, /quit, or ctx is cancelled.
func runChat(ctx context.Context, run chatConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := run.Config
	logger := run.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := newREPL(run.Stdout, run.Interactive)

	sessionConfig := chat.SessionConfigFrom(cfg, logger)
	if run.Session != nil {
		sessionConfig = *run.Session
	}
	if run.PlanningDoc != "" {
		sessionConfig.PlanningDoc = run.PlanningDoc
	}
	if sessionConfig.Relay == nil {
		sessionConfig.Relay = relayLogs{url: cfg.Relay.URL, logger: logger}
	}
	sessionConfig.OnChange = r.notify
	session := chat.NewSession(sessionConfig, nil)
	r.session = session
	defer session.Close()

	r.noticef("waiting for services in project %s on %s", cfg.Client.ProjectID, cfg.Relay.URL)

	watched := make(chan struct{})
	go func() {
		defer close(watched)
		relay.Watch(ctx, relay.WatchOptions{
			URL:       cfg.Relay.URL,
			ProjectID: cfg.Client.ProjectID,
			Logger:    logger.With("component", "relay"),
			OnUpdate: func(services []relay.Service) {
				session.SetServices(services)
				r.servicesChanged(ctx, services)
			},
			OnDisconnect: r.relayLost,
		})
	}()
	defer func() {
		cancel()
		<-watched
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(run.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r.prompt()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if r.handleLine(ctx, line) {
				return nil
			}
			r.prompt()
		case <-r.changes:
			r.refresh()
		case <-ctx.Done():
			return nil
		}
	}
}

// relayLogs fetches a service's buffered output over a short-lived
// relay connection, so a relay restart between tool calls is harmless.
type relayLogs struct {
	url    string
	logger *slog.Logger
}

func (r relayLogs) FetchLogs(ctx context.Context, windowID int64) (string, error) {
	client, err := relay.Dial(ctx, r.url, &relay.ClientOptions{Logger: r.logger})
	if err != nil {
		return "", err
	}
	defer client.Close()
	return client.FetchLogs(ctx, windowID)
}
