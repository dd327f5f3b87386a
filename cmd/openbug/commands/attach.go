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
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/spf13/pflag"

	"github.com/openbug-ai/cli/cmd/openbug/cli"
	"github.com/openbug-ai/cli/lib/capture"
	"github.com/openbug-ai/cli/lib/clock"
	"github.com/openbug-ai/cli/lib/config"
	"github.com/openbug-ai/cli/relay"
)

// streamTimeout bounds one stream_logs write.
const streamTimeout = 5 * time.Second

func attachCommand() *cli.Command {
	var (
		flags commonFlags
		dir   string
	)
	return &cli.Command{
		Name:    "attach",
		Summary: "Stream a service's output to the relay",
		Description: `Stream a service's output to the relay.

Reads ` + config.ProjectFile + ` from the service directory, registers the
service with the local relay, then copies standard input to standard
output while streaming it to the relay. Pipe the service into it. If no
relay is running, one is started inside this process and lives as long
as it does.`,
		Usage: "<service command> 2>&1 | openbug attach [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("attach", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&dir, "dir", ".", "service directory containing "+config.ProjectFile)
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Attach a Node service", Command: "npm run dev 2>&1 | openbug attach"},
		},
		Run: func(args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			project, err := config.LoadProject(dir)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAttach(ctx, attachConfig{
				Config:  cfg,
				Project: project,
				Stdin:   os.Stdin,
				Stdout:  os.Stdout,
				Logger:  cli.NewCommandLogger(flags.level(slog.LevelInfo)).With("command", "attach"),
			})
		},
	}
}

type attachConfig struct {
	Config  *config.Config
	Project *config.Project
	Stdin   io.Reader
	Stdout  io.Writer
	Clock   clock.Clock
	Logger  *slog.Logger
}

// runAttach registers the project and tees Stdin until it ends or ctx
// is cancelled.
func runAttach(ctx context.Context, attach attachConfig) error {
	if attach.Clock == nil {
		attach.Clock = clock.Real()
	}
	logger := attach.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, stopRelay, err := connectOrStartRelay(ctx, attach.Config, logger)
	if err != nil {
		return err
	}
	defer stopRelay()

	project := attach.Project
	windowID := project.WindowID
	if windowID == 0 {
		windowID = attach.Clock.Now().UnixMilli()
	}
	stream := &logStream{
		url:      attach.Config.Relay.URL,
		windowID: windowID,
		registration: relay.Registration{
			ID:            project.ID,
			Description:   project.Description,
			Path:          project.Path,
			Name:          project.Name,
			WindowID:      windowID,
			LogsAvailable: project.LogsAvailable,
			CodeAvailable: project.CodeAvailable,
		},
		capture: capture.NewBuffer(0),
		clock:   attach.Clock,
		logger:  logger.With("project_id", project.ID, "window_id", windowID),
	}
	if err := stream.adopt(ctx, client); err != nil {
		client.Close()
		return err
	}

	maintained := make(chan struct{})
	go func() {
		defer close(maintained)
		stream.maintain(ctx, client)
	}()
	defer func() {
		cancel()
		<-maintained
	}()

	copied := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.MultiWriter(attach.Stdout, stream), attach.Stdin)
		copied <- err
	}()

	select {
	case err := <-copied:
		return err
	case <-ctx.Done():
		return nil
	}
}

// connectOrStartRelay dials the configured relay, starting one in this
// process if nothing answers. The returned stop function shuts the
// embedded relay down; it is a no-op when the relay was already
// running.
func connectOrStartRelay(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*relay.Client, func(), error) {
	dialCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	client, err := relay.Dial(dialCtx, cfg.Relay.URL, &relay.ClientOptions{Logger: logger})
	if err == nil {
		return client, func() {}, nil
	}
	logger.Debug("no relay answering, starting one", "url", cfg.Relay.URL, "error", err)

	server := relay.NewServer(relay.ConfigFrom(cfg.Relay, logger.With("component", "relay")))
	stop := func() {}
	if err := server.Listen(); err != nil {
		// Lost a race with another attach; dial theirs.
		if !errors.Is(err, relay.ErrAddressInUse) {
			return nil, nil, err
		}
	} else {
		serveCtx, stopServe := context.WithCancel(context.Background())
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := server.Serve(serveCtx); err != nil {
				logger.Error("embedded relay failed", "error", err)
			}
		}()
		stop = func() {
			stopServe()
			<-served
		}
	}

	client, err = relay.Dial(dialCtx, cfg.Relay.URL, &relay.ClientOptions{Logger: logger})
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("connecting to relay at %s: %w", cfg.Relay.URL, err)
	}
	return client, stop, nil
}

// logStream is the relay side of the tee. Every write lands in the
// local capture and, while a relay connection is up, in the relay's
// buffer for this instance. After a reconnect the capture is replayed
// so the relay's buffer picks up where it was.
type logStream struct {
	url          string
	windowID     int64
	registration relay.Registration
	capture      *capture.Buffer
	clock        clock.Clock
	logger       *slog.Logger

	mutex  sync.Mutex
	client *relay.Client
	// pending holds the bytes of a rune split across writes. They are
	// in the capture already but not yet streamed.
	pending []byte
}

// Write never fails, so a relay outage does not stop the tee.
func (s *logStream) Write(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.capture.Write(p)

	data := append(s.pending, p...)
	end := completePrefix(data)
	chunk := string(data[:end])
	s.pending = append([]byte(nil), data[end:]...)

	if chunk != "" && s.client != nil {
		s.sendLocked(chunk)
	}
	return len(p), nil
}

func (s *logStream) sendLocked(chunk string) {
	ctx, cancel := context.WithTimeout(context.Background(), streamTimeout)
	defer cancel()
	if err := s.client.StreamLogs(ctx, s.windowID, chunk); err != nil {
		s.logger.Debug("streaming to relay failed, buffering locally until reconnect", "error", err)
		s.client.Close()
		s.client = nil
	}
}

// adopt registers on client and makes it the stream target, replaying
// whatever was captured while no relay was connected.
func (s *logStream) adopt(ctx context.Context, client *relay.Client) error {
	total, err := client.Register(ctx, s.registration)
	if err != nil {
		return fmt.Errorf("registering with relay: %w", err)
	}
	s.logger.Info("attached to relay", "services", total)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.client = client
	captured := s.capture.String()
	if replay := captured[:len(captured)-len(s.pending)]; replay != "" {
		s.sendLocked(replay)
	}
	return nil
}

// maintain watches the connection and re-dials every
// relay.WatchRetryInterval after it drops, until ctx is cancelled.
func (s *logStream) maintain(ctx context.Context, client *relay.Client) {
	for {
		if client != nil {
			select {
			case <-client.Done():
				s.logger.Warn("relay connection lost, retrying", "error", client.Err(), "retry_in", relay.WatchRetryInterval)
			case <-ctx.Done():
				s.detach(client)
				return
			}
			s.detach(client)
			client = nil
		}

		select {
		case <-s.clock.After(relay.WatchRetryInterval):
		case <-ctx.Done():
			return
		}

		dialed, err := relay.Dial(ctx, s.url, &relay.ClientOptions{Logger: s.logger})
		if err != nil {
			s.logger.Debug("relay still unreachable", "error", err)
			continue
		}
		if err := s.adopt(ctx, dialed); err != nil {
			s.logger.Debug("re-registering failed", "error", err)
			dialed.Close()
			continue
		}
		client = dialed
	}
}

func (s *logStream) detach(client *relay.Client) {
	s.mutex.Lock()
	if s.client == client {
		s.client = nil
	}
	s.mutex.Unlock()
	client.Close()
}

// completePrefix returns the length of the longest prefix of data that
// does not end inside a multi-byte rune.
func completePrefix(data []byte) int {
	for back := 1; back <= utf8.UTFMax && back <= len(data); back++ {
		start := len(data) - back
		if !utf8.RuneStart(data[start]) {
			continue
		}
		if utf8.FullRune(data[start:]) {
			return len(data)
		}
		return start
	}
	return len(data)
}
