// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/openbug-ai/cli/lib/capture"
	"github.com/openbug-ai/cli/lib/clock"
	"github.com/openbug-ai/cli/lib/config"
	"github.com/openbug-ai/cli/relay"
)

// SessionConfig configures a Session.
type SessionConfig struct {
	// URL is the backend websocket URL, APIBaseURL the HTTP API root.
	URL        string
	APIBaseURL string
	AuthKey    string

	// ConfigPath names the loaded configuration file in remediation
	// text.
	ConfigPath string

	RetryInterval time.Duration
	MaxRetries    int

	// PlanningDoc is an operator-written investigation plan sent with
	// every query. Empty means none.
	PlanningDoc string

	// Capture, Relay and Poster feed the Dispatcher. A nil Poster
	// posts to APIBaseURL over HTTP.
	Capture *capture.Buffer
	Relay   LogFetcher
	Poster  ResultPoster

	Dialer Dialer
	Clock  clock.Clock
	Logger *slog.Logger

	// OnChange is called whenever the transcript or the connection
	// status changes.
	OnChange func()
}

// SessionConfigFrom maps a loaded configuration onto a SessionConfig.
func SessionConfigFrom(cfg *config.Config, logger *slog.Logger) SessionConfig {
	return SessionConfig{
		URL:           cfg.Backend.WebSocketURL,
		APIBaseURL:    cfg.Backend.APIBaseURL,
		AuthKey:       cfg.Backend.APIKey,
		ConfigPath:    cfg.Path,
		RetryInterval: cfg.Client.RetryInterval.Std(),
		MaxRetries:    cfg.Client.MaxRetries,
		Logger:        logger,
	}
}

// SessionStatus is a snapshot of a Session.
type SessionStatus struct {
	Status

	// StreamError is the message of the last stream error part, until
	// the next query.
	StreamError string

	// Service is the service tool calls run against.
	Service relay.Service
}

// Session is one operator's conversation: the backend connection, the
// transcript, and the tool dispatcher for the active service.
type Session struct {
	manager     *Manager
	dispatcher  *Dispatcher
	capture     *capture.Buffer
	planningDoc string
	logger      *slog.Logger
	onChange    func()

	// tools tracks running tool dispatches.
	tools sync.WaitGroup

	mutex        sync.Mutex
	ctx          context.Context
	assembler    Assembler
	services     []relay.Service
	architecture string
	// turns is the visible transcript.
	turns []Turn
	// history is the conversation the open response extends.
	history     []Turn
	state       *SessionState
	streamError string
}

// NewSession returns a session targeting the first of services. The
// backend connection is not opened until Connect.
func NewSession(config SessionConfig, services []relay.Service) *Session {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poster := config.Poster
	if poster == nil {
		poster = NewHTTPPoster(config.APIBaseURL, nil)
	}

	session := &Session{
		capture:     config.Capture,
		planningDoc: config.PlanningDoc,
		logger:      logger,
		onChange:    config.OnChange,
		ctx:      context.Background(),
	}
	session.dispatcher = NewDispatcher(DispatcherConfig{
		Capture: config.Capture,
		Relay:   config.Relay,
		Poster:  poster,
		Logger:  logger.With("component", "tools"),
	})
	session.manager = NewManager(ManagerConfig{
		URL:           config.URL,
		AuthKey:       config.AuthKey,
		RetryInterval: config.RetryInterval,
		MaxRetries:    config.MaxRetries,
		APIBaseURL:    config.APIBaseURL,
		ConfigPath:    config.ConfigPath,
		Dialer:        config.Dialer,
		Clock:         config.Clock,
		Logger:        logger.With("component", "connection"),
		OnFrame:       session.handleFrame,
		OnChange:      session.changed,
	})
	session.setServices(services)
	return session
}

// Connect opens the backend connection. See Manager.Connect.
func (s *Session) Connect(ctx context.Context) error {
	s.mutex.Lock()
	s.ctx = ctx
	s.mutex.Unlock()
	return s.manager.Connect(ctx)
}

// Interrupt closes the backend connection without redialling and
// drops the partially streamed response.
func (s *Session) Interrupt() {
	s.mutex.Lock()
	s.assembler.Reset()
	s.mutex.Unlock()
	s.manager.Interrupt()
}

// Close interrupts the session and waits for running tool calls.
func (s *Session) Close() {
	s.Interrupt()
	s.tools.Wait()
}

// SetServices replaces the registered service list. The active
// service is kept if it is still registered (matched by path) and
// otherwise becomes the first service.
func (s *Session) SetServices(services []relay.Service) {
	s.setServices(services)
	s.changed()
}

func (s *Session) setServices(services []relay.Service) {
	s.mutex.Lock()
	s.services = slices.Clone(services)
	s.architecture = BuildArchitecture(services)
	s.mutex.Unlock()

	current := s.dispatcher.Service()
	active := relay.Service{}
	if len(services) > 0 {
		active = services[0]
	}
	for _, service := range services {
		if current.Path != "" && service.Path == current.Path {
			active = service
			break
		}
	}
	s.dispatcher.SetService(active)
	s.manager.setServiceID(active.WindowID)
}

// Ask sends text as the next user turn. The first query carries the
// whole transcript; once a response has finished, queries carry only
// the new turn plus the session state. A query that cannot be sent
// leaves the transcript unchanged.
func (s *Session) Ask(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("chat: empty query")
	}
	if s.manager.Status().State != Ready {
		return ErrNotConnected
	}
	user := UserTurn(text)

	s.mutex.Lock()
	previousTurns, previousHistory := s.turns, s.history
	state := s.state
	var logs string
	if state != nil {
		s.history = append(slices.Clone(state.Messages), user)
		logs = state.Logs
	} else {
		s.history = append(slices.Clone(s.turns), user)
		if s.capture != nil {
			logs = s.capture.String()
		}
	}
	s.turns = append(s.turns, user)
	s.streamError = ""
	s.assembler.Reset()
	history := s.history
	architecture := s.architecture
	s.mutex.Unlock()
	s.changed()

	if logs == "" {
		s.logger.Debug("query carries no logs; the backend fetches them through tool calls")
	}
	if err := s.manager.SendQuery(ctx, history, architecture, logs, s.planningDoc, state); err != nil {
		s.mutex.Lock()
		s.turns, s.history = previousTurns, previousHistory
		s.mutex.Unlock()
		s.changed()
		return err
	}
	return nil
}

// handleFrame is the manager's OnFrame callback.
func (s *Session) handleFrame(frame Frame) {
	switch frame.Type {
	case TypeResponse:
		if frame.Data == nil || frame.Data.Stream != StreamAISDK {
			return
		}
		s.applyPart(*frame.Data)
	case TypeToolFunctionCall:
		s.dispatch(ToolCall{ID: frame.ToolCallID, Name: frame.FunctionName, Args: frame.Args})
	}
}

func (s *Session) applyPart(part StreamPart) {
	s.mutex.Lock()
	step := s.assembler.Apply(part)
	switch step.Outcome {
	case Finished:
		if !emptyTurn(step.Turn) {
			s.history = append(s.history, step.Turn)
			s.turns = slices.Clone(s.history)
		}
		logs := ""
		if s.state != nil {
			logs = s.state.Logs
		}
		s.state = &SessionState{
			Messages:     slices.Clone(s.history),
			Logs:         logs,
			Architecture: s.architecture,
		}
	case Failed:
		s.streamError = step.Error
	}
	s.mutex.Unlock()

	if step.ToolCall != nil && IsTool(step.ToolCall.ToolName) {
		s.dispatch(ToolCall{ID: step.ToolCall.ToolCallID, Name: step.ToolCall.ToolName, Args: step.ToolCall.Args})
	}
	switch step.Outcome {
	case Finished, Failed:
		s.manager.setLoading(false)
		s.changed()
	}
}

// dispatch runs a tool call without blocking the reader.
func (s *Session) dispatch(call ToolCall) {
	s.mutex.Lock()
	ctx := s.ctx
	s.mutex.Unlock()

	s.tools.Add(1)
	go func() {
		defer s.tools.Done()
		s.dispatcher.Dispatch(ctx, call)
	}()
}

// Turns returns a copy of the transcript.
func (s *Session) Turns() []Turn {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return slices.Clone(s.turns)
}

// Architecture returns the architecture description sent with
// queries.
func (s *Session) Architecture() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.architecture
}

// State returns the session state token, nil before the first
// response finishes.
func (s *Session) State() *SessionState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Status returns a snapshot of the session.
func (s *Session) Status() SessionStatus {
	status := SessionStatus{
		Status:  s.manager.Status(),
		Service: s.dispatcher.Service(),
	}
	s.mutex.Lock()
	status.StreamError = s.streamError
	s.mutex.Unlock()
	return status
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func emptyTurn(turn Turn) bool {
	return !turn.Content.Structured() && turn.Content.Text == ""
}
