// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/openbug-ai/cli/lib/clock"
	"github.com/openbug-ai/cli/lib/codec"
	"github.com/openbug-ai/cli/lib/config"
	"github.com/openbug-ai/cli/lib/netutil"
)

// ErrAddressInUse is returned by Listen when another process already
// serves the address. Callers treat it as "a relay is already
// running" and carry on using that one.
var ErrAddressInUse = errors.New("relay: address already in use")

// DefaultAddress is the loopback address the relay binds by default.
const DefaultAddress = "127.0.0.1:4466"

const (
	// sendQueueSize is the per-connection outbound buffer. A peer
	// that falls this far behind loses frames.
	sendQueueSize = 256

	// maxFrameSize bounds one inbound frame. stream_logs chunks are
	// the largest legitimate frames.
	maxFrameSize = 4 << 20

	writeTimeout = 5 * time.Second
)

// Config configures a Server.
type Config struct {
	// Address is the host:port to bind. Default: 127.0.0.1:4466.
	Address string

	// LogMaxSize, LogTTL and SweepInterval size the log store.
	// Zero values take the defaults.
	LogMaxSize    int
	LogTTL        time.Duration
	SweepInterval time.Duration

	// Clock drives log timestamps and the sweep. Default: real time.
	Clock clock.Clock

	// Logger receives connection lifecycle and protocol events.
	// Nil discards.
	Logger *slog.Logger
}

// ConfigFrom maps the relay section of a loaded configuration onto a
// server Config.
func ConfigFrom(relay config.RelayConfig, logger *slog.Logger) Config {
	return Config{
		Address:       relay.Address(),
		LogMaxSize:    relay.LogMaxSize,
		LogTTL:        relay.LogTTL.Std(),
		SweepInterval: relay.SweepInterval.Std(),
		Logger:        logger,
	}
}

// Server is the relay. Create with NewServer, bind with Listen, then
// run Serve.
type Server struct {
	address       string
	sweepInterval time.Duration
	clock         clock.Clock
	logger        *slog.Logger

	listener net.Listener

	// mutex guards everything below, and the subscriptions and
	// binding fields of every peer.
	mutex    sync.Mutex
	registry *Registry
	logs     *LogStore
	peers    map[*peer]struct{}
	// stopping is set once Serve starts closing peers. Connections
	// upgraded after that are refused.
	stopping bool

	connections sync.WaitGroup
}

// binding ties a connection to the entry it registered (or streamed
// logs for). It does not own the entry.
type binding struct {
	projectID string
	path      string
	windowID  int64
}

type outbound struct {
	messageType websocket.MessageType
	data        []byte
}

// peer is one connected websocket.
type peer struct {
	id     string
	conn   *websocket.Conn
	send   chan outbound
	ctx    context.Context
	cancel context.CancelFunc

	// format is the encoding of the last frame the peer sent, used
	// for broadcasts. Guarded by the server mutex.
	format        codec.Format
	subscriptions map[string]bool
	bound         *binding
}

// NewServer returns an unbound server.
func NewServer(config Config) *Server {
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		address:       config.Address,
		sweepInterval: config.SweepInterval,
		clock:         config.Clock,
		logger:        config.Logger,
		registry:      NewRegistry(),
		logs:          NewLogStore(config.LogMaxSize, config.LogTTL, config.Clock),
		peers:         make(map[*peer]struct{}),
	}
}

// Listen binds the configured address. A bind conflict returns an
// error wrapping ErrAddressInUse.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		if netutil.IsAddressInUse(err) {
			return fmt.Errorf("%w: %s", ErrAddressInUse, s.address)
		}
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// URL returns the websocket URL clients dial.
func (s *Server) URL() string {
	return "ws://" + s.Addr().String()
}

// Serve accepts connections until ctx is cancelled, then closes every
// connection and clears all log buffers. Calls Listen first if it has
// not been called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpServer := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		s.sweepLoop(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(s.listener)
	}()

	s.logger.Info("relay listening", "address", s.listener.Addr().String())

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	httpServer.Close()
	s.closePeers()
	cancel()
	<-sweepDone
	s.connections.Wait()

	s.mutex.Lock()
	s.logs.Clear()
	s.mutex.Unlock()

	s.logger.Info("relay stopped")
	return err
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one eviction pass over the log buffers.
func (s *Server) Sweep() {
	s.mutex.Lock()
	deleted := s.logs.Sweep()
	remaining := s.logs.Len()
	s.mutex.Unlock()

	if deleted > 0 {
		s.logger.Debug("evicted stale log buffers", "deleted", deleted, "remaining", remaining)
	}
}

func (s *Server) closePeers() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stopping = true
	for p := range s.peers {
		p.cancel()
	}
}

// ServeHTTP upgrades the request to a websocket and runs the
// connection until either side closes it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	ctx, cancel := context.WithCancel(context.Background())
	p := &peer{
		id:            uuid.NewString(),
		conn:          conn,
		send:          make(chan outbound, sendQueueSize),
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]bool),
	}

	s.mutex.Lock()
	if s.stopping {
		s.mutex.Unlock()
		cancel()
		conn.Close(websocket.StatusGoingAway, "relay shutting down")
		return
	}
	s.connections.Add(1)
	s.peers[p] = struct{}{}
	s.mutex.Unlock()
	defer s.connections.Done()

	s.logger.Debug("peer connected", "conn_id", p.id, "remote", r.RemoteAddr)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writePump(p)
	}()
	s.readPump(p)

	cancel()
	<-writeDone
	s.disconnect(p)
}

func (s *Server) readPump(p *peer) {
	for {
		messageType, data, err := p.conn.Read(p.ctx)
		if err != nil {
			if netutil.IsExpectedCloseError(err) {
				s.logger.Debug("peer closed", "conn_id", p.id)
			} else {
				s.logger.Warn("peer read failed", "conn_id", p.id, "error", err)
			}
			return
		}
		format := codec.JSON
		if messageType == websocket.MessageBinary {
			format = codec.CBOR
		}
		s.handleFrame(p, format, data)
	}
}

func (s *Server) writePump(p *peer) {
	defer p.conn.Close(websocket.StatusNormalClosure, "")
	for {
		select {
		case <-p.ctx.Done():
			return
		case message := <-p.send:
			ctx, cancel := context.WithTimeout(p.ctx, writeTimeout)
			err := p.conn.Write(ctx, message.messageType, message.data)
			cancel()
			if err != nil {
				if !netutil.IsExpectedCloseError(err) {
					s.logger.Warn("peer write failed", "conn_id", p.id, "error", err)
				}
				p.cancel()
				return
			}
		}
	}
}

// enqueue encodes v for p and queues it without blocking. Reports
// false when the peer is gone or its queue is full.
func (s *Server) enqueue(p *peer, format codec.Format, v any) bool {
	if p.ctx.Err() != nil {
		return false
	}
	data, err := codec.Marshal(format, v)
	if err != nil {
		s.logger.Error("encoding frame failed", "conn_id", p.id, "error", err)
		return false
	}
	messageType := websocket.MessageText
	if format == codec.CBOR {
		messageType = websocket.MessageBinary
	}
	select {
	case p.send <- outbound{messageType: messageType, data: data}:
		return true
	default:
		s.logger.Warn("dropping frame for slow peer", "conn_id", p.id)
		return false
	}
}

// broadcastLocked sends the project's current membership to every
// peer subscribed to it. Peers that cannot take the frame are
// unsubscribed. Must be called with s.mutex held.
func (s *Server) broadcastLocked(projectID string) {
	update := projectUpdate{
		Type:      TypeProjectUpdate,
		ProjectID: projectID,
		Projects:  s.registry.Get(projectID).Services,
	}
	for p := range s.peers {
		if !p.subscriptions[projectID] {
			continue
		}
		if !s.enqueue(p, p.format, update) {
			delete(p.subscriptions, projectID)
			s.logger.Debug("dropped subscriber", "conn_id", p.id, "project_id", projectID)
		}
	}
}

// disconnect removes the peer and, if it was bound, the entry it
// registered. The entry is only removed while it still belongs to the
// same instance, so a restarted service that re-registered the path
// from a new connection keeps its entry.
func (s *Server) disconnect(p *peer) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.peers, p)
	bound := p.bound
	if bound == nil {
		return
	}

	current, exists := s.registry.Lookup(bound.projectID, bound.path)
	if !exists || (bound.windowID != 0 && current.WindowID != bound.windowID) {
		return
	}
	removed, _ := s.registry.Remove(bound.projectID, bound.path)
	s.logs.Drop(removed.WindowID)
	s.broadcastLocked(bound.projectID)

	s.logger.Info("service left",
		"conn_id", p.id,
		"project_id", bound.projectID,
		"path", bound.path,
		"window_id", removed.WindowID,
	)
}

func (s *Server) handleFrame(p *peer, format codec.Format, data []byte) {
	if len(data) == 0 || (format == codec.JSON && strings.TrimSpace(string(data)) == "") {
		return
	}

	var frame request
	if err := codec.Unmarshal(format, data, &frame); err != nil {
		attrs := []any{"conn_id", p.id, "format", format.String(), "error", err}
		if format == codec.CBOR && s.logger.Enabled(context.Background(), slog.LevelDebug) {
			if diagnostic, err := codec.Diagnose(data); err == nil {
				attrs = append(attrs, "frame", diagnostic)
			}
		}
		s.logger.Debug("malformed frame", attrs...)
		s.mutex.Lock()
		s.enqueue(p, format, messageReply{Type: TypeError, Message: messageInvalidJSON})
		s.mutex.Unlock()
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	p.format = format

	switch frame.Type {
	case TypeRegister:
		s.handleRegister(p, format, frame.Project)
	case TypeSubscribeUpdates:
		projectID := frame.ID
		if projectID == "" {
			projectID = config.DefaultProjectID
		}
		p.subscriptions[projectID] = true
		s.enqueue(p, format, projectUpdate{
			Type:      TypeProjectUpdate,
			ProjectID: projectID,
			Projects:  s.registry.Get(projectID).Services,
		})
	case TypeFetchProjects:
		s.enqueue(p, format, fetchProjectsAck{
			Type:     TypeFetchProjectsAck,
			Projects: s.registry.Get(frame.ID).Services,
		})
	case TypeStreamLogs:
		windowID, ok := codec.Number(frame.WindowID)
		if !ok || windowID <= 0 {
			return
		}
		s.logs.Append(windowID, frame.Logs)
		if p.bound == nil {
			if projectID, service, found := s.registry.FindWindow(windowID); found {
				p.bound = &binding{projectID: projectID, path: service.Path, windowID: windowID}
			}
		}
	case TypeFetchLogs:
		windowID, ok := codec.Number(frame.WindowID)
		if !ok || windowID <= 0 {
			s.enqueue(p, format, messageReply{Type: TypeError, Message: messageInvalidWindow})
			return
		}
		s.enqueue(p, format, fetchLogsAck{
			Type:     TypeFetchLogsAck,
			WindowID: windowID,
			Logs:     s.logs.Read(windowID),
		})
	default:
		s.enqueue(p, format, messageReply{
			Type:    TypeAck,
			Message: fmt.Sprintf("Unhandled message type \"%s\"", frame.Type),
		})
	}
}

// handleRegister validates and applies a registration. Must be called
// with s.mutex held.
func (s *Server) handleRegister(p *peer, format codec.Format, registration *Registration) {
	projectID, service, ok := s.normalize(registration)
	if !ok {
		s.enqueue(p, format, messageReply{Type: TypeError, Message: messageInvalidRegister})
		return
	}

	group := s.registry.Upsert(projectID, service)
	s.logs.MarkActive(service.WindowID)
	p.bound = &binding{projectID: projectID, path: service.Path, windowID: service.WindowID}

	s.enqueue(p, format, registerAck{
		Type:                    TypeRegisterAck,
		ProjectID:               projectID,
		TotalRegisteredServices: len(group.Services),
	})
	s.broadcastLocked(projectID)

	s.logger.Info("service registered",
		"conn_id", p.id,
		"project_id", projectID,
		"path", service.Path,
		"window_id", service.WindowID,
		"services", len(group.Services),
	)
}

// normalize trims the registration's strings and fills defaults: a
// missing window id becomes the current Unix millisecond time and
// missing capability flags become true.
func (s *Server) normalize(registration *Registration) (string, Service, bool) {
	if registration == nil {
		return "", Service{}, false
	}
	projectID := strings.TrimSpace(registration.ID)
	service := Service{
		Path:          strings.TrimSpace(registration.Path),
		Description:   strings.TrimSpace(registration.Description),
		Name:          strings.TrimSpace(registration.Name),
		LogsAvailable: registration.LogsAvailable == nil || *registration.LogsAvailable,
		CodeAvailable: registration.CodeAvailable == nil || *registration.CodeAvailable,
	}
	if projectID == "" || service.Path == "" || service.Description == "" {
		return "", Service{}, false
	}

	windowID, ok := codec.Number(registration.WindowID)
	if !ok || windowID <= 0 {
		windowID = s.clock.Now().UnixMilli()
	}
	service.WindowID = windowID

	return projectID, service, true
}
