// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/openbug-ai/cli/lib/clock"
	"github.com/openbug-ai/cli/lib/netutil"
)

var (
	// ErrNotConnected is returned by SendQuery outside the Ready
	// state. Queries are never buffered.
	ErrNotConnected = errors.New("chat: not connected to the backend")

	// ErrMissingServiceID means no registered service instance is
	// available to identify the session. The handshake is not sent.
	ErrMissingServiceID = errors.New("chat: missing serviceId (window_id); make sure a service is registered with the relay")

	// ErrRetriesExhausted is the terminal failure after the retry
	// budget is spent. Only a manual Connect leaves that state.
	ErrRetriesExhausted = errors.New("chat: gave up reconnecting to the backend; retry manually")
)

// Defaults for ManagerConfig.
const (
	DefaultRetryInterval = time.Second
	DefaultMaxRetries    = 1000

	// dialTimeout bounds one dial plus the websocket upgrade.
	dialTimeout = 10 * time.Second
)

// State is a Manager's connection state.
type State int

const (
	Idle State = iota
	Connecting
	AwaitingAssignment
	Ready
	Reconnecting
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case AwaitingAssignment:
		return "awaiting-assignment"
	case Ready:
		return "ready"
	case Reconnecting:
		return "reconnecting"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transport is one open backend connection. Receive blocks until a
// frame arrives or the connection fails.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WebSocketDialer dials the backend over a websocket.
type WebSocketDialer struct {
	// Header is sent with the upgrade request.
	Header map[string][]string
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: d.Header})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(32 << 20)
	return &websocketTransport{conn: conn}, nil
}

type websocketTransport struct {
	conn *websocket.Conn
}

func (t *websocketTransport) Send(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *websocketTransport) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *websocketTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// URL is the backend websocket URL.
	URL string

	// ServiceID identifies the session to the backend: the window id
	// of the active service. Must be positive.
	ServiceID int64

	// AuthKey is passed through opaquely when non-empty.
	AuthKey string

	// RetryInterval is the fixed delay before each redial.
	// Default: DefaultRetryInterval.
	RetryInterval time.Duration

	// MaxRetries is the number of consecutive transport failures
	// after which the manager gives up. Default: DefaultMaxRetries.
	MaxRetries int

	// APIBaseURL and ConfigPath only feed remediation text.
	APIBaseURL string
	ConfigPath string

	Dialer Dialer
	Clock  clock.Clock
	Logger *slog.Logger

	// OnFrame receives every inbound frame after the manager's own
	// handling, in arrival order, on the reader goroutine.
	OnFrame func(Frame)

	// OnChange is called (outside the manager's lock) after the
	// state, error, or loading flag changes.
	OnChange func()
}

// Status is a snapshot of a Manager.
type Status struct {
	State    State
	SocketID string
	Loading  bool
	Failures int

	// Err is the error to show the operator, nil when healthy.
	Err error
}

// Manager keeps one backend connection alive. See the package
// documentation for the state machine.
type Manager struct {
	config ManagerConfig
	clock  clock.Clock
	logger *slog.Logger

	mutex sync.Mutex
	ctx   context.Context

	state    State
	socketID string
	loading  bool
	lastErr  error

	transport Transport
	// generation increments whenever the current transport is
	// replaced or abandoned, so failures reported by a stale reader
	// are ignored.
	generation uint64

	// failures counts consecutive transport failures since the last
	// assignment.
	failures int

	// retryPending guards against scheduling a second redial while
	// one is waiting.
	retryPending bool
	retryTimer   *clock.Timer

	// intentional is set by Interrupt so the resulting close does not
	// redial.
	intentional bool
}

// NewManager returns an Idle manager.
func NewManager(config ManagerConfig) *Manager {
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultRetryInterval
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.Dialer == nil {
		config.Dialer = WebSocketDialer{}
	}
	manager := &Manager{
		config: config,
		clock:  config.Clock,
		logger: config.Logger,
		ctx:    context.Background(),
	}
	if manager.clock == nil {
		manager.clock = clock.Real()
	}
	if manager.logger == nil {
		manager.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return manager
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return Status{
		State:    m.state,
		SocketID: m.socketID,
		Loading:  m.loading,
		Failures: m.failures,
		Err:      m.lastErr,
	}
}

// Connect opens a connection, replacing any current one and
// cancelling a pending redial. ctx bounds the manager's lifetime:
// reads and redials stop when it is cancelled. Calling Connect after
// Interrupt or a terminal failure starts a fresh retry budget.
//
// Connect only returns an error for configuration problems
// (ErrMissingServiceID). Transport failures go through the redial
// path and show up in Status.
func (m *Manager) Connect(ctx context.Context) error {
	m.mutex.Lock()
	m.ctx = ctx
	m.intentional = false
	if m.state == Idle || m.state == Terminated {
		m.failures = 0
	}
	m.mutex.Unlock()
	return m.connect()
}

func (m *Manager) connect() error {
	m.mutex.Lock()
	m.cancelRetryLocked()
	stale := m.abandonLocked()

	serviceID := m.config.ServiceID
	if serviceID <= 0 {
		m.state = Idle
		m.lastErr = ErrMissingServiceID
		m.mutex.Unlock()
		closeTransport(stale)
		m.changed()
		return ErrMissingServiceID
	}

	m.state = Connecting
	m.lastErr = nil
	generation := m.generation
	ctx := m.ctx
	m.mutex.Unlock()
	closeTransport(stale)
	m.changed()

	m.logger.Debug("dialing backend", "url", m.config.URL, "generation", generation)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	transport, err := m.config.Dialer.Dial(dialCtx, m.config.URL)
	cancel()
	if err != nil {
		m.fail(generation, err)
		return nil
	}

	m.mutex.Lock()
	if generation != m.generation || m.intentional {
		m.mutex.Unlock()
		closeTransport(transport)
		return nil
	}
	m.transport = transport
	m.state = AwaitingAssignment
	m.mutex.Unlock()
	m.changed()

	handshake, err := json.Marshal(handshakeFrame{
		Type:      TypeRecurringConnection,
		ServiceID: serviceID,
		AuthKey:   m.config.AuthKey,
	})
	if err != nil {
		m.fail(generation, err)
		return nil
	}
	if err := transport.Send(ctx, handshake); err != nil {
		m.fail(generation, err)
		return nil
	}

	go m.readLoop(ctx, generation, transport)
	return nil
}

func (m *Manager) readLoop(ctx context.Context, generation uint64, transport Transport) {
	for {
		data, err := transport.Receive(ctx)
		if err != nil {
			m.fail(generation, err)
			return
		}
		m.handleFrame(generation, data)
	}
}

// handleFrame parses one inbound frame, applies the connection-level
// effects of user_assigned, error and ask_user, and hands the frame on
// to OnFrame. Empty and non-JSON frames are ignored.
func (m *Manager) handleFrame(generation uint64, data []byte) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || (data[0] != '{' && data[0] != '[') {
		return
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		m.logger.Debug("ignoring malformed backend frame", "error", err)
		m.setLoading(false)
		return
	}

	m.mutex.Lock()
	if generation != m.generation {
		m.mutex.Unlock()
		return
	}
	notify := true
	switch frame.Type {
	case TypeUserAssigned:
		m.state = Ready
		m.failures = 0
		m.lastErr = nil
		m.socketID = frame.SocketID
	case TypeError:
		message := frame.Message
		if message == "" {
			message = "Server error occurred"
		}
		m.lastErr = fmt.Errorf("server error: %s", message)
		m.loading = false
	case TypeAskUser:
		m.loading = false
	default:
		notify = false
	}
	m.mutex.Unlock()

	if frame.Type == TypeUserAssigned {
		m.logger.Info("backend assigned session", "socket_id", frame.SocketID)
	}
	if notify {
		m.changed()
	}
	if m.config.OnFrame != nil {
		m.config.OnFrame(frame)
	}
}

// fail handles a transport failure of the given generation: the
// transport is dropped and, unless the close was intentional, a redial
// is scheduled or the manager terminates once the budget is spent.
func (m *Manager) fail(generation uint64, err error) {
	m.mutex.Lock()
	if generation != m.generation {
		m.mutex.Unlock()
		return
	}
	stale := m.abandonLocked()
	m.loading = false

	if m.intentional || m.ctx.Err() != nil {
		m.state = Idle
		m.mutex.Unlock()
		closeTransport(stale)
		m.changed()
		return
	}

	connectionError := &ConnectionError{
		Class:      Classify(err),
		URL:        m.config.URL,
		APIBaseURL: m.config.APIBaseURL,
		ConfigPath: m.config.ConfigPath,
		Err:        err,
	}
	m.failures++
	failures := m.failures

	if failures >= m.config.MaxRetries {
		m.state = Terminated
		m.lastErr = fmt.Errorf("%w (after %d attempts): %w", ErrRetriesExhausted, failures, connectionError)
		m.mutex.Unlock()
		closeTransport(stale)
		m.logger.Error("backend connection failed permanently",
			"url", m.config.URL,
			"failures", failures,
			"error", err,
		)
		m.changed()
		return
	}

	m.state = Reconnecting
	m.lastErr = connectionError
	if !m.retryPending {
		m.retryPending = true
		m.retryTimer = m.clock.AfterFunc(m.config.RetryInterval, m.retry)
	}
	m.mutex.Unlock()
	closeTransport(stale)

	if netutil.IsExpectedCloseError(err) {
		m.logger.Debug("backend connection closed, redialling", "failures", failures)
	} else {
		m.logger.Warn("backend connection failed, redialling",
			"class", connectionError.Class.String(),
			"failures", failures,
			"retry_in", m.config.RetryInterval,
			"error", err,
		)
	}
	m.changed()
}

// retry is the redial timer callback.
func (m *Manager) retry() {
	m.mutex.Lock()
	pending := m.retryPending && !m.intentional && m.ctx.Err() == nil
	m.retryPending = false
	m.retryTimer = nil
	m.mutex.Unlock()
	if pending {
		m.connect()
	}
}

// SendQuery sends a query. With a session state, only the newest turn
// is sent alongside it; otherwise the full history is. planningDoc
// goes out both at the top level and inside the user query, where the
// backend reads it; "" means none. Returns ErrNotConnected outside
// Ready.
func (m *Manager) SendQuery(ctx context.Context, turns []Turn, architecture, logs, planningDoc string, state *SessionState) error {
	m.mutex.Lock()
	transport := m.transport
	if m.state != Ready || transport == nil {
		m.mutex.Unlock()
		return ErrNotConnected
	}
	m.loading = true
	serviceID := m.config.ServiceID
	m.mutex.Unlock()
	m.changed()

	messages := turns
	if state != nil && len(turns) > 0 {
		messages = turns[len(turns)-1:]
	}
	if messages == nil {
		messages = []Turn{}
	}
	data, err := json.Marshal(queryFrame{
		Type:      TypeQuery,
		ServiceID: serviceID,
		AuthKey:   m.config.AuthKey,
		UserQuery: userQuery{
			Messages:     messages,
			Architecture: architecture,
			Logs:         logs,
			PlanningDoc:  planningDoc,
		},
		PlanningDoc: planningDoc,
		GraphState:  state,
	})
	if err == nil {
		err = transport.Send(ctx, data)
	}
	if err != nil {
		m.setLoading(false)
		return fmt.Errorf("sending query: %w", err)
	}
	return nil
}

// Interrupt closes the connection on purpose: no redial follows, a
// pending redial is cancelled, and the loading flag is cleared. Work
// already running on the backend is not cancelled.
func (m *Manager) Interrupt() {
	m.mutex.Lock()
	m.intentional = true
	m.cancelRetryLocked()
	stale := m.abandonLocked()
	m.loading = false
	m.state = Idle
	m.mutex.Unlock()
	closeTransport(stale)
	m.changed()
}

// setServiceID changes the id used by the next handshake and query.
func (m *Manager) setServiceID(serviceID int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.config.ServiceID = serviceID
}

// setLoading updates the loading flag and notifies on change.
func (m *Manager) setLoading(loading bool) {
	m.mutex.Lock()
	changed := m.loading != loading
	m.loading = loading
	m.mutex.Unlock()
	if changed {
		m.changed()
	}
}

func (m *Manager) cancelRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.retryPending = false
}

// abandonLocked detaches the current transport and invalidates its
// reader. The caller closes the returned transport after unlocking.
func (m *Manager) abandonLocked() Transport {
	m.generation++
	transport := m.transport
	m.transport = nil
	m.socketID = ""
	return transport
}

func (m *Manager) changed() {
	if m.config.OnChange != nil {
		m.config.OnChange()
	}
}

func closeTransport(transport Transport) {
	if transport != nil {
		transport.Close()
	}
}
