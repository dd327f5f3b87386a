// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openbug-ai/cli/lib/clock"
)

func testClock() *clock.FakeClock {
	return clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

// readyManager connects a manager and completes the handshake.
func readyManager(t *testing.T, config ManagerConfig) (*Manager, *fakeDialer, *fakeTransport, signal) {
	t.Helper()
	dialer := newFakeDialer()
	changes := newSignal()
	config.Dialer = dialer
	if config.ServiceID == 0 {
		config.ServiceID = 42
	}
	config.OnChange = changes.notify
	if config.Clock == nil {
		config.Clock = testClock()
	}
	manager := NewManager(config)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := manager.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	transport := <-dialer.transports
	if frame := decodeSent(t, transport); frame["type"] != TypeRecurringConnection {
		t.Fatalf("first frame: got %v, want recurring_connection", frame)
	}
	transport.deliver(map[string]any{"type": TypeUserAssigned, "socketId": "socket-1"})
	waitFor(t, changes, "Ready", func() bool { return manager.Status().State == Ready })
	return manager, dialer, transport, changes
}

func TestManagerHandshake(t *testing.T) {
	t.Parallel()
	dialer := newFakeDialer()
	changes := newSignal()
	manager := NewManager(ManagerConfig{
		URL:       "ws://backend.test/v2/ws",
		ServiceID: 1700000000123,
		AuthKey:   "secret",
		Dialer:    dialer,
		Clock:     testClock(),
		OnChange:  changes.notify,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	transport := <-dialer.transports

	handshake := decodeSent(t, transport)
	if handshake["type"] != TypeRecurringConnection {
		t.Errorf("type: got %v", handshake["type"])
	}
	if handshake["serviceId"] != float64(1700000000123) {
		t.Errorf("serviceId: got %v", handshake["serviceId"])
	}
	if handshake["authKey"] != "secret" {
		t.Errorf("authKey: got %v", handshake["authKey"])
	}
	if state := manager.Status().State; state != AwaitingAssignment {
		t.Errorf("state before assignment: got %s, want awaiting-assignment", state)
	}

	// Non-JSON and empty frames are ignored.
	transport.inbound <- []byte("   ")
	transport.inbound <- []byte("ping")
	transport.deliver(map[string]any{"type": TypeUserAssigned, "socketId": "abc"})

	waitFor(t, changes, "Ready", func() bool { return manager.Status().State == Ready })
	status := manager.Status()
	if status.SocketID != "abc" || status.Err != nil || status.Failures != 0 {
		t.Errorf("status after assignment: %+v", status)
	}
}

func TestManagerMissingServiceID(t *testing.T) {
	t.Parallel()
	dialer := newFakeDialer()
	manager := NewManager(ManagerConfig{URL: "ws://backend.test", Dialer: dialer, Clock: testClock()})

	err := manager.Connect(context.Background())
	if !errors.Is(err, ErrMissingServiceID) {
		t.Fatalf("got %v, want ErrMissingServiceID", err)
	}
	if dials := dialer.dials.Load(); dials != 0 {
		t.Errorf("dialled %d times without a service id", dials)
	}
	status := manager.Status()
	if status.State == Ready || !errors.Is(status.Err, ErrMissingServiceID) {
		t.Errorf("status: %+v", status)
	}
}

func TestManagerSendQueryRequiresReady(t *testing.T) {
	t.Parallel()
	manager := NewManager(ManagerConfig{ServiceID: 1, Dialer: newFakeDialer(), Clock: testClock()})
	err := manager.SendQuery(context.Background(), []Turn{UserTurn("hi")}, "", "", "", nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
	if manager.Status().Loading {
		t.Error("loading set by a rejected query")
	}
}

func TestManagerRetryBudget(t *testing.T) {
	t.Parallel()
	fake := testClock()
	dialer := newFakeDialer()
	dialer.failAll = true
	manager := NewManager(ManagerConfig{
		URL:           "ws://localhost:9",
		ServiceID:     7,
		RetryInterval: time.Second,
		MaxRetries:    3,
		Dialer:        dialer,
		Clock:         fake,
	})

	if err := manager.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if dials := dialer.dials.Load(); dials != 1 {
		t.Fatalf("dials after Connect: got %d, want 1", dials)
	}
	status := manager.Status()
	if status.State != Reconnecting {
		t.Fatalf("state: got %s, want reconnecting", status.State)
	}
	var connectionError *ConnectionError
	if !errors.As(status.Err, &connectionError) {
		t.Fatalf("error: got %v, want ConnectionError", status.Err)
	}
	if pending := fake.PendingCount(); pending != 1 {
		t.Fatalf("pending redials: got %d, want 1", pending)
	}

	// Half the interval does nothing.
	fake.Advance(500 * time.Millisecond)
	if dials := dialer.dials.Load(); dials != 1 {
		t.Fatalf("dials before the interval elapsed: got %d, want 1", dials)
	}

	fake.Advance(500 * time.Millisecond)
	if dials := dialer.dials.Load(); dials != 2 {
		t.Fatalf("dials after one interval: got %d, want 2", dials)
	}

	fake.Advance(time.Second)
	if dials := dialer.dials.Load(); dials != 3 {
		t.Fatalf("dials after two intervals: got %d, want 3", dials)
	}
	status = manager.Status()
	if status.State != Terminated {
		t.Fatalf("state after %d failures: got %s, want terminated", 3, status.State)
	}
	if !errors.Is(status.Err, ErrRetriesExhausted) {
		t.Errorf("error: got %v, want ErrRetriesExhausted", status.Err)
	}
	if pending := fake.PendingCount(); pending != 0 {
		t.Errorf("pending redials after giving up: got %d, want 0", pending)
	}

	fake.Advance(time.Minute)
	if dials := dialer.dials.Load(); dials != 3 {
		t.Errorf("dialled after terminating: got %d dials, want 3", dials)
	}

	// A manual Connect starts a fresh budget.
	if err := manager.Connect(context.Background()); err != nil {
		t.Fatalf("manual Connect: %v", err)
	}
	if status := manager.Status(); status.State != Reconnecting || status.Failures != 1 {
		t.Errorf("after manual retry: state %s failures %d, want reconnecting with 1", status.State, status.Failures)
	}
}

func TestManagerAssignmentResetsFailures(t *testing.T) {
	t.Parallel()
	fake := testClock()
	dialer := newFakeDialer()
	dialer.failFirst = 2
	changes := newSignal()
	manager := NewManager(ManagerConfig{
		URL:        "ws://backend.test",
		ServiceID:  7,
		MaxRetries: 3,
		Dialer:     dialer,
		Clock:      fake,
		OnChange:   changes.notify,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Connect(ctx)
	fake.Advance(DefaultRetryInterval)
	fake.Advance(DefaultRetryInterval)

	transport := <-dialer.transports
	decodeSent(t, transport)
	if failures := manager.Status().Failures; failures != 2 {
		t.Fatalf("failures before assignment: got %d, want 2", failures)
	}
	transport.deliver(map[string]any{"type": TypeUserAssigned, "socketId": "s"})
	waitFor(t, changes, "Ready", func() bool { return manager.Status().State == Ready })
	if failures := manager.Status().Failures; failures != 0 {
		t.Fatalf("failures after assignment: got %d, want 0", failures)
	}

	// The backend dropping the connection starts the redial path
	// again with the full budget.
	transport.Close()
	waitFor(t, changes, "Reconnecting", func() bool { return manager.Status().State == Reconnecting })
	if failures := manager.Status().Failures; failures != 1 {
		t.Errorf("failures after drop: got %d, want 1", failures)
	}

	fake.Advance(DefaultRetryInterval)
	replacement := receiveTransport(t, dialer)
	if frame := decodeSent(t, replacement); frame["type"] != TypeRecurringConnection {
		t.Errorf("redial handshake: got %v", frame)
	}
}

func receiveTransport(t *testing.T, dialer *fakeDialer) *fakeTransport {
	t.Helper()
	select {
	case transport := <-dialer.transports:
		return transport
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a redial")
	}
	return nil
}

func TestManagerInterrupt(t *testing.T) {
	t.Parallel()
	fake := testClock()
	manager, dialer, transport, _ := readyManager(t, ManagerConfig{Clock: fake})

	if err := manager.SendQuery(context.Background(), []Turn{UserTurn("why?")}, "", "", "", nil); err != nil {
		t.Fatalf("SendQuery: %v", err)
	}
	decodeSent(t, transport)
	if !manager.Status().Loading {
		t.Fatal("loading not set by SendQuery")
	}

	manager.Interrupt()

	status := manager.Status()
	if status.State != Idle || status.Loading {
		t.Errorf("after Interrupt: %+v", status)
	}
	if !transport.isClosed() {
		t.Error("transport left open")
	}
	if pending := fake.PendingCount(); pending != 0 {
		t.Errorf("redial scheduled after Interrupt: %d pending", pending)
	}
	fake.Advance(time.Minute)
	if dials := dialer.dials.Load(); dials != 1 {
		t.Errorf("redialled after Interrupt: %d dials", dials)
	}
	if err := manager.SendQuery(context.Background(), []Turn{UserTurn("again")}, "", "", "", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendQuery after Interrupt: got %v, want ErrNotConnected", err)
	}
}

func TestManagerQueryPayload(t *testing.T) {
	t.Parallel()
	manager, _, transport, _ := readyManager(t, ManagerConfig{ServiceID: 99, AuthKey: "k"})

	history := []Turn{UserTurn("first"), {Role: RoleAssistant, Content: TextContent("answer")}, UserTurn("second")}
	if err := manager.SendQuery(context.Background(), history, "arch", "log text", "1. check the db", nil); err != nil {
		t.Fatalf("SendQuery: %v", err)
	}
	query := decodeSent(t, transport)
	if query["type"] != TypeQuery || query["serviceId"] != float64(99) || query["authKey"] != "k" {
		t.Errorf("envelope: %v", query)
	}
	if query["planningDoc"] != "1. check the db" {
		t.Errorf("planningDoc: got %v", query["planningDoc"])
	}
	userQuery, _ := query["userQuery"].(map[string]any)
	if messages, _ := userQuery["messages"].([]any); len(messages) != 3 {
		t.Errorf("full history: got %d messages, want 3", len(messages))
	}
	if userQuery["architecture"] != "arch" || userQuery["logs"] != "log text" || userQuery["planningDoc"] != "1. check the db" {
		t.Errorf("userQuery: %v", userQuery)
	}
	if _, present := query["graphState"]; present {
		t.Error("graphState sent without a session state")
	}

	state := &SessionState{Messages: history[:2], Logs: "log text", Architecture: "arch"}
	if err := manager.SendQuery(context.Background(), history, "arch", "log text", "", state); err != nil {
		t.Fatalf("SendQuery with state: %v", err)
	}
	query = decodeSent(t, transport)
	userQuery, _ = query["userQuery"].(map[string]any)
	messages, _ := userQuery["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("continuation: got %d messages, want 1", len(messages))
	}
	if newest, _ := messages[0].(map[string]any); newest["content"] != "second" {
		t.Errorf("continuation sent %v, want the newest turn", newest)
	}
	graphState, _ := query["graphState"].(map[string]any)
	if stored, _ := graphState["messages"].([]any); len(stored) != 2 {
		t.Errorf("graphState messages: got %d, want 2", len(stored))
	}
}

func TestManagerServerError(t *testing.T) {
	t.Parallel()
	manager, _, transport, changes := readyManager(t, ManagerConfig{})

	if err := manager.SendQuery(context.Background(), []Turn{UserTurn("q")}, "", "", "", nil); err != nil {
		t.Fatalf("SendQuery: %v", err)
	}
	decodeSent(t, transport)
	transport.deliver(map[string]any{"type": TypeError, "message": "quota exceeded"})

	waitFor(t, changes, "server error", func() bool { return manager.Status().Err != nil })
	status := manager.Status()
	if status.Loading {
		t.Error("loading survived a server error")
	}
	if !strings.Contains(status.Err.Error(), "quota exceeded") {
		t.Errorf("error: got %v", status.Err)
	}
}

func TestManagerAskUserStopsLoading(t *testing.T) {
	t.Parallel()
	manager, _, transport, changes := readyManager(t, ManagerConfig{})

	if err := manager.SendQuery(context.Background(), []Turn{UserTurn("q")}, "", "", "", nil); err != nil {
		t.Fatalf("SendQuery: %v", err)
	}
	decodeSent(t, transport)
	if !manager.Status().Loading {
		t.Fatal("not loading after SendQuery")
	}
	transport.deliver(map[string]any{"type": TypeAskUser, "message": "which service?"})

	waitFor(t, changes, "ask_user", func() bool { return !manager.Status().Loading })
	if status := manager.Status(); status.Err != nil || status.State != Ready {
		t.Errorf("status after ask_user: %+v", status)
	}
}
