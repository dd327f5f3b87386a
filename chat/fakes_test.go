// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openbug-ai/cli/lib/testutil"
)

const testTimeout = 5 * time.Second

// fakeTransport is an in-memory Transport. Frames the client sends
// appear on sent; frames pushed with deliver are returned by Receive.
type fakeTransport struct {
	inbound   chan []byte
	sent      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		sent:    make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (t *fakeTransport) Send(ctx context.Context, data []byte) error {
	select {
	case <-t.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case t.sent <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *fakeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-t.inbound:
		return data, nil
	case <-t.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) deliver(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	t.inbound <- data
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// fakeDialer fails its first failFirst dials (all of them when
// failAll is set) and otherwise hands out fresh fakeTransports on
// transports.
type fakeDialer struct {
	failFirst  int
	failAll    bool
	dials      atomic.Int32
	transports chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{transports: make(chan *fakeTransport, 16)}
}

var errDialRefused = errors.New("dial refused")

func (d *fakeDialer) Dial(ctx context.Context, url string) (Transport, error) {
	count := int(d.dials.Add(1))
	if d.failAll || count <= d.failFirst {
		return nil, errDialRefused
	}
	transport := newFakeTransport()
	d.transports <- transport
	return transport, nil
}

// signal is an OnChange hook paired with waitFor.
type signal chan struct{}

func newSignal() signal { return make(signal, 1) }

func (s signal) notify() {
	select {
	case s <- struct{}{}:
	default:
	}
}

// waitFor blocks until condition holds, re-checking on each signal.
func waitFor(t *testing.T, changes signal, description string, condition func() bool) {
	t.Helper()
	deadline := time.After(testTimeout)
	for !condition() {
		select {
		case <-changes:
		case <-deadline:
			t.Fatalf("timed out waiting for %s", description)
		}
	}
}

// decodeSent reads the next frame the client sent.
func decodeSent(t *testing.T, transport *fakeTransport) map[string]any {
	t.Helper()
	data := testutil.RequireReceive(t, transport.sent, testTimeout, "waiting for client frame")
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("client sent invalid JSON %s: %v", data, err)
	}
	return frame
}

// recordingPoster collects posted results.
type recordingPoster struct {
	err     error
	results chan postedResult
}

type postedResult struct {
	call   ToolCall
	result any
}

func newRecordingPoster() *recordingPoster {
	return &recordingPoster{results: make(chan postedResult, 16)}
}

func (p *recordingPoster) PostToolResult(ctx context.Context, call ToolCall, result any) error {
	p.results <- postedResult{call: call, result: result}
	return p.err
}

// staticLogs is a LogFetcher serving fixed text for one window.
type staticLogs struct {
	windowID int64
	logs     string
	fetches  atomic.Int32
}

func (s *staticLogs) FetchLogs(ctx context.Context, windowID int64) (string, error) {
	s.fetches.Add(1)
	if windowID != s.windowID {
		return "", nil
	}
	return s.logs, nil
}
