// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/openbug-ai/cli/lib/config"
	"github.com/openbug-ai/cli/lib/testutil"
	"github.com/openbug-ai/cli/relay"
)

const testTimeout = 5 * time.Second

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// reserveAddress returns a loopback host and port nothing listens on.
func reserveAddress(t *testing.T) (string, int) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	defer listener.Close()
	host, port, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	number, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}
	return host, number
}

// configFor returns defaults pointed at host:port.
func configFor(host string, port int) *config.Config {
	cfg := config.Default()
	cfg.Relay.Host = host
	cfg.Relay.Port = port
	cfg.Relay.URL = "ws://" + cfg.Relay.Address()
	return cfg
}

// startRelay serves a relay on address until the returned stop
// function runs or the test ends.
func startRelay(t *testing.T, host string, port int) (stop func()) {
	t.Helper()
	server := relay.NewServer(relay.ConfigFrom(configFor(host, port).Relay, discardLogger))
	if err := server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			if err := testutil.RequireReceive(t, done, testTimeout, "waiting for relay shutdown"); err != nil {
				t.Errorf("Serve: %v", err)
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

// runningRelay starts a relay on a fresh port and returns a config
// pointing at it.
func runningRelay(t *testing.T) *config.Config {
	t.Helper()
	host, port := reserveAddress(t)
	startRelay(t, host, port)
	return configFor(host, port)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func dialTest(t *testing.T, url string) *relay.Client {
	t.Helper()
	client, err := relay.Dial(testContext(t), url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// eventually polls check until it returns true. Used where the
// condition depends on frames crossing independent relay connections,
// which have no ordering between them.
func eventually(t *testing.T, description string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !check() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: %s", description)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// syncBuffer is a bytes.Buffer safe to write from one goroutine while
// the test reads it from another.
type syncBuffer struct {
	mutex  sync.Mutex
	buffer bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buffer.Write(p)
}

func (b *syncBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buffer.String()
}
