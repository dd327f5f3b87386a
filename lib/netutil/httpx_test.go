// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestErrorBody(t *testing.T) {
	t.Run("returns trimmed body", func(t *testing.T) {
		got := ErrorBody(strings.NewReader("  {\"message\":\"unauthorized\"}\n"))
		if got != `{"message":"unauthorized"}` {
			t.Fatalf("got %q, want %q", got, `{"message":"unauthorized"}`)
		}
	})

	t.Run("long body is cut", func(t *testing.T) {
		got := ErrorBody(strings.NewReader(strings.Repeat("x", 4096)))
		if len(got) != maxErrorBody {
			t.Fatalf("length: got %d, want %d", len(got), maxErrorBody)
		}
	})

	t.Run("read error returns empty", func(t *testing.T) {
		if got := ErrorBody(&failReader{}); got != "" {
			t.Fatalf("expected empty from failing reader, got %q", got)
		}
	})
}

func TestDrain(t *testing.T) {
	if got := Drain(bytes.NewReader([]byte(`{"ok":true}`))); got != 11 {
		t.Errorf("got %d, want 11", got)
	}
	if got := Drain(&failReader{}); got != 0 {
		t.Errorf("failing reader: got %d, want 0", got)
	}
}

// failReader always returns an error on Read.
type failReader struct{}

func (*failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}
