// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestBufferKeepsNewestSuffix(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(10)

	buffer.AppendString("0123456789")
	buffer.AppendString("abcde")

	if got, want := buffer.String(), "56789abcde"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if buffer.Len() != 10 {
		t.Errorf("Len: got %d, want 10", buffer.Len())
	}
}

func TestBufferDoesNotSplitRunes(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(4)

	// Five bytes; the last four would start inside the first "é".
	buffer.AppendString("éxé")
	if got := buffer.String(); got != "xé" {
		t.Errorf("got %q, want %q", got, "xé")
	}
}

func TestBufferAsWriter(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(0)
	var stdout strings.Builder

	writer := io.MultiWriter(&stdout, buffer)
	fmt.Fprintln(writer, "server listening on :8080")

	if buffer.String() != stdout.String() {
		t.Errorf("buffer %q differs from tee target %q", buffer.String(), stdout.String())
	}
	buffer.Reset()
	if buffer.Len() != 0 {
		t.Errorf("Len after Reset: got %d, want 0", buffer.Len())
	}
}

func TestBufferConcurrentWrites(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buffer.AppendString("x")
			}
		}()
	}
	wg.Wait()

	if buffer.Len() != 800 {
		t.Errorf("Len: got %d, want 800", buffer.Len())
	}
}
