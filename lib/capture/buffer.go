// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture holds the raw console output of a wrapped process
// and the log queries the chat backend runs against it.
//
// A [Buffer] is constructed by whoever owns the process output (the
// attach command) and handed to whoever reads it (the tool
// dispatcher). There is no package-level buffer.
//
// The query functions ([Tail], [Page], [Grep], [RecentErrors]) operate
// on plain text so they apply equally to a local Buffer and to logs
// fetched from the relay.
package capture

import (
	"sync"
	"unicode/utf8"
)

// DefaultCapacity bounds a Buffer at 1 MB of output. That is far more
// than any log tool returns; the cap only keeps a chatty process from
// growing the client without bound.
const DefaultCapacity = 1 << 20

// Buffer is an append-only text buffer that keeps the newest
// Capacity bytes. Safe for concurrent use.
type Buffer struct {
	mutex    sync.Mutex
	data     []byte
	capacity int
}

// NewBuffer returns a Buffer holding at most capacity bytes. A
// non-positive capacity means DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Write appends p. It never fails, so a Buffer can sit behind an
// io.MultiWriter next to stdout.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.data = append(b.data, p...)
	if overflow := len(b.data) - b.capacity; overflow > 0 {
		// Do not leave a partial rune at the head.
		for overflow < len(b.data) && !utf8.RuneStart(b.data[overflow]) {
			overflow++
		}
		b.data = append(b.data[:0], b.data[overflow:]...)
	}
	return len(p), nil
}

// AppendString appends chunk.
func (b *Buffer) AppendString(chunk string) {
	b.Write([]byte(chunk))
}

// String returns everything currently held.
func (b *Buffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return string(b.data)
}

// Len returns the number of bytes held.
func (b *Buffer) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.data)
}

// Reset discards everything held.
func (b *Buffer) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.data = b.data[:0]
}
