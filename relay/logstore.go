// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"time"
	"unicode/utf8"

	"github.com/openbug-ai/cli/lib/clock"
)

// Defaults for the log store.
const (
	DefaultLogMaxSize    = 10000
	DefaultLogTTL        = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

type logBuffer struct {
	text         string
	lastActivity time.Time
}

// LogStore holds one bounded text buffer per service instance, plus
// the set of instance ids considered active.
//
// A buffer keeps at most maxSize characters; appends that overflow it
// drop the oldest text. Sweep deletes buffers whose instance is no
// longer active, and buffers idle for longer than the TTL (which also
// deactivates their instance).
//
// LogStore is not safe for concurrent use.
type LogStore struct {
	maxSize int
	ttl     time.Duration
	clock   clock.Clock
	buffers map[int64]*logBuffer
	active  map[int64]struct{}
}

// NewLogStore returns an empty store. Non-positive sizes fall back to
// the defaults.
func NewLogStore(maxSize int, ttl time.Duration, clk clock.Clock) *LogStore {
	if maxSize <= 0 {
		maxSize = DefaultLogMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultLogTTL
	}
	return &LogStore{
		maxSize: maxSize,
		ttl:     ttl,
		clock:   clk,
		buffers: make(map[int64]*logBuffer),
		active:  make(map[int64]struct{}),
	}
}

// Append adds chunk to the instance's buffer, creating it if needed,
// and marks the instance active.
func (s *LogStore) Append(windowID int64, chunk string) {
	buffer, exists := s.buffers[windowID]
	if !exists {
		buffer = &logBuffer{}
		s.buffers[windowID] = buffer
	}
	buffer.text = keepSuffix(buffer.text+chunk, s.maxSize)
	buffer.lastActivity = s.clock.Now()
	s.active[windowID] = struct{}{}
}

// Read returns the instance's buffered text, or "" when there is none.
func (s *LogStore) Read(windowID int64) string {
	if buffer, exists := s.buffers[windowID]; exists {
		return buffer.text
	}
	return ""
}

// MarkActive adds the instance to the active set.
func (s *LogStore) MarkActive(windowID int64) {
	s.active[windowID] = struct{}{}
}

// Active reports whether the instance is in the active set.
func (s *LogStore) Active(windowID int64) bool {
	_, active := s.active[windowID]
	return active
}

// Drop deletes the instance's buffer and removes it from the active
// set.
func (s *LogStore) Drop(windowID int64) {
	delete(s.buffers, windowID)
	delete(s.active, windowID)
}

// Sweep evicts inactive and stale buffers and returns how many were
// deleted.
func (s *LogStore) Sweep() int {
	now := s.clock.Now()
	deleted := 0
	for windowID, buffer := range s.buffers {
		if _, active := s.active[windowID]; !active {
			delete(s.buffers, windowID)
			deleted++
			continue
		}
		if now.Sub(buffer.lastActivity) > s.ttl {
			delete(s.buffers, windowID)
			delete(s.active, windowID)
			deleted++
		}
	}
	return deleted
}

// Len returns the number of buffers held.
func (s *LogStore) Len() int {
	return len(s.buffers)
}

// Clear deletes every buffer and empties the active set.
func (s *LogStore) Clear() {
	clear(s.buffers)
	clear(s.active)
}

// keepSuffix returns the last limit characters of text.
func keepSuffix(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	excess := utf8.RuneCountInString(text) - limit
	if excess <= 0 {
		return text
	}
	for excess > 0 {
		_, size := utf8.DecodeRuneInString(text)
		text = text[size:]
		excess--
	}
	return text
}
