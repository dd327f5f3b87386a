// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for everything in openbug that
// waits: the relay's log eviction sweep and the chat client's
// reconnect timer.
//
// Production code is handed [Real]. Tests hand the same code a
// [FakeClock] and move time forward with Advance, so a thirty minute
// TTL or a thousand one-second retries run in microseconds:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	server := relay.NewServer(relay.Config{Clock: fake})
//	fake.Advance(31 * time.Minute)
//
// Use WaitForTimers when a goroutine registers the timer, to avoid
// advancing before the registration happens.
package clock
