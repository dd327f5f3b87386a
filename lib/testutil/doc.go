// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for openbug packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern used wherever a test waits on a channel fed by a real
// websocket connection. They are the only place in the test suite
// where wall-clock timeouts appear; everything else runs on a
// clock.FakeClock.
//
// [UniqueID] generates distinct project ids so parallel tests sharing
// one relay do not see each other's registrations.
//
// All helpers call t.Fatalf on failure.
package testutil
