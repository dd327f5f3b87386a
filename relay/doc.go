// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the local coordination server that lets
// several wrapped processes share one debugging session, and the
// client those processes (and the chat client) use to talk to it.
//
// The server listens on a loopback websocket (127.0.0.1:4466 by
// default). Services send register to join a project and stream_logs
// to feed their console output into a bounded per-instance buffer.
// The chat client sends subscribe_updates to follow a project's
// membership and fetch_logs to read a service's buffer when it does
// not own the process itself.
//
// All state is memory-resident: a [Registry] of project groups, a
// [LogStore] of per-instance buffers with TTL eviction, and the
// socket bindings that tie a connection to the entry it registered.
// One server mutex serializes every mutation. When a bound socket
// closes, its entry is removed, its buffer dropped, and a
// project_update goes to the project's subscribers.
//
// Every frame is one object with a "type" discriminator. Text frames
// carry JSON; binary frames carry the same schema as CBOR (see
// lib/codec) and get CBOR replies.
package relay
