// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is the interactive client's side of the debugging
// session: a persistent websocket to the remote backend, assembly of
// its streamed responses into conversation turns, and execution of
// the tool calls the backend asks the client to run against local
// data (source files and captured logs).
//
// The pieces, leaves first:
//
//   - [Turn] and [Content]: the conversation model, in the shape the
//     backend exchanges. [GroupChunks] groups consecutive turns for
//     display.
//   - [Assembler]: folds ai-sdk stream parts (text-delta, text,
//     tool-call, finish, error) into one closed assistant turn per
//     response unit.
//   - [Manager]: the connection state machine. It dials, performs the
//     recurring_connection handshake, waits for user_assigned, and
//     redials on a fixed interval until the retry budget is spent.
//   - [Dispatcher]: runs backend tool calls (read_file, grep_search,
//     read_logs, tail_logs, grep_logs, get_recent_errors) behind the
//     active service's capability flags and posts each result back
//     through a [ResultPoster].
//   - [Session]: wires the above together for one operator.
//
// Nothing in this package retries a failed tool-result post or
// surfaces it to the backend stream; the backend times out missing
// results on its own.
package chat
