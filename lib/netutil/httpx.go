// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds connection and HTTP helpers shared by the
// relay and the chat client.
//
// Connection error helpers classify errors that occur during normal
// teardown (IsExpectedCloseError) and at bind time (IsAddressInUse).
//
// HTTP helpers bound every response body read at MaxResponseSize. The
// backend's tool endpoint returns small JSON acknowledgements; nothing
// here is meant for streaming bodies.
package netutil

import (
	"io"
	"strings"
)

// MaxResponseSize bounds response body reads: 1 MB.
const MaxResponseSize int64 = 1 << 20

// maxErrorBody is how much of an error body ends up in an error
// message.
const maxErrorBody = 512

// ErrorBody reads an HTTP error response body for use in an error
// message. The result is whitespace-trimmed and cut at 512 bytes. Read
// errors are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return strings.TrimSpace(string(data))
}

// Drain discards up to MaxResponseSize bytes of body so the underlying
// keep-alive connection can be reused, and reports how many bytes were
// read.
func Drain(body io.Reader) int64 {
	n, _ := io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
	return n
}
