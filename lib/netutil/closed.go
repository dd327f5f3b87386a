// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"
	"nhooyr.io/websocket"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, connection reset,
// a websocket normal or going-away closure, or a cancelled context.
// These happen every time a peer disconnects and are logged at debug.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

// IsAddressInUse reports whether err is a bind failure because another
// process already listens on the address.
func IsAddressInUse(err error) bool {
	return errors.Is(err, unix.EADDRINUSE)
}
