// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"golang.org/x/sys/unix"
	"nhooyr.io/websocket"
)

// FailureClass buckets connection failures by what the operator
// should check.
type FailureClass int

const (
	FailureGeneric FailureClass = iota
	FailureTimeout
	FailureRefused
	FailureHostNotFound
	FailureUnexpectedClose
)

func (c FailureClass) String() string {
	switch c {
	case FailureTimeout:
		return "timeout"
	case FailureRefused:
		return "refused"
	case FailureHostNotFound:
		return "host-not-found"
	case FailureUnexpectedClose:
		return "unexpected-close"
	default:
		return "generic"
	}
}

// Classify picks the FailureClass for a dial or read error.
func Classify(err error) FailureClass {
	var dnsError *net.DNSError
	var netError net.Error
	switch {
	case err == nil:
		return FailureGeneric
	case errors.As(err, &dnsError):
		return FailureHostNotFound
	case errors.Is(err, unix.ECONNREFUSED):
		return FailureRefused
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, unix.ETIMEDOUT),
		errors.As(err, &netError) && netError.Timeout():
		return FailureTimeout
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		websocket.CloseStatus(err) == websocket.StatusAbnormalClosure:
		return FailureUnexpectedClose
	}
	return FailureGeneric
}

// ConnectionError is a backend connection failure carrying the
// remediation text shown to the operator.
type ConnectionError struct {
	Class      FailureClass
	URL        string
	APIBaseURL string
	ConfigPath string
	Err        error
}

func (e *ConnectionError) Error() string {
	return Remediation(e.Class, e.URL, e.APIBaseURL, e.ConfigPath)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Remediation returns the operator-facing explanation for a failure
// class: what went wrong, what to check, and the configuration in
// effect.
func Remediation(class FailureClass, url, apiBaseURL, configPath string) string {
	local := strings.Contains(url, "localhost") || strings.Contains(url, "127.0.0.1")
	if configPath == "" {
		configPath = "(none, built-in defaults)"
	}

	var summary, suggestion string
	switch class {
	case FailureTimeout:
		summary = "Connection timeout: Unable to connect to backend server."
		suggestion = "Check your network connection and backend server status."
		if local {
			suggestion = "Make sure the backend server is running on the configured port."
		}
	case FailureRefused:
		summary = "Connection refused: Backend server is not running or not accessible."
		suggestion = "Verify the backend server is running and accessible at " + url
		if local {
			host := strings.TrimPrefix(strings.TrimPrefix(url, "ws://"), "wss://")
			suggestion = "Start the backend server first. Check if it's running on " + host
		}
	case FailureHostNotFound:
		summary = "Host not found: Cannot resolve backend server address."
		suggestion = "Check backend.websocket_url in your configuration. Current: " + url
	case FailureUnexpectedClose:
		summary = "Connection closed unexpectedly: Backend server may have stopped."
		suggestion = "Check if the backend server is still running."
	default:
		summary = "Failed to connect to backend server."
		suggestion = "Check your configuration and ensure the backend is running."
	}

	return fmt.Sprintf("%s\n\n%s\n\nConfiguration file: %s\nCurrent API Base URL: %s\nCurrent WebSocket URL: %s\n\n"+
		"To fix:\n1. Ensure backend is running\n2. Set backend.websocket_url and backend.api_base_url in the configuration file\n"+
		"3. Verify the URL matches your backend server address",
		summary, suggestion, configPath, apiBaseURL, url)
}
