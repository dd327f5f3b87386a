// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestIsExpectedCloseError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("reading frame: %w", io.EOF), true},
		{"net closed", net.ErrClosed, true},
		{"canceled", context.Canceled, true},
		{"epipe", &net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.EPIPE)}, true},
		{"econnreset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, true},
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, false},
		{"other", errors.New("boom"), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := IsExpectedCloseError(test.err); got != test.want {
				t.Errorf("IsExpectedCloseError(%v): got %v, want %v", test.err, got, test.want)
			}
		})
	}
}

func TestIsAddressInUse(t *testing.T) {
	t.Parallel()

	first, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer first.Close()

	_, err = net.Listen("tcp", first.Addr().String())
	if err == nil {
		t.Fatal("second Listen on the same address succeeded")
	}
	if !IsAddressInUse(err) {
		t.Errorf("IsAddressInUse(%v): got false, want true", err)
	}
	if IsAddressInUse(io.EOF) {
		t.Error("IsAddressInUse(io.EOF): got true, want false")
	}
}
