// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError carries a process exit code for a command that has
// already written its own output. main exits with Code and prints
// nothing further.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks returned errors for
// this method.
func (e *ExitError) ExitCode() int {
	return e.Code
}
