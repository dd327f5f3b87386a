// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package codesearch

import (
	"os"
	"strings"
)

// ReadLines returns the lines of path around the 1-based line number:
// before lines above it, the line itself, and after lines below,
// clipped to the file. A line past the end of the file returns the
// tail that falls inside the window (possibly nothing). A missing
// file, an empty path, or a line below 1 returns "".
func ReadLines(path string, line, before, after int) string {
	if path == "" || line < 1 {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	lines := strings.Split(string(data), "\n")
	before = min(max(before, 0), len(lines))
	after = min(max(after, 0), len(lines))
	if line-before-1 >= len(lines) {
		return ""
	}
	start := max(0, line-before-1)
	end := min(len(lines), line+after)
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}
