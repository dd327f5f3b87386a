// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// PageSize is the number of lines one read_logs page adds.
const PageSize = 50

// Result strings returned to the backend as tool output.
const (
	NoRecentErrors  = "No recent error log lines found"
	InvalidErrorsN  = "Invalid value for n. Please provide a positive number of error lines to fetch."
	InvalidTailN    = "Invalid value for n. Please provide a positive number of log lines to fetch."
	InvalidGrepTerm = "Invalid pattern for grep_logs. Please provide a non-empty pattern."
)

// errorLine matches lines that look like trouble: severity words,
// exception markers, common runtime error types, network failures,
// HTTP 4xx/5xx, and resource exhaustion.
var errorLine = regexp.MustCompile(`(?i)\b(ERROR|ERR|FATAL|CRITICAL|WARN|WARNING|SEVERE|ALERT|PANIC|EMERGENCY)\b` +
	`|(Exception|Unhandled|Uncaught|Traceback|stacktrace|Caused by:)` +
	`|(TypeError|ReferenceError|RangeError|SyntaxError|RuntimeError|ValueError|NullPointerException|IllegalArgument)` +
	`|(timeout|timed out|connection refused|connection reset|ECONNRESET|ECONNREFUSED|ETIMEDOUT|EAI_AGAIN)` +
	`|(HTTP\s(4\d\d|5\d\d)|\b5\d\d\b|\b429\b|\b503\b)` +
	`|(OOM|out of memory|disk full|quota exceeded|rate limited|deadlock|segfault|SIGKILL|panic|crashed|crash)`)

// Tail returns the last n lines of text. A non-positive n returns
// InvalidTailN.
func Tail(text string, n int) string {
	if n <= 0 {
		return InvalidTailN
	}
	lines := strings.Split(text, "\n")
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Page returns the last PageSize*page lines of text. Pages grow
// backwards from the end, so page 2 includes page 1. A non-positive
// page, or one past the last line, returns all of text.
func Page(text string, page int) string {
	if page <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	if page > len(lines)/PageSize {
		return text
	}
	if count := PageSize * page; count < len(lines) {
		lines = lines[len(lines)-count:]
	}
	return strings.Join(lines, "\n")
}

// Grep returns every line of text containing pattern
// (case-insensitively) with before lines of leading and after lines of
// trailing context. Each match becomes one block; blocks are separated
// by a blank line. An empty pattern returns "".
func Grep(text, pattern string, before, after int) string {
	if strings.TrimSpace(pattern) == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	before = min(max(before, 0), len(lines))
	after = min(max(after, 0), len(lines))
	needle := strings.ToLower(pattern)

	var blocks []string
	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		start := max(0, i-before)
		end := min(len(lines), i+after+1)
		blocks = append(blocks, fmt.Sprintf("block (match line %d): %s", i+1, strings.Join(lines[start:end], "\n")))
	}

	if len(blocks) == 0 {
		return fmt.Sprintf("No matches found for pattern \"%s\" in logs.", pattern)
	}
	return strings.Join(blocks, "\n\n")
}

// RecentErrors returns up to n of the newest error-looking lines of
// text, oldest first.
func RecentErrors(text string, n int) string {
	if n <= 0 {
		return InvalidErrorsN
	}

	lines := strings.Split(text, "\n")
	var matched []string
	for i := len(lines) - 1; i >= 0 && len(matched) < n; i-- {
		if errorLine.MatchString(lines[i]) {
			matched = append(matched, lines[i])
		}
	}
	if len(matched) == 0 {
		return NoRecentErrors
	}

	slices.Reverse(matched)
	return strings.Join(matched, "\n")
}
