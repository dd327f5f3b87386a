// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package codesearch

import (
	"regexp"
	"strings"
)

// SearchMode selects how a query is matched.
type SearchMode int

const (
	// ContentMode matches the query against file contents.
	ContentMode SearchMode = iota
	// FilenameMode matches the query against file paths.
	FilenameMode
)

func (m SearchMode) String() string {
	if m == FilenameMode {
		return "filename"
	}
	return "content"
}

var (
	extensionSuffix = regexp.MustCompile(`\.\w{1,10}$`)
	identifierToken = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ModeFor returns FilenameMode when query looks like a file name:
//
//   - it ends in an extension (".go", ".tsx")
//   - it contains a path separator
//   - it starts with a dot (".env.example")
//   - it is a single 3-50 character identifier ("docker-compose")
//
// Everything else is ContentMode.
func ModeFor(query string) SearchMode {
	trimmed := strings.TrimSpace(query)
	switch {
	case trimmed == "":
		return ContentMode
	case extensionSuffix.MatchString(trimmed):
		return FilenameMode
	case strings.ContainsAny(trimmed, `/\`):
		return FilenameMode
	case strings.HasPrefix(trimmed, "."):
		return FilenameMode
	case len(trimmed) >= 3 && len(trimmed) <= 50 && identifierToken.MatchString(trimmed):
		return FilenameMode
	}
	return ContentMode
}
