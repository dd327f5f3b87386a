// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package codesearch

import "path/filepath"

var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	".next":        true,
	".cache":       true,
	"coverage":     true,
	".nyc_output":  true,
	".vscode":      true,
	".idea":        true,
}

var excludedFiles = []string{
	"*.log",
	"*.lock",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	".env",
	".env.*",
	"*.min.js",
	"*.min.css",
	".DS_Store",
	"Thumbs.db",
}

func skipDir(name string) bool {
	return excludedDirs[name]
}

func skipFile(name string) bool {
	for _, pattern := range excludedFiles {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}
