// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package codesearch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxResults caps a search when Options.MaxResults is zero.
const DefaultMaxResults = 20

// maxPreview is the longest preview returned per result.
const maxPreview = 200

// binarySniff is how much of a file is checked for NUL bytes before
// it is searched.
const binarySniff = 8000

// Options configures a search.
type Options struct {
	// Root is the directory searched. Result paths are Root-joined.
	Root string

	// MaxResults caps the result list. Zero means DefaultMaxResults.
	MaxResults int

	// CaseSensitive disables case folding in content mode.
	CaseSensitive bool

	// FileTypes restricts content mode to these extensions, without
	// the dot ("go", "ts"). Empty means every file.
	FileTypes []string
}

// Result is one search hit, in the shape the backend expects for
// grep_search results.
type Result struct {
	FilePath string  `json:"filePath"`
	Line     int     `json:"line,omitempty"`
	Preview  string  `json:"preview,omitempty"`
	Score    float64 `json:"score"`
}

// errLimit stops a walk once enough results are collected.
var errLimit = errors.New("result limit reached")

// Search finds query under options.Root. Content matches come first;
// when the query looks like a file name and no content hit sits in a
// file with exactly that name, filename matches are added in front
// and the list is deduplicated by path.
func Search(ctx context.Context, query string, options Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" || options.Root == "" {
		return nil, nil
	}
	limit := options.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	results, err := searchContent(ctx, query, options, limit)
	if err != nil {
		return nil, err
	}
	if ModeFor(query) != FilenameMode || hasExactFilename(results, query) {
		return results, nil
	}

	byName, err := searchFilenames(ctx, query, options.Root, limit)
	if err != nil {
		return nil, err
	}
	if len(byName) == 0 {
		return results, nil
	}
	if len(results) == 0 {
		return byName, nil
	}

	combined := make([]Result, 0, len(byName)+len(results))
	seen := make(map[string]bool)
	for _, result := range append(byName, results...) {
		if seen[result.FilePath] {
			continue
		}
		seen[result.FilePath] = true
		combined = append(combined, result)
	}
	if len(combined) > limit {
		combined = combined[:limit]
	}
	return combined, nil
}

func hasExactFilename(results []Result, query string) bool {
	for _, result := range results {
		if strings.EqualFold(filepath.Base(result.FilePath), query) {
			return true
		}
	}
	return false
}

// walkFiles calls visit for every regular, non-excluded file under
// root. Unreadable directories are skipped.
func walkFiles(ctx context.Context, root string, visit func(path string, entry fs.DirEntry) error) error {
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() {
			if path != root && skipDir(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || skipFile(entry.Name()) {
			return nil
		}
		return visit(path, entry)
	})
	if errors.Is(err, errLimit) {
		return nil
	}
	return err
}

func searchContent(ctx context.Context, query string, options Options, limit int) ([]Result, error) {
	needle := query
	if !options.CaseSensitive {
		needle = strings.ToLower(needle)
	}

	var results []Result
	err := walkFiles(ctx, options.Root, func(path string, entry fs.DirEntry) error {
		if !matchesType(entry.Name(), options.FileTypes) {
			return nil
		}
		results = append(results, scanFile(path, needle, !options.CaseSensitive, limit-len(results))...)
		if len(results) >= limit {
			return errLimit
		}
		return nil
	})
	return results, err
}

func matchesType(name string, fileTypes []string) bool {
	if len(fileTypes) == 0 {
		return true
	}
	extension := strings.TrimPrefix(filepath.Ext(name), ".")
	for _, fileType := range fileTypes {
		if strings.EqualFold(strings.TrimPrefix(fileType, "."), extension) {
			return true
		}
	}
	return false
}

// scanFile returns up to limit lines of path containing needle. Binary
// files and unreadable files produce nothing.
func scanFile(path, needle string, fold bool, limit int) []Result {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	head, _ := reader.Peek(binarySniff)
	if bytes.IndexByte(head, 0) >= 0 {
		return nil
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var hits []Result
	for number := 1; scanner.Scan() && len(hits) < limit; number++ {
		line := scanner.Text()
		haystack := line
		if fold {
			haystack = strings.ToLower(line)
		}
		if !strings.Contains(haystack, needle) {
			continue
		}
		hits = append(hits, Result{
			FilePath: path,
			Line:     number,
			Preview:  preview(line),
			Score:    1,
		})
	}
	return hits
}

func preview(line string) string {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) <= maxPreview {
		return trimmed
	}
	cut := maxPreview
	for cut > 0 && !isRuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
