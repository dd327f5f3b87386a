// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package codesearch

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

var initScheme sync.Once

// pathMatch scores text against a lowercase pattern with fzf's
// FuzzyMatchV2 using the path scoring scheme. Zero means no match.
func pathMatch(text string, pattern []rune, slab *util.Slab) int {
	initScheme.Do(func() { algo.Init("path") })

	if len(pattern) == 0 {
		return 0
	}
	chars := util.ToChars([]byte(text))
	result, _ := algo.FuzzyMatchV2(false, true, true, &chars, pattern, false, slab)
	if result.Start < 0 {
		return 0
	}
	return int(result.Score)
}

// searchFilenames ranks every searchable file under root by how well
// its root-relative path matches query. The base name must contain
// every character of the query in order; paths whose base name
// contains the query outright rank first.
func searchFilenames(ctx context.Context, query, root string, limit int) ([]Result, error) {
	pattern := []rune(strings.ToLower(query))
	slab := util.MakeSlab(100*1024, 2048)

	type candidate struct {
		path     string
		relative string
		score    int
		contains bool
	}
	var candidates []candidate

	err := walkFiles(ctx, root, func(path string, entry fs.DirEntry) error {
		relative, err := filepath.Rel(root, path)
		if err != nil {
			relative = path
		}
		if pathMatch(entry.Name(), pattern, slab) == 0 {
			return nil
		}
		candidates = append(candidates, candidate{
			path:     path,
			relative: relative,
			score:    pathMatch(relative, pattern, slab),
			contains: strings.Contains(strings.ToLower(entry.Name()), string(pattern)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].contains != candidates[j].contains {
			return candidates[i].contains
		}
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].relative < candidates[j].relative
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]Result, 0, len(candidates))
	for _, candidate := range candidates {
		results = append(results, Result{
			FilePath: candidate.path,
			Line:     1,
			Preview:  firstLine(candidate.path),
			Score:    1,
		})
	}
	return results, nil
}

// firstLine returns the first non-blank line of path as a preview, or
// "File: <name>" when there is none.
func firstLine(path string) string {
	fallback := "File: " + filepath.Base(path)
	file, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for lines := 0; scanner.Scan() && lines < 20; lines++ {
		if text := preview(scanner.Text()); text != "" {
			return text
		}
	}
	return fallback
}
