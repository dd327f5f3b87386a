// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Package codesearch answers the backend's questions about a service's
// source tree: a numbered window of one file ([ReadLines]) and a
// keyword search under the project root ([Search]).
//
// Search runs in one of two modes. Content mode is a fixed-string
// line search, the way `rg -F` would run it. Filename mode ranks file
// paths against the query with fzf's matcher. [ModeFor] decides
// whether a query is worth a filename pass: a query that looks like
// a file name (an extension, a path separator, a leading dot, or a
// single short identifier) gets one when content mode does not turn
// up a file by that exact name.
//
// Dependency directories, lock files, minified bundles, logs and
// dotenv files are never searched.
package codesearch
