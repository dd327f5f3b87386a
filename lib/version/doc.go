// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the openbug
// binary.
//
// Three package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// [Info] formats them for `openbug version`; [UserAgent] is sent on
// every HTTP request to the backend.
package version
