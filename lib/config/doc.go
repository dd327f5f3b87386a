// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads openbug configuration.
//
// Two files are involved:
//
//   - The user configuration (relay address, backend URLs, API key,
//     retry policy), loaded from the path in the OPENBUG_CONFIG
//     environment variable ([Load]) or a --config flag ([LoadFile]).
//     With neither, [Default] applies. Files ending in .json or .jsonc
//     are parsed as JSON with comments; anything else is YAML.
//   - The per-service project metadata, openbug.yaml, living in the
//     working directory of the wrapped process ([LoadProject]).
//
// Variable expansion is performed on URL and key fields after loading:
// ${VAR} and ${VAR:-default} patterns are replaced from the
// environment. No other environment variables override config values.
//
// This package depends on no other openbug packages.
package config
