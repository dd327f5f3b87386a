// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec encodes relay protocol frames.
//
// The relay speaks JSON by default: every peer in the wild (service
// wrappers, the chat client, ad hoc websocat sessions) sends text
// frames holding one JSON object. A peer that sends a binary frame is
// speaking CBOR instead, and gets CBOR replies carrying the same
// schema. The choice is made per frame by the websocket message type,
// so a single connection may mix the two.
//
// Protocol types carry only `json` struct tags. fxamacker/cbor v2
// reads `json` tags when `cbor` tags are absent, so one tag controls
// field naming and omitempty for both formats.
//
// CBOR output uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical frame always produces identical bytes.
package codec
