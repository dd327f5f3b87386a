// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Format identifies the encoding of one frame.
type Format int

const (
	// JSON frames travel as websocket text messages.
	JSON Format = iota
	// CBOR frames travel as websocket binary messages.
	CBOR
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case CBOR:
		return "cbor"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Frames only use string keys; any-typed values (tool call
		// args) must come out as map[string]any, same as encoding/json.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v in the given format.
func Marshal(format Format, v any) ([]byte, error) {
	switch format {
	case JSON:
		return json.Marshal(v)
	case CBOR:
		return encMode.Marshal(v)
	default:
		return nil, fmt.Errorf("codec: unknown format %v", format)
	}
}

// Unmarshal decodes data in the given format into v.
func Unmarshal(format Format, data []byte, v any) error {
	switch format {
	case JSON:
		return json.Unmarshal(data, v)
	case CBOR:
		return decMode.Unmarshal(data, v)
	default:
		return fmt.Errorf("codec: unknown format %v", format)
	}
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) of
// data. Used in debug logs for binary frames that fail to decode.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}

// Number extracts an integer from a decoded any-typed value. JSON
// numbers decode as float64 while CBOR integers decode as uint64 or
// int64, so protocol fields typed as any go through here. Reports
// false for non-numbers and for floats with a fractional part.
func Number(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case float32:
		return Number(float64(n))
	case int64:
		return n, true
	case uint64:
		if n > 1<<63-1 {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
