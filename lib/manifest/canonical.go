// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// EncodeCanonical serializes the manifest as canonical JSON: object
// keys sorted, no insignificant whitespace, UTF-8 with non-ASCII
// characters unescaped. This is a pure function from the manifest
// value to bytes — the signature is computed over exactly this
// encoding, and any conforming implementation must reproduce it
// byte for byte.
func (m *Manifest) EncodeCanonical() ([]byte, error) {
	// Round-trip through encoding/json to obtain a generic value
	// tree; UseNumber preserves integer literals exactly.
	plain, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(plain))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decoding manifest for canonicalization: %w", err)
	}

	var buffer bytes.Buffer
	if err := appendCanonical(&buffer, value); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// appendCanonical writes one JSON value in canonical form.
func appendCanonical(buffer *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buffer.WriteString("null")
	case bool:
		if v {
			buffer.WriteString("true")
		} else {
			buffer.WriteString("false")
		}
	case json.Number:
		buffer.WriteString(v.String())
	case string:
		appendCanonicalString(buffer, v)
	case []any:
		buffer.WriteByte('[')
		for i, element := range v {
			if i > 0 {
				buffer.WriteByte(',')
			}
			if err := appendCanonical(buffer, element); err != nil {
				return err
			}
		}
		buffer.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		buffer.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buffer.WriteByte(',')
			}
			appendCanonicalString(buffer, key)
			buffer.WriteByte(':')
			if err := appendCanonical(buffer, v[key]); err != nil {
				return err
			}
		}
		buffer.WriteByte('}')
	default:
		return fmt.Errorf("canonical JSON: unsupported value type %T", value)
	}
	return nil
}

// appendCanonicalString writes a JSON string with minimal escaping:
// quote, backslash, and the control characters below 0x20. Non-ASCII
// text passes through as UTF-8.
func appendCanonicalString(buffer *bytes.Buffer, s string) {
	buffer.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buffer.WriteString(`\"`)
		case '\\':
			buffer.WriteString(`\\`)
		case '\n':
			buffer.WriteString(`\n`)
		case '\r':
			buffer.WriteString(`\r`)
		case '\t':
			buffer.WriteString(`\t`)
		case '\b':
			buffer.WriteString(`\b`)
		case '\f':
			buffer.WriteString(`\f`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buffer, `\u%04x`, r)
			} else {
				buffer.WriteRune(r)
			}
		}
	}
	buffer.WriteByte('"')
}
