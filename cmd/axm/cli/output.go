// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/axm-foundation/axm/lib/codec"
)

// WriteJSON marshals value as indented JSON and writes it to stdout.
func WriteJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// WriteCBOR writes value to path as deterministic CBOR.
func WriteCBOR(path string, value any) error {
	encoded, err := codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding CBOR output: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("writing CBOR output: %w", err)
	}
	return nil
}
