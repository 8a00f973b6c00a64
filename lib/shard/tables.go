// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package shard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// Sentinel errors distinguishing the ways a table can fail CheckTable,
// so callers can classify without parsing messages.
var (
	// ErrTableSchema means the column layout does not match.
	ErrTableSchema = errors.New("table schema mismatch")

	// ErrTableNullable means a column admits nulls.
	ErrTableNullable = errors.New("table column is nullable")

	// ErrTableRows means the table exceeds the row limit.
	ErrTableRows = errors.New("table exceeds row limit")
)

// Column describes one required table column: its name and physical
// Parquet kind. Columns are positional; verifiers reject reordered
// schemas.
type Column struct {
	Name string
	Kind parquet.Kind
}

// Required column layouts for the four shard tables and the stream
// judge's evidence table.
var (
	EntityColumns = []Column{
		{"entity_id", parquet.ByteArray},
		{"namespace", parquet.ByteArray},
		{"label", parquet.ByteArray},
		{"entity_type", parquet.ByteArray},
	}
	ClaimColumns = []Column{
		{"claim_id", parquet.ByteArray},
		{"subject", parquet.ByteArray},
		{"predicate", parquet.ByteArray},
		{"object", parquet.ByteArray},
		{"object_type", parquet.ByteArray},
		{"tier", parquet.Int32},
	}
	ProvenanceColumns = []Column{
		{"provenance_id", parquet.ByteArray},
		{"claim_id", parquet.ByteArray},
		{"source_hash", parquet.ByteArray},
		{"byte_start", parquet.Int64},
		{"byte_end", parquet.Int64},
	}
	SpanColumns = []Column{
		{"span_id", parquet.ByteArray},
		{"source_hash", parquet.ByteArray},
		{"byte_start", parquet.Int64},
		{"byte_end", parquet.Int64},
		{"text", parquet.ByteArray},
	}
	StreamColumns = []Column{
		{"frame_id", parquet.Int64},
		{"stream", parquet.ByteArray},
		{"offset", parquet.Int64},
		{"length", parquet.Int64},
		{"content_hash", parquet.ByteArray},
		{"status", parquet.ByteArray},
	}
)

// WriteTable writes rows to path as a Parquet file, creating parent
// directories as needed. Row order is preserved; callers sort before
// writing so the output is deterministic.
func WriteTable[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating table directory: %w", err)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadTable reads all rows of a Parquet table into memory.
func ReadTable[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// CheckTable opens a Parquet file and validates its schema against the
// required column layout: column count, order, names, physical kinds,
// and required-ness (no nullable columns), plus the row-count cap. It
// never decodes row data, so it is safe to run before ReadTable on
// untrusted input.
func CheckTable(path string, want []Column, maxRows int64) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	fields := pf.Schema().Fields()
	if len(fields) != len(want) {
		return fmt.Errorf("%w: %s has %d columns, want %d",
			ErrTableSchema, filepath.Base(path), len(fields), len(want))
	}
	for i, field := range fields {
		if field.Name() != want[i].Name {
			return fmt.Errorf("%w: %s column %d is %q, want %q",
				ErrTableSchema, filepath.Base(path), i, field.Name(), want[i].Name)
		}
		if field.Optional() {
			return fmt.Errorf("%w: %s column %q",
				ErrTableNullable, filepath.Base(path), field.Name())
		}
		if kind := field.Type().Kind(); kind != want[i].Kind {
			return fmt.Errorf("%w: %s column %q has kind %s, want %s",
				ErrTableSchema, filepath.Base(path), field.Name(), kind, want[i].Kind)
		}
	}

	if pf.NumRows() > maxRows {
		return fmt.Errorf("%w: %s has %d rows, limit %d",
			ErrTableRows, filepath.Base(path), pf.NumRows(), maxRows)
	}
	return nil
}
