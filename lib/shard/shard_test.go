// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package shard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleClaims() []Claim {
	return []Claim{
		{
			ClaimID:    "c_aaaaaaaaaaaaaaaaaaaaaaaa",
			Subject:    "e_bbbbbbbbbbbbbbbbbbbbbbbb",
			Predicate:  "must",
			Object:     "maintain silence",
			ObjectType: "literal:string",
			Tier:       1,
		},
		{
			ClaimID:    "c_cccccccccccccccccccccccc",
			Subject:    "e_bbbbbbbbbbbbbbbbbbbbbbbb",
			Predicate:  "located_in",
			Object:     "e_dddddddddddddddddddddddd",
			ObjectType: "entity",
			Tier:       0,
		},
	}
}

func TestWriteReadTableRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph", "claims.parquet")
	want := sampleClaims()

	if err := WriteTable(path, want); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	got, err := ReadTable[Claim](path)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("read %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWriteTableDeterministic(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.parquet")
	second := filepath.Join(dir, "b.parquet")

	if err := WriteTable(first, sampleClaims()); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if err := WriteTable(second, sampleClaims()); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("identical rows produced different table bytes")
	}
}

func TestCheckTableAcceptsOwnOutput(t *testing.T) {
	dir := t.TempDir()

	entities := filepath.Join(dir, "entities.parquet")
	if err := WriteTable(entities, []Entity{
		{EntityID: "e_aaaaaaaaaaaaaaaaaaaaaaaa", Namespace: "test", Label: "unit", EntityType: "concept"},
	}); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if err := CheckTable(entities, EntityColumns, 1_000_000); err != nil {
		t.Errorf("CheckTable(entities): %v", err)
	}

	claims := filepath.Join(dir, "claims.parquet")
	if err := WriteTable(claims, sampleClaims()); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if err := CheckTable(claims, ClaimColumns, 1_000_000); err != nil {
		t.Errorf("CheckTable(claims): %v", err)
	}

	spans := filepath.Join(dir, "spans.parquet")
	if err := WriteTable(spans, []Span{
		{SpanID: "s_aaaaaaaaaaaaaaaaaaaaaaaa", SourceHash: strings.Repeat("cd", 32), ByteStart: 0, ByteEnd: 4, Text: "unit"},
	}); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if err := CheckTable(spans, SpanColumns, 1_000_000); err != nil {
		t.Errorf("CheckTable(spans): %v", err)
	}
}

func TestCheckTableRejectsWrongSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims.parquet")
	if err := WriteTable(path, sampleClaims()); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	// Claims table checked against the entity layout must fail on
	// column count before anything else.
	if err := CheckTable(path, EntityColumns, 1_000_000); err == nil {
		t.Error("CheckTable accepted a mismatched schema")
	}
}

func TestCheckTableEnforcesRowLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims.parquet")
	if err := WriteTable(path, sampleClaims()); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if err := CheckTable(path, ClaimColumns, 1); err == nil {
		t.Error("CheckTable accepted a table over the row limit")
	}
}

func TestCheckTableRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims.parquet")
	if err := os.WriteFile(path, []byte("not a parquet file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CheckTable(path, ClaimColumns, 1_000_000); err == nil {
		t.Error("CheckTable accepted a non-Parquet file")
	}
}

func TestHashContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.txt")
	if err := os.WriteFile(path, []byte("The unit must maintain silence.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := HashContent(path)
	if err != nil {
		t.Fatalf("HashContent: %v", err)
	}
	if len(got) != 64 || got != strings.ToLower(got) {
		t.Errorf("hash %q is not lowercase hex-64", got)
	}

	again, err := HashContent(path)
	if err != nil {
		t.Fatalf("HashContent: %v", err)
	}
	if got != again {
		t.Error("hash not deterministic")
	}
}

func TestReadContentEnforcesLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadContent(path, 4); err == nil {
		t.Error("ReadContent accepted a file over the size limit")
	}
	data, err := ReadContent(path, 10)
	if err != nil {
		t.Fatalf("ReadContent: %v", err)
	}
	if string(data) != "0123456789" {
		t.Errorf("ReadContent = %q", data)
	}
}
