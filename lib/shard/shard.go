// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package shard defines the normative shard directory layout and the
// four typed tables, and provides the deterministic Parquet reader
// and writer used by the compiler, verifier, and stream judge.
package shard

// Shard-relative layout paths. The layout is bit-exact: a verifier
// treats any missing required path as an error, and anything beyond
// this set at the root as a dirty layout.
const (
	ManifestFile = "manifest.json"

	SigDir      = "sig"
	ContentDir  = "content"
	GraphDir    = "graph"
	EvidenceDir = "evidence"

	EntitiesTable   = "graph/entities.parquet"
	ClaimsTable     = "graph/claims.parquet"
	ProvenanceTable = "graph/provenance.parquet"
	SpansTable      = "evidence/spans.parquet"

	SourceFile = "content/source.txt"
)

// Required file sets, by directory. Sorted for stable error output.
var (
	RequiredRootItems     = []string{"content", "evidence", "graph", "manifest.json", "sig"}
	RequiredSigFiles      = []string{"manifest.sig", "publisher.pub"}
	RequiredGraphFiles    = []string{"claims.parquet", "entities.parquet", "provenance.parquet"}
	RequiredEvidenceFiles = []string{"spans.parquet"}
)

// Entity is one row of graph/entities.parquet.
type Entity struct {
	EntityID   string `parquet:"entity_id,plain"`
	Namespace  string `parquet:"namespace,plain"`
	Label      string `parquet:"label,plain"`
	EntityType string `parquet:"entity_type,plain"`
}

// Claim is one row of graph/claims.parquet. Object holds an entity id
// when ObjectType is "entity", otherwise the canonicalized literal.
type Claim struct {
	ClaimID    string `parquet:"claim_id,plain"`
	Subject    string `parquet:"subject,plain"`
	Predicate  string `parquet:"predicate,plain"`
	Object     string `parquet:"object,plain"`
	ObjectType string `parquet:"object_type,plain"`
	Tier       int32  `parquet:"tier,plain"`
}

// Provenance is one row of graph/provenance.parquet, binding a claim
// to a byte range of a content file addressed by its SHA-256 hash.
type Provenance struct {
	ProvenanceID string `parquet:"provenance_id,plain"`
	ClaimID      string `parquet:"claim_id,plain"`
	SourceHash   string `parquet:"source_hash,plain"`
	ByteStart    int64  `parquet:"byte_start,plain"`
	ByteEnd      int64  `parquet:"byte_end,plain"`
}

// Span is one row of evidence/spans.parquet. The invariant is that
// content[ByteStart:ByteEnd] decoded as UTF-8 equals Text exactly.
type Span struct {
	SpanID     string `parquet:"span_id,plain"`
	SourceHash string `parquet:"source_hash,plain"`
	ByteStart  int64  `parquet:"byte_start,plain"`
	ByteEnd    int64  `parquet:"byte_end,plain"`
	Text       string `parquet:"text,plain"`
}

// StreamRecord is one row of the stream judge's evidence table.
type StreamRecord struct {
	FrameID     int64  `parquet:"frame_id,plain"`
	Stream      string `parquet:"stream,plain"`
	Offset      int64  `parquet:"offset,plain"`
	Length      int64  `parquet:"length,plain"`
	ContentHash string `parquet:"content_hash,plain"`
	Status      string `parquet:"status,plain"`
}
