// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest implements the signed shard manifest: canonical
// JSON encoding, Ed25519 signing, and swap-resistant verification.
//
// The manifest is the only shard file excluded from the Merkle
// commitment (together with the signature directory); instead it
// carries the Merkle root, and its own integrity comes from the
// Ed25519 signature over its exact canonical bytes.
package manifest

import (
	"encoding/hex"
	"fmt"
)

// SpecVersion is the fixed manifest spec version string.
const SpecVersion = "1.0.0"

// Algorithm is the integrity algorithm tag. The Merkle engine is
// BLAKE3; any other tag fails verification.
const Algorithm = "blake3"

// ShardIDPrefix prefixes the derived shard id.
const ShardIDPrefix = "shard_blake3_"

// Shard-relative paths owned by the manifest protocol.
const (
	FileName      = "manifest.json"
	SignatureFile = "sig/manifest.sig"
	PublicKeyFile = "sig/publisher.pub"
)

// Manifest is the canonical-JSON manifest document.
type Manifest struct {
	SpecVersion string     `json:"spec_version"`
	ShardID     string     `json:"shard_id"`
	CreatedAt   string     `json:"created_at"`
	Metadata    Metadata   `json:"metadata"`
	Publisher   Publisher  `json:"publisher"`
	License     License    `json:"license"`
	Sources     []Source   `json:"sources"`
	Integrity   Integrity  `json:"integrity"`
	Statistics  Statistics `json:"statistics"`
}

// Metadata describes the shard's human-facing identity. The creation
// timestamp lives at the manifest top level, not here.
type Metadata struct {
	Title     string `json:"title"`
	Namespace string `json:"namespace"`
}

// Publisher identifies the signing party.
type Publisher struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// License records the content license.
type License struct {
	SPDX  string `json:"spdx"`
	Notes string `json:"notes"`
}

// Source is one entry of the ordered content listing. Hash is the
// SHA-256 of the content file's bytes; provenance and span rows
// reference content by this hash, never by path.
type Source struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Integrity carries the Merkle commitment.
type Integrity struct {
	Algorithm  string `json:"algorithm"`
	MerkleRoot string `json:"merkle_root"`
}

// Statistics counts the shard's graph rows.
type Statistics struct {
	Entities int64 `json:"entities"`
	Claims   int64 `json:"claims"`
}

// Validate checks structural requirements after parsing. It returns
// one error per violation so the verifier can report them all.
func (m *Manifest) Validate() []error {
	var errs []error

	if m.SpecVersion != SpecVersion {
		errs = append(errs, fmt.Errorf("spec_version is %q, want %q", m.SpecVersion, SpecVersion))
	}
	if m.Integrity.Algorithm != Algorithm {
		errs = append(errs, fmt.Errorf("integrity.algorithm is %q, want %q", m.Integrity.Algorithm, Algorithm))
	}
	if !IsHex64(m.Integrity.MerkleRoot) {
		errs = append(errs, fmt.Errorf("integrity.merkle_root must be 64 hex characters"))
	}
	if m.ShardID != ShardIDPrefix+m.Integrity.MerkleRoot {
		errs = append(errs, fmt.Errorf("shard_id does not match %s<merkle_root>", ShardIDPrefix))
	}
	for i, source := range m.Sources {
		if source.Path == "" {
			errs = append(errs, fmt.Errorf("sources[%d].path is empty", i))
		}
		if !IsHex64(source.Hash) {
			errs = append(errs, fmt.Errorf("sources[%d].hash must be 64 hex characters", i))
		}
	}
	return errs
}

// IsHex64 reports whether s is a 64-character hex string.
func IsHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
