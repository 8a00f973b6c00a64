// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify implements staged shard verification: layout,
// manifest signature, Merkle commitment, table schemas, and cross-table
// referential integrity, in that order.
//
// The stages are ordered by trust: nothing derived from shard content
// is interpreted before the signature and Merkle root have been
// checked. Layout, signature, and Merkle failures abort immediately;
// schema and reference checks accumulate every violation so a single
// run reports all of them.
package verify

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/axm-foundation/axm/lib/config"
	"github.com/axm-foundation/axm/lib/identity"
	"github.com/axm-foundation/axm/lib/manifest"
	"github.com/axm-foundation/axm/lib/merkle"
	"github.com/axm-foundation/axm/lib/shard"
)

// Code classifies a verification error.
type Code string

const (
	CodeLayoutDirty    Code = "E_LAYOUT_DIRTY"
	CodeLayoutMissing  Code = "E_LAYOUT_MISSING"
	CodeDotfile        Code = "E_DOTFILE"
	CodeSymlink        Code = "E_SYMLINK"
	CodeLimit          Code = "E_LIMIT"
	CodeManifestSyntax Code = "E_MANIFEST_SYNTAX"
	CodeManifestSchema Code = "E_MANIFEST_SCHEMA"
	CodeSigMissing     Code = "E_SIG_MISSING"
	CodeSigInvalid     Code = "E_SIG_INVALID"
	CodeMerkleMismatch Code = "E_MERKLE_MISMATCH"
	CodeSchemaRead     Code = "E_SCHEMA_READ"
	CodeSchemaMissing  Code = "E_SCHEMA_MISSING"
	CodeSchemaType     Code = "E_SCHEMA_TYPE"
	CodeSchemaNull     Code = "E_SCHEMA_NULL"
	CodeSchemaEnum     Code = "E_SCHEMA_ENUM"
	CodeIDEntity       Code = "E_ID_ENTITY"
	CodeIDClaim        Code = "E_ID_CLAIM"
	CodeRefOrphan      Code = "E_REF_ORPHAN"
	CodeRefSource      Code = "E_REF_SOURCE"
	CodeRefRead        Code = "E_REF_READ"
)

// Error is one verification finding.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Verdict is the machine-readable verification result.
type Verdict struct {
	Shard      string  `json:"shard"`
	Status     string  `json:"status"`
	ErrorCount int     `json:"error_count"`
	Errors     []Error `json:"errors"`
}

// Options configures verification.
type Options struct {
	// TrustedKey is the external trust anchor for the manifest
	// signature.
	TrustedKey ed25519.PublicKey

	// TrustEmbeddedKey permits verifying against the shard's own
	// embedded publisher key when no TrustedKey is supplied.
	TrustEmbeddedKey bool

	// Limits bounds resource use while reading untrusted input.
	Limits config.Limits
}

type report struct {
	errors []Error
}

func (r *report) add(code Code, format string, args ...any) {
	r.errors = append(r.errors, Error{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (r *report) failed() bool { return len(r.errors) > 0 }

// Shard verifies the shard directory at root and returns a verdict. It
// never returns an error: every failure mode is a coded entry in the
// verdict.
func Shard(root string, opts Options) *Verdict {
	r := &report{}

	if checkLayout(root, r) {
		if m := checkManifest(root, opts, r); m != nil {
			if checkMerkle(root, m, opts.Limits, r) {
				checkContents(root, m, opts.Limits, r)
			}
		}
	}

	status := "PASS"
	if r.failed() {
		status = "FAIL"
	}
	errs := r.errors
	if errs == nil {
		errs = []Error{}
	}
	return &Verdict{
		Shard:      root,
		Status:     status,
		ErrorCount: len(errs),
		Errors:     errs,
	}
}

// checkLayout enforces the bit-exact shard layout: exactly the
// required items at the root and in sig/, graph/, and evidence/, no
// dotfiles anywhere, and no symlinks anywhere.
func checkLayout(root string, r *report) bool {
	info, err := os.Lstat(root)
	if err != nil || !info.IsDir() {
		if err == nil && info.Mode()&fs.ModeSymlink != 0 {
			r.add(CodeSymlink, "shard root is a symlink")
			return false
		}
		r.add(CodeLayoutMissing, "shard path does not exist or is not a directory")
		return false
	}

	if !checkDirExact(root, ".", shard.RequiredRootItems, r) {
		return false
	}

	clean := true
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if strings.HasPrefix(entry.Name(), ".") {
			r.add(CodeDotfile, "dotfile found: %s", filepath.ToSlash(rel))
			clean = false
			return fs.SkipAll
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			r.add(CodeSymlink, "symlink found: %s", filepath.ToSlash(rel))
			clean = false
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		r.add(CodeRefRead, "walking shard: %v", err)
		return false
	}
	if !clean {
		return false
	}

	ok := checkDirExact(root, shard.SigDir, shard.RequiredSigFiles, r)
	ok = checkDirExact(root, shard.GraphDir, shard.RequiredGraphFiles, r) && ok
	ok = checkDirExact(root, shard.EvidenceDir, shard.RequiredEvidenceFiles, r) && ok
	return ok
}

// checkDirExact requires a directory to contain exactly the given
// entry names.
func checkDirExact(root, dir string, required []string, r *report) bool {
	entries, err := os.ReadDir(filepath.Join(root, dir))
	if err != nil {
		r.add(CodeLayoutMissing, "missing directory: %s/", dir)
		return false
	}

	present := make(map[string]bool, len(entries))
	for _, entry := range entries {
		present[entry.Name()] = true
	}

	var missing, extra []string
	for _, name := range required {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	want := make(map[string]bool, len(required))
	for _, name := range required {
		want[name] = true
	}
	for name := range present {
		if !want[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)

	if len(missing) > 0 {
		r.add(CodeLayoutMissing, "missing required %s items: %v", dir, missing)
	}
	if len(extra) > 0 {
		r.add(CodeLayoutDirty, "unexpected %s items present: %v", dir, extra)
	}
	return len(missing) == 0 && len(extra) == 0
}

// checkManifest reads and signature-verifies the manifest, then checks
// its structural schema. Any failure aborts the run.
func checkManifest(root string, opts Options, r *report) *manifest.Manifest {
	m, _, err := manifest.ReadVerified(root, manifest.VerifyOptions{
		TrustedKey:       opts.TrustedKey,
		TrustEmbeddedKey: opts.TrustEmbeddedKey,
		MaxManifestBytes: opts.Limits.MaxManifestBytes,
	})
	if err != nil {
		switch {
		case errors.Is(err, manifest.ErrSyntax):
			r.add(CodeManifestSyntax, "invalid JSON in manifest.json")
		case errors.Is(err, manifest.ErrTooLarge):
			r.add(CodeLimit, "%v", err)
		case errors.Is(err, manifest.ErrNoTrustAnchor):
			r.add(CodeSigMissing, "no trusted publisher key supplied")
		case errors.Is(err, manifest.ErrSignature):
			r.add(CodeSigInvalid, "signature verification failed")
		case errors.Is(err, fs.ErrNotExist):
			r.add(CodeSigMissing, "%v", err)
		default:
			r.add(CodeManifestSchema, "cannot read manifest.json: %v", err)
		}
		return nil
	}

	if errs := m.Validate(); len(errs) > 0 {
		for _, e := range errs {
			r.add(CodeManifestSchema, "%v", e)
		}
		return nil
	}
	return m
}

// checkMerkle recomputes the Merkle root over the shard files and
// compares it to the manifest's stored commitment.
func checkMerkle(root string, m *manifest.Manifest, limits config.Limits, r *report) bool {
	computed, err := merkle.ComputeRoot(root, merkle.Limits{
		MaxFileBytes:  limits.MaxFileBytes,
		MaxTotalBytes: limits.MaxTotalBytes,
		MaxFileCount:  limits.MaxFileCount,
	})
	if err != nil {
		switch {
		case errors.Is(err, merkle.ErrSymlink):
			r.add(CodeSymlink, "%v", err)
		case errors.Is(err, merkle.ErrLimit):
			r.add(CodeLimit, "%v", err)
		default:
			r.add(CodeRefRead, "computing merkle root: %v", err)
		}
		return false
	}

	if !strings.EqualFold(computed, m.Integrity.MerkleRoot) {
		r.add(CodeMerkleMismatch, "merkle root mismatch: computed %s, stored %s",
			computed, m.Integrity.MerkleRoot)
		return false
	}
	return true
}

// checkContents runs the schema stage and, if it passes, the row-level
// identity, enum, and referential checks. Errors accumulate.
func checkContents(root string, m *manifest.Manifest, limits config.Limits, r *report) {
	tables := []struct {
		path    string
		columns []shard.Column
	}{
		{shard.EntitiesTable, shard.EntityColumns},
		{shard.ClaimsTable, shard.ClaimColumns},
		{shard.ProvenanceTable, shard.ProvenanceColumns},
		{shard.SpansTable, shard.SpanColumns},
	}
	for _, table := range tables {
		checkTable(filepath.Join(root, filepath.FromSlash(table.path)), table.columns, limits.MaxTableRows, r)
	}
	if r.failed() {
		return
	}

	entities, err1 := shard.ReadTable[shard.Entity](filepath.Join(root, filepath.FromSlash(shard.EntitiesTable)))
	claims, err2 := shard.ReadTable[shard.Claim](filepath.Join(root, filepath.FromSlash(shard.ClaimsTable)))
	provenance, err3 := shard.ReadTable[shard.Provenance](filepath.Join(root, filepath.FromSlash(shard.ProvenanceTable)))
	spans, err4 := shard.ReadTable[shard.Span](filepath.Join(root, filepath.FromSlash(shard.SpansTable)))
	for _, err := range []error{err1, err2, err3, err4} {
		if err != nil {
			r.add(CodeSchemaRead, "%v", err)
		}
	}
	if r.failed() {
		return
	}

	entityIDs := checkEntities(entities, r)
	claimIDs := checkClaims(claims, entityIDs, r)
	checkReferences(root, m, provenance, spans, claimIDs, limits, r)
}

func checkTable(path string, columns []shard.Column, maxRows int64, r *report) {
	err := shard.CheckTable(path, columns, maxRows)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		r.add(CodeSchemaMissing, "missing file: %s", filepath.Base(path))
	case errors.Is(err, shard.ErrTableSchema):
		r.add(CodeSchemaType, "%v", err)
	case errors.Is(err, shard.ErrTableNullable):
		r.add(CodeSchemaNull, "%v", err)
	case errors.Is(err, shard.ErrTableRows):
		r.add(CodeLimit, "%v", err)
	default:
		r.add(CodeSchemaRead, "%v", err)
	}
}

// checkEntities re-derives every entity id and returns the set of ids
// present, mismatched or not, so reference checks still resolve.
func checkEntities(entities []shard.Entity, r *report) map[string]bool {
	ids := make(map[string]bool, len(entities))
	for _, row := range entities {
		calc, err := identity.EntityID(row.Namespace, row.Label)
		if err != nil || calc != row.EntityID {
			r.add(CodeIDEntity, "entity id mismatch for label %q", row.Label)
		}
		ids[row.EntityID] = true
	}
	return ids
}

// checkClaims validates enums, re-derives claim ids, and resolves the
// subject and entity-object references.
func checkClaims(claims []shard.Claim, entityIDs map[string]bool, r *report) map[string]bool {
	ids := make(map[string]bool, len(claims))
	for _, row := range claims {
		objectType := identity.ObjectType(row.ObjectType)
		if !objectType.Valid() {
			r.add(CodeSchemaEnum, "invalid object_type: %s", row.ObjectType)
		}
		if row.Tier < identity.TierMin || row.Tier > identity.TierMax {
			r.add(CodeSchemaEnum, "invalid tier: %d", row.Tier)
		}

		calc, err := identity.ClaimID(row.Subject, row.Predicate, objectType, row.Object)
		if err != nil || calc != row.ClaimID {
			r.add(CodeIDClaim, "claim id mismatch for claim_id %q", row.ClaimID)
		}
		ids[row.ClaimID] = true

		if !entityIDs[row.Subject] {
			r.add(CodeRefOrphan, "claim subject %q not found in entities", row.Subject)
		}
		if objectType == identity.ObjectEntity && !entityIDs[row.Object] {
			r.add(CodeRefOrphan, "claim object %q not found in entities", row.Object)
		}
	}
	return ids
}

// checkReferences hashes every content file and validates provenance
// and span rows against the resulting hash-addressed byte store, plus
// the manifest's own source listing.
func checkReferences(root string, m *manifest.Manifest, provenance []shard.Provenance,
	spans []shard.Span, claimIDs map[string]bool, limits config.Limits, r *report) {

	content := make(map[string][]byte)
	contentDir := filepath.Join(root, shard.ContentDir)
	err := filepath.WalkDir(contentDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		data, err := shard.ReadContent(path, limits.MaxFileBytes)
		if err != nil {
			return err
		}
		hash, err := shard.HashContent(path)
		if err != nil {
			return err
		}
		content[hash] = data
		return nil
	})
	if err != nil {
		r.add(CodeRefRead, "failed reading content files: %v", err)
	}

	listed := make(map[string]bool, len(m.Sources))
	for i, source := range m.Sources {
		listed[source.Hash] = true
		if _, ok := content[source.Hash]; !ok {
			r.add(CodeRefSource, "manifest sources[%d] hash %q not found in content/", i, source.Hash)
		}
	}

	for _, row := range provenance {
		if !claimIDs[row.ClaimID] {
			r.add(CodeRefOrphan, "provenance claim_id %q not found in claims", row.ClaimID)
		}
		if !listed[row.SourceHash] {
			r.add(CodeRefSource, "provenance source_hash %q not listed in manifest sources", row.SourceHash)
		}
		data, ok := content[row.SourceHash]
		if !ok {
			r.add(CodeRefSource, "provenance source_hash %q not found in content/", row.SourceHash)
			continue
		}
		if row.ByteStart < 0 || row.ByteEnd < row.ByteStart || row.ByteEnd > int64(len(data)) {
			r.add(CodeRefSource, "provenance byte range out of bounds for source_hash %s: %d-%d",
				row.SourceHash, row.ByteStart, row.ByteEnd)
		}
	}

	for _, row := range spans {
		if !listed[row.SourceHash] {
			r.add(CodeRefSource, "span source_hash %q not listed in manifest sources", row.SourceHash)
		}
		data, ok := content[row.SourceHash]
		if !ok {
			r.add(CodeRefSource, "span source_hash %q not found in content/", row.SourceHash)
			continue
		}
		if row.ByteStart < 0 || row.ByteEnd < row.ByteStart || row.ByteEnd > int64(len(data)) {
			r.add(CodeRefSource, "span byte range out of bounds for source_hash %s: %d-%d",
				row.SourceHash, row.ByteStart, row.ByteEnd)
			continue
		}
		slice := data[row.ByteStart:row.ByteEnd]
		if !utf8.Valid(slice) {
			r.add(CodeRefSource, "span bytes are not valid UTF-8 for source_hash %s: %d-%d",
				row.SourceHash, row.ByteStart, row.ByteEnd)
			continue
		}
		if string(slice) != row.Text {
			r.add(CodeRefSource, "span text mismatch at %d-%d for source_hash %s",
				row.ByteStart, row.ByteEnd, row.SourceHash)
		}
	}
}
