// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/axm-foundation/axm/lib/config"
	"github.com/axm-foundation/axm/lib/identity"
	"github.com/axm-foundation/axm/lib/manifest"
	"github.com/axm-foundation/axm/lib/merkle"
	"github.com/axm-foundation/axm/lib/shard"
)

const testContent = "The unit must maintain silence.\n"

// buildTestShard writes a minimal valid shard: one entity, one literal
// claim, one provenance row, and one span covering "maintain silence"
// (bytes 14..30 of the source).
func buildTestShard(t *testing.T, root string, key ed25519.PrivateKey) {
	t.Helper()

	if err := os.MkdirAll(filepath.Join(root, shard.ContentDir), 0o755); err != nil {
		t.Fatal(err)
	}
	sourcePath := filepath.Join(root, filepath.FromSlash(shard.SourceFile))
	if err := os.WriteFile(sourcePath, []byte(testContent), 0o644); err != nil {
		t.Fatal(err)
	}
	sourceHash, err := shard.HashContent(sourcePath)
	if err != nil {
		t.Fatal(err)
	}

	entityID, err := identity.EntityID("test/ns", "unit")
	if err != nil {
		t.Fatal(err)
	}
	claimID, err := identity.ClaimID(entityID, "must", identity.ObjectLiteralString, "maintain silence")
	if err != nil {
		t.Fatal(err)
	}

	writeTables(t, root,
		[]shard.Entity{{EntityID: entityID, Namespace: "test/ns", Label: "unit", EntityType: "concept"}},
		[]shard.Claim{{
			ClaimID:    claimID,
			Subject:    entityID,
			Predicate:  "must",
			Object:     "maintain silence",
			ObjectType: string(identity.ObjectLiteralString),
			Tier:       0,
		}},
		[]shard.Provenance{{
			ProvenanceID: identity.ProvenanceID(sourceHash, 14, 30),
			ClaimID:      claimID,
			SourceHash:   sourceHash,
			ByteStart:    14,
			ByteEnd:      30,
		}},
		[]shard.Span{{
			SpanID:     identity.SpanID(sourceHash, 14, 30, "maintain silence"),
			SourceHash: sourceHash,
			ByteStart:  14,
			ByteEnd:    30,
			Text:       "maintain silence",
		}},
	)
	seal(t, root, key, sourceHash)
}

func writeTables(t *testing.T, root string, entities []shard.Entity, claims []shard.Claim,
	provenance []shard.Provenance, spans []shard.Span) {
	t.Helper()
	if err := shard.WriteTable(filepath.Join(root, filepath.FromSlash(shard.EntitiesTable)), entities); err != nil {
		t.Fatal(err)
	}
	if err := shard.WriteTable(filepath.Join(root, filepath.FromSlash(shard.ClaimsTable)), claims); err != nil {
		t.Fatal(err)
	}
	if err := shard.WriteTable(filepath.Join(root, filepath.FromSlash(shard.ProvenanceTable)), provenance); err != nil {
		t.Fatal(err)
	}
	if err := shard.WriteTable(filepath.Join(root, filepath.FromSlash(shard.SpansTable)), spans); err != nil {
		t.Fatal(err)
	}
}

// seal recomputes the Merkle root over the current shard files and
// writes a freshly signed manifest. Tamper tests call it again after
// rewriting a table so only the targeted invariant is broken.
func seal(t *testing.T, root string, key ed25519.PrivateKey, sourceHash string) {
	t.Helper()

	merkleRoot, err := merkle.ComputeRoot(root, merkle.DefaultLimits())
	if err != nil {
		t.Fatalf("ComputeRoot: %v", err)
	}
	m := &manifest.Manifest{
		SpecVersion: manifest.SpecVersion,
		ShardID:     manifest.ShardIDPrefix + merkleRoot,
		CreatedAt:   "2026-01-01T00:00:00Z",
		Metadata: manifest.Metadata{
			Title:     "Test Shard",
			Namespace: "test/ns",
		},
		Publisher:  manifest.Publisher{ID: "@tester", Name: "Tester"},
		License:    manifest.License{SPDX: "CC0-1.0"},
		Sources:    []manifest.Source{{Path: shard.SourceFile, Hash: sourceHash}},
		Integrity:  manifest.Integrity{Algorithm: manifest.Algorithm, MerkleRoot: merkleRoot},
		Statistics: manifest.Statistics{Entities: 1, Claims: 1},
	}
	if err := manifest.WriteSigned(root, m, key); err != nil {
		t.Fatalf("WriteSigned: %v", err)
	}
}

func newKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return public, private
}

func options(public ed25519.PublicKey) Options {
	return Options{TrustedKey: public, Limits: config.Default().Limits}
}

func hasCode(v *Verdict, code Code) bool {
	for _, e := range v.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestShardPass(t *testing.T) {
	root := t.TempDir()
	public, private := newKeypair(t)
	buildTestShard(t, root, private)

	v := Shard(root, options(public))
	if v.Status != "PASS" {
		t.Fatalf("status = %s, errors = %+v", v.Status, v.Errors)
	}
	if v.ErrorCount != 0 || len(v.Errors) != 0 {
		t.Errorf("error_count = %d", v.ErrorCount)
	}
}

func TestShardMissingPath(t *testing.T) {
	public, _ := newKeypair(t)
	v := Shard(filepath.Join(t.TempDir(), "nope"), options(public))
	if v.Status != "FAIL" || !hasCode(v, CodeLayoutMissing) {
		t.Errorf("verdict = %+v", v)
	}
}

func TestShardExtraRootFile(t *testing.T) {
	root := t.TempDir()
	public, private := newKeypair(t)
	buildTestShard(t, root, private)
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	v := Shard(root, options(public))
	if v.Status != "FAIL" || !hasCode(v, CodeLayoutDirty) {
		t.Errorf("verdict = %+v", v)
	}
}

func TestShardDotfile(t *testing.T) {
	root := t.TempDir()
	public, private := newKeypair(t)
	buildTestShard(t, root, private)
	if err := os.WriteFile(filepath.Join(root, shard.ContentDir, ".DS_Store"), []byte{0}, 0o644); err != nil {
		t.Fatal(err)
	}

	v := Shard(root, options(public))
	if v.Status != "FAIL" || !hasCode(v, CodeDotfile) {
		t.Errorf("verdict = %+v", v)
	}
}

func TestShardSymlink(t *testing.T) {
	root := t.TempDir()
	public, private := newKeypair(t)
	buildTestShard(t, root, private)

	link := filepath.Join(root, shard.ContentDir, "alias.txt")
	if err := os.Symlink(filepath.Join(root, filepath.FromSlash(shard.SourceFile)), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	v := Shard(root, options(public))
	if v.Status != "FAIL" || !hasCode(v, CodeSymlink) {
		t.Errorf("verdict = %+v", v)
	}
}

func TestShardTamperedContent(t *testing.T) {
	root := t.TempDir()
	public, private := newKeypair(t)
	buildTestShard(t, root, private)

	sourcePath := filepath.Join(root, filepath.FromSlash(shard.SourceFile))
	if err := os.WriteFile(sourcePath, []byte(strings.ToUpper(testContent)), 0o644); err != nil {
		t.Fatal(err)
	}

	v := Shard(root, options(public))
	if v.Status != "FAIL" || !hasCode(v, CodeMerkleMismatch) {
		t.Errorf("verdict = %+v", v)
	}
}

func TestShardWrongTrustedKey(t *testing.T) {
	root := t.TempDir()
	_, private := newKeypair(t)
	otherPublic, _ := newKeypair(t)
	buildTestShard(t, root, private)

	v := Shard(root, options(otherPublic))
	if v.Status != "FAIL" || !hasCode(v, CodeSigInvalid) {
		t.Errorf("verdict = %+v", v)
	}
}

func TestShardEmbeddedKeyOptIn(t *testing.T) {
	root := t.TempDir()
	_, private := newKeypair(t)
	buildTestShard(t, root, private)

	v := Shard(root, Options{Limits: config.Default().Limits})
	if v.Status != "FAIL" || !hasCode(v, CodeSigMissing) {
		t.Errorf("without anchor: verdict = %+v", v)
	}

	v = Shard(root, Options{TrustEmbeddedKey: true, Limits: config.Default().Limits})
	if v.Status != "PASS" {
		t.Errorf("with opt-in: verdict = %+v", v)
	}
}

func TestShardOrphanSubject(t *testing.T) {
	root := t.TempDir()
	public, private := newKeypair(t)
	buildTestShard(t, root, private)

	claims, err := shard.ReadTable[shard.Claim](filepath.Join(root, filepath.FromSlash(shard.ClaimsTable)))
	if err != nil {
		t.Fatal(err)
	}
	claims[0].Subject = "e_aaaaaaaaaaaaaaaaaaaaaaaa"
	writeClaims(t, root, claims)
	resealCurrent(t, root, private)

	v := Shard(root, options(public))
	if v.Status != "FAIL" || !hasCode(v, CodeRefOrphan) {
		t.Errorf("verdict = %+v", v)
	}
	// Changing the subject also breaks the derived claim id.
	if !hasCode(v, CodeIDClaim) {
		t.Errorf("verdict = %+v", v)
	}
}

func TestShardInvalidTier(t *testing.T) {
	root := t.TempDir()
	public, private := newKeypair(t)
	buildTestShard(t, root, private)

	claims, err := shard.ReadTable[shard.Claim](filepath.Join(root, filepath.FromSlash(shard.ClaimsTable)))
	if err != nil {
		t.Fatal(err)
	}
	claims[0].Tier = 7
	writeClaims(t, root, claims)
	resealCurrent(t, root, private)

	v := Shard(root, options(public))
	if v.Status != "FAIL" || !hasCode(v, CodeSchemaEnum) {
		t.Errorf("verdict = %+v", v)
	}
}

func TestShardSpanTextMismatch(t *testing.T) {
	root := t.TempDir()
	public, private := newKeypair(t)
	buildTestShard(t, root, private)

	spans, err := shard.ReadTable[shard.Span](filepath.Join(root, filepath.FromSlash(shard.SpansTable)))
	if err != nil {
		t.Fatal(err)
	}
	spans[0].Text = "break silence"
	if err := shard.WriteTable(filepath.Join(root, filepath.FromSlash(shard.SpansTable)), spans); err != nil {
		t.Fatal(err)
	}
	resealCurrent(t, root, private)

	v := Shard(root, options(public))
	if v.Status != "FAIL" || !hasCode(v, CodeRefSource) {
		t.Errorf("verdict = %+v", v)
	}
}

func TestShardWrongTableSchema(t *testing.T) {
	root := t.TempDir()
	public, private := newKeypair(t)
	buildTestShard(t, root, private)

	// An entities table where the claims table should be.
	entities, err := shard.ReadTable[shard.Entity](filepath.Join(root, filepath.FromSlash(shard.EntitiesTable)))
	if err != nil {
		t.Fatal(err)
	}
	if err := shard.WriteTable(filepath.Join(root, filepath.FromSlash(shard.ClaimsTable)), entities); err != nil {
		t.Fatal(err)
	}
	resealCurrent(t, root, private)

	v := Shard(root, options(public))
	if v.Status != "FAIL" || !hasCode(v, CodeSchemaType) {
		t.Errorf("verdict = %+v", v)
	}
}

func writeClaims(t *testing.T, root string, claims []shard.Claim) {
	t.Helper()
	if err := shard.WriteTable(filepath.Join(root, filepath.FromSlash(shard.ClaimsTable)), claims); err != nil {
		t.Fatal(err)
	}
}

// resealCurrent re-signs the shard as-is so tamper tests get past the
// signature and Merkle stages.
func resealCurrent(t *testing.T, root string, key ed25519.PrivateKey) {
	t.Helper()
	sourceHash, err := shard.HashContent(filepath.Join(root, filepath.FromSlash(shard.SourceFile)))
	if err != nil {
		t.Fatal(err)
	}
	seal(t, root, key, sourceHash)
}
