// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package compile

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/axm-foundation/axm/lib/config"
	"github.com/axm-foundation/axm/lib/shard"
	"github.com/axm-foundation/axm/lib/verify"
)

const silenceSource = "The unit must maintain silence.\n"

const silenceCandidates = `{"subject":"unit","predicate":"must","object":"maintain silence","object_type":"literal:string","tier":1,"evidence":"maintain silence"}
`

func testConfig(t *testing.T, source, candidates string) Config {
	t.Helper()
	dir := t.TempDir()

	sourcePath := filepath.Join(dir, "source.txt")
	if err := os.WriteFile(sourcePath, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}
	candidatesPath := filepath.Join(dir, "candidates.jsonl")
	if err := os.WriteFile(candidatesPath, []byte(candidates), 0o644); err != nil {
		t.Fatal(err)
	}

	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return Config{
		SourcePath:     sourcePath,
		CandidatesPath: candidatesPath,
		OutDir:         filepath.Join(dir, "shard"),
		Key:            private,
		PublisherID:    "@tester",
		PublisherName:  "Tester",
		Namespace:      "test/ns",
		CreatedAt:      "2026-01-01T00:00:00Z",
		Limits:         config.Default().Limits,
	}
}

func TestShardLiteralClaim(t *testing.T) {
	cfg := testConfig(t, silenceSource, silenceCandidates)

	result, err := Shard(cfg)
	if err != nil {
		t.Fatalf("Shard: %v", err)
	}
	if result.Entities != 1 || result.Claims != 1 {
		t.Errorf("entities = %d, claims = %d", result.Entities, result.Claims)
	}
	if result.Verdict.Status != "PASS" {
		t.Errorf("self-verification: %+v", result.Verdict.Errors)
	}

	spans, err := shard.ReadTable[shard.Span](filepath.Join(cfg.OutDir, filepath.FromSlash(shard.SpansTable)))
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 1 {
		t.Fatalf("spans = %d", len(spans))
	}
	if spans[0].Text != "maintain silence" || spans[0].ByteStart != 14 || spans[0].ByteEnd != 30 {
		t.Errorf("span = %+v", spans[0])
	}
}

func TestShardEntityObject(t *testing.T) {
	source := "The unit reports to the commander.\n"
	candidates := `{"subject":"unit","predicate":"reports_to","object":"commander","evidence":"reports to the commander"}
`
	cfg := testConfig(t, source, candidates)

	result, err := Shard(cfg)
	if err != nil {
		t.Fatalf("Shard: %v", err)
	}
	if result.Entities != 2 || result.Claims != 1 {
		t.Errorf("entities = %d, claims = %d", result.Entities, result.Claims)
	}

	claims, err := shard.ReadTable[shard.Claim](filepath.Join(cfg.OutDir, filepath.FromSlash(shard.ClaimsTable)))
	if err != nil {
		t.Fatal(err)
	}
	if claims[0].ObjectType != "entity" {
		t.Errorf("object_type = %q", claims[0].ObjectType)
	}
	entities, err := shard.ReadTable[shard.Entity](filepath.Join(cfg.OutDir, filepath.FromSlash(shard.EntitiesTable)))
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range entities {
		if e.EntityID == claims[0].Object {
			found = true
		}
	}
	if !found {
		t.Error("claim object does not resolve to a compiled entity")
	}
}

func TestShardEntityObjectDefaultType(t *testing.T) {
	// A candidate without object_type is entity-typed: "Unit" and
	// "silence" both become entities and the claim binds them.
	candidates := `{"subject":"Unit","predicate":"must maintain","object":"silence","evidence":"maintain silence","tier":0}
`
	cfg := testConfig(t, silenceSource, candidates)

	result, err := Shard(cfg)
	if err != nil {
		t.Fatalf("Shard: %v", err)
	}
	if result.Entities != 2 || result.Claims != 1 {
		t.Errorf("entities = %d, claims = %d", result.Entities, result.Claims)
	}
	if result.Verdict.Status != "PASS" || result.Verdict.ErrorCount != 0 {
		t.Errorf("verdict = %+v", result.Verdict)
	}

	spans, err := shard.ReadTable[shard.Span](filepath.Join(cfg.OutDir, filepath.FromSlash(shard.SpansTable)))
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 1 || spans[0].Text != "maintain silence" {
		t.Errorf("spans = %+v", spans)
	}
}

func TestShardDeterministic(t *testing.T) {
	cfg1 := testConfig(t, silenceSource, silenceCandidates)
	cfg2 := testConfig(t, silenceSource, silenceCandidates)

	r1, err := Shard(cfg1)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Shard(cfg2)
	if err != nil {
		t.Fatal(err)
	}
	if r1.ShardID != r2.ShardID {
		t.Errorf("shard ids differ: %s vs %s", r1.ShardID, r2.ShardID)
	}
}

func TestShardEvidenceNotFoundSkips(t *testing.T) {
	candidates := silenceCandidates +
		`{"subject":"unit","predicate":"must","object":"hold position","object_type":"literal:string","evidence":"hold position"}
`
	cfg := testConfig(t, silenceSource, candidates)

	result, err := Shard(cfg)
	if err != nil {
		t.Fatalf("Shard: %v", err)
	}
	if result.Claims != 1 {
		t.Errorf("claims = %d, want 1", result.Claims)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Line != 2 {
		t.Errorf("skipped = %+v", result.Skipped)
	}
}

func TestShardAmbiguousEvidenceFails(t *testing.T) {
	source := "maintain silence and maintain silence\n"
	cfg := testConfig(t, source, silenceCandidates)

	_, err := Shard(cfg)
	if !errors.Is(err, ErrAmbiguousEvidence) {
		t.Errorf("err = %v, want ErrAmbiguousEvidence", err)
	}
}

func TestShardInvalidObjectTypeSkips(t *testing.T) {
	candidates := silenceCandidates +
		`{"subject":"unit","predicate":"count","object":"3","object_type":"literal:integer","evidence":"silence"}
`
	cfg := testConfig(t, silenceSource, candidates)

	result, err := Shard(cfg)
	if err != nil {
		t.Fatalf("Shard: %v", err)
	}
	if result.Claims != 1 || len(result.Skipped) != 1 {
		t.Errorf("claims = %d, skipped = %+v", result.Claims, result.Skipped)
	}
}

func TestShardTierClamped(t *testing.T) {
	candidates := `{"subject":"unit","predicate":"must","object":"maintain silence","object_type":"literal:string","tier":9,"evidence":"maintain silence"}
`
	cfg := testConfig(t, silenceSource, candidates)

	if _, err := Shard(cfg); err != nil {
		t.Fatalf("Shard: %v", err)
	}
	claims, err := shard.ReadTable[shard.Claim](filepath.Join(cfg.OutDir, filepath.FromSlash(shard.ClaimsTable)))
	if err != nil {
		t.Fatal(err)
	}
	if claims[0].Tier != 0 {
		t.Errorf("tier = %d, want 0", claims[0].Tier)
	}
}

func TestShardNoCandidates(t *testing.T) {
	cfg := testConfig(t, silenceSource, "\n\n")
	if _, err := Shard(cfg); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("err = %v, want ErrNoCandidates", err)
	}
}

func TestShardMalformedCandidateFails(t *testing.T) {
	cfg := testConfig(t, silenceSource, "{not json}\n")
	if _, err := Shard(cfg); err == nil {
		t.Error("malformed candidate line accepted")
	}
}

func TestCompiledShardSurvivesIndependentVerification(t *testing.T) {
	cfg := testConfig(t, silenceSource, silenceCandidates)
	if _, err := Shard(cfg); err != nil {
		t.Fatal(err)
	}

	public := cfg.Key.Public().(ed25519.PublicKey)
	v := verify.Shard(cfg.OutDir, verify.Options{TrustedKey: public, Limits: cfg.Limits})
	if v.Status != "PASS" {
		t.Errorf("verdict = %+v", v)
	}

	// Flip one byte of the source; the Merkle stage must catch it.
	sourcePath := filepath.Join(cfg.OutDir, filepath.FromSlash(shard.SourceFile))
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		t.Fatal(err)
	}
	data[0] ^= 0x20
	if err := os.WriteFile(sourcePath, data, 0o644); err != nil {
		t.Fatal(err)
	}
	v = verify.Shard(cfg.OutDir, verify.Options{TrustedKey: public, Limits: cfg.Limits})
	if v.Status != "FAIL" {
		t.Error("tampered shard still verified")
	}
}
