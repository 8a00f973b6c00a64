// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package compile builds a signed shard from a canonical source text
// and a candidates.jsonl extraction file.
//
// The source bytes are taken verbatim: normalization is the
// extractor's job, and byte offsets in the compiled shard refer to
// exactly the bytes in content/source.txt. Every compiled shard is
// re-verified against the freshly minted publisher key before the
// build is reported successful.
package compile

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/axm-foundation/axm/lib/config"
	"github.com/axm-foundation/axm/lib/identity"
	"github.com/axm-foundation/axm/lib/manifest"
	"github.com/axm-foundation/axm/lib/merkle"
	"github.com/axm-foundation/axm/lib/shard"
	"github.com/axm-foundation/axm/lib/verify"
)

var (
	// ErrNoCandidates is returned when candidates.jsonl contains no
	// candidate lines.
	ErrNoCandidates = errors.New("no candidates to compile")

	// ErrNoClaims is returned when every candidate was skipped and the
	// shard would contain no claims.
	ErrNoClaims = errors.New("no claims survived compilation")

	// ErrAmbiguousEvidence fails the build: an evidence quote matching
	// more than one location cannot be bound to a unique byte span.
	ErrAmbiguousEvidence = errors.New("ambiguous evidence")

	// ErrSelfVerify means the compiled shard did not pass verification
	// under its own publisher key. This indicates a compiler bug, not
	// bad input.
	ErrSelfVerify = errors.New("compiled shard failed self-verification")
)

// Config describes one shard build.
type Config struct {
	SourcePath     string
	CandidatesPath string
	OutDir         string

	Key           ed25519.PrivateKey
	PublisherID   string
	PublisherName string

	Namespace    string
	Title        string
	CreatedAt    string
	LicenseSPDX  string
	LicenseNotes string

	Limits config.Limits
}

// Candidate is one line of candidates.jsonl. ObjectType defaults to
// "entity" and Tier to 0 when absent. Evidence and EvidenceQuote are
// aliases; Evidence wins when both are set.
type Candidate struct {
	Subject       string      `json:"subject"`
	Predicate     string      `json:"predicate"`
	Object        string      `json:"object"`
	ObjectType    string      `json:"object_type"`
	Tier          json.Number `json:"tier"`
	Evidence      string      `json:"evidence"`
	EvidenceQuote string      `json:"evidence_quote"`
}

// Skipped records a candidate that was dropped, with the line number
// it came from.
type Skipped struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Result summarizes a completed build.
type Result struct {
	ShardID  string          `json:"shard_id"`
	OutDir   string          `json:"out_dir"`
	Entities int             `json:"entities"`
	Claims   int             `json:"claims"`
	Skipped  []Skipped       `json:"skipped,omitempty"`
	Verdict  *verify.Verdict `json:"verdict"`
}

type candidateLine struct {
	line int
	c    Candidate
}

// Shard compiles the shard described by cfg. The output directory is
// replaced wholesale: a shard is an artifact, never an accumulation.
func Shard(cfg Config) (*Result, error) {
	content, err := shard.ReadContent(cfg.SourcePath, cfg.Limits.MaxFileBytes)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(content)
	sourceHash := hex.EncodeToString(digest[:])

	candidates, err := loadCandidates(cfg.CandidatesPath)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	result := &Result{OutDir: cfg.OutDir}

	entityID, entityRows, err := collectEntities(cfg.Namespace, candidates)
	if err != nil {
		return nil, err
	}

	var claimRows []shard.Claim
	var provRows []shard.Provenance
	var spanRows []shard.Span
	for _, cl := range candidates {
		skip, err := compileCandidate(cfg.Namespace, cl, entityID, content, sourceHash,
			&claimRows, &provRows, &spanRows)
		if err != nil {
			return nil, err
		}
		if skip != "" {
			result.Skipped = append(result.Skipped, Skipped{Line: cl.line, Reason: skip})
		}
	}
	if len(claimRows) == 0 {
		return nil, ErrNoClaims
	}

	if err := os.RemoveAll(cfg.OutDir); err != nil {
		return nil, fmt.Errorf("clearing output directory: %w", err)
	}
	for _, dir := range []string{shard.ContentDir, shard.GraphDir, shard.EvidenceDir, shard.SigDir} {
		if err := os.MkdirAll(filepath.Join(cfg.OutDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(cfg.OutDir, filepath.FromSlash(shard.SourceFile)), content, 0o644); err != nil {
		return nil, fmt.Errorf("writing source: %w", err)
	}

	sort.Slice(entityRows, func(i, j int) bool { return entityRows[i].EntityID < entityRows[j].EntityID })
	sort.Slice(claimRows, func(i, j int) bool { return claimRows[i].ClaimID < claimRows[j].ClaimID })
	sort.Slice(provRows, func(i, j int) bool { return provRows[i].ProvenanceID < provRows[j].ProvenanceID })
	sort.Slice(spanRows, func(i, j int) bool { return spanRows[i].SpanID < spanRows[j].SpanID })

	if err := writeTables(cfg.OutDir, entityRows, claimRows, provRows, spanRows); err != nil {
		return nil, err
	}

	merkleRoot, err := merkle.ComputeRoot(cfg.OutDir, merkle.Limits{
		MaxFileBytes:  cfg.Limits.MaxFileBytes,
		MaxTotalBytes: cfg.Limits.MaxTotalBytes,
		MaxFileCount:  cfg.Limits.MaxFileCount,
	})
	if err != nil {
		return nil, fmt.Errorf("computing merkle root: %w", err)
	}

	m := buildManifest(cfg, merkleRoot, sourceHash, len(entityRows), len(claimRows))
	if err := manifest.WriteSigned(cfg.OutDir, m, cfg.Key); err != nil {
		return nil, err
	}

	result.ShardID = m.ShardID
	result.Entities = len(entityRows)
	result.Claims = len(claimRows)

	// Self-check: the artifact must verify under the key that signed it.
	public := cfg.Key.Public().(ed25519.PublicKey)
	result.Verdict = verify.Shard(cfg.OutDir, verify.Options{TrustedKey: public, Limits: cfg.Limits})
	if result.Verdict.Status != "PASS" {
		return result, fmt.Errorf("%w: %d errors", ErrSelfVerify, result.Verdict.ErrorCount)
	}
	return result, nil
}

// loadCandidates reads candidates.jsonl, skipping blank lines. A line
// that is not valid JSON fails the whole build.
func loadCandidates(path string) ([]candidateLine, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading candidates: %w", err)
	}
	defer file.Close()

	var candidates []candidateLine
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c Candidate
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("candidates line %d: %w", line, err)
		}
		candidates = append(candidates, candidateLine{line: line, c: c})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading candidates: %w", err)
	}
	return candidates, nil
}

// collectEntities is the first pass: every subject label, and every
// object label of an entity-typed candidate, becomes an entity. Labels
// that canonicalize to the same id are one entity; the first label
// encountered names it.
func collectEntities(namespace string, candidates []candidateLine) (map[string]string, []shard.Entity, error) {
	byLabel := make(map[string]string)
	var rows []shard.Entity
	seen := make(map[string]bool)

	add := func(label string) error {
		if label == "" || byLabel[label] != "" {
			return nil
		}
		id, err := identity.EntityID(namespace, label)
		if err != nil {
			return fmt.Errorf("entity %q: %w", label, err)
		}
		byLabel[label] = id
		if !seen[id] {
			seen[id] = true
			rows = append(rows, shard.Entity{
				EntityID:   id,
				Namespace:  namespace,
				Label:      label,
				EntityType: "concept",
			})
		}
		return nil
	}

	for _, cl := range candidates {
		if err := add(strings.TrimSpace(cl.c.Subject)); err != nil {
			return nil, nil, err
		}
		objectType := cl.c.ObjectType
		if objectType == "" || objectType == string(identity.ObjectEntity) {
			if err := add(strings.TrimSpace(cl.c.Object)); err != nil {
				return nil, nil, err
			}
		}
	}
	return byLabel, rows, nil
}

// compileCandidate turns one candidate into a claim, provenance, and
// span row. It returns a non-empty skip reason for recoverable drops;
// ambiguous evidence is a hard error.
func compileCandidate(namespace string, cl candidateLine, entityID map[string]string,
	content []byte, sourceHash string,
	claims *[]shard.Claim, provenance *[]shard.Provenance, spans *[]shard.Span) (string, error) {

	c := cl.c
	subject := strings.TrimSpace(c.Subject)
	predicate := strings.TrimSpace(c.Predicate)
	object := strings.TrimSpace(c.Object)
	evidence := c.Evidence
	if evidence == "" {
		evidence = c.EvidenceQuote
	}

	if subject == "" || predicate == "" || evidence == "" {
		return "missing subject, predicate, or evidence", nil
	}

	objectType := identity.ObjectType(c.ObjectType)
	if c.ObjectType == "" {
		objectType = identity.ObjectEntity
	}
	if !objectType.Valid() {
		return fmt.Sprintf("invalid object_type %q", c.ObjectType), nil
	}

	tier := parseTier(c.Tier)

	subjectID := entityID[subject]
	objectValue := object
	if objectType == identity.ObjectEntity {
		objectValue = entityID[object]
		if objectValue == "" {
			return "missing entity object", nil
		}
	}

	start, end, err := findSpan(content, evidence)
	if err != nil {
		if errors.Is(err, ErrAmbiguousEvidence) {
			return "", fmt.Errorf("candidates line %d: %w", cl.line, err)
		}
		return err.Error(), nil
	}

	claimID, err := identity.ClaimID(subjectID, predicate, objectType, objectValue)
	if err != nil {
		return "", fmt.Errorf("candidates line %d: %w", cl.line, err)
	}

	*claims = append(*claims, shard.Claim{
		ClaimID:    claimID,
		Subject:    subjectID,
		Predicate:  predicate,
		Object:     objectValue,
		ObjectType: string(objectType),
		Tier:       tier,
	})
	*provenance = append(*provenance, shard.Provenance{
		ProvenanceID: identity.ProvenanceID(sourceHash, start, end),
		ClaimID:      claimID,
		SourceHash:   sourceHash,
		ByteStart:    start,
		ByteEnd:      end,
	})
	*spans = append(*spans, shard.Span{
		SpanID:     identity.SpanID(sourceHash, start, end, evidence),
		SourceHash: sourceHash,
		ByteStart:  start,
		ByteEnd:    end,
		Text:       evidence,
	})
	return "", nil
}

// parseTier clamps missing, malformed, and out-of-range tiers to 0.
func parseTier(raw json.Number) int32 {
	if raw == "" {
		return 0
	}
	tier, err := strconv.ParseInt(string(raw), 10, 32)
	if err != nil || tier < identity.TierMin || tier > identity.TierMax {
		return 0
	}
	return int32(tier)
}

// findSpan locates an evidence quote as a unique byte range of the
// source. Zero matches is a recoverable skip; more than one match is
// ErrAmbiguousEvidence.
func findSpan(content []byte, evidence string) (int64, int64, error) {
	needle := []byte(evidence)
	switch count := bytes.Count(content, needle); {
	case count == 0:
		return 0, 0, fmt.Errorf("evidence not found: %.80q", evidence)
	case count > 1:
		return 0, 0, fmt.Errorf("%w: %d matches for %.40q", ErrAmbiguousEvidence, count, evidence)
	}
	start := int64(bytes.Index(content, needle))
	return start, start + int64(len(needle)), nil
}

func writeTables(outDir string, entities []shard.Entity, claims []shard.Claim,
	provenance []shard.Provenance, spans []shard.Span) error {
	if err := shard.WriteTable(filepath.Join(outDir, filepath.FromSlash(shard.EntitiesTable)), entities); err != nil {
		return err
	}
	if err := shard.WriteTable(filepath.Join(outDir, filepath.FromSlash(shard.ClaimsTable)), claims); err != nil {
		return err
	}
	if err := shard.WriteTable(filepath.Join(outDir, filepath.FromSlash(shard.ProvenanceTable)), provenance); err != nil {
		return err
	}
	return shard.WriteTable(filepath.Join(outDir, filepath.FromSlash(shard.SpansTable)), spans)
}

func buildManifest(cfg Config, merkleRoot, sourceHash string, entities, claims int) *manifest.Manifest {
	title := cfg.Title
	if title == "" {
		title = filepath.Base(cfg.SourcePath)
	}
	spdx := cfg.LicenseSPDX
	if spdx == "" {
		spdx = "UNLICENSED"
	}
	return &manifest.Manifest{
		SpecVersion: manifest.SpecVersion,
		ShardID:     manifest.ShardIDPrefix + merkleRoot,
		CreatedAt:   cfg.CreatedAt,
		Metadata: manifest.Metadata{
			Title:     title,
			Namespace: cfg.Namespace,
		},
		Publisher:  manifest.Publisher{ID: cfg.PublisherID, Name: cfg.PublisherName},
		License:    manifest.License{SPDX: spdx, Notes: cfg.LicenseNotes},
		Sources:    []manifest.Source{{Path: shard.SourceFile, Hash: sourceHash}},
		Integrity:  manifest.Integrity{Algorithm: manifest.Algorithm, MerkleRoot: merkleRoot},
		Statistics: manifest.Statistics{Entities: int64(entities), Claims: int64(claims)},
	}
}
