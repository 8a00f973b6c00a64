// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity implements AXM text canonicalization and
// deterministic identifier derivation.
//
// Identifiers are content-addressed: two entities with the same
// canonical namespace and label always collide to the same id. That
// is the design, not a defect. Ids are the first 15 bytes (120 bits)
// of a SHA-256 digest, base32-encoded in lowercase without padding.
// The truncation is normative — widening it to the full digest would
// break id compatibility across implementations.
package identity

import (
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrNullByte is returned when an identifier input contains a literal
// null byte. Null bytes are never silently stripped: the canonical
// forms are joined with 0x00 separators before hashing, so a null
// byte in the input could truncate or shift the hashed material.
var ErrNullByte = errors.New("identifier contains illegal null byte")

// ObjectType classifies the object side of a claim.
type ObjectType string

const (
	// ObjectEntity means the claim object is another entity,
	// referenced by its entity id.
	ObjectEntity ObjectType = "entity"

	// ObjectLiteralString means the claim object is a canonicalized
	// string literal.
	ObjectLiteralString ObjectType = "literal:string"
)

// Valid reports whether t is a recognized object type.
func (t ObjectType) Valid() bool {
	return t == ObjectEntity || t == ObjectLiteralString
}

// Claim tiers. Tier 0 is the strongest evidentiary tier.
const (
	TierMin = 0
	TierMax = 2
)

// idEncoding is lowercase-by-convention: base32 output is uppercased
// by the stdlib encoder and lowered after encoding.
var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Canonicalize normalizes a namespace, label, or predicate for
// hashing: NFC normalization, full Unicode case folding, removal of
// control characters, collapse of any whitespace run to a single
// ASCII space, and trimming. The function is idempotent:
// Canonicalize(Canonicalize(s)) == Canonicalize(s).
//
// Inputs containing a null byte are rejected with ErrNullByte.
func Canonicalize(s string) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", ErrNullByte
	}

	folded := cases.Fold().String(norm.NFC.String(s))

	// Splitting on Unicode whitespace handles both the collapse and
	// the trim. Control characters that survive inside a chunk (for
	// example a bare 0x01) are dropped.
	chunks := strings.Fields(folded)
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.Is(unicode.Cc, r) {
				return -1
			}
			return r
		}, chunk)
		if cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	return strings.Join(parts, " "), nil
}

// EntityID derives the deterministic entity identifier for a
// canonicalized (namespace, label) pair:
//
//	"e_" + base32( sha256( canon(namespace) || 0x00 || canon(label) )[:15] )
func EntityID(namespace, label string) (string, error) {
	ns, err := Canonicalize(namespace)
	if err != nil {
		return "", err
	}
	lb, err := Canonicalize(label)
	if err != nil {
		return "", err
	}
	return derive("e_", ns+"\x00"+lb), nil
}

// ClaimID derives the deterministic claim identifier. subjectID is an
// already-derived entity id. objectValue is an entity id when
// objectType is ObjectEntity; otherwise it is the raw literal, which
// is canonicalized here before hashing.
func ClaimID(subjectID, predicate string, objectType ObjectType, objectValue string) (string, error) {
	pred, err := Canonicalize(predicate)
	if err != nil {
		return "", err
	}

	value := objectValue
	if objectType != ObjectEntity {
		value, err = Canonicalize(objectValue)
		if err != nil {
			return "", err
		}
	}

	material := subjectID + "\x00" + pred + "\x00" + string(objectType) + "\x00" + value
	return derive("c_", material), nil
}

// ProvenanceID derives the identifier of a provenance row from the
// content hash it points into and the byte range.
func ProvenanceID(sourceHash string, byteStart, byteEnd int64) string {
	material := sourceHash + "\x00" +
		strconv.FormatInt(byteStart, 10) + "\x00" +
		strconv.FormatInt(byteEnd, 10)
	return derive("p_", material)
}

// SpanID derives the identifier of a span row. Unlike ProvenanceID it
// also commits to the literal evidence text.
func SpanID(sourceHash string, byteStart, byteEnd int64, text string) string {
	material := sourceHash + "\x00" +
		strconv.FormatInt(byteStart, 10) + "\x00" +
		strconv.FormatInt(byteEnd, 10) + "\x00" + text
	return derive("s_", material)
}

func derive(prefix, material string) string {
	digest := sha256.Sum256([]byte(material))
	return prefix + strings.ToLower(idEncoding.EncodeToString(digest[:15]))
}
