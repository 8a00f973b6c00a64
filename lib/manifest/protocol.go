// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var (
	// ErrNoTrustAnchor is returned when verification is attempted
	// without a trusted public key. The shard's own embedded key is
	// never used as the trust anchor unless the caller explicitly
	// opts in.
	ErrNoTrustAnchor = errors.New("no trusted public key supplied")

	// ErrSignature is returned when the Ed25519 signature does not
	// verify over the manifest bytes.
	ErrSignature = errors.New("manifest signature verification failed")

	// ErrTooLarge is returned when manifest.json exceeds the
	// configured size limit.
	ErrTooLarge = errors.New("manifest exceeds size limit")

	// ErrSyntax is returned when the (already signature-verified)
	// manifest bytes are not valid JSON.
	ErrSyntax = errors.New("manifest is not valid JSON")
)

// WriteSigned canonically encodes the manifest, signs the exact
// encoded bytes with the publisher's Ed25519 private key, and
// persists manifest.json, sig/manifest.sig, and sig/publisher.pub
// under the shard root.
func WriteSigned(shardRoot string, m *Manifest, key ed25519.PrivateKey) error {
	encoded, err := m.EncodeCanonical()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(shardRoot, "sig"), 0o755); err != nil {
		return fmt.Errorf("creating sig directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(shardRoot, FileName), encoded, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	signature := ed25519.Sign(key, encoded)
	if err := os.WriteFile(filepath.Join(shardRoot, filepath.FromSlash(SignatureFile)), signature, 0o644); err != nil {
		return fmt.Errorf("writing signature: %w", err)
	}

	public := key.Public().(ed25519.PublicKey)
	if err := os.WriteFile(filepath.Join(shardRoot, filepath.FromSlash(PublicKeyFile)), public, 0o644); err != nil {
		return fmt.Errorf("writing publisher key: %w", err)
	}
	return nil
}

// VerifyOptions configures ReadVerified.
type VerifyOptions struct {
	// TrustedKey is the externally supplied trust anchor.
	TrustedKey ed25519.PublicKey

	// TrustEmbeddedKey permits falling back to the shard's own
	// sig/publisher.pub when TrustedKey is nil. This proves only
	// internal consistency, not provenance, and must be an explicit
	// caller decision.
	TrustEmbeddedKey bool

	// MaxManifestBytes caps the manifest read.
	MaxManifestBytes int64
}

// ReadVerified reads manifest.json into memory exactly once, verifies
// the Ed25519 signature over that in-memory buffer, and only then
// parses the same buffer into a Manifest.
//
// The single-read ordering is the anti-TOCTOU invariant: the bytes
// that were signature-checked are the bytes that get parsed. The file
// is never re-opened between the two operations, so a manifest
// swapped on disk after the signature check cannot influence the
// parsed fields.
func ReadVerified(shardRoot string, opts VerifyOptions) (*Manifest, []byte, error) {
	raw, err := readBounded(filepath.Join(shardRoot, FileName), opts.MaxManifestBytes)
	if err != nil {
		return nil, nil, err
	}

	trusted := opts.TrustedKey
	if trusted == nil {
		if !opts.TrustEmbeddedKey {
			return nil, nil, ErrNoTrustAnchor
		}
		embedded, err := os.ReadFile(filepath.Join(shardRoot, filepath.FromSlash(PublicKeyFile)))
		if err != nil {
			return nil, nil, fmt.Errorf("reading embedded publisher key: %w", err)
		}
		if len(embedded) != ed25519.PublicKeySize {
			return nil, nil, fmt.Errorf("embedded publisher key has %d bytes, want %d",
				len(embedded), ed25519.PublicKeySize)
		}
		trusted = ed25519.PublicKey(embedded)
	}
	if len(trusted) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("trusted public key has %d bytes, want %d",
			len(trusted), ed25519.PublicKeySize)
	}

	signature, err := os.ReadFile(filepath.Join(shardRoot, filepath.FromSlash(SignatureFile)))
	if err != nil {
		return nil, nil, fmt.Errorf("reading signature: %w", err)
	}
	if len(signature) != ed25519.SignatureSize {
		return nil, nil, fmt.Errorf("%w: signature has %d bytes, want %d",
			ErrSignature, len(signature), ed25519.SignatureSize)
	}

	if !ed25519.Verify(trusted, raw, signature) {
		return nil, nil, ErrSignature
	}

	// Signature verified; parse the very same buffer.
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return &m, raw, nil
}

// readBounded reads a file fully, failing with ErrTooLarge once the
// size limit is crossed rather than buffering unbounded data.
func readBounded(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
