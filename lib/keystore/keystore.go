// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore manages publisher Ed25519 keypairs on disk, with
// optional passphrase sealing of the private key.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const (
	privateKeyFile = "publisher.key"
	publicKeyFile  = "publisher.pub"
)

// Generate creates a new Ed25519 publisher keypair.
func Generate() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return public, private, nil
}

// Save writes a keypair to the key directory. The private key file has
// 0600 permissions; the public key file has 0644.
func Save(keyDir string, public ed25519.PublicKey, private ed25519.PrivateKey) error {
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(keyDir, privateKeyFile), private, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(keyDir, publicKeyFile), public, 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// Load reads a keypair from the key directory. Both files must exist
// and have the exact Ed25519 sizes.
func Load(keyDir string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	privateBytes, err := os.ReadFile(filepath.Join(keyDir, privateKeyFile))
	if err != nil {
		return nil, nil, fmt.Errorf("reading private key: %w", err)
	}
	if len(privateBytes) != ed25519.PrivateKeySize {
		return nil, nil, fmt.Errorf("private key has %d bytes, want %d",
			len(privateBytes), ed25519.PrivateKeySize)
	}

	publicBytes, err := os.ReadFile(filepath.Join(keyDir, publicKeyFile))
	if err != nil {
		return nil, nil, fmt.Errorf("reading public key: %w", err)
	}
	if len(publicBytes) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("public key has %d bytes, want %d",
			len(publicBytes), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(publicBytes), ed25519.PrivateKey(privateBytes), nil
}

// LoadOrGenerate loads the keypair from keyDir, generating and saving
// a fresh one when no private key file exists. Returns whether the
// keypair was newly generated. A present-but-unreadable key is an
// error, never silently replaced.
func LoadOrGenerate(keyDir string) (ed25519.PublicKey, ed25519.PrivateKey, bool, error) {
	public, private, err := Load(keyDir)
	if err == nil {
		return public, private, false, nil
	}
	if _, statErr := os.Stat(filepath.Join(keyDir, privateKeyFile)); statErr == nil {
		return nil, nil, false, err
	}

	public, private, err = Generate()
	if err != nil {
		return nil, nil, false, err
	}
	if err := Save(keyDir, public, private); err != nil {
		return nil, nil, false, err
	}
	return public, private, true, nil
}

// FromSeedHex derives a keypair from a 32-byte hex-encoded seed. This
// is the import path for keys minted elsewhere.
func FromSeedHex(seedHex string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, nil, fmt.Errorf("key seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	private := ed25519.NewKeyFromSeed(seed)
	return private.Public().(ed25519.PublicKey), private, nil
}

// LoadPublicKey reads a bare public key file.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has %d bytes, want %d", len(data), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(data), nil
}
