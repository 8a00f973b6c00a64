// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// HashContent computes the lowercase hex SHA-256 of a content file,
// streaming so large files never load fully into memory. Content
// addressing uses SHA-256 rather than the Merkle engine's BLAKE3:
// source hashes are an external identity that other tools must be able
// to reproduce with ubiquitous tooling.
func HashContent(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	defer file.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, file); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// ReadContent reads a content file fully, enforcing the per-file size
// cap before buffering.
func ReadContent(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("content file %s larger than %d bytes", path, maxBytes)
	}
	return data, nil
}
