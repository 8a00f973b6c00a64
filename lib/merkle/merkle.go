// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package merkle computes the BLAKE3 Merkle commitment over a shard
// subtree.
//
// Every file under the shard root participates except manifest.json
// and files under sig/ — the manifest is what carries the root, and
// the signature material must be able to change (re-signing with a
// different key) without invalidating the commitment.
//
// The walk is a trust boundary: symbolic links are refused outright,
// and per-file, total-byte, and file-count limits are enforced
// incrementally so adversarial trees are rejected before they exhaust
// memory or disk bandwidth.
package merkle

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// chunkSize is the streaming read size. Peak memory during hashing is
// independent of file size.
const chunkSize = 64 * 1024

// Excluded paths, relative to the shard root.
const (
	manifestPath = "manifest.json"
	sigPrefix    = "sig/"
)

// ErrSymlink is returned (wrapped, with the offending path) when the
// walk encounters a symbolic link anywhere under the root.
var ErrSymlink = errors.New("symbolic link encountered")

// ErrLimit is returned (wrapped) when a resource limit is exceeded.
var ErrLimit = errors.New("resource limit exceeded")

// Limits bounds the walk. Zero values are not valid; use
// DefaultLimits or thread values in from the caller's configuration.
type Limits struct {
	// MaxFileBytes is the largest single file the walk will hash.
	MaxFileBytes int64

	// MaxTotalBytes caps the sum of all file sizes scanned.
	MaxTotalBytes int64

	// MaxFileCount caps the number of files in the tree.
	MaxFileCount int
}

// DefaultLimits returns the normative limits: 256 MiB per file, 1 GiB
// per tree, 10,000 files.
func DefaultLimits() Limits {
	return Limits{
		MaxFileBytes:  256 << 20,
		MaxTotalBytes: 1 << 30,
		MaxFileCount:  10_000,
	}
}

// ComputeRoot walks the tree under root and returns the Merkle root
// as lowercase hex.
//
// Leaves are blake3(relpath_utf8 || 0x00 || file_bytes), sorted by
// the byte order of their POSIX-style relative path. The tree pairs
// adjacent nodes left to right; an odd trailing node is paired with
// itself. An empty tree hashes to blake3 of zero bytes.
func ComputeRoot(root string, limits Limits) (string, error) {
	files, err := collectFiles(root, limits)
	if err != nil {
		return "", err
	}

	var totalBytes int64
	leaves := make([]Hash, 0, len(files))
	for _, relPath := range files {
		leaf, size, err := hashLeaf(root, relPath, limits)
		if err != nil {
			return "", err
		}
		totalBytes += size
		if totalBytes > limits.MaxTotalBytes {
			return "", fmt.Errorf("%w: tree exceeds %d total bytes", ErrLimit, limits.MaxTotalBytes)
		}
		leaves = append(leaves, leaf)
	}

	if len(leaves) == 0 {
		empty := blake3.Sum256(nil)
		return hex.EncodeToString(empty[:]), nil
	}

	rootHash := buildTree(leaves)
	return hex.EncodeToString(rootHash[:]), nil
}

// collectFiles enumerates included files under root, sorted by the
// byte order of their relative path. Any symlink — file or directory,
// included or excluded — fails the walk.
func collectFiles(root string, limits Limits) ([]string, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, fmt.Errorf("reading shard root: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("%w: shard root %s", ErrSymlink, root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("shard root %s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			rel, _ := filepath.Rel(root, path)
			return fmt.Errorf("%w: %s", ErrSymlink, filepath.ToSlash(rel))
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath := filepath.ToSlash(rel)
		if relPath == manifestPath || strings.HasPrefix(relPath, sigPrefix) {
			return nil
		}

		files = append(files, relPath)
		if len(files) > limits.MaxFileCount {
			return fmt.Errorf("%w: tree exceeds %d files", ErrLimit, limits.MaxFileCount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// hashLeaf computes the leaf hash for one file, streaming the content
// in fixed-size chunks. The symlink check is repeated immediately
// before the open: the walk's earlier check does not protect against
// a link swapped in between.
func hashLeaf(root, relPath string, limits Limits) (Hash, int64, error) {
	fullPath := filepath.Join(root, filepath.FromSlash(relPath))

	info, err := os.Lstat(fullPath)
	if err != nil {
		return Hash{}, 0, fmt.Errorf("reading %s: %w", relPath, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return Hash{}, 0, fmt.Errorf("%w: %s", ErrSymlink, relPath)
	}
	if info.Size() > limits.MaxFileBytes {
		return Hash{}, 0, fmt.Errorf("%w: %s is %d bytes, limit %d",
			ErrLimit, relPath, info.Size(), limits.MaxFileBytes)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return Hash{}, 0, fmt.Errorf("opening %s: %w", relPath, err)
	}
	defer file.Close()

	hasher := blake3.New()
	hasher.Write([]byte(relPath))
	hasher.Write([]byte{0})

	// LimitReader guards against the file growing between Lstat and
	// the read; the extra byte makes growth detectable.
	buffer := make([]byte, chunkSize)
	n, err := io.CopyBuffer(hasher, io.LimitReader(file, limits.MaxFileBytes+1), buffer)
	if err != nil {
		return Hash{}, 0, fmt.Errorf("hashing %s: %w", relPath, err)
	}
	if n > limits.MaxFileBytes {
		return Hash{}, 0, fmt.Errorf("%w: %s exceeds %d bytes", ErrLimit, relPath, limits.MaxFileBytes)
	}

	var leaf Hash
	copy(leaf[:], hasher.Sum(nil))
	return leaf, n, nil
}

// buildTree folds the sorted leaves bottom-up into a single root.
// A level with an odd node count duplicates the last node as its own
// pair partner.
func buildTree(leaves []Hash) Hash {
	hasher := blake3.New()
	var combined [64]byte

	hashPair := func(left, right Hash) Hash {
		copy(combined[:32], left[:])
		copy(combined[32:], right[:])
		hasher.Reset()
		hasher.Write(combined[:])
		var parent Hash
		copy(parent[:], hasher.Sum(nil))
		return parent
	}

	level := leaves
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		level = next
	}
	return level[0]
}
