// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
)

const sealedKeyFile = "publisher.key.age"

// SealPrivateKey encrypts the private key to a passphrase with age
// scrypt and writes it next to the plain key files. The plaintext key
// file is not removed; that is the caller's decision.
func SealPrivateKey(keyDir string, private ed25519.PrivateKey, passphrase string) error {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("preparing key sealing: %w", err)
	}

	var sealed bytes.Buffer
	writer, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return fmt.Errorf("sealing private key: %w", err)
	}
	if _, err := writer.Write(private); err != nil {
		return fmt.Errorf("sealing private key: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("sealing private key: %w", err)
	}

	if err := os.WriteFile(filepath.Join(keyDir, sealedKeyFile), sealed.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing sealed key: %w", err)
	}
	return nil
}

// OpenSealedPrivateKey decrypts the sealed private key with the
// passphrase.
func OpenSealedPrivateKey(keyDir, passphrase string) (ed25519.PrivateKey, error) {
	sealed, err := os.ReadFile(filepath.Join(keyDir, sealedKeyFile))
	if err != nil {
		return nil, fmt.Errorf("reading sealed key: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("preparing key unsealing: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return nil, fmt.Errorf("unsealing private key: %w", err)
	}
	private, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("unsealing private key: %w", err)
	}
	if len(private) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("unsealed key has %d bytes, want %d",
			len(private), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(private), nil
}
