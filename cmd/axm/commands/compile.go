// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/axm-foundation/axm/cmd/axm/cli"
	"github.com/axm-foundation/axm/lib/compile"
	"github.com/axm-foundation/axm/lib/keystore"
)

func compileCommand() *cli.Command {
	var (
		sourcePath     string
		candidatesPath string
		outDir         string
		keyDir         string
		keySeed        string
		publisherID    string
		publisherName  string
		namespace      string
		title          string
		createdAt      string
		licenseSPDX    string
		licenseNotes   string
		configPath     string
		cborOut        string
	)

	return &cli.Command{
		Name:    "compile",
		Summary: "Compile a signed shard from source text and candidates",
		Description: `Compile a signed shard from a canonical source text and a
candidates.jsonl extraction file.

The output directory is replaced wholesale. The shard is signed with
the publisher key from --key-dir (generated on first use) or derived
from --key-seed, and is re-verified under that key before the build
is reported successful.`,
		Usage: "axm compile --source <file> --candidates <file> --out <dir> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("compile", pflag.ContinueOnError)
			flags.StringVar(&sourcePath, "source", "", "canonical source text file")
			flags.StringVar(&candidatesPath, "candidates", "", "candidates.jsonl file")
			flags.StringVar(&outDir, "out", "", "output shard directory")
			flags.StringVar(&keyDir, "key-dir", "", "publisher key directory (generated on first use)")
			flags.StringVar(&keySeed, "key-seed", "", "hex-encoded 32-byte Ed25519 seed (overrides --key-dir)")
			flags.StringVar(&publisherID, "publisher-id", "@axm", "publisher identifier")
			flags.StringVar(&publisherName, "publisher-name", "AXM", "publisher display name")
			flags.StringVar(&namespace, "namespace", "", "entity namespace")
			flags.StringVar(&title, "title", "", "shard title (defaults to the source file name)")
			flags.StringVar(&createdAt, "created-at", "", "creation timestamp (defaults to now, RFC 3339 UTC)")
			flags.StringVar(&licenseSPDX, "license", "", "SPDX license identifier")
			flags.StringVar(&licenseNotes, "license-notes", "", "license notes")
			flags.StringVar(&configPath, "config", "", "config file path")
			flags.StringVar(&cborOut, "cbor-out", "", "also write the build report as CBOR to this path")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			if sourcePath == "" || candidatesPath == "" || outDir == "" {
				return fmt.Errorf("--source, --candidates, and --out are required")
			}
			if namespace == "" {
				return fmt.Errorf("--namespace is required")
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			key, err := resolveKey(keyDir, keySeed)
			if err != nil {
				return err
			}
			if createdAt == "" {
				createdAt = time.Now().UTC().Format(time.RFC3339)
			}

			logger := cli.NewCommandLogger().With("command", "compile")
			logger.Info("compiling shard", "source", sourcePath, "out", outDir)

			result, err := compile.Shard(compile.Config{
				SourcePath:     sourcePath,
				CandidatesPath: candidatesPath,
				OutDir:         outDir,
				Key:            key,
				PublisherID:    publisherID,
				PublisherName:  publisherName,
				Namespace:      namespace,
				Title:          title,
				CreatedAt:      createdAt,
				LicenseSPDX:    licenseSPDX,
				LicenseNotes:   licenseNotes,
				Limits:         cfg.Limits,
			})
			if err != nil {
				return err
			}

			logger.Info("shard compiled",
				"shard_id", result.ShardID,
				"entities", result.Entities,
				"claims", result.Claims,
				"skipped", len(result.Skipped))

			if cborOut != "" {
				if err := cli.WriteCBOR(cborOut, result); err != nil {
					return err
				}
			}
			return cli.WriteJSON(result)
		},
	}
}

// resolveKey loads the signing key: an explicit seed wins, then the
// key directory (generating a keypair on first use).
func resolveKey(keyDir, keySeed string) (ed25519.PrivateKey, error) {
	if keySeed != "" {
		_, private, err := keystore.FromSeedHex(keySeed)
		return private, err
	}
	if keyDir == "" {
		return nil, fmt.Errorf("--key-dir or --key-seed is required")
	}
	_, private, generated, err := keystore.LoadOrGenerate(keyDir)
	if err != nil {
		return nil, err
	}
	if generated {
		cli.NewCommandLogger().Info("generated new publisher keypair", "key_dir", keyDir)
	}
	return private, nil
}
