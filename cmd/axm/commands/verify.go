// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"crypto/ed25519"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/axm-foundation/axm/cmd/axm/cli"
	"github.com/axm-foundation/axm/lib/keystore"
	"github.com/axm-foundation/axm/lib/verify"
)

func verifyCommand() *cli.Command {
	var (
		keyPath    string
		trustEmbed bool
		configPath string
		cborOut    string
	)

	return &cli.Command{
		Name:    "verify",
		Summary: "Verify a shard against a trusted publisher key",
		Description: `Verify a shard directory: layout, manifest signature, Merkle
commitment, table schemas, and cross-table referential integrity.

The verdict is printed as JSON. Exit code 0 means PASS; exit code 1
means FAIL with the findings in the verdict. Without --key, the
shard's own embedded publisher key is used only when
--trust-embedded-key is set, which proves internal consistency but
not provenance.`,
		Usage: "axm verify <shard> [flags]",
		Examples: []cli.Example{
			{
				Description: "Verify against an external trusted key",
				Command:     "axm verify shard/ --key keys/publisher.pub",
			},
			{
				Description: "Check internal consistency only",
				Command:     "axm verify shard/ --trust-embedded-key",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flags.StringVar(&keyPath, "key", "", "trusted publisher public key file")
			flags.BoolVar(&trustEmbed, "trust-embedded-key", false, "trust the shard's embedded publisher key")
			flags.StringVar(&configPath, "config", "", "config file path")
			flags.StringVar(&cborOut, "cbor-out", "", "also write the verdict as CBOR to this path")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one shard directory required")
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			var trusted ed25519.PublicKey
			if keyPath != "" {
				trusted, err = keystore.LoadPublicKey(keyPath)
				if err != nil {
					return err
				}
			}

			verdict := verify.Shard(args[0], verify.Options{
				TrustedKey:       trusted,
				TrustEmbeddedKey: trustEmbed,
				Limits:           cfg.Limits,
			})

			if cborOut != "" {
				if err := cli.WriteCBOR(cborOut, verdict); err != nil {
					return err
				}
			}
			if err := cli.WriteJSON(verdict); err != nil {
				return err
			}
			if verdict.Status != "PASS" {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
