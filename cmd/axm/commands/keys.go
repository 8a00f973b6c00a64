// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/axm-foundation/axm/cmd/axm/cli"
	"github.com/axm-foundation/axm/lib/keystore"
)

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:    "keys",
		Summary: "Manage publisher signing keys",
		Subcommands: []*cli.Command{
			keysGenCommand(),
			keysSealCommand(),
			keysUnsealCommand(),
		},
	}
}

func keysGenCommand() *cli.Command {
	var keyDir string

	return &cli.Command{
		Name:    "gen",
		Summary: "Generate a publisher Ed25519 keypair",
		Usage:   "axm keys gen --key-dir <dir>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("gen", pflag.ContinueOnError)
			flags.StringVar(&keyDir, "key-dir", "", "key directory")
			return flags
		},
		Run: func(args []string) error {
			if keyDir == "" {
				return fmt.Errorf("--key-dir is required")
			}
			public, private, err := keystore.Generate()
			if err != nil {
				return err
			}
			if err := keystore.Save(keyDir, public, private); err != nil {
				return err
			}
			return cli.WriteJSON(struct {
				KeyDir    string `json:"key_dir"`
				PublicKey string `json:"public_key"`
			}{keyDir, hex.EncodeToString(public)})
		},
	}
}

func keysSealCommand() *cli.Command {
	var (
		keyDir     string
		passphrase string
	)

	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt the private key to a passphrase",
		Usage:   "axm keys seal --key-dir <dir> --passphrase <phrase>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			flags.StringVar(&keyDir, "key-dir", "", "key directory")
			flags.StringVar(&passphrase, "passphrase", "", "sealing passphrase")
			return flags
		},
		Run: func(args []string) error {
			if keyDir == "" || passphrase == "" {
				return fmt.Errorf("--key-dir and --passphrase are required")
			}
			_, private, err := keystore.Load(keyDir)
			if err != nil {
				return err
			}
			if err := keystore.SealPrivateKey(keyDir, private, passphrase); err != nil {
				return err
			}
			fmt.Println("sealed")
			return nil
		},
	}
}

func keysUnsealCommand() *cli.Command {
	var (
		keyDir     string
		passphrase string
	)

	return &cli.Command{
		Name:    "unseal",
		Summary: "Restore the plaintext private key from the sealed copy",
		Usage:   "axm keys unseal --key-dir <dir> --passphrase <phrase>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("unseal", pflag.ContinueOnError)
			flags.StringVar(&keyDir, "key-dir", "", "key directory")
			flags.StringVar(&passphrase, "passphrase", "", "sealing passphrase")
			return flags
		},
		Run: func(args []string) error {
			if keyDir == "" || passphrase == "" {
				return fmt.Errorf("--key-dir and --passphrase are required")
			}
			private, err := keystore.OpenSealedPrivateKey(keyDir, passphrase)
			if err != nil {
				return err
			}
			if err := keystore.Save(keyDir, private.Public().(ed25519.PublicKey), private); err != nil {
				return err
			}
			fmt.Println("unsealed")
			return nil
		},
	}
}
