// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete axm CLI command tree.
package commands

import (
	"fmt"

	"github.com/axm-foundation/axm/cmd/axm/cli"
	"github.com/axm-foundation/axm/lib/config"
	"github.com/axm-foundation/axm/lib/manifest"
)

// Version is the CLI version string. The manifest spec version moves
// independently of this.
const Version = "1.0.0"

// Root builds and returns the complete axm CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "axm",
		Description: `axm: content-addressed knowledge shard tooling.

Compile signed shards from extracted candidates, verify shards
against a trusted publisher key, and judge capsule stream logs.`,
		Subcommands: []*cli.Command{
			compileCommand(),
			verifyCommand(),
			judgeCommand(),
			keysCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ []string) error {
					fmt.Printf("axm %s (manifest spec %s)\n", Version, manifest.SpecVersion)
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Compile a shard from a source text and candidates",
				Command:     "axm compile --source source.txt --candidates candidates.jsonl --out shard/ --key-dir keys/",
			},
			{
				Description: "Verify a shard against a trusted publisher key",
				Command:     "axm verify shard/ --key keys/publisher.pub",
			},
			{
				Description: "Judge a capsule's stream logs",
				Command:     "axm judge capsule/",
			},
		},
	}
}

// loadConfig resolves the effective configuration: an explicit --config
// path wins, otherwise the AXM_CONFIG environment variable, otherwise
// defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
