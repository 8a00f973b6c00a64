// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/axm-foundation/axm/cmd/axm/cli"
	"github.com/axm-foundation/axm/lib/judge"
)

func judgeCommand() *cli.Command {
	var (
		outDir     string
		configPath string
		cborOut    string
	)

	return &cli.Command{
		Name:    "judge",
		Summary: "Judge a capsule's stream logs and emit an evidence table",
		Description: `Judge a capsule directory: verify the hot stream against the event
index by strict offset arithmetic, discover cold-stream records by
sequential scan, and write evidence/streams.parquet.

The evidence table is written even when frames fail; a non-zero exit
code means at least one claimed hot frame did not verify.`,
		Usage: "axm judge <capsule> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("judge", pflag.ContinueOnError)
			flags.StringVar(&outDir, "out", "", "output directory (defaults to <capsule>/evidence)")
			flags.StringVar(&configPath, "config", "", "config file path")
			flags.StringVar(&cborOut, "cbor-out", "", "also write the summary as CBOR to this path")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one capsule directory required")
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			logger := cli.NewCommandLogger().With("command", "judge")
			result, err := judge.Run(judge.Options{
				CapsuleDir:      args[0],
				OutDir:          outDir,
				MaxPayloadBytes: cfg.Limits.MaxStreamPayloadBytes,
			})
			if err != nil {
				return err
			}

			logger.Info("evidence table written",
				"path", result.OutPath,
				"rows", len(result.Rows),
				"failed_frames", result.FailedFrames)

			summary := struct {
				OutPath      string `json:"out_path"`
				Rows         int    `json:"rows"`
				FailedFrames int    `json:"failed_frames"`
			}{result.OutPath, len(result.Rows), result.FailedFrames}
			if cborOut != "" {
				if err := cli.WriteCBOR(cborOut, summary); err != nil {
					return err
				}
			}
			if err := cli.WriteJSON(summary); err != nil {
				return err
			}
			if result.FailedFrames > 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
