// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package judge verifies capsule append logs against their event
// index and emits a deterministic evidence table.
//
// The disk is the truth: the hot stream is verified by strict offset
// arithmetic against the event index, and the cold stream is
// discovered by sequential scan. Verification never mutates the
// capsule; a frame that fails becomes a status row, not an abort, so
// one run reports the state of every claimed frame.
package judge

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/axm-foundation/axm/lib/shard"
)

// Capsule-relative file names.
const (
	EventsFile = "events.jsonl"
	HotFile    = "cam_latents.bin"
	ColdFile   = "cam_residuals.bin"
	OutputFile = "streams.parquet"
)

// Stream names in the evidence table.
const (
	StreamHot  = "latents"
	StreamCold = "residuals"
)

// Frame verification statuses.
const (
	StatusVerified    = "VERIFIED"
	StatusOffsetDrift = "OFFSET_DRIFT"
	StatusBadHeader   = "BAD_HEADER"
	StatusFrameDrift  = "FRAME_DRIFT"
	StatusLengthDrift = "LENGTH_DRIFT"
	StatusEOF         = "EOF"
)

var (
	// ErrMissingEvents is returned when the capsule has no event index.
	ErrMissingEvents = errors.New("missing events.jsonl")

	// ErrMissingHotStream is returned when the capsule has no hot
	// stream file. The cold stream is optional; the hot stream is not.
	ErrMissingHotStream = errors.New("missing cam_latents.bin")
)

// Options configures a judge run.
type Options struct {
	// CapsuleDir is the capsule directory.
	CapsuleDir string

	// OutDir receives streams.parquet. Defaults to <capsule>/evidence.
	OutDir string

	// MaxPayloadBytes bounds a single cold-stream payload. A header
	// claiming more is treated as corruption and stops the scan.
	MaxPayloadBytes int64
}

// Result summarizes a judge run.
type Result struct {
	Rows         []shard.StreamRecord `json:"rows"`
	FailedFrames int                  `json:"failed_frames"`
	OutPath      string               `json:"out_path"`
}

// Event is one line of events.jsonl: a frame id and the claimed
// location of its hot-stream record.
type Event struct {
	FrameID    int64 `json:"frame_id"`
	StreamRefs struct {
		Latents struct {
			Offset int64 `json:"offset"`
			Length int64 `json:"length"`
		} `json:"latents"`
	} `json:"stream_refs"`
}

// Run judges the capsule and writes the evidence table. The table is
// written even when frames fail; Result.FailedFrames counts the hot
// frames that did not verify.
func Run(opts Options) (*Result, error) {
	outDir := opts.OutDir
	if outDir == "" {
		outDir = filepath.Join(opts.CapsuleDir, "evidence")
	}

	events, err := loadEvents(filepath.Join(opts.CapsuleDir, EventsFile))
	if err != nil {
		return nil, err
	}

	cold, err := scanCold(filepath.Join(opts.CapsuleDir, ColdFile), opts.MaxPayloadBytes)
	if err != nil {
		return nil, err
	}

	hot, err := os.Open(filepath.Join(opts.CapsuleDir, HotFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrMissingHotStream, opts.CapsuleDir)
		}
		return nil, err
	}
	defer hot.Close()

	result := &Result{}
	for _, event := range events {
		row := verifyHot(hot, event)
		if row.Status != StatusVerified {
			result.FailedFrames++
		}
		result.Rows = append(result.Rows, row)
	}
	result.Rows = append(result.Rows, cold...)

	sort.Slice(result.Rows, func(i, j int) bool {
		a, b := result.Rows[i], result.Rows[j]
		if a.Stream != b.Stream {
			return a.Stream < b.Stream
		}
		if a.FrameID != b.FrameID {
			return a.FrameID < b.FrameID
		}
		return a.Offset < b.Offset
	})

	result.OutPath = filepath.Join(outDir, OutputFile)
	if err := shard.WriteTable(result.OutPath, result.Rows); err != nil {
		return nil, err
	}
	return result, nil
}

// verifyHot checks one claimed hot-stream frame. The claimed offset
// must equal frame_id * HotRecordLen before anything is read; then the
// header on disk must carry the hot magic, the supported version, the
// expected frame id, and a payload length consistent with the claimed
// record length; then the payload must be fully present. Only a fully
// verified record gets a content hash.
func verifyHot(hot *os.File, event Event) shard.StreamRecord {
	row := shard.StreamRecord{
		FrameID: event.FrameID,
		Stream:  StreamHot,
		Offset:  event.StreamRefs.Latents.Offset,
		Length:  event.StreamRefs.Latents.Length,
	}

	if mathOffset := event.FrameID * HotRecordLen; row.Offset != mathOffset {
		row.Status = StatusOffsetDrift
		return row
	}

	headerBytes := make([]byte, HeaderLen)
	if _, err := hot.ReadAt(headerBytes, row.Offset); err != nil {
		row.Status = StatusEOF
		return row
	}
	header, err := DecodeHeader(headerBytes)
	if err != nil || string(header.Magic[:]) != MagicHot || header.Version != Version {
		row.Status = StatusBadHeader
		return row
	}
	if int64(header.FrameID) != event.FrameID {
		row.Status = StatusFrameDrift
		return row
	}
	if int64(header.Length) != row.Length-HeaderLen {
		row.Status = StatusLengthDrift
		return row
	}

	payload := make([]byte, header.Length)
	if _, err := hot.ReadAt(payload, row.Offset+HeaderLen); err != nil {
		row.Status = StatusEOF
		return row
	}

	digest := sha256.New()
	digest.Write(headerBytes)
	digest.Write(payload)
	row.ContentHash = hex.EncodeToString(digest.Sum(nil))
	row.Status = StatusVerified
	return row
}

// scanCold walks the cold stream sequentially, emitting one verified
// row per intact record. The scan stops silently at the first torn
// header, torn payload, wrong magic or version, or oversized payload:
// everything before the damage is evidence, everything after is not
// addressable.
func scanCold(path string, maxPayload int64) ([]shard.StreamRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var rows []shard.StreamRecord
	reader := bufio.NewReader(file)
	offset := int64(0)
	headerBytes := make([]byte, HeaderLen)
	for {
		if _, err := io.ReadFull(reader, headerBytes); err != nil {
			return rows, nil
		}
		header, err := DecodeHeader(headerBytes)
		if err != nil || string(header.Magic[:]) != MagicCold || header.Version != Version {
			return rows, nil
		}
		if int64(header.Length) > maxPayload {
			return rows, nil
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return rows, nil
		}

		digest := sha256.New()
		digest.Write(headerBytes)
		digest.Write(payload)

		rows = append(rows, shard.StreamRecord{
			FrameID:     int64(header.FrameID),
			Stream:      StreamCold,
			Offset:      offset,
			Length:      int64(HeaderLen + header.Length),
			ContentHash: hex.EncodeToString(digest.Sum(nil)),
			Status:      StatusVerified,
		})
		offset += int64(HeaderLen + header.Length)
	}
}

// loadEvents reads the event index. A malformed line fails the run:
// the index is the judge's input contract, not untrusted stream data.
func loadEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrMissingEvents, filepath.Dir(path))
		}
		return nil, err
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(text), &event); err != nil {
			return nil, fmt.Errorf("bad event line %d: %w", line, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	return events, nil
}
