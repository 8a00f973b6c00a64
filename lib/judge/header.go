// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

package judge

import (
	"encoding/binary"
	"errors"
)

// Frame header wire format, little-endian:
//
//	magic(4) | version(1) | frame_id(u32) | payload_length(u32)
const HeaderLen = 13

const (
	// MagicHot marks a record of the hot (offset-addressable) stream.
	MagicHot = "LATN"

	// MagicCold marks a record of the cold (sequentially scanned)
	// stream.
	MagicCold = "RSID"

	// Version is the only supported frame format version.
	Version = 1
)

// Hot records are fixed-size: 13 header bytes plus a 256-byte payload,
// so record n lives at byte offset n*269.
const (
	HotPayloadLen = 256
	HotRecordLen  = HeaderLen + HotPayloadLen
)

// ErrShortHeader is returned when fewer than HeaderLen bytes are
// available to decode.
var ErrShortHeader = errors.New("short frame header")

// Header is one decoded frame header.
type Header struct {
	Magic   [4]byte
	Version uint8
	FrameID uint32
	Length  uint32
}

// EncodeHeader appends the 13-byte wire form of h to dst.
func EncodeHeader(dst []byte, h Header) []byte {
	dst = append(dst, h.Magic[:]...)
	dst = append(dst, h.Version)
	dst = binary.LittleEndian.AppendUint32(dst, h.FrameID)
	dst = binary.LittleEndian.AppendUint32(dst, h.Length)
	return dst
}

// DecodeHeader decodes the first HeaderLen bytes of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	var h Header
	copy(h.Magic[:], b[:4])
	h.Version = b[4]
	h.FrameID = binary.LittleEndian.Uint32(b[5:9])
	h.Length = binary.LittleEndian.Uint32(b[9:13])
	return h, nil
}
