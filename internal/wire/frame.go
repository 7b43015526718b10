// Package wire encodes weight records for the station-to-gateway link.
//
// Frame v1 (42 bytes, no padding, no multi-byte integers):
// [0] version 0x01, [1] kind, [2:22] tag id, [22:42] payload.
// Text fields are ASCII, NUL-padded, at most 19 characters so the last byte
// of each field is always NUL.
package wire

import (
	"bytes"
	"errors"
	"fmt"

	"rubberweigh/shared/types"
)

const (
	Version1 = 0x01

	fieldLen   = 20
	maxTextLen = fieldLen - 1

	offsetVersion = 0
	offsetKind    = 1
	offsetTagID   = 2
	offsetPayload = offsetTagID + fieldLen

	FrameLen = offsetPayload + fieldLen
)

var (
	ErrBadFrame     = errors.New("bad frame")
	ErrFieldTooLong = errors.New("field too long")
)

// Encode returns the v1 frame for rec.
func Encode(rec types.WeightRecord) ([]byte, error) {
	if !rec.Kind.Valid() {
		return nil, fmt.Errorf("encode: invalid kind %d", uint8(rec.Kind))
	}
	if len(rec.TagID) > maxTextLen {
		return nil, fmt.Errorf("encode tag id %q: %w", rec.TagID, ErrFieldTooLong)
	}
	if len(rec.Payload) > maxTextLen {
		return nil, fmt.Errorf("encode payload %q: %w", rec.Payload, ErrFieldTooLong)
	}

	frame := make([]byte, FrameLen)
	frame[offsetVersion] = Version1
	frame[offsetKind] = byte(rec.Kind)
	copy(frame[offsetTagID:offsetTagID+fieldLen], rec.TagID)
	copy(frame[offsetPayload:offsetPayload+fieldLen], rec.Payload)
	return frame, nil
}

// Decode parses a v1 frame. Frames of any other length or version are rejected.
func Decode(frame []byte) (types.WeightRecord, error) {
	if len(frame) != FrameLen {
		return types.WeightRecord{}, fmt.Errorf("%w: length %d, want %d", ErrBadFrame, len(frame), FrameLen)
	}
	if frame[offsetVersion] != Version1 {
		return types.WeightRecord{}, fmt.Errorf("%w: unsupported version 0x%02X", ErrBadFrame, frame[offsetVersion])
	}
	kind := types.Kind(frame[offsetKind])
	if !kind.Valid() {
		return types.WeightRecord{}, fmt.Errorf("%w: unknown kind %d", ErrBadFrame, frame[offsetKind])
	}

	tagID, err := text(frame[offsetTagID : offsetTagID+fieldLen])
	if err != nil {
		return types.WeightRecord{}, fmt.Errorf("tag id: %w", err)
	}
	payload, err := text(frame[offsetPayload : offsetPayload+fieldLen])
	if err != nil {
		return types.WeightRecord{}, fmt.Errorf("payload: %w", err)
	}

	return types.WeightRecord{TagID: tagID, Payload: payload, Kind: kind}, nil
}

func text(field []byte) (string, error) {
	n := bytes.IndexByte(field, 0)
	if n < 0 {
		return "", fmt.Errorf("%w: field not NUL-terminated", ErrBadFrame)
	}
	return string(field[:n]), nil
}
