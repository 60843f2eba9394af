package protocol

import (
	"encoding/binary"
	"errors"
)

var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrMalformedFrame  = errors.New("malformed frame")
)

// Wire format constants
const (
	// LengthPrefixSize is the size of the big-endian length prefix.
	// The prefix counts the frame header plus payload, not itself.
	LengthPrefixSize = 2

	// FrameHeaderSize is type (1) + id (4) + timestamp (4)
	FrameHeaderSize = 9

	// MaxPayloadSize is the largest payload the 2-byte length prefix can carry
	MaxPayloadSize = 65535 - FrameHeaderSize

	// MaxFrameSize is the sanity cap on a declared frame. Anything larger
	// means the stream position cannot be trusted.
	MaxFrameSize = 16 << 20
)

// Frame represents one length-prefixed typed unit exchanged over a connection
type Frame struct {
	Type      uint8  // Frame type code
	ID        uint32 // Correlation id, unique per sender per connection generation
	Timestamp uint32 // Unix seconds
	Payload   []byte
}

// NewFrame creates a frame with a random id and the current timestamp
func NewFrame(frameType uint8, payload []byte) *Frame {
	return &Frame{
		Type:      frameType,
		ID:        GenerateFrameID(),
		Timestamp: NowUnix(),
		Payload:   payload,
	}
}

// EncodeFrame encodes a frame to its wire representation:
//
//	offset 0   length prefix   u16  (= 9 + len(payload))
//	offset 2   type            u8
//	offset 3   id              u32
//	offset 7   timestamp       u32
//	offset 11  payload
//
// All integers are big-endian. Payloads larger than MaxPayloadSize are
// rejected here rather than truncated.
func EncodeFrame(f *Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	buf := make([]byte, LengthPrefixSize+FrameHeaderSize+len(f.Payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(FrameHeaderSize+len(f.Payload)))
	buf[2] = f.Type
	binary.BigEndian.PutUint32(buf[3:7], f.ID)
	binary.BigEndian.PutUint32(buf[7:11], f.Timestamp)
	copy(buf[11:], f.Payload)

	return buf, nil
}

// DecodeFrame attempts to extract one frame from the front of buf.
// It returns the decoded frame and the number of bytes consumed.
// When buf does not yet hold a complete frame it returns (nil, 0, nil);
// the caller keeps the bytes and retries after the next read.
// A declared length smaller than the frame header or beyond MaxFrameSize
// returns ErrMalformedFrame: the stream cannot be resynchronized.
func DecodeFrame(buf []byte) (*Frame, int, error) {
	if len(buf) < LengthPrefixSize {
		return nil, 0, nil
	}

	declared := int(binary.BigEndian.Uint16(buf[0:2]))
	if declared < FrameHeaderSize || declared > MaxFrameSize {
		return nil, 0, ErrMalformedFrame
	}

	total := LengthPrefixSize + declared
	if len(buf) < total {
		return nil, 0, nil
	}

	f := &Frame{
		Type:      buf[2],
		ID:        binary.BigEndian.Uint32(buf[3:7]),
		Timestamp: binary.BigEndian.Uint32(buf[7:11]),
		Payload:   make([]byte, declared-FrameHeaderSize),
	}
	copy(f.Payload, buf[LengthPrefixSize+FrameHeaderSize:total])

	return f, total, nil
}
