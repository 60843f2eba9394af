package protocol

import (
	"encoding/binary"
	"fmt"
)

// Envelope sizes
const (
	IVSize  = 16
	MACSize = 32

	// envelopeMinSize: peer length (2) + iv (16) + ciphertext length (4) + mac (32)
	envelopeMinSize = 2 + IVSize + 4 + MACSize
)

// Envelope is the authenticated-encrypted unit carried inside a frame of
// type TypeEncrypted. The MAC covers the ciphertext only and must verify
// before any decryption is attempted.
type Envelope struct {
	Peer       string       // Sender peer identifier
	IV         [IVSize]byte // Random per-message initialization vector
	Ciphertext []byte
	MAC        [MACSize]byte // HMAC-SHA256 over Ciphertext
}

// Encode encodes the envelope to bytes:
//
//	u16 peer length | peer | iv (16) | u32 ciphertext length | ciphertext | mac (32)
func (e *Envelope) Encode() []byte {
	size := 2 + len(e.Peer) + IVSize + 4 + len(e.Ciphertext) + MACSize
	buf := make([]byte, size)
	offset := 0

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(e.Peer)))
	offset += 2

	copy(buf[offset:], e.Peer)
	offset += len(e.Peer)

	copy(buf[offset:], e.IV[:])
	offset += IVSize

	binary.BigEndian.PutUint32(buf[offset:], uint32(len(e.Ciphertext)))
	offset += 4

	copy(buf[offset:], e.Ciphertext)
	offset += len(e.Ciphertext)

	copy(buf[offset:], e.MAC[:])

	return buf
}

// Decode decodes an envelope from bytes
func (e *Envelope) Decode(buf []byte) error {
	if len(buf) < envelopeMinSize {
		return fmt.Errorf("buffer too short for envelope")
	}

	offset := 0

	peerLen := int(binary.BigEndian.Uint16(buf[offset:]))
	offset += 2

	if len(buf) < envelopeMinSize+peerLen {
		return fmt.Errorf("buffer too short for envelope peer")
	}

	e.Peer = string(buf[offset : offset+peerLen])
	offset += peerLen

	copy(e.IV[:], buf[offset:offset+IVSize])
	offset += IVSize

	ctLen := int(binary.BigEndian.Uint32(buf[offset:]))
	offset += 4

	if len(buf) < offset+ctLen+MACSize {
		return fmt.Errorf("buffer too short for envelope ciphertext")
	}

	e.Ciphertext = make([]byte, ctLen)
	copy(e.Ciphertext, buf[offset:offset+ctLen])
	offset += ctLen

	copy(e.MAC[:], buf[offset:offset+MACSize])

	return nil
}
