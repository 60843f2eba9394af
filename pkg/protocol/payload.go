package protocol

import (
	"encoding/binary"
	"fmt"
)

// ===== TEXT MESSAGE =====

// TextMessage represents a 1-to-1 chat message payload
type TextMessage struct {
	From      string // Sender peer identifier
	To        string // Recipient peer identifier
	Timestamp uint64 // Unix timestamp (ms)
	Content   []byte
}

// Encode encodes text message to bytes
func (m *TextMessage) Encode() []byte {
	size := 2 + len(m.From) + 2 + len(m.To) + 8 + 4 + len(m.Content)
	buf := make([]byte, size)
	offset := 0

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(m.From)))
	offset += 2

	copy(buf[offset:], m.From)
	offset += len(m.From)

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(m.To)))
	offset += 2

	copy(buf[offset:], m.To)
	offset += len(m.To)

	binary.BigEndian.PutUint64(buf[offset:], m.Timestamp)
	offset += 8

	binary.BigEndian.PutUint32(buf[offset:], uint32(len(m.Content)))
	offset += 4

	copy(buf[offset:], m.Content)

	return buf
}

// Decode decodes text message from bytes
func (m *TextMessage) Decode(buf []byte) error {
	offset := 0

	from, n, err := decodeString16(buf, offset)
	if err != nil {
		return fmt.Errorf("text message from: %w", err)
	}
	m.From = from
	offset = n

	to, n, err := decodeString16(buf, offset)
	if err != nil {
		return fmt.Errorf("text message to: %w", err)
	}
	m.To = to
	offset = n

	if len(buf) < offset+12 {
		return fmt.Errorf("buffer too short for text message")
	}

	m.Timestamp = binary.BigEndian.Uint64(buf[offset:])
	offset += 8

	contentLen := int(binary.BigEndian.Uint32(buf[offset:]))
	offset += 4

	if len(buf) < offset+contentLen {
		return fmt.Errorf("buffer too short for text message content")
	}

	m.Content = make([]byte, contentLen)
	copy(m.Content, buf[offset:offset+contentLen])

	return nil
}

// ===== PRESENCE =====

// Presence represents a peer's online/offline status payload
type Presence struct {
	Peer      string // Peer whose status changed
	Status    uint8  // PresenceOffline, PresenceOnline, PresenceAway, PresenceBusy
	LastSeen  uint64 // Last seen timestamp (Unix ms)
	Timestamp uint64 // Update timestamp (Unix ms)
}

// Encode encodes presence to bytes
func (p *Presence) Encode() []byte {
	buf := make([]byte, 2+len(p.Peer)+1+8+8)
	offset := 0

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(p.Peer)))
	offset += 2

	copy(buf[offset:], p.Peer)
	offset += len(p.Peer)

	buf[offset] = p.Status
	offset++

	binary.BigEndian.PutUint64(buf[offset:], p.LastSeen)
	offset += 8

	binary.BigEndian.PutUint64(buf[offset:], p.Timestamp)

	return buf
}

// Decode decodes presence from bytes
func (p *Presence) Decode(buf []byte) error {
	peer, offset, err := decodeString16(buf, 0)
	if err != nil {
		return fmt.Errorf("presence peer: %w", err)
	}
	p.Peer = peer

	if len(buf) < offset+17 {
		return fmt.Errorf("buffer too short for presence")
	}

	p.Status = buf[offset]
	offset++

	p.LastSeen = binary.BigEndian.Uint64(buf[offset:])
	offset += 8

	p.Timestamp = binary.BigEndian.Uint64(buf[offset:])

	return nil
}

// ===== TYPING INDICATOR =====

// TypingIndicator represents typing status
type TypingIndicator struct {
	From      string
	To        string
	Timestamp uint64 // Unix timestamp (ms)
	IsTyping  bool
}

// Encode encodes typing indicator to bytes
func (t *TypingIndicator) Encode() []byte {
	buf := make([]byte, 2+len(t.From)+2+len(t.To)+8+1)
	offset := 0

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(t.From)))
	offset += 2

	copy(buf[offset:], t.From)
	offset += len(t.From)

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(t.To)))
	offset += 2

	copy(buf[offset:], t.To)
	offset += len(t.To)

	binary.BigEndian.PutUint64(buf[offset:], t.Timestamp)
	offset += 8

	if t.IsTyping {
		buf[offset] = 1
	}

	return buf
}

// Decode decodes typing indicator from bytes
func (t *TypingIndicator) Decode(buf []byte) error {
	from, offset, err := decodeString16(buf, 0)
	if err != nil {
		return fmt.Errorf("typing indicator from: %w", err)
	}
	t.From = from

	to, offset, err := decodeString16(buf, offset)
	if err != nil {
		return fmt.Errorf("typing indicator to: %w", err)
	}
	t.To = to

	if len(buf) < offset+9 {
		return fmt.Errorf("buffer too short for typing indicator")
	}

	t.Timestamp = binary.BigEndian.Uint64(buf[offset:])
	offset += 8

	t.IsTyping = buf[offset] == 1

	return nil
}

// ===== RECEIPT =====

// Receipt acknowledges delivery or reading of a message. The same payload
// rides on both TypeReadReceipt and TypeDeliveryReceipt frames.
type Receipt struct {
	From      string
	To        string
	FrameID   uint32 // ID of the frame being acknowledged
	Timestamp uint64 // Unix timestamp (ms)
	Status    uint8  // ReceiptDelivered or ReceiptRead
}

// Encode encodes receipt to bytes
func (r *Receipt) Encode() []byte {
	buf := make([]byte, 2+len(r.From)+2+len(r.To)+4+8+1)
	offset := 0

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(r.From)))
	offset += 2

	copy(buf[offset:], r.From)
	offset += len(r.From)

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(r.To)))
	offset += 2

	copy(buf[offset:], r.To)
	offset += len(r.To)

	binary.BigEndian.PutUint32(buf[offset:], r.FrameID)
	offset += 4

	binary.BigEndian.PutUint64(buf[offset:], r.Timestamp)
	offset += 8

	buf[offset] = r.Status

	return buf
}

// Decode decodes receipt from bytes
func (r *Receipt) Decode(buf []byte) error {
	from, offset, err := decodeString16(buf, 0)
	if err != nil {
		return fmt.Errorf("receipt from: %w", err)
	}
	r.From = from

	to, offset, err := decodeString16(buf, offset)
	if err != nil {
		return fmt.Errorf("receipt to: %w", err)
	}
	r.To = to

	if len(buf) < offset+13 {
		return fmt.Errorf("buffer too short for receipt")
	}

	r.FrameID = binary.BigEndian.Uint32(buf[offset:])
	offset += 4

	r.Timestamp = binary.BigEndian.Uint64(buf[offset:])
	offset += 8

	r.Status = buf[offset]

	return nil
}

// decodeString16 reads a u16 length-prefixed string at offset and returns
// the string and the offset past it
func decodeString16(buf []byte, offset int) (string, int, error) {
	if len(buf) < offset+2 {
		return "", 0, fmt.Errorf("buffer too short for string length")
	}
	strLen := int(binary.BigEndian.Uint16(buf[offset:]))
	offset += 2
	if len(buf) < offset+strLen {
		return "", 0, fmt.Errorf("buffer too short for string")
	}
	return string(buf[offset : offset+strLen]), offset + strLen, nil
}
