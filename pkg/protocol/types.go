package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Frame type codes
const (
	TypeText            uint8 = 0x01
	TypeMedia           uint8 = 0x02
	TypeGroup           uint8 = 0x03
	TypePresence        uint8 = 0x04
	TypeTyping          uint8 = 0x05
	TypeReadReceipt     uint8 = 0x06
	TypeDeliveryReceipt uint8 = 0x07
	TypeHeartbeat       uint8 = 0x08
	TypeSync            uint8 = 0x09
	TypeDeviceNotify    uint8 = 0x0A
	TypeEncrypted       uint8 = 0x0B
)

// Presence status codes
const (
	PresenceOffline uint8 = 0
	PresenceOnline  uint8 = 1
	PresenceAway    uint8 = 2
	PresenceBusy    uint8 = 3
)

// Receipt status codes
const (
	ReceiptDelivered uint8 = 0
	ReceiptRead      uint8 = 1
)

var typeNames = map[uint8]string{
	TypeText:            "text",
	TypeMedia:           "media",
	TypeGroup:           "group",
	TypePresence:        "presence",
	TypeTyping:          "typing",
	TypeReadReceipt:     "read-receipt",
	TypeDeliveryReceipt: "delivery-receipt",
	TypeHeartbeat:       "heartbeat",
	TypeSync:            "sync",
	TypeDeviceNotify:    "device-notification",
	TypeEncrypted:       "encrypted-envelope",
}

// TypeName returns the human-readable name of a frame type code
func TypeName(t uint8) string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// KnownType reports whether t is a defined frame type code
func KnownType(t uint8) bool {
	_, ok := typeNames[t]
	return ok
}

// ===== HELPER FUNCTIONS =====

// GenerateFrameID generates a random 32-bit frame identifier.
// IDs are used for correlation within a single connection generation,
// not for global uniqueness.
func GenerateFrameID() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Fallback: timestamp-based pseudo-random if crypto/rand fails
		return uint32(time.Now().UnixNano() ^ 0xDEADBEEF)
	}
	return binary.BigEndian.Uint32(buf[:])
}

// NowUnix returns the current time in Unix seconds, truncated to 32 bits
// as carried on the wire
func NowUnix() uint32 {
	return uint32(time.Now().Unix())
}
