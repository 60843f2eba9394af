// Package protocol implements the Nimbus wire protocol.
//
// The protocol package defines the frame codec, the encrypted envelope
// format, and the typed message payloads exchanged over a connection.
//
// # Frame Format
//
// Every frame starts with a 2-byte big-endian length prefix counting the
// 9-byte frame header plus payload (never the prefix itself), followed by:
//   - Type (1 byte): frame type code
//   - ID (4 bytes): correlation id, unique per sender per connection generation
//   - Timestamp (4 bytes): Unix seconds
//   - Payload (variable)
//
// The 2-byte prefix limits header+payload to 65535 bytes; larger payloads
// are rejected at the send boundary, never truncated.
//
// # Frame Types
//
//   - 0x01 text, 0x02 media, 0x03 group
//   - 0x04 presence, 0x05 typing
//   - 0x06 read-receipt, 0x07 delivery-receipt
//   - 0x08 heartbeat, 0x09 sync, 0x0A device-notification
//   - 0x0B encrypted-envelope
//
// # Encrypted Envelopes
//
// Frames of type 0x0B carry a serialized Envelope: the sender peer id,
// a random 16-byte IV, the ciphertext, and an HMAC-SHA256 tag over the
// ciphertext. The tag must verify before decryption is attempted; see the
// session package for the cipher itself.
package protocol
