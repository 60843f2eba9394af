// Package session manages per-peer encryption sessions and the envelope
// cipher built on them.
//
// Each remote peer gets one Session holding a root key and a chain key,
// created lazily on first send or explicitly via X25519 establishment.
// Envelopes are protected with encrypt-then-MAC: AES-256-CTR for
// confidentiality and HMAC-SHA256 over the ciphertext for integrity. The
// MAC is always verified, in constant time, before decryption is attempted.
//
// Sessions here are deliberately static: there is no ratchet, no key
// rotation, and therefore no forward secrecy. Compromise of a session key
// exposes every message exchanged under it.
package session
