package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KDF info strings
const (
	kdfSessionInfo = "Nimbus Session Keys"
)

// deriveSessionKeys derives the root key and chain key from a shared secret
// (or random stand-in material) using HKDF-SHA256
func deriveSessionKeys(secret []byte) ([KeySize]byte, [KeySize]byte, error) {
	var rootKey, chainKey [KeySize]byte

	kdf := hkdf.New(sha256.New, secret, nil, []byte(kdfSessionInfo))

	output := make([]byte, 2*KeySize)
	if _, err := io.ReadFull(kdf, output); err != nil {
		return rootKey, chainKey, err
	}

	copy(rootKey[:], output[0:KeySize])
	copy(chainKey[:], output[KeySize:])

	return rootKey, chainKey, nil
}

// deriveMessageKeys derives the encryption key and MAC key from the chain
// key. Both sides hold the same chain key, so both derive the same pair:
//
//	encryption key = HMAC-SHA256(chainKey, 0x01)
//	MAC key        = HMAC-SHA256(chainKey, 0x02)
func deriveMessageKeys(chainKey [KeySize]byte) ([KeySize]byte, [KeySize]byte) {
	var encKey, macKey [KeySize]byte

	mac := hmac.New(sha256.New, chainKey[:])
	mac.Write([]byte{0x01})
	copy(encKey[:], mac.Sum(nil))

	mac = hmac.New(sha256.New, chainKey[:])
	mac.Write([]byte{0x02})
	copy(macKey[:], mac.Sum(nil))

	return encKey, macKey
}
