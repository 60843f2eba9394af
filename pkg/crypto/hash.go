// Package crypto provides the hashing and random-material helpers shared
// by the session and storage layers.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hash generates a BLAKE2b-256 hash
func Hash(data []byte) ([]byte, error) {
	hash, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}

	hash.Write(data)
	return hash.Sum(nil), nil
}

// HashString generates a BLAKE2b hash and returns hex string
func HashString(data []byte) (string, error) {
	hash, err := Hash(data)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hash), nil
}

// RandomBytes returns n bytes from the system CSPRNG
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return buf, nil
}

// VerifyHash verifies a hash matches the data in constant time
func VerifyHash(data []byte, expectedHash []byte) (bool, error) {
	actualHash, err := Hash(data)
	if err != nil {
		return false, err
	}

	if len(actualHash) != len(expectedHash) {
		return false, nil
	}

	return subtle.ConstantTimeCompare(actualHash, expectedHash) == 1, nil
}
