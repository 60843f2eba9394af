package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/nimbusim/nimbus-node/pkg/crypto"
	"github.com/nimbusim/nimbus-node/pkg/protocol"
)

// Encrypt encrypts plaintext for peer inside an authenticated envelope,
// creating a session on first use. The construction is encrypt-then-MAC:
// AES-256-CTR under the derived encryption key, HMAC-SHA256 over the
// ciphertext under the derived MAC key.
func (s *Store) Encrypt(peer string, plaintext []byte) (*protocol.Envelope, error) {
	s.mu.Lock()
	sess, err := s.getOrCreateLocked(peer)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	chainKey := sess.ChainKey
	sess.MessageCounter++
	s.mu.Unlock()

	iv, err := crypto.RandomBytes(protocol.IVSize)
	if err != nil {
		return nil, fmt.Errorf("envelope iv: %w", err)
	}

	encKey, macKey := deriveMessageKeys(chainKey)

	env := &protocol.Envelope{Peer: peer}
	copy(env.IV[:], iv)

	env.Ciphertext = make([]byte, len(plaintext))
	ctr, err := newCTR(encKey, env.IV)
	if err != nil {
		return nil, err
	}
	ctr.XORKeyStream(env.Ciphertext, plaintext)

	copy(env.MAC[:], computeMAC(macKey, env.Ciphertext))

	return env, nil
}

// Decrypt verifies and decrypts an envelope from peer. A missing session is
// ErrUnknownSession: sessions are never auto-created on receive, since a
// valid envelope implies the peer already completed agreement. The MAC is
// checked in constant time before any decryption; a mismatch is ErrIntegrity
// and the envelope is discarded undecrypted.
func (s *Store) Decrypt(peer string, env *protocol.Envelope) ([]byte, error) {
	s.mu.RLock()
	sess, ok := s.sessions[peer]
	var chainKey [KeySize]byte
	if ok {
		chainKey = sess.ChainKey
	}
	s.mu.RUnlock()

	if !ok {
		return nil, ErrUnknownSession
	}

	encKey, macKey := deriveMessageKeys(chainKey)

	if !hmac.Equal(env.MAC[:], computeMAC(macKey, env.Ciphertext)) {
		s.recordIntegrityFailure(peer)
		return nil, ErrIntegrity
	}

	plaintext := make([]byte, len(env.Ciphertext))
	ctr, err := newCTR(encKey, env.IV)
	if err != nil {
		return nil, err
	}
	ctr.XORKeyStream(plaintext, env.Ciphertext)

	return plaintext, nil
}

func newCTR(key [KeySize]byte, iv [protocol.IVSize]byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	return cipher.NewCTR(block, iv[:]), nil
}

func computeMAC(key [KeySize]byte, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, key[:])
	mac.Write(ciphertext)
	return mac.Sum(nil)
}
