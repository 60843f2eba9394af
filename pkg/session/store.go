package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/curve25519"

	"github.com/nimbusim/nimbus-node/pkg/crypto"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrIntegrity      = errors.New("envelope integrity check failed")
)

// KeySize is the length of root and chain keys
const KeySize = 32

// Session holds the symmetric key material for one peer. Sessions are owned
// exclusively by a Store; callers only ever see value copies.
type Session struct {
	ID             string
	RootKey        [KeySize]byte
	ChainKey       [KeySize]byte
	MessageCounter uint64
	CreatedAt      time.Time
}

// Store creates, caches, and looks up one session per peer identifier.
// Sessions never expire; they are removed only by explicit Remove.
//
// The session model is not forward-secret: keys are fixed for the lifetime
// of the session, with no ratchet and no rotation.
type Store struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	integrityFailures map[string]uint64
}

// NewStore creates an empty session store
func NewStore() *Store {
	return &Store{
		sessions:          make(map[string]*Session),
		integrityFailures: make(map[string]uint64),
	}
}

// GetOrCreate returns a copy of the cached session for peer, creating one
// from fresh random material on first use. Concurrent first-use for the
// same peer yields exactly one session.
func (s *Store) GetOrCreate(peer string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getOrCreateLocked(peer)
	if err != nil {
		return Session{}, err
	}
	return *sess, nil
}

// getOrCreateLocked performs the lazy create. Callers hold s.mu.
func (s *Store) getOrCreateLocked(peer string) (*Session, error) {
	if sess, ok := s.sessions[peer]; ok {
		return sess, nil
	}

	// Simplified key agreement stand-in: no exchange has happened, so the
	// keys come from fresh random material. Establish replaces them when
	// a remote public key is available.
	secret, err := crypto.RandomBytes(KeySize)
	if err != nil {
		return nil, fmt.Errorf("session secret: %w", err)
	}

	sess, err := newSession(peer, secret)
	if err != nil {
		return nil, err
	}
	s.sessions[peer] = sess
	return sess, nil
}

// Establish creates (or replaces) the session for peer by performing an
// X25519 exchange against the peer's public key with a fresh ephemeral key.
// It returns our ephemeral public key so the caller can transmit it; the
// peer derives the same session by running Establish against it.
func (s *Store) Establish(peer string, remotePublic [32]byte) ([32]byte, error) {
	var localPublic [32]byte

	private, err := crypto.RandomBytes(curve25519.ScalarSize)
	if err != nil {
		return localPublic, fmt.Errorf("ephemeral key: %w", err)
	}

	public, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return localPublic, fmt.Errorf("ephemeral public key: %w", err)
	}
	copy(localPublic[:], public)

	shared, err := curve25519.X25519(private, remotePublic[:])
	if err != nil {
		return localPublic, fmt.Errorf("X25519: %w", err)
	}

	sess, err := newSession(peer, shared)
	if err != nil {
		return localPublic, err
	}

	s.mu.Lock()
	s.sessions[peer] = sess
	s.mu.Unlock()

	return localPublic, nil
}

// newSession derives root and chain keys from secret and assigns an id
func newSession(peer string, secret []byte) (*Session, error) {
	rootKey, chainKey, err := deriveSessionKeys(secret)
	if err != nil {
		return nil, fmt.Errorf("derive session keys: %w", err)
	}

	id, err := crypto.HashString(append([]byte(peer), rootKey[:]...))
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}

	return &Session{
		ID:        id[:32],
		RootKey:   rootKey,
		ChainKey:  chainKey,
		CreatedAt: time.Now(),
	}, nil
}

// Info returns a copy of the session for peer, if one exists
func (s *Store) Info(peer string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[peer]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Has reports whether a session exists for peer
func (s *Store) Has(peer string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[peer]
	return ok
}

// Remove destroys the session for peer. Returns false if none existed.
func (s *Store) Remove(peer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[peer]; !ok {
		return false
	}
	delete(s.sessions, peer)
	delete(s.integrityFailures, peer)
	return true
}

// Peers returns the identifiers of all cached sessions
func (s *Store) Peers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peers := make([]string, 0, len(s.sessions))
	for peer := range s.sessions {
		peers = append(peers, peer)
	}
	return peers
}

// Count returns the number of cached sessions
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IntegrityFailures returns how many MAC verification failures have been
// recorded for peer. Repeated failures suggest tampering or key desync.
func (s *Store) IntegrityFailures(peer string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.integrityFailures[peer]
}

func (s *Store) recordIntegrityFailure(peer string) {
	s.mu.Lock()
	s.integrityFailures[peer]++
	s.mu.Unlock()
}
