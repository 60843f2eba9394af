package session

import (
	"sync"
	"testing"

	"golang.org/x/crypto/curve25519"

	"github.com/nimbusim/nimbus-node/pkg/crypto"
)

func TestGetOrCreateLazy(t *testing.T) {
	store := NewStore()

	if store.Has("alice") {
		t.Error("Has() = true before first use")
	}

	sess, err := store.GetOrCreate("alice")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if sess.ID == "" {
		t.Error("session ID is empty")
	}
	if sess.RootKey == ([KeySize]byte{}) {
		t.Error("root key is zero")
	}
	if sess.ChainKey == ([KeySize]byte{}) {
		t.Error("chain key is zero")
	}
	if sess.RootKey == sess.ChainKey {
		t.Error("root key equals chain key")
	}
	if sess.MessageCounter != 0 {
		t.Errorf("MessageCounter = %d, want 0", sess.MessageCounter)
	}
	if sess.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestGetOrCreateCached(t *testing.T) {
	store := NewStore()

	first, err := store.GetOrCreate("bob")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := store.GetOrCreate("bob")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if first.ID != second.ID || first.RootKey != second.RootKey {
		t.Error("repeated GetOrCreate() returned a different session")
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
}

func TestGetOrCreateDistinctPeers(t *testing.T) {
	store := NewStore()

	a, _ := store.GetOrCreate("alice")
	b, _ := store.GetOrCreate("bob")

	if a.RootKey == b.RootKey {
		t.Error("different peers share a root key")
	}
	if a.ID == b.ID {
		t.Error("different peers share a session id")
	}
}

// TestConcurrentFirstUse verifies that racing first-use callers for one
// peer observe exactly one session, never divergent keys.
func TestConcurrentFirstUse(t *testing.T) {
	store := NewStore()

	const workers = 32
	results := make([]Session, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := store.GetOrCreate("carol")
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
				return
			}
			results[i] = sess
		}(i)
	}
	wg.Wait()

	if store.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", store.Count())
	}
	for i := 1; i < workers; i++ {
		if results[i].RootKey != results[0].RootKey {
			t.Fatal("concurrent first-use produced divergent keys")
		}
	}
}

func TestRemove(t *testing.T) {
	store := NewStore()

	if store.Remove("nobody") {
		t.Error("Remove() = true for unknown peer")
	}

	if _, err := store.GetOrCreate("dave"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if !store.Remove("dave") {
		t.Error("Remove() = false for existing session")
	}
	if store.Has("dave") {
		t.Error("session still present after Remove()")
	}
}

func TestEstablish(t *testing.T) {
	store := NewStore()

	remotePriv, err := crypto.RandomBytes(curve25519.ScalarSize)
	if err != nil {
		t.Fatalf("RandomBytes() error = %v", err)
	}
	remotePubSlice, err := curve25519.X25519(remotePriv, curve25519.Basepoint)
	if err != nil {
		t.Fatalf("X25519() error = %v", err)
	}
	var remotePub [32]byte
	copy(remotePub[:], remotePubSlice)

	localPub, err := store.Establish("bob", remotePub)
	if err != nil {
		t.Fatalf("Establish() error = %v", err)
	}
	if localPub == ([32]byte{}) {
		t.Error("Establish() returned a zero public key")
	}

	sess, ok := store.Info("bob")
	if !ok {
		t.Fatal("no session after Establish()")
	}
	if sess.RootKey == ([KeySize]byte{}) {
		t.Error("Establish() left a zero root key")
	}

	// The remote side derives the same session from X25519(remotePriv,
	// localPub): check key material matches what Establish stored.
	shared, err := curve25519.X25519(remotePriv, localPub[:])
	if err != nil {
		t.Fatalf("X25519() error = %v", err)
	}
	rootKey, chainKey, err := deriveSessionKeys(shared)
	if err != nil {
		t.Fatalf("deriveSessionKeys() error = %v", err)
	}
	if sess.RootKey != rootKey || sess.ChainKey != chainKey {
		t.Error("remote derivation does not match established session keys")
	}
}

func TestEstablishReplacesSession(t *testing.T) {
	store := NewStore()

	before, err := store.GetOrCreate("eve")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	var remotePub [32]byte
	remotePub[0] = 9
	if _, err := store.Establish("eve", remotePub); err != nil {
		t.Fatalf("Establish() error = %v", err)
	}

	after, ok := store.Info("eve")
	if !ok {
		t.Fatal("session missing after Establish()")
	}
	if before.RootKey == after.RootKey {
		t.Error("Establish() did not replace session keys")
	}
}

func TestInfoReturnsCopy(t *testing.T) {
	store := NewStore()

	sess, err := store.GetOrCreate("frank")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	// Mutating the copy must not affect the stored session
	sess.MessageCounter = 999
	sess.RootKey[0] ^= 0xFF

	stored, _ := store.Info("frank")
	if stored.MessageCounter == 999 {
		t.Error("mutating returned session affected the store")
	}
}
