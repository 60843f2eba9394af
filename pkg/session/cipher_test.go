package session

import (
	"bytes"
	"errors"
	"testing"

	"github.com/nimbusim/nimbus-node/pkg/protocol"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"short text", []byte("hi")},
		{"empty", []byte{}},
		{"binary", []byte{0x00, 0xFF, 0x10, 0x80, 0x7F}},
		{"large", bytes.Repeat([]byte("nimbus"), 4096)},
	}

	store := NewStore()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := store.Encrypt("alice", tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}

			if env.Peer != "alice" {
				t.Errorf("envelope peer = %q, want %q", env.Peer, "alice")
			}
			if len(tt.plaintext) > 0 && bytes.Equal(env.Ciphertext, tt.plaintext) {
				t.Error("ciphertext equals plaintext")
			}

			got, err := store.Decrypt("alice", env)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Errorf("Decrypt() = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestEncryptIncrementsCounter(t *testing.T) {
	store := NewStore()

	for i := 1; i <= 3; i++ {
		if _, err := store.Encrypt("bob", []byte("msg")); err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		sess, _ := store.Info("bob")
		if sess.MessageCounter != uint64(i) {
			t.Errorf("MessageCounter = %d after %d sends", sess.MessageCounter, i)
		}
	}
}

func TestEncryptFreshIV(t *testing.T) {
	store := NewStore()

	env1, err := store.Encrypt("carol", []byte("same plaintext"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	env2, err := store.Encrypt("carol", []byte("same plaintext"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if env1.IV == env2.IV {
		t.Error("IV reused across envelopes")
	}
	if bytes.Equal(env1.Ciphertext, env2.Ciphertext) {
		t.Error("identical ciphertext for identical plaintext under fresh IVs")
	}
}

func TestDecryptUnknownSession(t *testing.T) {
	sender := NewStore()
	receiver := NewStore()

	env, err := sender.Encrypt("peer-x", []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// The receiver never established a session with peer-x
	_, err = receiver.Decrypt("peer-x", env)
	if !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Decrypt() error = %v, want %v", err, ErrUnknownSession)
	}

	// And the failed decrypt must not have created one
	if receiver.Has("peer-x") {
		t.Error("Decrypt() auto-created a session")
	}
}

// TestIntegrityRejection flips every bit of ciphertext and MAC in turn;
// decryption must fail with ErrIntegrity every time, never return wrong
// plaintext.
func TestIntegrityRejection(t *testing.T) {
	store := NewStore()

	env, err := store.Encrypt("dave", []byte("tamper target"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	flip := func(t *testing.T, mutate func(e *protocol.Envelope)) {
		t.Helper()
		tampered := &protocol.Envelope{
			Peer: env.Peer,
			IV:   env.IV,
			MAC:  env.MAC,
		}
		tampered.Ciphertext = append([]byte(nil), env.Ciphertext...)
		mutate(tampered)

		if _, err := store.Decrypt("dave", tampered); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("Decrypt(tampered) error = %v, want %v", err, ErrIntegrity)
		}
	}

	for i := 0; i < len(env.Ciphertext); i++ {
		for bit := 0; bit < 8; bit++ {
			i, bit := i, bit
			flip(t, func(e *protocol.Envelope) { e.Ciphertext[i] ^= 1 << bit })
		}
	}
	for i := 0; i < len(env.MAC); i++ {
		for bit := 0; bit < 8; bit++ {
			i, bit := i, bit
			flip(t, func(e *protocol.Envelope) { e.MAC[i] ^= 1 << bit })
		}
	}
}

func TestIntegrityFailuresTracked(t *testing.T) {
	store := NewStore()

	env, err := store.Encrypt("eve", []byte("count me"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if store.IntegrityFailures("eve") != 0 {
		t.Error("integrity failures nonzero before any tampering")
	}

	tampered := *env
	tampered.MAC[0] ^= 0x01
	for i := 0; i < 3; i++ {
		store.Decrypt("eve", &tampered)
	}

	if got := store.IntegrityFailures("eve"); got != 3 {
		t.Errorf("IntegrityFailures() = %d, want 3", got)
	}
}

func TestEnvelopeRoundTripThroughWire(t *testing.T) {
	store := NewStore()

	env, err := store.Encrypt("frank", []byte("over the wire"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	decoded := &protocol.Envelope{}
	if err := decoded.Decode(env.Encode()); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	got, err := store.Decrypt(decoded.Peer, decoded)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(got) != "over the wire" {
		t.Errorf("Decrypt() = %q, want %q", got, "over the wire")
	}
}
