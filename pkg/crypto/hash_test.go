package crypto

import (
	"bytes"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	data := []byte("nimbus test data")

	h1, err := Hash(data)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	h2, err := Hash(data)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if len(h1) != 32 {
		t.Errorf("Hash() length = %d, want 32", len(h1))
	}
	if !bytes.Equal(h1, h2) {
		t.Error("Hash() not deterministic")
	}
}

func TestHashDistinct(t *testing.T) {
	h1, _ := Hash([]byte("input one"))
	h2, _ := Hash([]byte("input two"))

	if bytes.Equal(h1, h2) {
		t.Error("distinct inputs produced identical hashes")
	}
}

func TestHashString(t *testing.T) {
	s, err := HashString([]byte("abc"))
	if err != nil {
		t.Fatalf("HashString() error = %v", err)
	}
	if len(s) != 64 {
		t.Errorf("HashString() length = %d, want 64", len(s))
	}
}

func TestRandomBytes(t *testing.T) {
	b1, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes() error = %v", err)
	}
	b2, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes() error = %v", err)
	}

	if len(b1) != 32 {
		t.Errorf("RandomBytes() length = %d, want 32", len(b1))
	}
	if bytes.Equal(b1, b2) {
		t.Error("RandomBytes() returned identical buffers")
	}
}

func TestVerifyHash(t *testing.T) {
	data := []byte("verify me")
	h, err := Hash(data)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	ok, err := VerifyHash(data, h)
	if err != nil {
		t.Fatalf("VerifyHash() error = %v", err)
	}
	if !ok {
		t.Error("VerifyHash() = false for matching hash")
	}

	h[0] ^= 0x01
	ok, err = VerifyHash(data, h)
	if err != nil {
		t.Fatalf("VerifyHash() error = %v", err)
	}
	if ok {
		t.Error("VerifyHash() = true for corrupted hash")
	}
}
