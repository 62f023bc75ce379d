package mintid

import (
	"bytes"
	"testing"
)

func TestFromStringDeterministic(t *testing.T) {
	a, err := FromString("order-42")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := FromString("order-42")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a != b {
		t.Fatalf("same key produced different ids: %s vs %s", a, b)
	}

	c, _ := FromString("order-43")
	if a == c {
		t.Fatalf("distinct keys produced the same id")
	}
}

func TestFromStringKnownDigest(t *testing.T) {
	// keccak256("abc"), pinned so the mapping stays stable across releases.
	id, err := FromString("abc")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	const want = "0x4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45"
	if id.Hex() != want {
		t.Fatalf("digest changed: got %s want %s", id.Hex(), want)
	}
}

func TestFromBytesMatchesFromString(t *testing.T) {
	a, _ := FromString("m1")
	b, _ := FromBytes([]byte("m1"))
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("string and byte derivations differ")
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	if _, err := FromString(""); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := FromBytes(nil); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}
