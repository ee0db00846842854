package hashutil

import (
	"bytes"
	"strings"
	"testing"
)

func TestBlake3ReaderMatchesBlake3Hash(t *testing.T) {
	data := []byte("group1-shard1of3.bin contents")

	got, err := Blake3Reader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Blake3Reader returned error: %v", err)
	}

	if want := Blake3Hash(data); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestSha3256Hash(t *testing.T) {
	// sha3-256 of the empty string
	want := "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"
	if got := Sha3256Hash(nil); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestEqualHex(t *testing.T) {
	digest := Sha3256Hash([]byte("key"))

	if !EqualHex(digest, strings.ToUpper(digest)) {
		t.Error("expected digests to compare equal regardless of case")
	}

	if EqualHex(digest, Sha3256Hash([]byte("other"))) {
		t.Error("expected different digests to differ")
	}
}
