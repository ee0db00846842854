package randutil

import "testing"

func TestRandomStringIsUnique(t *testing.T) {
	a, err := RandomString(32)
	if err != nil {
		t.Fatalf("RandomString returned error: %v", err)
	}
	b, err := RandomString(32)
	if err != nil {
		t.Fatalf("RandomString returned error: %v", err)
	}

	if a == b {
		t.Error("expected two random strings to differ")
	}
	// 32 bytes -> 43 base64url characters without padding
	if len(a) != 43 {
		t.Errorf("expected length 43, got %d", len(a))
	}
}

func TestMaskString(t *testing.T) {
	if got := MaskString("abcdefghij", 2, 3); got != "ab*****hij" {
		t.Errorf("unexpected mask: %s", got)
	}
	if got := MaskString("abc", 2, 3); got != "abc" {
		t.Errorf("short strings must be returned as-is, got %s", got)
	}
}
