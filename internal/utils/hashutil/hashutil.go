package hashutil

import (
	"crypto/subtle"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

func Blake3Hash(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Blake3Reader hashes everything read from r without buffering it.
func Blake3Reader(r io.Reader) (string, error) {
	hasher := blake3.New(32, nil)
	if _, err := io.Copy(hasher, r); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func Sha3256Hash(data []byte) string {
	hash := sha3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// EqualHex compares two hex digests case-insensitively in constant time.
func EqualHex(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
