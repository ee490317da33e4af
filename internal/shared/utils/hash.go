package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
	BLAKE3 HashAlgorithm = "blake3"
)

// IntegrityPrefix prefixes subresource-integrity digests.
const IntegrityPrefix = "sha256-"

// Hasher hashes bytes with a fixed algorithm and hex-encodes the result.
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// DefaultHasher returns a SHA-256 hasher.
func DefaultHasher() *Hasher {
	return NewHasher(SHA256)
}

// Hash computes a hex digest of data.
func (h *Hasher) Hash(data []byte) string {
	switch h.algorithm {
	case BLAKE3:
		sum := blake3.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// HashString computes a hex digest of s.
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashFields hashes fields joined with a delimiter, preserving order.
func (h *Hasher) HashFields(fields ...string) string {
	return h.HashString(strings.Join(fields, "|"))
}

// CacheKey derives the immutable cache key for a resolved module.
func CacheKey(parts ...string) string {
	return NewHasher(BLAKE3).HashFields(parts...)
}

// SHA256Hex returns the hex SHA-256 of data.
func SHA256Hex(data []byte) string {
	return DefaultHasher().Hash(data)
}

// Integrity returns the subresource-integrity digest of data.
func Integrity(data []byte) string {
	sum := sha256.Sum256(data)
	return IntegrityPrefix + base64.StdEncoding.EncodeToString(sum[:])
}

// IntegrityReader streams r into an integrity digest.
func IntegrityReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return IntegrityPrefix + base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
