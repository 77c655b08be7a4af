// Package verify implements streaming verification: a tee-reader that
// hashes bytes as they pass through, so a fetch that writes bytes in order
// can check its digest without a second pass over the downloaded file.
package verify

import (
	"crypto/sha256"
	"hash"

	"github.com/zeebo/blake3"
)

// Hasher is the capability a streaming digest must provide. hash.Hash's
// Sum takes an append argument, so NewHasher wraps stdlib hashers and
// third-party ones like zeebo/blake3 in hashAdapter to satisfy it.
type Hasher interface {
	Write(p []byte) (int, error)
	Sum() []byte
}

// hashAdapter wraps any hash.Hash so its Sum(nil) reads as our no-arg Sum.
type hashAdapter struct {
	hash.Hash
}

func (h hashAdapter) Sum() []byte {
	return h.Hash.Sum(nil)
}

// Algorithm names a supported digest algorithm.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	Blake3 Algorithm = "blake3"
)

// NewHasher builds a fresh Hasher for the requested algorithm.
func NewHasher(alg Algorithm) (Hasher, error) {
	switch alg {
	case SHA256:
		return hashAdapter{sha256.New()}, nil
	case Blake3:
		return hashAdapter{blake3.New()}, nil
	default:
		return nil, &UnsupportedAlgorithmError{Algorithm: alg}
	}
}

// UnsupportedAlgorithmError is returned by NewHasher for an unrecognized
// Algorithm value.
type UnsupportedAlgorithmError struct {
	Algorithm Algorithm
}

func (e *UnsupportedAlgorithmError) Error() string {
	return "unsupported hash algorithm: " + string(e.Algorithm)
}
