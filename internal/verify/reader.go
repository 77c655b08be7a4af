package verify

import (
	"bytes"
	"io"

	"github.com/pulith-dev/pulith/internal/perr"
)

// VerifiedReader tees every successful Read into a Hasher, with no
// buffering beyond the caller's own buffer, and checks the final digest
// against an expected value on Finish. The invariant that the digest
// equals the hash of the full byte sequence yielded, regardless of chunk
// boundaries, falls directly out of hashing exactly the bytes returned to
// the caller as they're returned.
type VerifiedReader struct {
	inner  io.Reader
	hasher Hasher
}

// NewVerifiedReader wraps inner, hashing every byte it yields with hasher.
func NewVerifiedReader(inner io.Reader, hasher Hasher) *VerifiedReader {
	return &VerifiedReader{inner: inner, hasher: hasher}
}

// Read implements io.Reader. Underlying read errors are propagated
// unchanged; only the bytes actually produced (n > 0) are hashed, so a
// partial read followed by an error still contributes its valid prefix.
func (r *VerifiedReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.hasher.Write(p[:n])
	}
	return n, err
}

// Digest returns the current digest without consuming the reader.
func (r *VerifiedReader) Digest() []byte {
	return r.hasher.Sum()
}

// Finish consumes the reader's identity (no further reads should occur)
// and checks the computed digest against expected. A nil or empty expected
// slice means "no verification requested" and Finish always succeeds in
// that case, still returning the computed digest.
func (r *VerifiedReader) Finish(expected []byte) ([]byte, error) {
	actual := r.hasher.Sum()

	if len(expected) == 0 {
		return actual, nil
	}

	if !bytes.Equal(expected, actual) {
		return actual, perr.NewHashMismatch("", expected, actual)
	}

	return actual, nil
}
