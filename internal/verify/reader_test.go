package verify_test

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	"github.com/pulith-dev/pulith/internal/perr"
	"github.com/pulith-dev/pulith/internal/verify"
)

// TestHappyPathSHA256 checks an 11-byte body against its known SHA-256.
func TestHappyPathSHA256(t *testing.T) {
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

	h, err := verify.NewHasher(verify.SHA256)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	vr := verify.NewVerifiedReader(bytes.NewReader([]byte("hello world")), h)

	data, err := io.ReadAll(vr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("unexpected content: %q", data)
	}

	expected, err := hex.DecodeString(want)
	if err != nil {
		t.Fatalf("bad test fixture: %v", err)
	}

	digest, err := vr.Finish(expected)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if hex.EncodeToString(digest) != want {
		t.Fatalf("digest mismatch: got %x want %s", digest, want)
	}
}

// TestHashMismatch checks that a wrong expected digest is rejected.
func TestHashMismatch(t *testing.T) {
	h, _ := verify.NewHasher(verify.SHA256)
	vr := verify.NewVerifiedReader(bytes.NewReader([]byte("hello world")), h)

	if _, err := io.ReadAll(vr); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	zero := make([]byte, sha256.Size)
	_, err := vr.Finish(zero)

	if err == nil {
		t.Fatalf("expected a hash mismatch error")
	}

	var perrErr *perr.Error
	if !perr.As(err, &perrErr) || perrErr.Kind != perr.KindHashMismatch {
		t.Fatalf("expected perr.KindHashMismatch, got %v", err)
	}
}

// TestDigestIsInvariantToChunking checks that the digest produced equals
// the digest of the full sequence, regardless of how the reader's
// underlying chunking happens to split it up.
func TestDigestIsInvariantToChunking(t *testing.T) {
	payload := make([]byte, 10007) // deliberately not a multiple of common buffer sizes
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	want := sha256.Sum256(payload)

	for _, chunkSize := range []int{1, 3, 64, 4096, 1 << 20} {
		h, _ := verify.NewHasher(verify.SHA256)
		vr := verify.NewVerifiedReader(&chunkedReader{data: payload, chunk: chunkSize}, h)

		got, err := io.ReadAll(vr)
		if err != nil {
			t.Fatalf("chunk size %d: ReadAll: %v", chunkSize, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("chunk size %d: content mismatch", chunkSize)
		}

		digest, err := vr.Finish(want[:])
		if err != nil {
			t.Fatalf("chunk size %d: unexpected mismatch: %v", chunkSize, err)
		}
		if !bytes.Equal(digest, want[:]) {
			t.Fatalf("chunk size %d: digest mismatch", chunkSize)
		}
	}
}

func TestBlake3Hasher(t *testing.T) {
	h, err := verify.NewHasher(verify.Blake3)
	if err != nil {
		t.Fatalf("NewHasher(Blake3): %v", err)
	}

	vr := verify.NewVerifiedReader(bytes.NewReader([]byte("abc")), h)
	if _, err := io.ReadAll(vr); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if len(vr.Digest()) == 0 {
		t.Fatalf("expected a non-empty digest")
	}
}

func TestNewHasherRejectsUnknownAlgorithm(t *testing.T) {
	if _, err := verify.NewHasher("md5"); err == nil {
		t.Fatalf("expected an error for an unsupported algorithm")
	}
}

// chunkedReader yields data in fixed-size pieces, regardless of how large
// a buffer the caller offers, to exercise the chunk-boundary independence
// property.
type chunkedReader struct {
	data  []byte
	chunk int
	pos   int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}

	n := c.chunk
	if n > len(p) {
		n = len(p)
	}
	if c.pos+n > len(c.data) {
		n = len(c.data) - c.pos
	}

	copy(p, c.data[c.pos:c.pos+n])
	c.pos += n

	return n, nil
}
