package verify

// Signer and Verifier surface a signature-verification interface, types
// only. Per the decision recorded in DESIGN.md, this module ships only the
// interface — no concrete signing algorithm — so a host application can
// plug in whatever scheme its artifact source actually uses (minisign,
// cosign, PGP, ...).
type Signer interface {
	Sign(digest []byte) (signature []byte, err error)
}

type Verifier interface {
	Verify(digest, signature []byte) (bool, error)
}

// NopVerifier accepts every signature. It exists so callers that have not
// configured a real Verifier can still satisfy the interface explicitly,
// rather than nil-checking it at every call site.
type NopVerifier struct{}

func (NopVerifier) Verify(_, _ []byte) (bool, error) {
	return true, nil
}
