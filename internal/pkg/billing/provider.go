package billing

import "context"

// Provider is the adapter each payment provider implements. The three
// dispatchers differ only in signature scheme and payload shape; everything
// after normalization runs through the shared pipeline.
type Provider interface {
	// Name returns the ledger provider identifier (e.g. "lemonsqueezy").
	Name() string

	// VerifySignature checks that the raw body originated from the provider.
	// It must operate on the exact unparsed payload; re-serializing breaks
	// HMAC verification.
	VerifySignature(rawBody []byte, headers map[string]string) bool

	// ParseEvent normalizes the raw payload. Implementations may perform a
	// server-to-server verification round trip before trusting the body.
	ParseEvent(ctx context.Context, rawBody []byte) (*NormalizedEvent, error)
}
