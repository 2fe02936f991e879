// Package signature verifies inbound webhook HMAC signatures.
//
// This is deliberately a separate concern from the outbound signing scheme
// in pkg/webhook: that package binds a timestamp into the signed message
// (HMAC-SHA256(secret, timestamp + "." + payload)) for webhooks this
// service sends. Verifying an inbound request from an external provider is
// a plain HMAC over the exact bytes received — timestamp freshness is
// validated separately, as its own pipeline step, against its own header.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verify reports whether receivedHex is the lowercase hex-encoded
// HMAC-SHA256 of payload under secret.
//
// payload must be the exact bytes the client sent — never a re-marshaled
// JSON document, since re-serialization is not guaranteed to reproduce the
// original byte sequence (key order, whitespace, numeric formatting).
// Malformed hex in receivedHex, a length mismatch, or an empty secret all
// simply return false; Verify never panics or returns an error.
func Verify(payload, secret []byte, receivedHex string) bool {
	if len(secret) == 0 {
		return false
	}

	expected := Compute(payload, secret)

	received, err := hex.DecodeString(receivedHex)
	if err != nil {
		return false
	}

	return hmac.Equal(expected, received)
}

// Compute returns the raw HMAC-SHA256 digest of payload under secret.
func Compute(payload, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return h.Sum(nil)
}

// Hex returns the lowercase hex encoding of Compute's digest, for signing
// outbound test fixtures and admin tooling.
func Hex(payload, secret []byte) string {
	return hex.EncodeToString(Compute(payload, secret))
}
