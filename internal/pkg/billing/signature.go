package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyLemonsqueezySignature checks the X-Signature header: hex-encoded
// HMAC-SHA256 of the raw body under the shared webhook secret. Fails closed
// when the signature or the secret is missing.
func VerifyLemonsqueezySignature(payload []byte, signatureHeader, webhookSecret string) bool {
	return verifyHexHMACSHA256(payload, signatureHeader, webhookSecret)
}

// VerifyFlutterwaveSignature checks the verif-hash header the same way.
// Comparison is constant-time; a plain string equality here would leak
// signature bytes through timing.
func VerifyFlutterwaveSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	return verifyHexHMACSHA256(payload, signatureHeader, webhookSecret)
}

func verifyHexHMACSHA256(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	sec := strings.TrimSpace(secret)
	if sig == "" || sec == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(sec))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}
