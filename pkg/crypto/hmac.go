package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignHMAC computes the hex-encoded HMAC-SHA256 of payload under secret.
// Callers sign the raw request body; the auth layer verifies the signature
// against the signer's registered secret before any nonce check runs.
func SignHMAC(secret []byte, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC reports whether signature is a valid hex-encoded HMAC-SHA256 of
// payload under secret. Comparison is constant-time.
func VerifyHMAC(secret []byte, payload []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}
