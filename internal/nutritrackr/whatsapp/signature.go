package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the raw body, keyed with the
// app secret.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// verifySignature checks header against the HMAC-SHA256 of body.
func verifySignature(secret []byte, body []byte, header string) error {
	if header == "" {
		return fmt.Errorf("missing %s header", SignatureHeader)
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return fmt.Errorf("%s must start with %q", SignatureHeader, signaturePrefix)
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return fmt.Errorf("invalid hex in %s: %w", SignatureHeader, err)
	}
	if !hmac.Equal(sign(secret, body), provided) {
		return errors.New("signature mismatch")
	}
	return nil
}

func sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// Signature returns the header value a delivery of body signed with secret
// carries. Useful for tests and local replay tools.
func Signature(secret, body []byte) string {
	return signaturePrefix + hex.EncodeToString(sign(secret, body))
}
