// Package webhook applies signed delivery-status callbacks to the supplier ledger.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrBadSignature means the signature header is missing or does not match the body
var ErrBadSignature = errors.New("invalid webhook signature")

// Sign returns the hex HMAC-SHA256 of body
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a hex signature over the raw body. A "sha256=" prefix is accepted.
func Verify(secret, signature string, body []byte) error {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, "sha256=")
	if secret == "" || signature == "" {
		return ErrBadSignature
	}
	expected := Sign(secret, body)
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return ErrBadSignature
	}
	return nil
}
