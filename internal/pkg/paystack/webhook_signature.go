package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks the x-paystack-signature header: a hex-encoded
// HMAC-SHA512 over the exact raw request bytes, compared in constant time.
//
// An empty secret disables verification and every payload passes. That is the
// documented behavior for deployments that have not configured the webhook
// secret; such deployments must rely on the authoritative gateway
// re-verification instead.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return true
	}

	sig := strings.TrimSpace(signatureHeader)
	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}
