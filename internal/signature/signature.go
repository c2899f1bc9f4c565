package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// VerifyPaymentSignature checks the gateway's order+payment signature, computed
// as HMAC-SHA256 over "<orderID>|<paymentID>" with the key secret. A failed
// verification is a normal outcome and is reported as false, never an error.
func VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature, secret string) bool {
	return verify(gatewayOrderID+"|"+gatewayPaymentID, signature, secret)
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the raw
// webhook request body using the webhook secret.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	return verify(string(body), signature, secret)
}

func verify(message, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	expected := hex.EncodeToString(mac.Sum(nil))

	// constant-time compare; mismatched lengths are rejected up front since
	// they cannot be equal and leak nothing about the expected digest
	if len(expected) != len(signature) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
