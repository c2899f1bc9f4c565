package gateway

import "encoding/json"

// WebhookEvent is the envelope the gateway POSTs to the webhook endpoint.
// Only the fields the reconciler needs are modelled; the raw body is what
// gets signature-verified, not this decoded form.
type WebhookEvent struct {
	Event   string         `json:"event"`
	Payload WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	PaymentLink struct {
		Entity PaymentLink `json:"entity"`
	} `json:"payment_link"`
	Payment struct {
		Entity struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Amount int64  `json:"amount"`
		} `json:"entity"`
	} `json:"payment"`
}

// Webhook event names this service reacts to.
const (
	EventPaymentLinkPaid = "payment_link.paid"
	EventPaymentCaptured = "payment.captured"
)

// ParseWebhook decodes a webhook body. Callers must verify the signature over
// the raw bytes before trusting anything in the returned event.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	err := json.Unmarshal(body, &ev)
	return ev, err
}

// CallbackParams are the query parameters the gateway appends when redirecting
// the customer's browser back to the site. All of them are client-supplied.
type CallbackParams struct {
	PaymentLinkID     string
	PaymentID         string
	PaymentLinkStatus string
	Signature         string
}
