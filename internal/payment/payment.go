package payment

import (
	"errors"

	"github.com/wichananm65/storefront-backend/internal/gateway"
)

// Error taxonomy for the payment pipeline. Gateway and signature problems are
// converted to structured responses with a correlation id at the handler
// boundary; they never reach the customer as raw errors.
var (
	// ErrInvalidRequest covers malformed initiation input; user-correctable.
	ErrInvalidRequest = errors.New("invalid payment request")
	// ErrPaymentGateway wraps upstream rejection or unreachability. The user
	// re-initiates; the server does not retry.
	ErrPaymentGateway = errors.New("payment gateway error")
	// ErrInvalidSignature means completion evidence failed cryptographic
	// verification. Logged as a security event; never presented as a failed
	// payment.
	ErrInvalidSignature = errors.New("payment evidence signature invalid")
	// ErrPendingOrderNotFound means no staging record matches the gateway
	// reference. The reconciler re-checks for a completed order before this
	// surfaces, so seeing it means the payment genuinely is unknown.
	ErrPendingOrderNotFound = errors.New("pending order not found")
	// ErrPaymentNotCompleted means the gateway does not (yet) report the
	// payment as settled.
	ErrPaymentNotCompleted = errors.New("payment not completed")
	// ErrPaymentExpired means the payment link expired or was cancelled
	// before settling.
	ErrPaymentExpired = errors.New("payment link expired")
)

// Evidence is the tagged union of completion signals. Exactly three channels
// exist and the reconciler switches over them exhaustively.
type Evidence interface {
	channel() string
}

// WebhookEvidence is a server-to-server gateway push. Body is the raw request
// body the signature was computed over.
type WebhookEvidence struct {
	Body      []byte
	Signature string
}

func (WebhookEvidence) channel() string { return "webhook" }

// RedirectEvidence comes from the customer's browser being redirected back to
// the site. Every field is client-supplied and therefore untrusted until
// verified or confirmed against the gateway.
type RedirectEvidence struct {
	Params gateway.CallbackParams
}

func (RedirectEvidence) channel() string { return "redirect" }

// PollRequest is an authenticated client asking whether a gateway reference
// has settled. The payment id is never taken from the client on this path.
type PollRequest struct {
	GatewayReferenceID string
	UserID             int
}

func (PollRequest) channel() string { return "poll" }

// Result is the reconciler's answer for a settled payment.
type Result struct {
	OrderID          int    `json:"order_id"`
	OrderNumber      string `json:"order_number"`
	GatewayPaymentID string `json:"payment_id"`
	AlreadyProcessed bool   `json:"already_processed"`
}

// Status values reported to the polling client.
const (
	StatusPaid    = "paid"
	StatusPending = "pending"
	StatusExpired = "expired"
	StatusFailed  = "failed"
)
