package gateway

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrGatewayUnavailable wraps transport failures talking to the gateway.
	ErrGatewayUnavailable = errors.New("payment gateway unreachable")
	// ErrGatewayRejected means the gateway answered with a non-2xx status.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")
)

// Order is the gateway's order object as returned by the create-order API.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// PaymentLink is the gateway's payment-link object. ShortURL is the hosted
// checkout page the customer is sent to.
type PaymentLink struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	// Payments is populated on fetch once the link has settled.
	Payments []LinkPayment `json:"payments,omitempty"`
}

// LinkPayment is a payment attempt recorded against a payment link.
type LinkPayment struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
}

// Payment-link statuses reported by the gateway.
const (
	LinkStatusCreated   = "created"
	LinkStatusPaid      = "paid"
	LinkStatusExpired   = "expired"
	LinkStatusCancelled = "cancelled"
)

// Customer identifies the paying customer on a payment-link request.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// CreateOrderRequest creates a gateway order for the client-side checkout
// widget flow. Amount is in minor units.
type CreateOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// CreateLinkRequest creates a hosted payment link. Amount is in minor units.
type CreateLinkRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Customer       Customer          `json:"customer"`
	Notes          map[string]string `json:"notes,omitempty"`
	CallbackURL    string            `json:"callback_url"`
	CallbackMethod string            `json:"callback_method"`
}

// Client is the subset of the gateway API this service consumes.
type Client interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error)
	CreatePaymentLink(ctx context.Context, req CreateLinkRequest) (PaymentLink, error)
	FetchPaymentLink(ctx context.Context, linkID string) (PaymentLink, error)
}

// ToMinorUnits converts a major-unit decimal amount (e.g. rupees) to the
// gateway's integer minor units (paise). This is the only place in the
// codebase where the conversion happens; everything above the gateway
// boundary works in major units.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromMinorUnits converts gateway minor units back to a major-unit decimal.
func FromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
