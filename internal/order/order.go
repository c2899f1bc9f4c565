package order

import (
	"errors"
	"time"

	"github.com/wichananm65/storefront-backend/internal/cart"
	"github.com/wichananm65/storefront-backend/internal/pendingorder"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrDuplicatePayment is raised by the store when an order already exists
	// for a gateway payment id. Callers treat it as idempotent success, not a
	// failure.
	ErrDuplicatePayment = errors.New("order already exists for this payment")
	// ErrInvalidTransition means an order item was not in the expected source
	// state for the requested dispatch transition.
	ErrInvalidTransition = errors.New("invalid order item transition")
)

// Order statuses. Confirmed is the only status materialization assigns;
// cancellation and returns are separate flows.
const (
	StatusConfirmed       = "confirmed"
	StatusCancelled       = "cancelled"
	StatusReturnRequested = "return_requested"
)

// PaymentStatusCompleted is the only payment status a materialized order can
// carry: the reconciler never materializes an unpaid order.
const PaymentStatusCompleted = "completed"

// Order item dispatch states, in order. No transition may skip a state.
const (
	ItemStatusPending         = "pending"
	ItemStatusDispatchRequest = "dispatch_requested"
	ItemStatusDispatched      = "dispatched"
	ItemStatusDelivered       = "delivered"
)

// Order is the durable, confirmed order record. At most one order exists per
// GatewayPaymentRef; the UNIQUE constraint on that column is the
// serialization point between racing completion channels.
type Order struct {
	ID                int                          `json:"id"`
	UserID            int                          `json:"userId"`
	OrderNumber       string                       `json:"orderNumber"`
	TotalAmount       float64                      `json:"totalAmount"`
	Status            string                       `json:"status"`
	PaymentStatus     string                       `json:"paymentStatus"`
	GatewayOrderRef   string                       `json:"gatewayOrderRef"`
	GatewayPaymentRef string                       `json:"gatewayPaymentRef"`
	DeliveryAddress   pendingorder.DeliveryAddress `json:"deliveryAddress"`
	Items             []cart.Item                  `json:"items"`
	PriceBreakdown    *pendingorder.PriceBreakdown `json:"priceBreakdown,omitempty"`
	OrderItems        []OrderItem                  `json:"orderItems,omitempty"`
	CreatedAt         time.Time                    `json:"createdAt"`
	UpdatedAt         time.Time                    `json:"updatedAt"`
}

// OrderItem is one product line fanned out to its owning seller. ShopOwnerID
// is resolved from the product record at materialization time, never taken
// from the cart snapshot.
type OrderItem struct {
	ID                  int        `json:"id"`
	OrderID             int        `json:"orderId"`
	ProductID           int        `json:"productId"`
	ShopOwnerID         int        `json:"shopOwnerId"`
	Quantity            int        `json:"quantity"`
	Price               float64    `json:"price"`
	Status              string     `json:"status"`
	DispatchRequestedAt *time.Time `json:"dispatchRequestedAt,omitempty"`
	DispatchedAt        *time.Time `json:"dispatchedAt,omitempty"`
	DeliveredAt         *time.Time `json:"deliveredAt,omitempty"`
}

// PayoutEligible reports whether this line has reached the state that unlocks
// payout requests for the seller.
func (it OrderItem) PayoutEligible() bool {
	return it.Status == ItemStatusDelivered
}
