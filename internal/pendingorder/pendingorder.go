package pendingorder

import (
	"errors"
	"time"

	"github.com/wichananm65/storefront-backend/internal/cart"
)

var ErrNotFound = errors.New("pending order not found")

// DeliveryAddress is the customer contact snapshot captured when the payment
// intent is created. It is immutable for the life of the pending order.
type DeliveryAddress struct {
	Name         string `json:"name"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
}

// PriceBreakdown is the computed charge breakdown shown at checkout, in major
// units.
type PriceBreakdown struct {
	Subtotal       float64 `json:"subtotal"`
	Discount       float64 `json:"discount"`
	DeliveryCharge float64 `json:"deliveryCharge"`
	PlatformCharge float64 `json:"platformCharge"`
	Tax            float64 `json:"tax"`
	Total          float64 `json:"total"`
}

// PendingOrder is the durable staging record between "customer intends to
// pay" and "payment settled". It is created by payment initiation, read by
// the reconciler and deleted by order materialization. The only permitted
// mutation is the one-time swap of a temporary GatewayReferenceID for the
// real one once the gateway call returns.
type PendingOrder struct {
	ID                 int             `json:"id"`
	UserID             int             `json:"userId"`
	OrderNumber        string          `json:"orderNumber"`
	TotalAmount        float64         `json:"totalAmount"`
	DeliveryAddress    DeliveryAddress `json:"deliveryAddress"`
	Items              []cart.Item     `json:"items"`
	GatewayReferenceID string          `json:"gatewayReferenceId"`
	PriceBreakdown     *PriceBreakdown `json:"priceBreakdown,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}
