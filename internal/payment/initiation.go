package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/wichananm65/storefront-backend/internal/cart"
	"github.com/wichananm65/storefront-backend/internal/gateway"
	"github.com/wichananm65/storefront-backend/internal/pendingorder"
)

// Mode selects the gateway integration: a bare gateway order for the
// client-side checkout widget, or a hosted payment link.
type Mode string

const (
	ModeOrder       Mode = "order"
	ModePaymentLink Mode = "payment_link"
)

// InitiationRequest is everything needed to open a payment intent.
type InitiationRequest struct {
	UserID          int
	Mode            Mode
	Items           []cart.Item
	TotalAmount     float64
	DeliveryAddress pendingorder.DeliveryAddress
	PriceBreakdown  *pendingorder.PriceBreakdown
}

// InitiationResult is returned to the client so it can hand the customer to
// the gateway checkout.
type InitiationResult struct {
	GatewayReferenceID string `json:"gateway_reference_id"`
	CheckoutURL        string `json:"checkout_url,omitempty"`
	GatewayKeyID       string `json:"gateway_key_id,omitempty"`
	OrderNumber        string `json:"order_number"`
	AmountMinor        int64  `json:"amount_minor"`
	Currency           string `json:"currency"`
}

// InitiationService creates the gateway payment intent and the matching
// pending-order staging record.
type InitiationService struct {
	pending     pendingorder.Repository
	gateway     gateway.Client
	keyID       string
	currency    string
	callbackURL string
}

func NewInitiationService(pending pendingorder.Repository, gw gateway.Client, keyID, currency, callbackURL string) *InitiationService {
	return &InitiationService{
		pending:     pending,
		gateway:     gw,
		keyID:       keyID,
		currency:    currency,
		callbackURL: callbackURL,
	}
}

// Initiate validates the request, stages a pending order under a temporary
// reference, asks the gateway for an order or payment link, and swaps in the
// real reference. If the gateway call fails the staging record is removed so
// no orphan survives.
func (s *InitiationService) Initiate(ctx context.Context, req InitiationRequest) (InitiationResult, error) {
	if req.TotalAmount <= 0 {
		return InitiationResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if err := cart.Validate(req.Items); err != nil {
		return InitiationResult{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Mode == "" {
		req.Mode = ModePaymentLink
	}

	now := time.Now().UTC()
	orderNumber := newOrderNumber(now)

	po, err := s.pending.Create(pendingorder.PendingOrder{
		UserID:             req.UserID,
		OrderNumber:        orderNumber,
		TotalAmount:        req.TotalAmount,
		DeliveryAddress:    req.DeliveryAddress,
		Items:              req.Items,
		GatewayReferenceID: fmt.Sprintf("temp_%d", now.UnixMilli()),
		PriceBreakdown:     req.PriceBreakdown,
		CreatedAt:          now,
	})
	if err != nil {
		return InitiationResult{}, err
	}

	amountMinor := gateway.ToMinorUnits(req.TotalAmount)
	result := InitiationResult{
		OrderNumber: orderNumber,
		AmountMinor: amountMinor,
		Currency:    s.currency,
	}

	switch req.Mode {
	case ModeOrder:
		gwOrder, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
			Amount:   amountMinor,
			Currency: s.currency,
			Receipt:  orderNumber,
		})
		if err != nil {
			return InitiationResult{}, s.abandon(po.ID, err)
		}
		result.GatewayReferenceID = gwOrder.ID
		result.GatewayKeyID = s.keyID
	case ModePaymentLink:
		link, err := s.gateway.CreatePaymentLink(ctx, gateway.CreateLinkRequest{
			Amount:   amountMinor,
			Currency: s.currency,
			Customer: gateway.Customer{
				Name:    req.DeliveryAddress.Name,
				Email:   req.DeliveryAddress.Email,
				Contact: req.DeliveryAddress.Phone,
			},
			Notes:          map[string]string{"order_number": orderNumber},
			CallbackURL:    s.callbackURL,
			CallbackMethod: "get",
		})
		if err != nil {
			return InitiationResult{}, s.abandon(po.ID, err)
		}
		result.GatewayReferenceID = link.ID
		result.CheckoutURL = link.ShortURL
	default:
		return InitiationResult{}, s.abandon(po.ID, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode))
	}

	if err := s.pending.UpdateReference(po.ID, result.GatewayReferenceID); err != nil {
		return InitiationResult{}, err
	}
	return result, nil
}

// abandon removes a staging record whose gateway call never succeeded.
func (s *InitiationService) abandon(pendingID int, cause error) error {
	if err := s.pending.Delete(pendingID); err != nil {
		return fmt.Errorf("%w: %v (orphan cleanup failed: %v)", ErrPaymentGateway, cause, err)
	}
	if errors.Is(cause, ErrInvalidRequest) {
		return cause
	}
	return fmt.Errorf("%w: %v", ErrPaymentGateway, cause)
}

// newOrderNumber builds a human order number with enough entropy to avoid
// collisions between checkouts in the same millisecond.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%04d", now.UnixMilli(), rand.Intn(10000))
}
