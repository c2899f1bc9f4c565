package order

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/wichananm65/storefront-backend/internal/metrics"
	"github.com/wichananm65/storefront-backend/internal/pendingorder"
	"github.com/wichananm65/storefront-backend/internal/product"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "materializer").Logger()

// EventPublisher receives order lifecycle events for the notification
// pipeline. A nil publisher disables publishing.
type EventPublisher interface {
	Publish(event string, payload interface{}) error
}

// Event names published on the orders exchange.
const (
	EventOrderConfirmed    = "order.confirmed"
	EventOrderNeedsReview  = "order.needs_review"
	EventItemStatusChanged = "order.item_status_changed"
)

// Materializer converts a paid pending order into a durable confirmed order.
// It is safe to re-enter: a crashed or concurrent previous attempt is
// detected through the payment-ref uniqueness guard rather than avoided.
type Materializer struct {
	orders    Repository
	pending   pendingorder.Repository
	products  product.Repository
	publisher EventPublisher
}

func NewMaterializer(orders Repository, pending pendingorder.Repository, products product.Repository, publisher EventPublisher) *Materializer {
	return &Materializer{orders: orders, pending: pending, products: products, publisher: publisher}
}

// Materialize idempotently creates the confirmed order for a verified paid
// pending order. The gateway has already captured the money when this runs,
// so line-item problems (vanished product, insufficient stock) degrade to
// warnings and a needs-review event instead of failing the order.
func (m *Materializer) Materialize(po pendingorder.PendingOrder, gatewayPaymentID string) (Order, error) {
	if existing, err := m.orders.GetByPaymentRef(gatewayPaymentID); err == nil {
		// a prior attempt may have crashed after the insert but before the
		// staging cleanup; finish that cleanup here
		m.deletePending(po.ID)
		return existing, nil
	} else if err != ErrNotFound {
		return Order{}, err
	}

	now := time.Now().UTC()
	o := Order{
		UserID:            po.UserID,
		OrderNumber:       po.OrderNumber,
		TotalAmount:       po.TotalAmount,
		Status:            StatusConfirmed,
		PaymentStatus:     PaymentStatusCompleted,
		GatewayOrderRef:   po.GatewayReferenceID,
		GatewayPaymentRef: gatewayPaymentID,
		DeliveryAddress:   po.DeliveryAddress,
		Items:             po.Items,
		PriceBreakdown:    po.PriceBreakdown,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var skipped []int
	for _, it := range po.Items {
		// shop owner comes from the product record, not the client snapshot
		p, err := m.products.GetByID(it.ProductID)
		if err != nil {
			logger.Warn().Int("product_id", it.ProductID).Str("order_number", po.OrderNumber).
				Err(err).Msg("product lookup failed, skipping line item")
			skipped = append(skipped, it.ProductID)
			continue
		}
		o.OrderItems = append(o.OrderItems, OrderItem{
			ProductID:   it.ProductID,
			ShopOwnerID: p.ShopOwnerID,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Status:      ItemStatusPending,
		})
	}

	created, err := m.orders.CreateConfirmed(o)
	if err == ErrDuplicatePayment {
		// another channel won the insert; hand back its order
		m.deletePending(po.ID)
		return m.orders.GetByPaymentRef(gatewayPaymentID)
	}
	if err != nil {
		return Order{}, err
	}
	metrics.OrdersMaterialized.Inc()

	var outOfStock []int
	for _, it := range created.OrderItems {
		if err := m.products.DecrementStock(it.ProductID, it.Quantity); err != nil {
			// money already moved; flag for manual reconciliation
			logger.Warn().Int("product_id", it.ProductID).Int("quantity", it.Quantity).
				Int("order_id", created.ID).Err(err).Msg("stock decrement failed")
			outOfStock = append(outOfStock, it.ProductID)
		}
	}

	m.deletePending(po.ID)

	m.publish(EventOrderConfirmed, created)
	if len(skipped) > 0 || len(outOfStock) > 0 {
		m.publish(EventOrderNeedsReview, map[string]interface{}{
			"orderId":          created.ID,
			"orderNumber":      created.OrderNumber,
			"skippedProducts":  skipped,
			"outOfStockItems":  outOfStock,
			"gatewayPaymentId": gatewayPaymentID,
		})
	}
	return created, nil
}

func (m *Materializer) deletePending(id int) {
	if err := m.pending.Delete(id); err != nil && err != pendingorder.ErrNotFound {
		logger.Error().Int("pending_id", id).Err(err).Msg("failed to delete pending order")
	}
}

func (m *Materializer) publish(event string, payload interface{}) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(event, payload); err != nil {
		logger.Error().Str("event", event).Err(err).Msg("event publish failed")
	}
}
