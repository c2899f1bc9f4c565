package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wichananm65/storefront-backend/internal/cart"
	"github.com/wichananm65/storefront-backend/internal/gateway"
	"github.com/wichananm65/storefront-backend/internal/order"
	"github.com/wichananm65/storefront-backend/internal/pendingorder"
	"github.com/wichananm65/storefront-backend/internal/product"
)

const (
	testKeySecret     = "key_secret"
	testWebhookSecret = "webhook_secret"
)

func hmacHex(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

type fixture struct {
	pending    *pendingorder.InMemoryRepository
	orders     *order.InMemoryRepository
	products   *product.InMemoryRepository
	gateway    *fakeGateway
	reconciler *Reconciler
}

func newFixture(t *testing.T) (*fixture, pendingorder.PendingOrder) {
	t.Helper()
	pending := pendingorder.NewInMemoryRepository()
	orders := order.NewInMemoryRepository()
	products := product.NewInMemoryRepository([]product.Product{
		{ID: 1, Title: "Collar", Price: 199, ShopOwnerID: 7, StockQuantity: 5},
		{ID: 2, Title: "Leash", Price: 100, ShopOwnerID: 8, StockQuantity: 3},
	})
	gw := &fakeGateway{}
	materializer := order.NewMaterializer(orders, pending, products, nil)
	rec := NewReconciler(pending, orders, materializer, gw, testKeySecret, testWebhookSecret)

	po, err := pending.Create(pendingorder.PendingOrder{
		UserID:      42,
		OrderNumber: "ORD-1740812400000-4821",
		TotalAmount: 498,
		Items: []cart.Item{
			{ProductID: 1, Title: "Collar", Price: 199, Quantity: 2, MaxStock: 5},
			{ProductID: 2, Title: "Leash", Price: 100, Quantity: 1, MaxStock: 3},
		},
		GatewayReferenceID: "plink_123",
		CreatedAt:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	return &fixture{pending: pending, orders: orders, products: products, gateway: gw, reconciler: rec}, po
}

func paidWebhook(paymentID string) WebhookEvidence {
	body := fmt.Sprintf(`{"event":"payment_link.paid","payload":{"payment_link":{"entity":{"id":"plink_123","status":"paid"}},"payment":{"entity":{"id":%q,"status":"captured","amount":49800}}}}`, paymentID)
	return WebhookEvidence{Body: []byte(body), Signature: hmacHex(body, testWebhookSecret)}
}

func TestWebhookEndToEnd(t *testing.T) {
	f, _ := newFixture(t)

	res, err := f.reconciler.Complete(context.Background(), paidWebhook("pay_abc"))
	if err != nil {
		t.Fatalf("Complete(webhook): %v", err)
	}
	if res.OrderNumber != "ORD-1740812400000-4821" || res.GatewayPaymentID != "pay_abc" {
		t.Fatalf("unexpected result %+v", res)
	}

	o, err := f.orders.GetByPaymentRef("pay_abc")
	if err != nil {
		t.Fatalf("order missing: %v", err)
	}
	if o.Status != order.StatusConfirmed || o.PaymentStatus != order.PaymentStatusCompleted {
		t.Errorf("statuses %q/%q", o.Status, o.PaymentStatus)
	}
	if len(o.OrderItems) != 2 {
		t.Errorf("expected 2 order items, got %d", len(o.OrderItems))
	}
	if f.pending.Count() != 0 {
		t.Errorf("pending order for plink_123 should no longer exist")
	}
}

func TestWebhookRejectsForgedSignature(t *testing.T) {
	f, _ := newFixture(t)

	ev := paidWebhook("pay_abc")
	ev.Signature = hmacHex(string(ev.Body), "wrong_secret")
	if _, err := f.reconciler.Complete(context.Background(), ev); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if f.orders.Count() != 0 {
		t.Fatalf("forged webhook must never create an order")
	}

	// tampered body with the original signature
	good := paidWebhook("pay_abc")
	tampered := paidWebhook("pay_evil")
	tampered.Signature = good.Signature
	if _, err := f.reconciler.Complete(context.Background(), tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered body, got %v", err)
	}
}

func TestCompleteIsIdempotentAcrossChannels(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()

	first, err := f.reconciler.Complete(ctx, paidWebhook("pay_abc"))
	if err != nil {
		t.Fatalf("first Complete: %v", err)
	}

	// webhook retry
	again, err := f.reconciler.Complete(ctx, paidWebhook("pay_abc"))
	if err != nil {
		t.Fatalf("webhook retry: %v", err)
	}
	if !again.AlreadyProcessed || again.OrderID != first.OrderID {
		t.Fatalf("retry should return the existing order: %+v", again)
	}

	// redirect callback arriving after the webhook won
	redirect := RedirectEvidence{Params: gateway.CallbackParams{
		PaymentLinkID: "plink_123",
		PaymentID:     "pay_abc",
		Signature:     hmacHex("plink_123|pay_abc", testKeySecret),
	}}
	res, err := f.reconciler.Complete(ctx, redirect)
	if err != nil {
		t.Fatalf("redirect after webhook: %v", err)
	}
	if res.OrderID != first.OrderID {
		t.Fatalf("redirect produced a different order: %+v", res)
	}

	// manual poll arriving last; gateway still reports paid
	f.gateway.fetched = gateway.PaymentLink{
		ID: "plink_123", Status: gateway.LinkStatusPaid,
		Payments: []gateway.LinkPayment{{PaymentID: "pay_abc", Status: "captured"}},
	}
	res, err = f.reconciler.Complete(ctx, PollRequest{GatewayReferenceID: "plink_123", UserID: 42})
	if err != nil {
		t.Fatalf("poll after webhook: %v", err)
	}
	if res.OrderID != first.OrderID {
		t.Fatalf("poll produced a different order: %+v", res)
	}

	if f.orders.Count() != 1 {
		t.Fatalf("expected exactly one order, got %d", f.orders.Count())
	}
}

func TestWebhookAndPollRace(t *testing.T) {
	f, _ := newFixture(t)
	f.gateway.fetched = gateway.PaymentLink{
		ID: "plink_123", Status: gateway.LinkStatusPaid,
		Payments: []gateway.LinkPayment{{PaymentID: "pay_abc", Status: "captured"}},
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.reconciler.Complete(context.Background(), paidWebhook("pay_abc"))
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.reconciler.Complete(context.Background(), PollRequest{GatewayReferenceID: "plink_123", UserID: 42})
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("channel %d failed: %v", i, err)
		}
	}
	if f.orders.Count() != 1 {
		t.Fatalf("race produced %d orders, want 1", f.orders.Count())
	}
	if f.pending.Count() != 0 {
		t.Fatalf("pending order should be deleted exactly once")
	}
}

func TestRedirectWithBadSignatureFallsBackToGateway(t *testing.T) {
	f, _ := newFixture(t)
	f.gateway.fetched = gateway.PaymentLink{
		ID: "plink_123", Status: gateway.LinkStatusPaid,
		Payments: []gateway.LinkPayment{{PaymentID: "pay_abc", Status: "captured"}},
	}

	// "paid" claim with a forged signature: not trusted, but server-side
	// confirmation still settles the real payment
	res, err := f.reconciler.Complete(context.Background(), RedirectEvidence{Params: gateway.CallbackParams{
		PaymentLinkID:     "plink_123",
		PaymentID:         "pay_abc",
		PaymentLinkStatus: "paid",
		Signature:         "forged",
	}})
	if err != nil {
		t.Fatalf("redirect fallback: %v", err)
	}
	if res.GatewayPaymentID != "pay_abc" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRedirectForgedClaimWithUnpaidLink(t *testing.T) {
	f, _ := newFixture(t)
	f.gateway.fetched = gateway.PaymentLink{ID: "plink_123", Status: gateway.LinkStatusCreated}

	_, err := f.reconciler.Complete(context.Background(), RedirectEvidence{Params: gateway.CallbackParams{
		PaymentLinkID:     "plink_123",
		PaymentID:         "pay_fake",
		PaymentLinkStatus: "paid",
		Signature:         "forged",
	}})
	if !errors.Is(err, ErrPaymentNotCompleted) {
		t.Fatalf("expected ErrPaymentNotCompleted, got %v", err)
	}
	if f.orders.Count() != 0 {
		t.Fatalf("forged redirect must never create an order")
	}
}

func TestPollScopesPendingLookupToUser(t *testing.T) {
	f, _ := newFixture(t)
	f.gateway.fetched = gateway.PaymentLink{
		ID: "plink_123", Status: gateway.LinkStatusPaid,
		Payments: []gateway.LinkPayment{{PaymentID: "pay_abc", Status: "captured"}},
	}

	// another user polling someone else's reference
	if _, err := f.reconciler.Complete(context.Background(), PollRequest{GatewayReferenceID: "plink_123", UserID: 41}); !errors.Is(err, ErrPendingOrderNotFound) {
		t.Fatalf("expected ErrPendingOrderNotFound for foreign user, got %v", err)
	}
	if f.orders.Count() != 0 {
		t.Fatalf("foreign poll must not materialize")
	}
}

func TestPollExpiredLink(t *testing.T) {
	f, _ := newFixture(t)
	f.gateway.fetched = gateway.PaymentLink{ID: "plink_123", Status: gateway.LinkStatusExpired}

	if _, err := f.reconciler.Complete(context.Background(), PollRequest{GatewayReferenceID: "plink_123", UserID: 42}); !errors.Is(err, ErrPaymentExpired) {
		t.Fatalf("expected ErrPaymentExpired, got %v", err)
	}
}

// When a crashed attempt left both the confirmed order and the staging
// record behind, any channel hitting the idempotency shortcut must also
// finish the staging cleanup.
func TestIdempotentHitDeletesStalePending(t *testing.T) {
	f, po := newFixture(t)
	ctx := context.Background()

	if _, err := f.orders.CreateConfirmed(order.Order{
		UserID:            po.UserID,
		OrderNumber:       po.OrderNumber,
		Status:            order.StatusConfirmed,
		PaymentStatus:     order.PaymentStatusCompleted,
		GatewayOrderRef:   po.GatewayReferenceID,
		GatewayPaymentRef: "pay_abc",
	}); err != nil {
		t.Fatalf("seed crashed attempt: %v", err)
	}

	res, err := f.reconciler.Complete(ctx, PollRequest{GatewayReferenceID: "plink_123", UserID: 42})
	if err != nil {
		t.Fatalf("Complete(poll): %v", err)
	}
	if res.GatewayPaymentID != "pay_abc" {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.pending.Count() != 0 {
		t.Fatalf("idempotent poll left %d stale pending order(s)", f.pending.Count())
	}
}

func TestPendingNotFoundRechecksIdempotency(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()

	// settle via webhook, which deletes the staging record
	first, err := f.reconciler.Complete(ctx, paidWebhook("pay_abc"))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}

	// a late webhook retry finds no pending order but must still succeed
	res, err := f.reconciler.Complete(ctx, paidWebhook("pay_abc"))
	if err != nil {
		t.Fatalf("late retry should resolve to the existing order: %v", err)
	}
	if res.OrderID != first.OrderID || !res.AlreadyProcessed {
		t.Fatalf("unexpected result %+v", res)
	}
}
