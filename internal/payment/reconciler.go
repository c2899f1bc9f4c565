package payment

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/wichananm65/storefront-backend/internal/gateway"
	"github.com/wichananm65/storefront-backend/internal/order"
	"github.com/wichananm65/storefront-backend/internal/pendingorder"
	"github.com/wichananm65/storefront-backend/internal/signature"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "reconciler").Logger()

// Reconciler converges the three completion channels (webhook, redirect
// callback, manual poll) onto one idempotent materialization. The channels
// are not mutually exclusive and can fire concurrently or out of order; the
// only serialization point is the payment-ref uniqueness guard inside the
// order store, so every path here is safe to repeat.
type Reconciler struct {
	pending       pendingorder.Repository
	orders        order.Repository
	materializer  *order.Materializer
	gateway       gateway.Client
	keySecret     string
	webhookSecret string
}

func NewReconciler(pending pendingorder.Repository, orders order.Repository, materializer *order.Materializer, gw gateway.Client, keySecret, webhookSecret string) *Reconciler {
	return &Reconciler{
		pending:       pending,
		orders:        orders,
		materializer:  materializer,
		gateway:       gw,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
	}
}

// Complete handles a completion signal from any channel. The switch is
// exhaustive over the Evidence union.
func (r *Reconciler) Complete(ctx context.Context, ev Evidence) (Result, error) {
	switch e := ev.(type) {
	case WebhookEvidence:
		return r.completeWebhook(e)
	case RedirectEvidence:
		return r.completeRedirect(ctx, e)
	case PollRequest:
		return r.completePoll(ctx, e)
	default:
		return Result{}, fmt.Errorf("%w: unknown evidence channel", ErrInvalidRequest)
	}
}

// completeWebhook trusts nothing until the raw body's HMAC checks out. The
// webhook has no user session; the signature is its entire authority.
func (r *Reconciler) completeWebhook(ev WebhookEvidence) (Result, error) {
	if !signature.VerifyWebhookSignature(ev.Body, ev.Signature, r.webhookSecret) {
		logger.Warn().Str("channel", "webhook").Msg("webhook signature verification failed")
		return Result{}, ErrInvalidSignature
	}

	event, err := gateway.ParseWebhook(ev.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: undecodable webhook body", ErrInvalidRequest)
	}
	if event.Event != gateway.EventPaymentLinkPaid && event.Event != gateway.EventPaymentCaptured {
		// not a settlement event; acknowledged and ignored
		return Result{}, ErrPaymentNotCompleted
	}

	ref := event.Payload.PaymentLink.Entity.ID
	paymentID := event.Payload.Payment.Entity.ID
	if ref == "" || paymentID == "" {
		return Result{}, fmt.Errorf("%w: webhook missing identifiers", ErrInvalidRequest)
	}
	// webhook path is unscoped: there is no user context to scope by
	return r.converge(ref, paymentID, 0)
}

// completeRedirect handles the browser callback. The query parameters are
// client-supplied; a valid order+payment signature lets us settle directly,
// anything else falls back to asking the gateway itself.
func (r *Reconciler) completeRedirect(ctx context.Context, ev RedirectEvidence) (Result, error) {
	p := ev.Params
	if p.PaymentLinkID == "" {
		return Result{}, fmt.Errorf("%w: missing payment link id", ErrInvalidRequest)
	}

	if p.Signature != "" && p.PaymentID != "" {
		if signature.VerifyPaymentSignature(p.PaymentLinkID, p.PaymentID, p.Signature, r.keySecret) {
			return r.converge(p.PaymentLinkID, p.PaymentID, 0)
		}
		// a forged "paid" claim must never create an order, but it may still
		// be a legitimate payment with a mangled signature, so confirm with
		// the gateway rather than taking the client's word either way
		logger.Warn().Str("channel", "redirect").Str("link_id", p.PaymentLinkID).
			Msg("redirect signature verification failed, falling back to gateway confirmation")
	}
	return r.confirmWithGateway(ctx, p.PaymentLinkID, 0)
}

// completePoll re-queries the gateway's own status API; the client supplies
// only the reference id, never a payment id.
func (r *Reconciler) completePoll(ctx context.Context, ev PollRequest) (Result, error) {
	if ev.GatewayReferenceID == "" {
		return Result{}, fmt.Errorf("%w: missing gateway reference", ErrInvalidRequest)
	}
	return r.confirmWithGateway(ctx, ev.GatewayReferenceID, ev.UserID)
}

// confirmWithGateway settles a reference by asking the gateway for the
// authoritative link status.
func (r *Reconciler) confirmWithGateway(ctx context.Context, ref string, userID int) (Result, error) {
	// a previously recorded outcome makes the gateway round-trip unnecessary
	if existing, err := r.orders.GetByGatewayRef(ref); err == nil {
		r.cleanupStalePending(ref)
		return existingResult(existing), nil
	}

	link, err := r.gateway.FetchPaymentLink(ctx, ref)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}
	switch link.Status {
	case gateway.LinkStatusPaid:
	case gateway.LinkStatusExpired, gateway.LinkStatusCancelled:
		return Result{}, ErrPaymentExpired
	default:
		return Result{}, ErrPaymentNotCompleted
	}

	paymentID := settledPaymentID(link)
	if paymentID == "" {
		// paid but the payment entity has not propagated yet; try again later
		return Result{}, ErrPaymentNotCompleted
	}
	return r.converge(ref, paymentID, userID)
}

// converge is the unified handling every channel ends in: idempotency check,
// pending-order lookup, materialization.
func (r *Reconciler) converge(ref, paymentID string, userID int) (Result, error) {
	if existing, err := r.orders.GetByPaymentRef(paymentID); err == nil {
		r.cleanupStalePending(ref)
		res := existingResult(existing)
		res.AlreadyProcessed = true
		return res, nil
	} else if err != order.ErrNotFound {
		return Result{}, err
	}

	var po pendingorder.PendingOrder
	var err error
	if userID > 0 {
		po, err = r.pending.GetByReferenceForUser(ref, userID)
	} else {
		po, err = r.pending.GetByReference(ref)
	}
	if err == pendingorder.ErrNotFound {
		// materialization may have just completed and cleaned up the staging
		// record; re-check before calling this a failure
		if existing, err2 := r.orders.GetByPaymentRef(paymentID); err2 == nil {
			res := existingResult(existing)
			res.AlreadyProcessed = true
			return res, nil
		}
		return Result{}, ErrPendingOrderNotFound
	}
	if err != nil {
		return Result{}, err
	}

	created, err := r.materializer.Materialize(po, paymentID)
	if err != nil {
		return Result{}, err
	}
	logger.Info().Str("gateway_ref", ref).Str("payment_id", paymentID).
		Int("order_id", created.ID).Msg("payment reconciled")
	return Result{
		OrderID:          created.ID,
		OrderNumber:      created.OrderNumber,
		GatewayPaymentID: paymentID,
	}, nil
}

// cleanupStalePending removes a staging record that survived a crashed
// earlier materialization attempt. By the time an order exists for the
// reference the staging record has no further purpose.
func (r *Reconciler) cleanupStalePending(ref string) {
	po, err := r.pending.GetByReference(ref)
	if err != nil {
		return
	}
	if err := r.pending.Delete(po.ID); err != nil && err != pendingorder.ErrNotFound {
		logger.Error().Int("pending_id", po.ID).Err(err).Msg("failed to delete stale pending order")
	}
}

func existingResult(o order.Order) Result {
	return Result{
		OrderID:          o.ID,
		OrderNumber:      o.OrderNumber,
		GatewayPaymentID: o.GatewayPaymentRef,
	}
}

func settledPaymentID(link gateway.PaymentLink) string {
	for _, p := range link.Payments {
		if p.Status == "captured" || p.Status == "paid" {
			return p.PaymentID
		}
	}
	if len(link.Payments) > 0 {
		return link.Payments[0].PaymentID
	}
	return ""
}
