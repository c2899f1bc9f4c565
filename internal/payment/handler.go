package payment

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wichananm65/storefront-backend/internal/cart"
	"github.com/wichananm65/storefront-backend/internal/gateway"
	"github.com/wichananm65/storefront-backend/internal/metrics"
	"github.com/wichananm65/storefront-backend/internal/pendingorder"
	"github.com/wichananm65/storefront-backend/internal/user"
)

// Handler exposes payment initiation, the three completion channels and the
// authenticated status poll.
type Handler struct {
	initiation *InitiationService
	reconciler *Reconciler
	successURL string
	failureURL string
}

func NewHandler(initiation *InitiationService, reconciler *Reconciler, successURL, failureURL string) *Handler {
	return &Handler{
		initiation: initiation,
		reconciler: reconciler,
		successURL: successURL,
		failureURL: failureURL,
	}
}

// RegisterPublicRoutes registers the channels that carry no user session: the
// gateway webhook and the browser redirect callback. These must be mounted
// before the JWT middleware.
func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	app.Post("/webhook/payment", h.webhook)
	app.Get("/payment/callback", h.callback)
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Post("/api/v1/payment/initiate", h.initiate)
	app.Post("/api/v1/payment/verify", h.verify)
}

type initiateRequest struct {
	Mode            string                       `json:"mode"`
	Items           []cart.Item                  `json:"items"`
	TotalAmount     float64                      `json:"totalAmount"`
	DeliveryAddress pendingorder.DeliveryAddress `json:"deliveryAddress"`
	PriceBreakdown  *pendingorder.PriceBreakdown `json:"priceBreakdown,omitempty"`
}

func (h *Handler) initiate(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}

	payload := new(initiateRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}

	result, err := h.initiation.Initiate(c.Context(), InitiationRequest{
		UserID:          userID,
		Mode:            Mode(payload.Mode),
		Items:           payload.Items,
		TotalAmount:     payload.TotalAmount,
		DeliveryAddress: payload.DeliveryAddress,
		PriceBreakdown:  payload.PriceBreakdown,
	})
	if err != nil {
		requestID := uuid.NewString()
		if errors.Is(err, ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message":    err.Error(),
				"request_id": requestID,
			})
		}
		logger.Error().Str("request_id", requestID).Err(err).Msg("payment initiation failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message":    "could not start payment, please try again",
			"request_id": requestID,
		})
	}
	return c.JSON(result)
}

type verifyRequest struct {
	PaymentLinkID      string `json:"payment_link_id"`
	ManualVerification bool   `json:"manual_verification"`
}

// verify is the manual-poll channel: an authenticated client asking whether a
// reference has settled.
func (h *Handler) verify(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}

	payload := new(verifyRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}

	result, err := h.reconciler.Complete(c.Context(), PollRequest{
		GatewayReferenceID: payload.PaymentLinkID,
		UserID:             userID,
	})
	switch {
	case err == nil:
		metrics.PaymentOutcomes.WithLabelValues("poll", "paid").Inc()
		return c.JSON(fiber.Map{
			"success":    true,
			"order_id":   result.OrderID,
			"payment_id": result.GatewayPaymentID,
		})
	case errors.Is(err, ErrPaymentNotCompleted):
		metrics.PaymentOutcomes.WithLabelValues("poll", "pending").Inc()
		return c.JSON(fiber.Map{"success": false})
	case errors.Is(err, ErrPaymentExpired):
		metrics.PaymentOutcomes.WithLabelValues("poll", "expired").Inc()
		return c.JSON(fiber.Map{"success": false, "expired": true})
	case errors.Is(err, ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, ErrPendingOrderNotFound):
		metrics.PaymentOutcomes.WithLabelValues("poll", "not_found").Inc()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "failed": true})
	default:
		requestID := uuid.NewString()
		metrics.PaymentOutcomes.WithLabelValues("poll", "error").Inc()
		logger.Error().Str("request_id", requestID).Err(err).Msg("manual verification failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":    false,
			"failed":     true,
			"request_id": requestID,
		})
	}
}

// webhook is the gateway's server-to-server channel. It replies 200 even for
// events it ignores so the gateway stops retrying; only transport-level
// problems earn an error status.
func (h *Handler) webhook(c *fiber.Ctx) error {
	body := make([]byte, len(c.Body()))
	copy(body, c.Body())

	_, err := h.reconciler.Complete(c.Context(), WebhookEvidence{
		Body:      body,
		Signature: c.Get("X-Razorpay-Signature"),
	})
	switch {
	case err == nil:
		metrics.PaymentOutcomes.WithLabelValues("webhook", "paid").Inc()
		return c.JSON(fiber.Map{"status": "ok"})
	case errors.Is(err, ErrInvalidSignature):
		// security event, already logged by the reconciler
		metrics.PaymentOutcomes.WithLabelValues("webhook", "invalid_signature").Inc()
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "rejected"})
	case errors.Is(err, ErrPaymentNotCompleted):
		// non-settlement event; acknowledge so the gateway does not retry
		return c.JSON(fiber.Map{"status": "ignored"})
	case errors.Is(err, ErrPendingOrderNotFound):
		metrics.PaymentOutcomes.WithLabelValues("webhook", "not_found").Inc()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"status": "unknown reference"})
	default:
		metrics.PaymentOutcomes.WithLabelValues("webhook", "error").Inc()
		logger.Error().Err(err).Msg("webhook processing failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error"})
	}
}

// callback is the browser-redirect channel; it answers with a redirect to the
// storefront's success or failure page, never an API error body.
func (h *Handler) callback(c *fiber.Ctx) error {
	ev := RedirectEvidence{Params: gateway.CallbackParams{
		PaymentLinkID:     c.Query("razorpay_payment_link_id"),
		PaymentID:         c.Query("razorpay_payment_id"),
		PaymentLinkStatus: c.Query("razorpay_payment_link_status"),
		Signature:         c.Query("razorpay_signature"),
	}}

	result, err := h.reconciler.Complete(c.Context(), ev)
	if err != nil {
		metrics.PaymentOutcomes.WithLabelValues("redirect", "failed").Inc()
		logger.Warn().Err(err).Str("link_id", ev.Params.PaymentLinkID).Msg("redirect callback did not settle")
		return c.Redirect(h.failureURL, fiber.StatusFound)
	}
	metrics.PaymentOutcomes.WithLabelValues("redirect", "paid").Inc()
	return c.Redirect(h.successURL+"?order_number="+result.OrderNumber, fiber.StatusFound)
}
