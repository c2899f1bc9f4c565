package order

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/storefront-backend/internal/user"
)

// Handler serves customer order reads plus the seller/admin dispatch
// endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/orders", h.listOrders)
	app.Get("/api/v1/orders/:id<[0-9]+>", h.getOrder)
	app.Get("/api/v1/seller/order-items", h.listSellerItems)
	app.Post("/api/v1/seller/order-items/:id<[0-9]+>/request-dispatch", h.requestDispatch)
	app.Post("/api/v1/admin/order-items/:id<[0-9]+>/dispatch", h.markDispatched)
	app.Post("/api/v1/admin/order-items/:id<[0-9]+>/deliver", h.markDelivered)
}

func (h *Handler) listOrders(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	orders, err := h.service.ListByUser(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	return c.JSON(orders)
}

func (h *Handler) getOrder(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid order id"})
	}
	o, err := h.service.GetForUser(id, userID)
	if err != nil {
		if err == ErrNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "order not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	return c.JSON(o)
}

func (h *Handler) listSellerItems(c *fiber.Ctx) error {
	sellerID, err := requireRole(c, user.RoleShopOwner)
	if err != nil {
		return err
	}
	items, err := h.service.ListSellerItems(sellerID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	return c.JSON(items)
}

func (h *Handler) requestDispatch(c *fiber.Ctx) error {
	sellerID, err := requireRole(c, user.RoleShopOwner)
	if err != nil {
		return err
	}
	itemID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid item id"})
	}
	it, err := h.service.RequestDispatch(itemID, sellerID)
	return respondItem(c, it, err)
}

func (h *Handler) markDispatched(c *fiber.Ctx) error {
	if _, err := requireRole(c, user.RoleAdmin); err != nil {
		return err
	}
	itemID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid item id"})
	}
	it, err := h.service.MarkDispatched(itemID)
	return respondItem(c, it, err)
}

func (h *Handler) markDelivered(c *fiber.Ctx) error {
	if _, err := requireRole(c, user.RoleAdmin); err != nil {
		return err
	}
	itemID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid item id"})
	}
	it, err := h.service.MarkDelivered(itemID)
	return respondItem(c, it, err)
}

func respondItem(c *fiber.Ctx, it OrderItem, err error) error {
	switch err {
	case nil:
		return c.JSON(it)
	case ErrNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "order item not found"})
	case ErrInvalidTransition:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": "item is not in the expected state"})
	case ErrNotOwner:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "item belongs to another shop"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
}

// requireRole returns the authenticated user id when the JWT carries the
// wanted role. Errors are fiber errors so handlers can return them directly.
func requireRole(c *fiber.Ctx, role string) (int, error) {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return 0, fiber.ErrUnauthorized
	}
	got, err := user.GetRoleFromCtx(c)
	if err != nil {
		return 0, fiber.ErrUnauthorized
	}
	// admins may use seller endpoints for support operations
	if got != role && got != user.RoleAdmin {
		return 0, fiber.ErrForbidden
	}
	return userID, nil
}
