package product

import "errors"

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product maps to the `products` table. Only the columns order
// materialization needs are modelled here; the full catalog surface is owned
// by the storefront backend-as-a-service.
type Product struct {
	ID            int     `json:"productId"`
	Title         string  `json:"title"`
	Price         float64 `json:"price"`
	ShopOwnerID   int     `json:"shopOwnerId"`
	StockQuantity int     `json:"stockQuantity"`
}
