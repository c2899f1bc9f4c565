package cart

import "errors"

var (
	ErrEmptyCart   = errors.New("cart cannot be empty")
	ErrInvalidItem = errors.New("cart item is invalid")
)

// Item is an immutable snapshot of one product line at checkout time. Price is
// the major-unit price the customer saw; MaxStock is the stock known to the
// client when the cart was built; the authoritative stock check happens at
// materialization.
type Item struct {
	ProductID int     `json:"productId"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image,omitempty"`
	MaxStock  int     `json:"maxStock"`
}

// Validate checks a checkout snapshot before a payment intent is created.
func Validate(items []Item) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	for _, it := range items {
		if it.ProductID <= 0 || it.Quantity <= 0 || it.Price < 0 {
			return ErrInvalidItem
		}
	}
	return nil
}

// Total sums the line totals in major units.
func Total(items []Item) float64 {
	var total float64
	for _, it := range items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}
