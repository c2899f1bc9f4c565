package order

import (
	"sync"
	"time"
)

// Repository persists confirmed orders and their per-seller line items.
type Repository interface {
	// CreateConfirmed inserts the order and its items in one transaction.
	// Returns ErrDuplicatePayment when an order already exists for the same
	// GatewayPaymentRef; the caller resolves that by fetching the winner.
	CreateConfirmed(o Order) (Order, error)
	GetByPaymentRef(paymentRef string) (Order, error)
	GetByGatewayRef(gatewayRef string) (Order, error)
	GetByID(id int) (Order, error)
	ListByUser(userID int) ([]Order, error)
	ListItemsByShopOwner(shopOwnerID int) ([]OrderItem, error)
	GetItem(itemID int) (OrderItem, error)
	// TransitionItem moves an item from one dispatch state to the next,
	// recording the transition timestamp. The update is conditional on the
	// current state so an item not in `from` yields ErrInvalidTransition.
	TransitionItem(itemID int, from, to string, at time.Time) (OrderItem, error)
}

// InMemoryRepository is used by tests and local scenarios. Its payment-ref
// uniqueness check runs under the same lock as the insert, mirroring the
// UNIQUE constraint the Postgres repository relies on.
type InMemoryRepository struct {
	mu         sync.Mutex
	orders     []Order
	nextID     int
	nextItemID int
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{nextID: 1, nextItemID: 1}
}

func (r *InMemoryRepository) CreateConfirmed(o Order) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orders {
		if existing.GatewayPaymentRef == o.GatewayPaymentRef {
			return Order{}, ErrDuplicatePayment
		}
	}
	o.ID = r.nextID
	r.nextID++
	for i := range o.OrderItems {
		o.OrderItems[i].ID = r.nextItemID
		o.OrderItems[i].OrderID = o.ID
		r.nextItemID++
	}
	r.orders = append(r.orders, o)
	return o, nil
}

func (r *InMemoryRepository) GetByPaymentRef(paymentRef string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.GatewayPaymentRef == paymentRef {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (r *InMemoryRepository) GetByGatewayRef(gatewayRef string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.GatewayOrderRef == gatewayRef {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (r *InMemoryRepository) GetByID(id int) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (r *InMemoryRepository) ListByUser(userID int) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Order, 0)
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) ListItemsByShopOwner(shopOwnerID int) ([]OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]OrderItem, 0)
	for _, o := range r.orders {
		for _, it := range o.OrderItems {
			if it.ShopOwnerID == shopOwnerID {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

func (r *InMemoryRepository) GetItem(itemID int) (OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		for _, it := range o.OrderItems {
			if it.ID == itemID {
				return it, nil
			}
		}
	}
	return OrderItem{}, ErrNotFound
}

func (r *InMemoryRepository) TransitionItem(itemID int, from, to string, at time.Time) (OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for oi, o := range r.orders {
		for ii, it := range o.OrderItems {
			if it.ID != itemID {
				continue
			}
			if it.Status != from {
				return OrderItem{}, ErrInvalidTransition
			}
			it.Status = to
			switch to {
			case ItemStatusDispatchRequest:
				it.DispatchRequestedAt = &at
			case ItemStatusDispatched:
				it.DispatchedAt = &at
			case ItemStatusDelivered:
				it.DeliveredAt = &at
			}
			r.orders[oi].OrderItems[ii] = it
			return it, nil
		}
	}
	return OrderItem{}, ErrNotFound
}

// Count reports the number of stored orders, for test assertions.
func (r *InMemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}
