package pendingorder

import "sync"

// Repository stores pending orders keyed by the gateway's reference id.
type Repository interface {
	Create(po PendingOrder) (PendingOrder, error)
	// GetByReference looks up a pending order without a user scope; the
	// webhook path uses this because it has no user context.
	GetByReference(ref string) (PendingOrder, error)
	// GetByReferenceForUser scopes the lookup to the requesting user.
	GetByReferenceForUser(ref string, userID int) (PendingOrder, error)
	// UpdateReference swaps a temporary placeholder reference for the real
	// gateway id; it is the only mutation a pending order ever sees.
	UpdateReference(id int, ref string) error
	Delete(id int) error
}

// InMemoryRepository is used by tests and local scenarios.
type InMemoryRepository struct {
	mu     sync.Mutex
	orders []PendingOrder
	nextID int
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{nextID: 1}
}

func (r *InMemoryRepository) Create(po PendingOrder) (PendingOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	po.ID = r.nextID
	r.nextID++
	r.orders = append(r.orders, po)
	return po, nil
}

func (r *InMemoryRepository) GetByReference(ref string) (PendingOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, po := range r.orders {
		if po.GatewayReferenceID == ref {
			return po, nil
		}
	}
	return PendingOrder{}, ErrNotFound
}

func (r *InMemoryRepository) GetByReferenceForUser(ref string, userID int) (PendingOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, po := range r.orders {
		if po.GatewayReferenceID == ref && po.UserID == userID {
			return po, nil
		}
	}
	return PendingOrder{}, ErrNotFound
}

func (r *InMemoryRepository) UpdateReference(id int, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, po := range r.orders {
		if po.ID == id {
			r.orders[i].GatewayReferenceID = ref
			return nil
		}
	}
	return ErrNotFound
}

func (r *InMemoryRepository) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, po := range r.orders {
		if po.ID == id {
			r.orders = append(r.orders[:i], r.orders[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Count reports how many pending orders remain, for test assertions.
func (r *InMemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}
