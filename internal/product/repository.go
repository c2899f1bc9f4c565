package product

import "sync"

// Repository exposes the product lookups and the single stock mutation the
// order pipeline performs.
type Repository interface {
	GetByID(id int) (Product, error)
	ListByIDs(ids []int) ([]Product, error)
	// DecrementStock atomically decreases stock_quantity by qty when at least
	// qty units remain. It returns ErrInsufficientStock (without mutating
	// anything) when current stock is lower than qty.
	DecrementStock(id, qty int) error
}

// InMemoryRepository is used by tests and local scenarios.
type InMemoryRepository struct {
	mu       sync.Mutex
	products map[int]Product
}

func NewInMemoryRepository(seed []Product) *InMemoryRepository {
	r := &InMemoryRepository{products: make(map[int]Product, len(seed))}
	for _, p := range seed {
		r.products[p.ID] = p
	}
	return r
}

func (r *InMemoryRepository) GetByID(id int) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (r *InMemoryRepository) ListByIDs(ids []int) ([]Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) DecrementStock(id, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return ErrNotFound
	}
	if p.StockQuantity < qty {
		return ErrInsufficientStock
	}
	p.StockQuantity -= qty
	r.products[id] = p
	return nil
}

// Stock reports current stock for assertions in tests.
func (r *InMemoryRepository) Stock(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].StockQuantity
}
