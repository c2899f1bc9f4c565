package order

import (
	"sync"
	"testing"
	"time"

	"github.com/wichananm65/storefront-backend/internal/cart"
	"github.com/wichananm65/storefront-backend/internal/pendingorder"
	"github.com/wichananm65/storefront-backend/internal/product"
)

func seedPending(t *testing.T, pending *pendingorder.InMemoryRepository) pendingorder.PendingOrder {
	t.Helper()
	po, err := pending.Create(pendingorder.PendingOrder{
		UserID:      42,
		OrderNumber: "ORD-1740812400000-4821",
		TotalAmount: 498,
		DeliveryAddress: pendingorder.DeliveryAddress{
			Name: "Asha", City: "Pune", Phone: "9999999999",
		},
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
	return po
}

func seedProducts() *product.InMemoryRepository {
	return product.NewInMemoryRepository([]product.Product{
		{ID: 1, Title: "Collar", Price: 199, ShopOwnerID: 7, StockQuantity: 5},
		{ID: 2, Title: "Leash", Price: 100, ShopOwnerID: 8, StockQuantity: 3},
	})
}

// A crash after the confirmed-order insert but before the staging cleanup
// leaves both rows behind. Re-entering must hand back the existing order and
// finish the cleanup.
func TestMaterializeReentryDeletesStalePending(t *testing.T) {
	orders := NewInMemoryRepository()
	pending := pendingorder.NewInMemoryRepository()
	products := seedProducts()
	po := seedPending(t, pending)

	if _, err := orders.CreateConfirmed(Order{
		UserID:            po.UserID,
		OrderNumber:       po.OrderNumber,
		Status:            StatusConfirmed,
		PaymentStatus:     PaymentStatusCompleted,
		GatewayOrderRef:   po.GatewayReferenceID,
		GatewayPaymentRef: "pay_abc",
	}); err != nil {
		t.Fatalf("seed crashed attempt: %v", err)
	}

	m := NewMaterializer(orders, pending, products, nil)
	got, err := m.Materialize(po, "pay_abc")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if got.OrderNumber != po.OrderNumber {
		t.Errorf("expected the existing order back, got %+v", got)
	}
	if orders.Count() != 1 {
		t.Errorf("re-entry must not create a second order, have %d", orders.Count())
	}
	if pending.Count() != 0 {
		t.Errorf("re-entry left %d stale pending order(s)", pending.Count())
	}
}

func TestMaterializeCreatesOrderAndCleansUp(t *testing.T) {
	orders := NewInMemoryRepository()
	pending := pendingorder.NewInMemoryRepository()
	products := seedProducts()
	po := seedPending(t, pending)

	m := NewMaterializer(orders, pending, products, nil)
	created, err := m.Materialize(po, "pay_abc")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if created.Status != StatusConfirmed || created.PaymentStatus != PaymentStatusCompleted {
		t.Errorf("unexpected statuses %q/%q", created.Status, created.PaymentStatus)
	}
	if created.OrderNumber != "ORD-1740812400000-4821" {
		t.Errorf("order number must be kept from initiation, got %q", created.OrderNumber)
	}
	if created.GatewayPaymentRef != "pay_abc" || created.GatewayOrderRef != "plink_123" {
		t.Errorf("gateway refs not recorded: %+v", created)
	}
	if len(created.OrderItems) != 2 {
		t.Fatalf("expected 2 order items, got %d", len(created.OrderItems))
	}
	// seller ids resolved from the product records
	if created.OrderItems[0].ShopOwnerID != 7 || created.OrderItems[1].ShopOwnerID != 8 {
		t.Errorf("shop owners not resolved from products: %+v", created.OrderItems)
	}
	for _, it := range created.OrderItems {
		if it.Status != ItemStatusPending {
			t.Errorf("item %d status = %q, want pending", it.ID, it.Status)
		}
	}
	// stock decremented
	if products.Stock(1) != 3 || products.Stock(2) != 2 {
		t.Errorf("stock not decremented: %d, %d", products.Stock(1), products.Stock(2))
	}
	// staging record gone
	if pending.Count() != 0 {
		t.Errorf("pending order not deleted")
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	orders := NewInMemoryRepository()
	pending := pendingorder.NewInMemoryRepository()
	products := seedProducts()
	po := seedPending(t, pending)

	m := NewMaterializer(orders, pending, products, nil)
	first, err := m.Materialize(po, "pay_abc")
	if err != nil {
		t.Fatalf("first Materialize: %v", err)
	}

	for i := 0; i < 5; i++ {
		again, err := m.Materialize(po, "pay_abc")
		if err != nil {
			t.Fatalf("repeat Materialize: %v", err)
		}
		if again.ID != first.ID {
			t.Fatalf("expected existing order %d, got %d", first.ID, again.ID)
		}
	}
	if orders.Count() != 1 {
		t.Fatalf("expected exactly one order, got %d", orders.Count())
	}
	// stock decremented exactly once
	if products.Stock(1) != 3 {
		t.Fatalf("stock decremented more than once: %d", products.Stock(1))
	}
}

func TestMaterializeRaceProducesOneOrder(t *testing.T) {
	orders := NewInMemoryRepository()
	pending := pendingorder.NewInMemoryRepository()
	products := seedProducts()
	po := seedPending(t, pending)

	m := NewMaterializer(orders, pending, products, nil)

	// webhook and manual poll hitting materialization at the same instant
	var wg sync.WaitGroup
	results := make([]Order, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Materialize(po, "pay_abc")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("racer %d failed: %v", i, errs[i])
		}
	}
	if results[0].ID != results[1].ID {
		t.Fatalf("racers produced different orders: %d vs %d", results[0].ID, results[1].ID)
	}
	if orders.Count() != 1 {
		t.Fatalf("expected exactly one order after race, got %d", orders.Count())
	}
	if pending.Count() != 0 {
		t.Fatalf("pending order should be deleted exactly once")
	}
}

func TestMaterializeSkipsVanishedProduct(t *testing.T) {
	orders := NewInMemoryRepository()
	pending := pendingorder.NewInMemoryRepository()
	// product 2 was deleted after the cart was built
	products := product.NewInMemoryRepository([]product.Product{
		{ID: 1, Title: "Collar", Price: 199, ShopOwnerID: 7, StockQuantity: 5},
	})
	po := seedPending(t, pending)

	m := NewMaterializer(orders, pending, products, nil)
	created, err := m.Materialize(po, "pay_abc")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	// the order survives with the remaining line
	if len(created.OrderItems) != 1 || created.OrderItems[0].ProductID != 1 {
		t.Fatalf("expected one surviving line item, got %+v", created.OrderItems)
	}
	// the full payment snapshot is still on the order for reconciliation
	if len(created.Items) != 2 {
		t.Fatalf("cart snapshot must be preserved, got %d items", len(created.Items))
	}
}

func TestMaterializeInsufficientStockStillCreatesOrder(t *testing.T) {
	orders := NewInMemoryRepository()
	pending := pendingorder.NewInMemoryRepository()
	products := product.NewInMemoryRepository([]product.Product{
		{ID: 1, Title: "Collar", Price: 199, ShopOwnerID: 7, StockQuantity: 1}, // cart wants 2
		{ID: 2, Title: "Leash", Price: 100, ShopOwnerID: 8, StockQuantity: 3},
	})
	po := seedPending(t, pending)

	m := NewMaterializer(orders, pending, products, nil)
	created, err := m.Materialize(po, "pay_abc")
	if err != nil {
		t.Fatalf("Materialize must not fail on insufficient stock: %v", err)
	}
	if len(created.OrderItems) != 2 {
		t.Fatalf("order items missing: %+v", created.OrderItems)
	}
	// the failed decrement left stock untouched; the good line went through
	if products.Stock(1) != 1 {
		t.Errorf("product 1 stock mutated despite insufficient quantity: %d", products.Stock(1))
	}
	if products.Stock(2) != 2 {
		t.Errorf("product 2 stock not decremented: %d", products.Stock(2))
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	products := product.NewInMemoryRepository([]product.Product{
		{ID: 1, Title: "Collar", Price: 199, ShopOwnerID: 7, StockQuantity: 1},
	})

	newPending := func(ref string) (pendingorder.PendingOrder, *pendingorder.InMemoryRepository) {
		pending := pendingorder.NewInMemoryRepository()
		po, _ := pending.Create(pendingorder.PendingOrder{
			UserID:             42,
			OrderNumber:        "ORD-" + ref,
			TotalAmount:        199,
			Items:              []cart.Item{{ProductID: 1, Title: "Collar", Price: 199, Quantity: 1, MaxStock: 1}},
			GatewayReferenceID: ref,
			CreatedAt:          time.Now().UTC(),
		})
		return po, pending
	}

	orders := NewInMemoryRepository()
	poA, pendingA := newPending("plink_a")
	poB, pendingB := newPending("plink_b")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		NewMaterializer(orders, pendingA, products, nil).Materialize(poA, "pay_a")
	}()
	go func() {
		defer wg.Done()
		NewMaterializer(orders, pendingB, products, nil).Materialize(poB, "pay_b")
	}()
	wg.Wait()

	// both orders exist (both payments were captured) but stock hit zero once
	if orders.Count() != 2 {
		t.Fatalf("expected both paid orders to exist, got %d", orders.Count())
	}
	if products.Stock(1) != 0 {
		t.Fatalf("stock oversold or untouched: %d", products.Stock(1))
	}
}
