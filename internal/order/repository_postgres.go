package order

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/wichananm65/storefront-backend/internal/pendingorder"
)

type PostgresRepository struct {
	db *sql.DB
}

const (
	insertOrderQuery = `
		INSERT INTO orders (user_id, order_number, total_amount, status, payment_status, razorpay_order_id, razorpay_payment_id, delivery_address, items, price_breakdown, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`
	insertOrderItemQuery = `
		INSERT INTO order_items (order_id, product_id, shop_owner_id, quantity, price, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`
	selectOrderColumns = `
		SELECT id, user_id, order_number, total_amount, status, payment_status, razorpay_order_id, razorpay_payment_id, delivery_address, items, price_breakdown, created_at, updated_at
		FROM orders
	`
	selectItemColumns = `
		SELECT id, order_id, product_id, shop_owner_id, quantity, price, status, dispatch_requested_at, dispatched_at, delivered_at
		FROM order_items
	`
)

const uniqueViolation = "23505"

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateConfirmed(o Order) (Order, error) {
	addrJSON, err := json.Marshal(o.DeliveryAddress)
	if err != nil {
		return Order{}, err
	}
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return Order{}, err
	}
	var breakdownJSON []byte
	if o.PriceBreakdown != nil {
		breakdownJSON, err = json.Marshal(o.PriceBreakdown)
		if err != nil {
			return Order{}, err
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return Order{}, err
	}
	defer tx.Rollback()

	err = tx.QueryRow(insertOrderQuery,
		o.UserID, o.OrderNumber, o.TotalAmount, o.Status, o.PaymentStatus,
		o.GatewayOrderRef, o.GatewayPaymentRef, addrJSON, itemsJSON, breakdownJSON,
		o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	if err != nil {
		// the UNIQUE constraint on razorpay_payment_id is the serialization
		// point between racing completion channels
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return Order{}, ErrDuplicatePayment
		}
		return Order{}, err
	}

	for i := range o.OrderItems {
		it := &o.OrderItems[i]
		it.OrderID = o.ID
		if err := tx.QueryRow(insertOrderItemQuery,
			o.ID, it.ProductID, it.ShopOwnerID, it.Quantity, it.Price, it.Status).Scan(&it.ID); err != nil {
			return Order{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *PostgresRepository) GetByPaymentRef(paymentRef string) (Order, error) {
	return r.scanOrder(r.db.QueryRow(selectOrderColumns+` WHERE razorpay_payment_id = $1`, paymentRef))
}

func (r *PostgresRepository) GetByGatewayRef(gatewayRef string) (Order, error) {
	return r.scanOrder(r.db.QueryRow(selectOrderColumns+` WHERE razorpay_order_id = $1 ORDER BY id DESC LIMIT 1`, gatewayRef))
}

func (r *PostgresRepository) GetByID(id int) (Order, error) {
	o, err := r.scanOrder(r.db.QueryRow(selectOrderColumns+` WHERE id = $1`, id))
	if err != nil {
		return Order{}, err
	}
	items, err := r.listItems(selectItemColumns+` WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	o.OrderItems = items
	return o, nil
}

func (r *PostgresRepository) ListByUser(userID int) ([]Order, error) {
	rows, err := r.db.Query(selectOrderColumns+` WHERE user_id = $1 ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListItemsByShopOwner(shopOwnerID int) ([]OrderItem, error) {
	return r.listItems(selectItemColumns+` WHERE shop_owner_id = $1 ORDER BY id DESC`, shopOwnerID)
}

func (r *PostgresRepository) GetItem(itemID int) (OrderItem, error) {
	rows, err := r.listItems(selectItemColumns+` WHERE id = $1`, itemID)
	if err != nil {
		return OrderItem{}, err
	}
	if len(rows) == 0 {
		return OrderItem{}, ErrNotFound
	}
	return rows[0], nil
}

func (r *PostgresRepository) TransitionItem(itemID int, from, to string, at time.Time) (OrderItem, error) {
	var col string
	switch to {
	case ItemStatusDispatchRequest:
		col = "dispatch_requested_at"
	case ItemStatusDispatched:
		col = "dispatched_at"
	case ItemStatusDelivered:
		col = "delivered_at"
	default:
		return OrderItem{}, ErrInvalidTransition
	}

	// conditional on the current status so a stale or repeated request is
	// rejected instead of silently overwriting
	res, err := r.db.Exec(
		`UPDATE order_items SET status = $1, `+col+` = $2 WHERE id = $3 AND status = $4`,
		to, at, itemID, from)
	if err != nil {
		return OrderItem{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return OrderItem{}, err
	}
	if affected == 0 {
		if _, err := r.GetItem(itemID); err == ErrNotFound {
			return OrderItem{}, ErrNotFound
		}
		return OrderItem{}, ErrInvalidTransition
	}
	return r.GetItem(itemID)
}

func (r *PostgresRepository) listItems(query string, args ...interface{}) ([]OrderItem, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]OrderItem, 0)
	for rows.Next() {
		var it OrderItem
		var reqAt, dispAt, delivAt sql.NullTime
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ShopOwnerID,
			&it.Quantity, &it.Price, &it.Status, &reqAt, &dispAt, &delivAt); err != nil {
			return nil, err
		}
		if reqAt.Valid {
			it.DispatchRequestedAt = &reqAt.Time
		}
		if dispAt.Valid {
			it.DispatchedAt = &dispAt.Time
		}
		if delivAt.Valid {
			it.DeliveredAt = &delivAt.Time
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PostgresRepository) scanOrder(row rowScanner) (Order, error) {
	return scanOrderRow(row)
}

func scanOrderRow(row rowScanner) (Order, error) {
	var o Order
	var addrJSON, itemsJSON, breakdownJSON []byte
	err := row.Scan(&o.ID, &o.UserID, &o.OrderNumber, &o.TotalAmount, &o.Status,
		&o.PaymentStatus, &o.GatewayOrderRef, &o.GatewayPaymentRef,
		&addrJSON, &itemsJSON, &breakdownJSON, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}

	if err := json.Unmarshal(addrJSON, &o.DeliveryAddress); err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return Order{}, err
	}
	if len(breakdownJSON) > 0 {
		o.PriceBreakdown = &pendingorder.PriceBreakdown{}
		if err := json.Unmarshal(breakdownJSON, o.PriceBreakdown); err != nil {
			return Order{}, err
		}
	}
	return o, nil
}
