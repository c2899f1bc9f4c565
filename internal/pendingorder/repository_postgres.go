package pendingorder

import (
	"database/sql"
	"encoding/json"
)

type PostgresRepository struct {
	db *sql.DB
}

const (
	insertPendingOrderQuery = `
		INSERT INTO pending_orders (user_id, order_number, total_amount, delivery_address, items, razorpay_order_id, price_breakdown, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`
	getPendingByReferenceQuery = `
		SELECT id, user_id, order_number, total_amount, delivery_address, items, razorpay_order_id, price_breakdown, created_at
		FROM pending_orders
		WHERE razorpay_order_id = $1
	`
	getPendingByReferenceForUserQuery = `
		SELECT id, user_id, order_number, total_amount, delivery_address, items, razorpay_order_id, price_breakdown, created_at
		FROM pending_orders
		WHERE razorpay_order_id = $1 AND user_id = $2
	`
	updatePendingReferenceQuery = `UPDATE pending_orders SET razorpay_order_id = $1 WHERE id = $2`
	deletePendingOrderQuery     = `DELETE FROM pending_orders WHERE id = $1`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(po PendingOrder) (PendingOrder, error) {
	addrJSON, err := json.Marshal(po.DeliveryAddress)
	if err != nil {
		return PendingOrder{}, err
	}
	itemsJSON, err := json.Marshal(po.Items)
	if err != nil {
		return PendingOrder{}, err
	}
	var breakdownJSON []byte
	if po.PriceBreakdown != nil {
		breakdownJSON, err = json.Marshal(po.PriceBreakdown)
		if err != nil {
			return PendingOrder{}, err
		}
	}

	err = r.db.QueryRow(insertPendingOrderQuery,
		po.UserID, po.OrderNumber, po.TotalAmount, addrJSON, itemsJSON,
		po.GatewayReferenceID, breakdownJSON, po.CreatedAt).Scan(&po.ID)
	if err != nil {
		return PendingOrder{}, err
	}
	return po, nil
}

func (r *PostgresRepository) GetByReference(ref string) (PendingOrder, error) {
	return r.scanOne(r.db.QueryRow(getPendingByReferenceQuery, ref))
}

func (r *PostgresRepository) GetByReferenceForUser(ref string, userID int) (PendingOrder, error) {
	return r.scanOne(r.db.QueryRow(getPendingByReferenceForUserQuery, ref, userID))
}

func (r *PostgresRepository) UpdateReference(id int, ref string) error {
	res, err := r.db.Exec(updatePendingReferenceQuery, ref, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(id int) error {
	_, err := r.db.Exec(deletePendingOrderQuery, id)
	return err
}

func (r *PostgresRepository) scanOne(row *sql.Row) (PendingOrder, error) {
	var po PendingOrder
	var addrJSON, itemsJSON, breakdownJSON []byte
	err := row.Scan(&po.ID, &po.UserID, &po.OrderNumber, &po.TotalAmount,
		&addrJSON, &itemsJSON, &po.GatewayReferenceID, &breakdownJSON, &po.CreatedAt)
	if err == sql.ErrNoRows {
		return PendingOrder{}, ErrNotFound
	}
	if err != nil {
		return PendingOrder{}, err
	}

	if err := json.Unmarshal(addrJSON, &po.DeliveryAddress); err != nil {
		return PendingOrder{}, err
	}
	if err := json.Unmarshal(itemsJSON, &po.Items); err != nil {
		return PendingOrder{}, err
	}
	if len(breakdownJSON) > 0 {
		po.PriceBreakdown = &PriceBreakdown{}
		if err := json.Unmarshal(breakdownJSON, po.PriceBreakdown); err != nil {
			return PendingOrder{}, err
		}
	}
	return po, nil
}
