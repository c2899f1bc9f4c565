package product

import (
	"database/sql"

	"github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

const (
	getProductByIDQuery = `
		SELECT product_id, title, price, shop_owner_id, stock_quantity
		FROM products
		WHERE product_id = $1
	`
	listProductsByIDsQuery = `
		SELECT product_id, title, price, shop_owner_id, stock_quantity
		FROM products
		WHERE product_id = ANY($1::int[])
		ORDER BY array_position($1::int[], product_id)
	`
	// conditional update keeps the stock check and the decrement in one
	// statement so concurrent checkouts cannot oversell
	decrementStockQuery = `
		UPDATE products
		SET stock_quantity = stock_quantity - $1
		WHERE product_id = $2 AND stock_quantity >= $1
	`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(id int) (Product, error) {
	var p Product
	err := r.db.QueryRow(getProductByIDQuery, id).Scan(&p.ID, &p.Title, &p.Price, &p.ShopOwnerID, &p.StockQuantity)
	if err == sql.ErrNoRows {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (r *PostgresRepository) ListByIDs(ids []int) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}

	rows, err := r.db.Query(listProductsByIDsQuery, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Product, 0, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.ShopOwnerID, &p.StockQuantity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) DecrementStock(id, qty int) error {
	res, err := r.db.Exec(decrementStockQuery, qty, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// either the product is gone or not enough stock remains; the caller
		// only needs to know the decrement did not happen
		if _, err := r.GetByID(id); err == ErrNotFound {
			return ErrNotFound
		}
		return ErrInsufficientStock
	}
	return nil
}
