package inventory

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const inventoryColumns = `id, product_id, total_stock, available_stock, locked_stock, warning_threshold, created_at, updated_at`

const (
	selectForUpdateSQL = `SELECT ` + inventoryColumns + ` FROM inventory WHERE product_id=$1 FOR UPDATE`

	lastOrderOpSQL = `
		SELECT id, operation_type, quantity FROM inventory_log
		WHERE product_id=$1 AND order_id=$2 AND operation_type IN ('LOCK','DEDUCT','RELEASE')
		ORDER BY id DESC LIMIT 1`

	updateCountersSQL = `
		UPDATE inventory
		SET total_stock=$2, available_stock=$3, locked_stock=$4, updated_at=NOW()
		WHERE product_id=$1
		RETURNING updated_at`

	insertLogSQL = `
		INSERT INTO inventory_log(product_id, order_id, operation_type, quantity, before_stock, after_stock, remark)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

// PGStore serializes mutations of one product with SELECT ... FOR UPDATE:
// the row lock is held until the transaction that also writes the audit row
// commits. The UPDATE itself carries no stock condition.
type PGStore struct{ DB *pgxpool.Pool }

func scanInventory(row pgx.Row) (Inventory, error) {
	var inv Inventory
	err := row.Scan(&inv.ID, &inv.ProductID, &inv.TotalStock, &inv.AvailableStock,
		&inv.LockedStock, &inv.WarningThreshold, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Inventory{}, apperr.ErrNotFound
	}
	return inv, err
}

func (s *PGStore) Create(ctx context.Context, inv Inventory) (Inventory, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO inventory(product_id, total_stock, available_stock, locked_stock, warning_threshold)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+inventoryColumns,
		inv.ProductID, inv.TotalStock, inv.AvailableStock, inv.LockedStock, inv.WarningThreshold)
	out, err := scanInventory(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Inventory{}, apperr.ErrAlreadyExists
	}
	return out, err
}

func (s *PGStore) Get(ctx context.Context, productID int64) (Inventory, error) {
	return scanInventory(s.DB.QueryRow(ctx,
		`SELECT `+inventoryColumns+` FROM inventory WHERE product_id=$1`, productID))
}

func (s *PGStore) Mutate(ctx context.Context, productID int64, orderID *int64, fn MutateFunc) (Inventory, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Inventory{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanInventory(tx.QueryRow(ctx, selectForUpdateSQL, productID))
	if err != nil {
		return Inventory{}, err
	}

	var last *Log
	if orderID != nil {
		var e Log
		var opName string
		err := tx.QueryRow(ctx, lastOrderOpSQL, productID, *orderID).Scan(&e.ID, &opName, &e.Quantity)
		switch {
		case err == nil:
			e.ProductID, e.OrderID, e.Type = productID, orderID, OpType(opName)
			last = &e
		case !errors.Is(err, pgx.ErrNoRows):
			return Inventory{}, err
		}
	}

	next, entry, err := fn(cur, last)
	if err != nil || entry == nil {
		return cur, err
	}

	if err := tx.QueryRow(ctx, updateCountersSQL,
		productID, next.TotalStock, next.AvailableStock, next.LockedStock,
	).Scan(&next.UpdatedAt); err != nil {
		return Inventory{}, err
	}

	if _, err := tx.Exec(ctx, insertLogSQL,
		productID, entry.OrderID, string(entry.Type), entry.Quantity, entry.BeforeStock, entry.AfterStock, entry.Remark,
	); err != nil {
		return Inventory{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Inventory{}, err
	}
	return next, nil
}

func (s *PGStore) Warnings(ctx context.Context) ([]Inventory, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+inventoryColumns+`
		FROM inventory WHERE available_stock <= warning_threshold ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Inventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *PGStore) History(ctx context.Context, productID int64) ([]Log, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, product_id, order_id, operation_type, quantity, before_stock, after_stock, remark, created_at
		FROM inventory_log WHERE product_id=$1
		ORDER BY created_at DESC, id DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Log{}
	for rows.Next() {
		var l Log
		var op string
		if err := rows.Scan(&l.ID, &l.ProductID, &l.OrderID, &op, &l.Quantity,
			&l.BeforeStock, &l.AfterStock, &l.Remark, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Type = OpType(op)
		out = append(out, l)
	}
	return out, rows.Err()
}
