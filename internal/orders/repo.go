package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_no, user_id, total_amount, pay_amount, freight, status,
	receiver_name, receiver_phone, receiver_address, remark,
	pay_time, ship_time, receive_time, complete_time, cancel_time, created_at, updated_at`

// PGRepo stores orders in Postgres. Status writes are compare-and-set on
// the current status.
type PGRepo struct{ DB *pgxpool.Pool }

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.OrderNo, &o.UserID, &o.TotalAmount, &o.PayAmount, &o.Freight, &status,
		&o.ReceiverName, &o.ReceiverPhone, &o.ReceiverAddress, &o.Remark,
		&o.PayTime, &o.ShipTime, &o.ReceiveTime, &o.CompleteTime, &o.CancelTime, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PGRepo) Create(ctx context.Context, o *Order, items []OrderItem) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(order_no, user_id, total_amount, pay_amount, freight, status,
			receiver_name, receiver_phone, receiver_address, remark)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, created_at, updated_at`,
		o.OrderNo, o.UserID, o.TotalAmount, o.PayAmount, o.Freight, string(o.Status),
		o.ReceiverName, o.ReceiverPhone, o.ReceiverAddress, o.Remark,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("order no %s: %w", o.OrderNo, apperr.ErrAlreadyExists)
	}
	if err != nil {
		return err
	}

	for i := range items {
		it := &items[i]
		it.OrderID, it.OrderNo = o.ID, o.OrderNo
		if err := tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, order_no, product_id, product_name, product_image, price, quantity, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id`,
			it.OrderID, it.OrderNo, it.ProductID, it.ProductName, it.ProductImage, it.Price, it.Quantity, it.Subtotal,
		).Scan(&it.ID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order %d: %w", id, apperr.ErrNotFound)
	}
	return o, err
}

func (r *PGRepo) GetByNo(ctx context.Context, orderNo string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_no=$1`, orderNo))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order %s: %w", orderNo, apperr.ErrNotFound)
	}
	return o, err
}

func (r *PGRepo) Items(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, order_no, product_id, product_name, product_image, price, quantity, subtotal
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []OrderItem{}
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.OrderNo, &it.ProductID, &it.ProductName,
			&it.ProductImage, &it.Price, &it.Quantity, &it.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PGRepo) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *PGRepo) List(ctx context.Context, offset, limit int) ([]Order, int64, error) {
	var total int64
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		ORDER BY created_at DESC, id DESC OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectOrders(rows)
	return out, total, err
}

func (r *PGRepo) PendingBefore(ctx context.Context, cutoff time.Time) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status=$1 AND created_at < $2 ORDER BY created_at`, string(StatusPendingPayment), cutoff)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// timeColumn is the timestamp column set when an order enters s.
func timeColumn(s Status) string {
	switch s {
	case StatusPaid:
		return "pay_time"
	case StatusShipped:
		return "ship_time"
	case StatusReceived:
		return "receive_time"
	case StatusCompleted:
		return "complete_time"
	case StatusCancelled:
		return "cancel_time"
	}
	return ""
}

// updateStatusSQL is the compare-and-set write for a move to to: $1 id,
// $2 expected status, $3 new status, $4 time. The state's own timestamp
// column, if it has one, is stamped with $4 as well.
func updateStatusSQL(to Status) string {
	set := `status=$3, updated_at=$4`
	if col := timeColumn(to); col != "" {
		set += `, ` + col + `=$4`
	}
	return `UPDATE orders SET ` + set + `
		WHERE id=$1 AND status=$2
		RETURNING ` + orderColumns
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id int64, from, to Status, at time.Time) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, updateStatusSQL(to), id, string(from), string(to), at))
	if !errors.Is(err, pgx.ErrNoRows) {
		return o, err
	}
	// no row: either the order is gone or its status moved on
	cur, gerr := r.Get(ctx, id)
	if gerr != nil {
		return Order{}, gerr
	}
	return cur, fmt.Errorf("order %d is %s, expected %s: %w", id, cur.Status, from, apperr.ErrInvalidTransition)
}

func (r *PGRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&n)
	return n, err
}

func (r *PGRepo) Revenue(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.DB.QueryRow(ctx, `SELECT COALESCE(SUM(pay_amount), 0) FROM orders
		WHERE status IN ('PAID','SHIPPED','RECEIVED','COMPLETED')`).Scan(&sum)
	return sum, err
}
