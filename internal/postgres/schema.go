package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InventorySchema backs the stock ledger. The CHECK constraints restate the
// stock counter rules so a bad write fails at the database as well.
const InventorySchema = `
CREATE TABLE IF NOT EXISTS inventory (
	id BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL UNIQUE,
	total_stock INT NOT NULL,
	available_stock INT NOT NULL,
	locked_stock INT NOT NULL DEFAULT 0,
	warning_threshold INT NOT NULL DEFAULT 10,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (available_stock >= 0),
	CHECK (locked_stock >= 0),
	CHECK (available_stock + locked_stock = total_stock)
);

CREATE TABLE IF NOT EXISTS inventory_log (
	id BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL,
	order_id BIGINT,
	operation_type TEXT NOT NULL,
	quantity INT NOT NULL,
	before_stock INT NOT NULL,
	after_stock INT NOT NULL,
	remark TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_inventory_log_product ON inventory_log(product_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_inventory_log_order ON inventory_log(product_id, order_id, id DESC) WHERE order_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_inventory_warning ON inventory(available_stock);
`

const OrdersSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id BIGSERIAL PRIMARY KEY,
	order_no TEXT NOT NULL UNIQUE,
	user_id BIGINT NOT NULL,
	total_amount NUMERIC(12,2) NOT NULL,
	pay_amount NUMERIC(12,2) NOT NULL,
	freight NUMERIC(12,2) NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	receiver_name TEXT NOT NULL DEFAULT '',
	receiver_phone TEXT NOT NULL DEFAULT '',
	receiver_address TEXT NOT NULL DEFAULT '',
	remark TEXT NOT NULL DEFAULT '',
	pay_time TIMESTAMPTZ,
	ship_time TIMESTAMPTZ,
	receive_time TIMESTAMPTZ,
	complete_time TIMESTAMPTZ,
	cancel_time TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS order_items (
	id BIGSERIAL PRIMARY KEY,
	order_id BIGINT NOT NULL REFERENCES orders(id),
	order_no TEXT NOT NULL,
	product_id BIGINT NOT NULL,
	product_name TEXT NOT NULL,
	product_image TEXT NOT NULL DEFAULT '',
	price NUMERIC(12,2) NOT NULL,
	quantity INT NOT NULL CHECK (quantity > 0),
	subtotal NUMERIC(12,2) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);
`

// EnsureSchema applies idempotent DDL at startup.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool, ddl string) error {
	if _, err := db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
