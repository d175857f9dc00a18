package postgres

import (
	"strings"
	"testing"
)

func TestSchemasCoverTables(t *testing.T) {
	for _, table := range []string{"inventory", "inventory_log"} {
		if !strings.Contains(InventorySchema, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("inventory schema misses %s", table)
		}
	}
	for _, table := range []string{"orders", "order_items"} {
		if !strings.Contains(OrdersSchema, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("orders schema misses %s", table)
		}
	}
	if !strings.Contains(OrdersSchema, "order_no TEXT NOT NULL UNIQUE") {
		t.Fatalf("order_no must be unique")
	}
}
