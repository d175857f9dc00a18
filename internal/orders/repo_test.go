package orders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/postgres"
	"github.com/shopspring/decimal"
)

func TestUpdateStatusSQLIsCompareAndSet(t *testing.T) {
	cases := []struct {
		to     Status
		column string
	}{
		{StatusPaid, "pay_time=$4"},
		{StatusShipped, "ship_time=$4"},
		{StatusReceived, "receive_time=$4"},
		{StatusCompleted, "complete_time=$4"},
		{StatusCancelled, "cancel_time=$4"},
		{StatusRefunding, ""},
	}
	for _, tc := range cases {
		q := updateStatusSQL(tc.to)
		if !strings.Contains(q, "WHERE id=$1 AND status=$2") || !strings.Contains(q, "RETURNING "+orderColumns) {
			t.Fatalf("%s: not a guarded write: %s", tc.to, q)
		}
		if tc.column != "" && !strings.Contains(q, tc.column) {
			t.Fatalf("%s: missing %s: %s", tc.to, tc.column, q)
		}
		if tc.column == "" && strings.Contains(q, "_time=") {
			t.Fatalf("%s: unexpected timestamp: %s", tc.to, q)
		}
	}
}

func TestPGRepoStatusCompareAndSet(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := postgres.Connect(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db, postgres.OrdersSchema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	repo := &PGRepo{DB: db}

	o := Order{
		OrderNo:     fmt.Sprintf("T%d", time.Now().UnixNano()),
		UserID:      7,
		TotalAmount: decimal.RequireFromString("9.50"),
		PayAmount:   decimal.RequireFromString("9.50"),
		Status:      StatusPendingPayment,
	}
	items := []OrderItem{{ProductID: 1, ProductName: "Kopi", Price: decimal.RequireFromString("9.50"), Quantity: 1, Subtotal: decimal.RequireFromString("9.50")}}
	if err := repo.Create(ctx, &o, items); err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() {
		_, _ = db.Exec(context.Background(), `DELETE FROM order_items WHERE order_id=$1`, o.ID)
		_, _ = db.Exec(context.Background(), `DELETE FROM orders WHERE id=$1`, o.ID)
	}()
	if err := repo.Create(ctx, &Order{OrderNo: o.OrderNo, Status: StatusPendingPayment}, nil); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("duplicate order no: %v", err)
	}

	paid, err := repo.UpdateStatus(ctx, o.ID, StatusPendingPayment, StatusPaid, time.Now())
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.Status != StatusPaid || paid.PayTime == nil {
		t.Fatalf("paid row: %+v", paid)
	}
	if _, err := repo.UpdateStatus(ctx, o.ID, StatusPendingPayment, StatusCancelled, time.Now()); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("stale expected status must lose: %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, -1, StatusPendingPayment, StatusPaid, time.Now()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing order: %v", err)
	}
	got, err := repo.Items(ctx, o.ID)
	if err != nil || len(got) != 1 || !got[0].Subtotal.Equal(decimal.RequireFromString("9.50")) {
		t.Fatalf("items: %+v %v", got, err)
	}
}
