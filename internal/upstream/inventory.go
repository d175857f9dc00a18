package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"go.uber.org/zap"
)

type stockRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
	OrderID   int64 `json:"orderId"`
}

// InventoryClient is the ledger as reached over RPC.
type InventoryClient struct {
	C   *Client
	Log *zap.Logger
}

func (i *InventoryClient) Lock(ctx context.Context, productID int64, quantity int, orderID int64) error {
	return i.mutate(ctx, "lock", apperr.ErrInsufficientStock, stockRequest{productID, quantity, orderID})
}

func (i *InventoryClient) Deduct(ctx context.Context, productID int64, quantity int, orderID int64) error {
	return i.mutate(ctx, "deduct", apperr.ErrInsufficientLockedStock, stockRequest{productID, quantity, orderID})
}

func (i *InventoryClient) Release(ctx context.Context, productID int64, quantity int, orderID int64) error {
	return i.mutate(ctx, "release", apperr.ErrInsufficientLockedStock, stockRequest{productID, quantity, orderID})
}

// mutate treats a successful envelope carrying false as the ledger refusing
// the operation.
func (i *InventoryClient) mutate(ctx context.Context, op string, refused error, req stockRequest) error {
	var ok bool
	if err := i.C.Do(ctx, http.MethodPost, "/inventory/"+op, req, &ok); err != nil {
		return fmt.Errorf("%s product %d: %w", op, req.ProductID, err)
	}
	if !ok {
		return fmt.Errorf("%s product %d: %w", op, req.ProductID, refused)
	}
	return nil
}

// AvailableStock feeds catalog display only, so every failure reads as 0.
func (i *InventoryClient) AvailableStock(ctx context.Context, productID int64) int {
	var n int
	if err := i.C.Do(ctx, http.MethodGet, fmt.Sprintf("/inventory/product/%d/stock", productID), nil, &n); err != nil {
		if i.Log != nil {
			i.Log.Warn("stock lookup failed, showing 0", zap.Int64("product_id", productID), zap.Error(err))
		}
		return 0
	}
	return n
}
