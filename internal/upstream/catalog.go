package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

type CatalogClient struct{ C *Client }

func (c *CatalogClient) Product(ctx context.Context, id int64) (orders.Product, error) {
	var p orders.Product
	if err := c.C.Do(ctx, http.MethodGet, fmt.Sprintf("/product/%d/entity", id), nil, &p); err != nil {
		return orders.Product{}, err
	}
	if p.ID == 0 {
		p.ID = id
	}
	return p, nil
}

func (c *CatalogClient) IncreaseSales(ctx context.Context, id int64, quantity int) error {
	return c.C.Do(ctx, http.MethodPut, fmt.Sprintf("/product/%d/sales?quantity=%d", id, quantity), nil, nil)
}

type AddressClient struct{ C *Client }

func (a *AddressClient) Address(ctx context.Context, id int64) (orders.Address, error) {
	var addr orders.Address
	err := a.C.Do(ctx, http.MethodGet, fmt.Sprintf("/user/address/%d", id), nil, &addr)
	return addr, err
}
