package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductOnShelf is the catalog status of a sellable product.
const ProductOnShelf = 1

type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	MainImage string          `json:"mainImage"`
	Price     decimal.Decimal `json:"price"`
	Status    int             `json:"status"`
}

type Address struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"userId"`
	ReceiverName  string `json:"receiverName"`
	ReceiverPhone string `json:"receiverPhone"`
	Province      string `json:"province"`
	City          string `json:"city"`
	District      string `json:"district"`
	DetailAddress string `json:"detailAddress"`
}

func (a Address) Full() string {
	return a.Province + a.City + a.District + a.DetailAddress
}

type Order struct {
	ID              int64           `json:"id"`
	OrderNo         string          `json:"orderNo"`
	UserID          int64           `json:"userId"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PayAmount       decimal.Decimal `json:"payAmount"`
	Freight         decimal.Decimal `json:"freight"`
	Status          Status          `json:"status"`
	ReceiverName    string          `json:"receiverName"`
	ReceiverPhone   string          `json:"receiverPhone"`
	ReceiverAddress string          `json:"receiverAddress"`
	Remark          string          `json:"remark"`
	PayTime         *time.Time      `json:"payTime"`
	ShipTime        *time.Time      `json:"shipTime"`
	ReceiveTime     *time.Time      `json:"receiveTime"`
	CompleteTime    *time.Time      `json:"completeTime"`
	CancelTime      *time.Time      `json:"cancelTime"`
	CreatedAt       time.Time       `json:"createTime"`
	UpdatedAt       time.Time       `json:"updateTime"`
}

// stamp sets the timestamp produced by entering status to.
func (o *Order) stamp(to Status, at time.Time) {
	t := at
	switch to {
	case StatusPaid:
		o.PayTime = &t
	case StatusShipped:
		o.ShipTime = &t
	case StatusReceived:
		o.ReceiveTime = &t
	case StatusCompleted:
		o.CompleteTime = &t
	case StatusCancelled:
		o.CancelTime = &t
	}
}

// OrderItem is a price snapshot taken when the order was placed.
type OrderItem struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"orderId"`
	OrderNo      string          `json:"orderNo"`
	ProductID    int64           `json:"productId"`
	ProductName  string          `json:"productName"`
	ProductImage string          `json:"productImage"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type OrderView struct {
	Order
	StatusDesc string      `json:"statusDesc"`
	Items      []OrderItem `json:"items"`
}

func newView(o Order, items []OrderItem) OrderView {
	if items == nil {
		items = []OrderItem{}
	}
	return OrderView{Order: o, StatusDesc: o.Status.Description(), Items: items}
}

type ItemInput struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type CreateOrderInput struct {
	UserID    int64       `json:"userId"`
	AddressID int64       `json:"addressId"`
	Items     []ItemInput `json:"items"`
	Remark    string      `json:"remark"`

	// IdempotencyKey, when set, makes a repeated create return the first order.
	IdempotencyKey string `json:"-"`
}

type Page struct {
	List     []OrderView `json:"list"`
	Total    int64       `json:"total"`
	PageNum  int         `json:"pageNum"`
	PageSize int         `json:"pageSize"`
}
