package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("order-orchestrator")

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Service drives the order lifecycle. Ledger calls for one order run
// strictly in sequence; every multi-step flow goes through runSaga.
type Service struct {
	Repo       Repository
	Inventory  Inventory
	Catalog    Catalog
	Addresses  Addresses
	Events     EventPublisher // optional
	Cache      Cache          // optional
	Machine    *StateMachine
	OrderNo    *OrderNoGenerator
	Log        *zap.Logger
	RPCTimeout time.Duration

	now func() time.Time
}

func NewService(repo Repository, inv Inventory, catalog Catalog, addrs Addresses, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		Repo:      repo,
		Inventory: inv,
		Catalog:   catalog,
		Addresses: addrs,
		Machine:   Transitions,
		OrderNo:   NewOrderNoGenerator(),
		Log:       log,
		now:       time.Now,
	}
}

func (s *Service) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func (s *Service) machine() *StateMachine {
	if s.Machine == nil {
		return Transitions
	}
	return s.Machine
}

// call runs one remote call under the per-call timeout.
func (s *Service) call(ctx context.Context, fn func(context.Context) error) error {
	if s.RPCTimeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, s.RPCTimeout)
	defer cancel()
	return fn(cctx)
}

func fetch[T any](ctx context.Context, s *Service, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := s.call(ctx, func(c context.Context) error {
		v, err := fn(c)
		out = v
		return err
	})
	return out, err
}

func validateCreate(in CreateOrderInput) error {
	if in.UserID <= 0 {
		return apperr.Validationf("userId is required")
	}
	if in.AddressID <= 0 {
		return apperr.Validationf("addressId is required")
	}
	if len(in.Items) == 0 {
		return apperr.Validationf("order has no items")
	}
	for _, it := range in.Items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			return apperr.Validationf("item productId and quantity must be positive")
		}
	}
	return nil
}

// mergeItems folds repeated product lines into one, keeping first-seen order,
// so every (product, order) pair owns exactly one reservation.
func mergeItems(in []ItemInput) []ItemInput {
	idx := make(map[int64]int, len(in))
	out := make([]ItemInput, 0, len(in))
	for _, it := range in {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

// lookup fetches the address and every product concurrently. products is
// index-aligned with items.
func (s *Service) lookup(ctx context.Context, addressID int64, items []ItemInput) (Address, []Product, error) {
	var addr Address
	products := make([]Product, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := fetch(gctx, s, func(c context.Context) (Address, error) { return s.Addresses.Address(c, addressID) })
		if err != nil {
			return fmt.Errorf("address %d: %w", addressID, err)
		}
		addr = a
		return nil
	})
	for i, it := range items {
		g.Go(func() error {
			p, err := fetch(gctx, s, func(c context.Context) (Product, error) { return s.Catalog.Product(c, it.ProductID) })
			if err != nil {
				return fmt.Errorf("product %d: %w", it.ProductID, err)
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Address{}, nil, err
	}
	return addr, products, nil
}

// CreateOrder prices the items from the catalog, stores the order as
// PENDING_PAYMENT and locks stock per item. A failed lock releases the
// locks already taken and leaves the stored order CANCELLED.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (OrderView, error) {
	if err := validateCreate(in); err != nil {
		return OrderView{}, err
	}
	if in.IdempotencyKey != "" && s.Cache != nil {
		if id, ok := s.Cache.OrderForKey(ctx, in.IdempotencyKey); ok {
			s.Log.Info("create order replayed", zap.String("idempotency_key", in.IdempotencyKey), zap.Int64("order_id", id))
			return s.GetOrder(ctx, id)
		}
	}

	items := mergeItems(in.Items)
	addr, products, err := s.lookup(ctx, in.AddressID, items)
	if err != nil {
		return OrderView{}, err
	}

	orderNo := s.OrderNo.Next()
	total := decimal.Zero
	lines := make([]OrderItem, 0, len(items))
	for i, it := range items {
		p := products[i]
		if p.Status != ProductOnShelf {
			return OrderView{}, fmt.Errorf("product %d (%s): %w", it.ProductID, p.Name, apperr.ErrProductOffShelf)
		}
		sub := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(sub)
		lines = append(lines, OrderItem{
			OrderNo:      orderNo,
			ProductID:    it.ProductID,
			ProductName:  p.Name,
			ProductImage: p.MainImage,
			Price:        p.Price,
			Quantity:     it.Quantity,
			Subtotal:     sub,
		})
	}

	o := Order{
		OrderNo:         orderNo,
		UserID:          in.UserID,
		TotalAmount:     total,
		PayAmount:       total,
		Freight:         decimal.Zero,
		Status:          StatusPendingPayment,
		ReceiverName:    addr.ReceiverName,
		ReceiverPhone:   addr.ReceiverPhone,
		ReceiverAddress: addr.Full(),
		Remark:          in.Remark,
	}

	steps := []step{{
		name: "persist order",
		do:   func(ctx context.Context) error { return s.Repo.Create(ctx, &o, lines) },
		undo: func(ctx context.Context) error {
			cancelled, err := s.Repo.UpdateStatus(ctx, o.ID, StatusPendingPayment, StatusCancelled, s.clock())
			if err == nil {
				o = cancelled
				s.cacheStatus(ctx, o)
			}
			return err
		},
	}}
	for i := range lines {
		it := &lines[i]
		steps = append(steps, step{
			name: fmt.Sprintf("lock product %d", it.ProductID),
			do: func(ctx context.Context) error {
				return s.call(ctx, func(c context.Context) error { return s.Inventory.Lock(c, it.ProductID, it.Quantity, o.ID) })
			},
			undo: func(ctx context.Context) error {
				err := s.call(ctx, func(c context.Context) error { return s.Inventory.Release(c, it.ProductID, it.Quantity, o.ID) })
				if errors.Is(err, apperr.ErrInsufficientLockedStock) {
					return nil // the lock never landed
				}
				return err
			},
		})
	}
	if err := s.runSaga(ctx, "create_order", steps); err != nil {
		return OrderView{}, err
	}

	if in.IdempotencyKey != "" && s.Cache != nil {
		s.Cache.RememberKey(ctx, in.IdempotencyKey, o.ID)
	}
	s.afterTransition(ctx, o, EventOrderCreated)
	s.Log.Info("order created",
		zap.Int64("order_id", o.ID),
		zap.String("order_no", o.OrderNo),
		zap.Int64("user_id", o.UserID),
		zap.String("total_amount", o.TotalAmount.String()),
	)
	return newView(o, lines), nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (OrderView, error) {
	o, err := s.Repo.Get(ctx, id)
	if err != nil {
		return OrderView{}, err
	}
	return s.view(ctx, o)
}

func (s *Service) GetOrderByNo(ctx context.Context, orderNo string) (OrderView, error) {
	if orderNo == "" {
		return OrderView{}, apperr.Validationf("orderNo is required")
	}
	o, err := s.Repo.GetByNo(ctx, orderNo)
	if err != nil {
		return OrderView{}, err
	}
	return s.view(ctx, o)
}

// GetEntity returns the stored order without items, for other services.
func (s *Service) GetEntity(ctx context.Context, id int64) (Order, error) {
	return s.Repo.Get(ctx, id)
}

// Status answers from the cache when it can.
func (s *Service) Status(ctx context.Context, id int64) (Status, error) {
	if s.Cache != nil {
		if st, ok := s.Cache.Status(ctx, id); ok {
			return st, nil
		}
	}
	o, err := s.Repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	s.cacheStatus(ctx, o)
	return o.Status, nil
}

func (s *Service) ListUserOrders(ctx context.Context, userID int64) ([]OrderView, error) {
	list, err := s.Repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, list)
}

// ListOrders pages through every order, newest first. page starts at 1.
func (s *Service) ListOrders(ctx context.Context, page, size int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	list, total, err := s.Repo.List(ctx, (page-1)*size, size)
	if err != nil {
		return Page{}, err
	}
	views, err := s.views(ctx, list)
	if err != nil {
		return Page{}, err
	}
	return Page{List: views, Total: total, PageNum: page, PageSize: size}, nil
}

// StalePending lists orders still waiting for payment after olderThan, for
// an external sweeper to cancel.
func (s *Service) StalePending(ctx context.Context, olderThan time.Duration) ([]Order, error) {
	if olderThan <= 0 {
		return nil, apperr.Validationf("olderThan must be positive")
	}
	out, err := s.Repo.PendingBefore(ctx, s.clock().Add(-olderThan))
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Order{}
	}
	return out, nil
}

// PayOrder deducts every item and only then records PAID, so a retry after
// a failed deduct finds the order still payable. Deducts already applied
// are skipped by the ledger on retry.
func (s *Service) PayOrder(ctx context.Context, id int64) error {
	o, err := s.load(ctx, id, StatusPaid)
	if err != nil {
		return err
	}
	items, err := s.Repo.Items(ctx, id)
	if err != nil {
		return err
	}

	steps := make([]step, 0, len(items)+1)
	for i := range items {
		it := &items[i]
		steps = append(steps, step{
			name: fmt.Sprintf("deduct product %d", it.ProductID),
			do: func(ctx context.Context) error {
				return s.call(ctx, func(c context.Context) error { return s.Inventory.Deduct(c, it.ProductID, it.Quantity, id) })
			},
		})
	}
	steps = append(steps, s.statusStep(&o, StatusPaid))
	if err := s.runSaga(ctx, "pay_order", steps); err != nil {
		return err
	}

	for _, it := range items {
		err := s.call(ctx, func(c context.Context) error { return s.Catalog.IncreaseSales(c, it.ProductID, it.Quantity) })
		if err != nil {
			s.Log.Warn("increase sales failed", zap.Int64("order_id", id), zap.Int64("product_id", it.ProductID), zap.Error(err))
		}
	}
	s.afterTransition(ctx, o, EventOrderPaid)
	s.Log.Info("order paid", zap.Int64("order_id", id))
	return nil
}

// CancelOrder releases every item and then records CANCELLED. A failed
// release re-locks what was already released. After a partial payment the
// ledger refuses to release the consumed items, so the cancel rolls back
// and the order stays PENDING_PAYMENT until PayOrder is retried.
func (s *Service) CancelOrder(ctx context.Context, id int64) error {
	o, err := s.load(ctx, id, StatusCancelled)
	if err != nil {
		return err
	}
	items, err := s.Repo.Items(ctx, id)
	if err != nil {
		return err
	}

	steps := make([]step, 0, len(items)+1)
	for i := range items {
		it := &items[i]
		steps = append(steps, step{
			name: fmt.Sprintf("release product %d", it.ProductID),
			do: func(ctx context.Context) error {
				return s.call(ctx, func(c context.Context) error { return s.Inventory.Release(c, it.ProductID, it.Quantity, id) })
			},
			undo: func(ctx context.Context) error {
				return s.call(ctx, func(c context.Context) error { return s.Inventory.Lock(c, it.ProductID, it.Quantity, id) })
			},
		})
	}
	steps = append(steps, s.statusStep(&o, StatusCancelled))
	if err := s.runSaga(ctx, "cancel_order", steps); err != nil {
		return err
	}
	s.afterTransition(ctx, o, EventOrderCancelled)
	s.Log.Info("order cancelled", zap.Int64("order_id", id))
	return nil
}

func (s *Service) ShipOrder(ctx context.Context, id int64) error {
	return s.advance(ctx, id, StatusShipped)
}

func (s *Service) ReceiveOrder(ctx context.Context, id int64) error {
	return s.advance(ctx, id, StatusReceived)
}

func (s *Service) CompleteOrder(ctx context.Context, id int64) error {
	return s.advance(ctx, id, StatusCompleted)
}

// UpdateStatus is the payment/refund callback path. Moves that carry ledger
// side effects go through their full operation.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to Status) error {
	switch to {
	case StatusPaid:
		return s.PayOrder(ctx, id)
	case StatusCancelled:
		return s.CancelOrder(ctx, id)
	case "":
		return apperr.Validationf("status is required")
	default:
		return s.advance(ctx, id, to)
	}
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.Repo.Count(ctx)
}

// Revenue sums pay amounts of orders that reached PAID or later.
func (s *Service) Revenue(ctx context.Context) (decimal.Decimal, error) {
	return s.Repo.Revenue(ctx)
}

// FindPath exposes the transition graph search.
func (s *Service) FindPath(from, to Status) []Status {
	return s.machine().FindPath(from, to)
}

func (s *Service) advance(ctx context.Context, id int64, to Status) error {
	o, err := s.load(ctx, id, to)
	if err != nil {
		return err
	}
	if err := s.statusStep(&o, to).do(ctx); err != nil {
		return err
	}
	s.afterTransition(ctx, o, eventFor(to))
	s.Log.Info("order status changed", zap.Int64("order_id", id), zap.String("status", string(to)))
	return nil
}

func (s *Service) load(ctx context.Context, id int64, to Status) (Order, error) {
	o, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !s.machine().CanTransition(o.Status, to) {
		return o, fmt.Errorf("order %d %s -> %s: %w", id, o.Status, to, apperr.ErrInvalidTransition)
	}
	return o, nil
}

// statusStep writes the new status with a compare-and-set on the status the
// order was loaded with, and refreshes o on success.
func (s *Service) statusStep(o *Order, to Status) step {
	return step{
		name: "set status " + string(to),
		do: func(ctx context.Context) error {
			updated, err := s.Repo.UpdateStatus(ctx, o.ID, o.Status, to, s.clock())
			if err != nil {
				return err
			}
			*o = updated
			return nil
		},
	}
}

func (s *Service) afterTransition(ctx context.Context, o Order, eventType string) {
	s.cacheStatus(ctx, o)
	if s.Events != nil {
		s.Events.Publish(ctx, eventType, o)
	}
}

func (s *Service) cacheStatus(ctx context.Context, o Order) {
	if s.Cache != nil {
		s.Cache.SetStatus(ctx, o.ID, o.Status)
	}
}

func (s *Service) view(ctx context.Context, o Order) (OrderView, error) {
	items, err := s.Repo.Items(ctx, o.ID)
	if err != nil {
		return OrderView{}, err
	}
	return newView(o, items), nil
}

func (s *Service) views(ctx context.Context, list []Order) ([]OrderView, error) {
	out := make([]OrderView, 0, len(list))
	for _, o := range list {
		v, err := s.view(ctx, o)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
