package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/inventory"
	"github.com/ariefcatur/go-order-ledger/internal/opqueue"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	Ledger *inventory.Ledger
	Queue  *opqueue.Queue
	Log    *zap.Logger
}

type stockChangeReq struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
	OrderID   int64 `json:"orderId"`
}

type stockLevelReq struct {
	ProductID int64 `json:"productId"`
	Stock     int   `json:"stock"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Post("/init", h.init)
		r.Get("/product/{id}", h.get)
		r.Get("/product/{id}/stock", h.stock)
		r.Get("/product/{id}/logs", h.logs)
		r.Post("/lock", h.change(h.Ledger.Lock))
		r.Post("/deduct", h.change(h.Ledger.Deduct))
		r.Post("/release", h.change(h.Ledger.Release))
		r.Post("/add", h.add)
		r.Put("/set", h.set)
		r.Get("/warning", h.warnings)
		r.Get("/queue/stats", h.queueStats)
	})
}

func (h *InventoryHandler) fail(w http.ResponseWriter, err error) {
	writeErr(w, h.Log, err, apperr.CodeInventoryNotFound)
}

func (h *InventoryHandler) init(w http.ResponseWriter, r *http.Request) {
	var req stockLevelReq
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	inv, err := h.Ledger.Init(r.Context(), req.ProductID, req.Stock)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, inv)
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	inv, err := h.Ledger.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, inv)
}

func (h *InventoryHandler) stock(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	n, err := h.Ledger.AvailableStock(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, n)
}

func (h *InventoryHandler) logs(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.Ledger.History(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, out)
}

type changeFunc func(ctx context.Context, productID int64, quantity int, orderID int64) error

// change serves lock, deduct and release; success answers true.
func (h *InventoryHandler) change(fn changeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stockChangeReq
		if err := decode(r, &req); err != nil {
			h.fail(w, err)
			return
		}
		if req.OrderID <= 0 {
			h.fail(w, apperr.Validationf("orderId is required"))
			return
		}
		if err := fn(r.Context(), req.ProductID, req.Quantity, req.OrderID); err != nil {
			h.fail(w, err)
			return
		}
		writeOK(w, true)
	}
}

func (h *InventoryHandler) add(w http.ResponseWriter, r *http.Request) {
	var req stockChangeReq
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.Ledger.Add(r.Context(), req.ProductID, req.Quantity); err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, true)
}

func (h *InventoryHandler) set(w http.ResponseWriter, r *http.Request) {
	var req stockLevelReq
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	inv, err := h.Ledger.Set(r.Context(), req.ProductID, req.Stock)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, inv)
}

func (h *InventoryHandler) warnings(w http.ResponseWriter, r *http.Request) {
	out, err := h.Ledger.Warnings(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, out)
}

func (h *InventoryHandler) queueStats(w http.ResponseWriter, r *http.Request) {
	if h.Queue == nil {
		writeOK(w, opqueue.Stats{})
		return
	}
	writeOK(w, h.Queue.Stats())
}
