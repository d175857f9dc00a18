package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	Svc *orders.Service
	Log *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/order", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/list", h.list)
		r.Get("/count", h.count)
		r.Get("/revenue", h.revenue)
		r.Get("/stale", h.stale)
		r.Get("/status/path", h.path)
		r.Get("/no/{orderNo}", h.getByNo)
		r.Get("/user/{userId}", h.listByUser)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/entity", h.getEntity)
		r.Get("/{id}/status", h.status)
		r.Put("/{id}/pay", h.transition(h.Svc.PayOrder))
		r.Put("/{id}/ship", h.transition(h.Svc.ShipOrder))
		r.Put("/{id}/receive", h.transition(h.Svc.ReceiveOrder))
		r.Put("/{id}/cancel", h.transition(h.Svc.CancelOrder))
		r.Put("/{id}/complete", h.transition(h.Svc.CompleteOrder))
		r.Put("/{id}/status", h.updateStatus)
	})
}

func (h *OrdersHandler) fail(w http.ResponseWriter, err error) {
	writeErr(w, h.Log, err, apperr.CodeOrderNotFound)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateOrderInput
	if err := decode(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	in.IdempotencyKey = r.Header.Get("Idempotency-Key")
	v, err := h.Svc.CreateOrder(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, v)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	v, err := h.Svc.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, v)
}

func (h *OrdersHandler) getByNo(w http.ResponseWriter, r *http.Request) {
	v, err := h.Svc.GetOrderByNo(r.Context(), chi.URLParam(r, "orderNo"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, v)
}

func (h *OrdersHandler) getEntity(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	o, err := h.Svc.GetEntity(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, o)
}

func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	st, err := h.Svc.Status(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, map[string]string{"status": string(st), "statusDesc": st.Description()})
}

func (h *OrdersHandler) listByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userId")
	if err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.Svc.ListUserOrders(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, out)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page", 1)
	if err != nil {
		h.fail(w, err)
		return
	}
	size, err := intQuery(r, "size", orders.DefaultPageSize)
	if err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.Svc.ListOrders(r.Context(), page, size)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, out)
}

func (h *OrdersHandler) transition(fn func(context.Context, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			h.fail(w, err)
			return
		}
		if err := fn(r.Context(), id); err != nil {
			h.fail(w, err)
			return
		}
		writeOK(w, nil)
	}
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	st, err := orders.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.Svc.UpdateStatus(r.Context(), id, st); err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *OrdersHandler) count(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.Count(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, n)
}

func (h *OrdersHandler) revenue(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Svc.Revenue(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, sum)
}

// stale lists PENDING_PAYMENT orders older than olderThanMinutes (default 30).
func (h *OrdersHandler) stale(w http.ResponseWriter, r *http.Request) {
	mins, err := intQuery(r, "olderThanMinutes", 30)
	if err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.Svc.StalePending(r.Context(), time.Duration(mins)*time.Minute)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, out)
}

func (h *OrdersHandler) path(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := orders.ParseStatus(q.Get("from"))
	if err != nil {
		h.fail(w, err)
		return
	}
	to, err := orders.ParseStatus(q.Get("to"))
	if err != nil {
		h.fail(w, err)
		return
	}
	p := h.Svc.FindPath(from, to)
	if p == nil {
		p = []orders.Status{}
	}
	writeOK(w, p)
}
