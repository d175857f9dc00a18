package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/inventory"
	"github.com/ariefcatur/go-order-ledger/internal/opqueue"
	"go.uber.org/zap"
)

type rawEnvelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

func call(t *testing.T, h http.Handler, method, path string, body any) (int, rawEnvelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env rawEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil && path != "/healthz" {
		t.Fatalf("%s %s: bad body %q", method, path, rec.Body.String())
	}
	return rec.Code, env
}

func newInventoryRouter(t *testing.T) (http.Handler, *opqueue.Queue) {
	t.Helper()
	log := zap.NewNop()
	q := opqueue.New(100, log)
	h := &InventoryHandler{
		Ledger: inventory.NewLedger(inventory.NewMemStore(), q, log, inventory.DefaultWarningThreshold),
		Queue:  q,
		Log:    log,
	}
	r := NewRouter(log)
	h.Register(r)
	return r, q
}

func TestInventoryRoutesScenario(t *testing.T) {
	r, q := newInventoryRouter(t)

	if code, env := call(t, r, http.MethodPost, "/inventory/init", map[string]any{"productId": 1, "stock": 10}); code != http.StatusOK || env.Code != 200 {
		t.Fatalf("init: %d %+v", code, env)
	}
	if _, env := call(t, r, http.MethodPost, "/inventory/lock", map[string]any{"productId": 1, "quantity": 4, "orderId": 100}); string(env.Data) != "true" {
		t.Fatalf("lock: %+v", env)
	}
	_, env := call(t, r, http.MethodGet, "/inventory/product/1", nil)
	var inv inventory.Inventory
	_ = json.Unmarshal(env.Data, &inv)
	if inv.AvailableStock != 6 || inv.LockedStock != 4 {
		t.Fatalf("after lock: %+v", inv)
	}

	call(t, r, http.MethodPost, "/inventory/deduct", map[string]any{"productId": 1, "quantity": 4, "orderId": 100})
	_, env = call(t, r, http.MethodGet, "/inventory/product/1", nil)
	_ = json.Unmarshal(env.Data, &inv)
	if inv.TotalStock != 6 || inv.LockedStock != 0 || inv.AvailableStock != 6 {
		t.Fatalf("after deduct: %+v", inv)
	}

	_, env = call(t, r, http.MethodGet, "/inventory/product/1/logs", nil)
	var logs []inventory.Log
	_ = json.Unmarshal(env.Data, &logs)
	if len(logs) != 2 || logs[0].Type != inventory.OpDeduct {
		t.Fatalf("logs: %+v", logs)
	}

	_, env = call(t, r, http.MethodGet, "/inventory/queue/stats", nil)
	var st opqueue.Stats
	_ = json.Unmarshal(env.Data, &st)
	if st.Enqueued != 2 || st.Len != q.Len() {
		t.Fatalf("queue stats: %+v", st)
	}
}

func TestInventoryRoutesErrors(t *testing.T) {
	r, _ := newInventoryRouter(t)
	call(t, r, http.MethodPost, "/inventory/init", map[string]any{"productId": 1, "stock": 2})

	cases := []struct {
		method, path string
		body         any
		status, code int
	}{
		{http.MethodPost, "/inventory/init", map[string]any{"productId": 1, "stock": 2}, http.StatusConflict, apperr.CodeInventoryExists},
		{http.MethodPost, "/inventory/lock", map[string]any{"productId": 1, "quantity": 3, "orderId": 1}, http.StatusUnprocessableEntity, apperr.CodeInsufficientStock},
		{http.MethodPost, "/inventory/release", map[string]any{"productId": 1, "quantity": 1, "orderId": 1}, http.StatusUnprocessableEntity, apperr.CodeInsufficientLockedStock},
		{http.MethodPost, "/inventory/lock", map[string]any{"productId": 9, "quantity": 1, "orderId": 1}, http.StatusNotFound, apperr.CodeInventoryNotFound},
		{http.MethodPost, "/inventory/lock", map[string]any{"productId": 1, "quantity": 1}, http.StatusBadRequest, apperr.CodeBadRequest},
		{http.MethodGet, "/inventory/product/abc", nil, http.StatusBadRequest, apperr.CodeBadRequest},
		{http.MethodGet, "/inventory/product/9", nil, http.StatusNotFound, apperr.CodeInventoryNotFound},
	}
	for _, c := range cases {
		status, env := call(t, r, c.method, c.path, c.body)
		if status != c.status || env.Code != c.code {
			t.Fatalf("%s %s: got %d/%d, want %d/%d (%s)", c.method, c.path, status, env.Code, c.status, c.code, env.Message)
		}
	}
}

func TestInventoryAddSetWarning(t *testing.T) {
	r, _ := newInventoryRouter(t)

	call(t, r, http.MethodPost, "/inventory/add", map[string]any{"productId": 2, "quantity": 5})
	_, env := call(t, r, http.MethodGet, "/inventory/product/2/stock", nil)
	if string(env.Data) != "5" {
		t.Fatalf("stock after add = %s", env.Data)
	}
	_, env = call(t, r, http.MethodGet, "/inventory/product/77/stock", nil)
	if env.Code != 200 || string(env.Data) != "0" {
		t.Fatalf("missing product stock should be 0: %+v", env)
	}

	_, env = call(t, r, http.MethodPut, "/inventory/set", map[string]any{"productId": 2, "stock": 50})
	var inv inventory.Inventory
	_ = json.Unmarshal(env.Data, &inv)
	if inv.TotalStock != 50 || inv.AvailableStock != 50 {
		t.Fatalf("set: %+v", inv)
	}

	call(t, r, http.MethodPost, "/inventory/init", map[string]any{"productId": 3, "stock": 3})
	_, env = call(t, r, http.MethodGet, "/inventory/warning", nil)
	var warn []inventory.Inventory
	_ = json.Unmarshal(env.Data, &warn)
	if len(warn) != 1 || warn[0].ProductID != 3 {
		t.Fatalf("warnings: %+v", warn)
	}
}

func TestHealthz(t *testing.T) {
	r := NewRouter(zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}
