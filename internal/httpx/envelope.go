package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Envelope is the response body of every RPC route.
type Envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Code: apperr.CodeOK, Message: "success", Data: data, Timestamp: time.Now().UnixMilli()})
}

// writeErr classifies err; notFound is the route's own not-found code.
// Unclassified errors are logged and reported without detail.
func writeErr(w http.ResponseWriter, log *zap.Logger, err error, notFound int) {
	code := apperr.CodeIn(err, notFound)
	msg := err.Error()
	if code == apperr.CodeInternal {
		log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, apperr.HTTPStatus(code), Envelope{Code: code, Message: msg, Timestamp: time.Now().UnixMilli()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validationf("invalid json: %v", err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validationf("invalid %s", name)
	}
	return id, nil
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validationf("invalid %s", name)
	}
	return n, nil
}
