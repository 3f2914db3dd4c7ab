package callback

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"order-callback-service/internal/payload"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

const maxBodyBytes = 64 << 10

type CallbackProcessor interface {
	Process(ctx context.Context, cb *payload.PaymentCallback) (Result, error)
}

// Handler exposes the processor as the gateway's notification endpoint.
type Handler struct {
	processor      CallbackProcessor
	notFoundStatus int
	logger         *slog.Logger
}

// NewHandler returns a handler answering unknown orders with notFoundStatus.
// Gateways retry on 5xx, so 500 keeps retrying and 404 gives up.
func NewHandler(processor CallbackProcessor, notFoundStatus int, logger *slog.Logger) *Handler {
	if notFoundStatus == 0 {
		notFoundStatus = http.StatusNotFound
	}
	return &Handler{processor: processor, notFoundStatus: notFoundStatus, logger: logger}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/payments/callback", h.ServeHTTP)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var cb payload.PaymentCallback
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&cb); err != nil {
		h.logger.WarnContext(r.Context(), "Error decoding payment callback", "error", err)
		writeJSON(w, http.StatusBadRequest, payload.CallbackResponse{Result: "rejected", Error: "malformed payload"})
		return
	}

	result, err := h.processor.Process(r.Context(), &cb)
	if err != nil {
		status, message := h.errorStatus(err)
		writeJSON(w, status, payload.CallbackResponse{Result: "rejected", OrderID: cb.OrderID, Error: message})
		return
	}

	writeJSON(w, http.StatusOK, payload.CallbackResponse{Result: string(result.Outcome), OrderID: cb.OrderID})
}

func (h *Handler) errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMalformedPayload):
		return http.StatusBadRequest, "malformed payload"
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusBadRequest, "invalid signature"
	case errors.Is(err, ErrOrderNotFound):
		return h.notFoundStatus, "order not found"
	default:
		return http.StatusInternalServerError, "temporarily unavailable"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
