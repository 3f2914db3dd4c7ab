// Package orders serves a read-only view of an order's payment and event history.
package orders

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"order-callback-service/internal/db"
	"order-callback-service/internal/logging"
	"order-callback-service/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type OrderReader interface {
	Get(ctx context.Context, userID, orderID string) (*model.Order, error)
}

type EventReader interface {
	SelectByOrder(ctx context.Context, userID, orderID string) ([]*db.OrderEventEntity, error)
}

type CallbackReader interface {
	ListByOrder(ctx context.Context, userID, orderID string) ([]db.CallbackLogEntity, error)
}

type event struct {
	ID              string     `json:"id"`
	CreatedAt       time.Time  `json:"createdAt"`
	ScheduledAt     *time.Time `json:"scheduledAt,omitempty"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	PublishAttempts int        `json:"publishAttempts"`
	Error           *string    `json:"error,omitempty"`
}

type callback struct {
	RequestID  string    `json:"requestId"`
	TransID    string    `json:"transId"`
	ResultCode string    `json:"resultCode"`
	Outcome    string    `json:"outcome"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type orderView struct {
	Order     *model.Order `json:"order"`
	Events    []event      `json:"events"`
	Callbacks []callback   `json:"callbacks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	orders    OrderReader
	events    EventReader
	callbacks CallbackReader
	logger    *slog.Logger
}

func NewHandler(orders OrderReader, events EventReader, callbacks CallbackReader, logger *slog.Logger) *Handler {
	return &Handler{orders: orders, events: events, callbacks: callbacks, logger: logger}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/users/{userId}/orders/{orderId}", h.getOrder)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	orderID := chi.URLParam(r, "orderId")

	ctx := logging.AppendCtx(r.Context(), slog.String("userId", userID))
	ctx = logging.AppendCtx(ctx, slog.String("orderId", orderID))

	order, err := h.orders.Get(ctx, userID, orderID)
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}
	if err != nil {
		h.fail(ctx, w, "Error reading order", err)
		return
	}

	events, err := h.events.SelectByOrder(ctx, userID, orderID)
	if err != nil {
		h.fail(ctx, w, "Error reading order events", err)
		return
	}

	callbacks, err := h.callbacks.ListByOrder(ctx, userID, orderID)
	if err != nil {
		h.fail(ctx, w, "Error reading payment callbacks", err)
		return
	}

	view := orderView{Order: order, Events: make([]event, 0, len(events)), Callbacks: make([]callback, 0, len(callbacks))}
	for _, e := range events {
		view.Events = append(view.Events, event{
			ID:              e.ID.String(),
			CreatedAt:       e.CreatedAt,
			ScheduledAt:     e.ScheduledAt,
			PublishedAt:     e.PublishedAt,
			PublishAttempts: e.PublishAttempts,
			Error:           e.Error,
		})
	}
	for _, c := range callbacks {
		view.Callbacks = append(view.Callbacks, callback{
			RequestID:  c.RequestID,
			TransID:    c.TransID,
			ResultCode: c.ResultCode,
			Outcome:    c.Outcome,
			ReceivedAt: c.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.ErrorContext(ctx, msg, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "temporarily unavailable"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
