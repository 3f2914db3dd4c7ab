// Package inbox serves the client's notification inbox and device token registration.
package inbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"order-callback-service/internal/logging"
	"order-callback-service/internal/model"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 4 << 10

type UserStore interface {
	Upsert(ctx context.Context, profile model.UserProfile) error
}

type NotificationReader interface {
	ListByUser(ctx context.Context, userID string) ([]model.NotificationRecord, error)
}

type tokenRequest struct {
	FcmToken string `json:"fcmToken"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	users         UserStore
	notifications NotificationReader
	logger        *slog.Logger
}

func NewHandler(users UserStore, notifications NotificationReader, logger *slog.Logger) *Handler {
	return &Handler{users: users, notifications: notifications, logger: logger}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/users/{userId}/notifications", h.listNotifications)
	r.Put("/users/{userId}/fcm-token", h.registerToken)
}

// listNotifications returns the user's notifications, newest first.
func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	ctx := logging.AppendCtx(r.Context(), slog.String("userId", userID))

	records, err := h.notifications.ListByUser(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error listing notifications", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "temporarily unavailable"})
		return
	}
	if records == nil {
		records = []model.NotificationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// registerToken stores the device token used for push delivery. An empty
// token unregisters the device.
func (h *Handler) registerToken(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	ctx := logging.AppendCtx(r.Context(), slog.String("userId", userID))

	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed payload"})
		return
	}

	if err := h.users.Upsert(ctx, model.UserProfile{UserID: userID, FcmToken: req.FcmToken}); err != nil {
		h.logger.ErrorContext(ctx, "Error registering fcm token", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "temporarily unavailable"})
		return
	}

	h.logger.InfoContext(ctx, "Registered fcm token", "registered", req.FcmToken != "")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
