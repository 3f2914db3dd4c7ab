// Command push-mock stands in for the FCM legacy HTTP endpoint during local runs.
package main

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	errorRate   = 0.5
	contentType = "application/json"
	addr        = ":8085"
)

type result struct {
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type sendResponse struct {
	MulticastID int64    `json:"multicast_id"`
	Success     int      `json:"success"`
	Failure     int      `json:"failure"`
	Results     []result `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	tracker := newTracker(logger)

	r := chi.NewRouter()
	r.Use(loggingMiddleware(logger))
	r.Use(tracker.middleware)

	r.Post("/always-success", alwaysSuccessHandler)
	r.Post("/success-delayed", successDelayedHandler)
	r.Post("/always-fail", alwaysFailHandler)
	r.Post("/random-fail", randomFailHandler)
	r.Post("/invalid-token", invalidTokenHandler)

	logger.Info("Starting push mock", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("Push mock stopped", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func accepted() sendResponse {
	return sendResponse{
		MulticastID: rand.Int64(),
		Success:     1,
		Results:     []result{{MessageID: "0:" + uuid.NewString()}},
	}
}

func alwaysSuccessHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, accepted())
}

func successDelayedHandler(w http.ResponseWriter, _ *http.Request) {
	time.Sleep(time.Duration(3+rand.IntN(6)) * time.Second)
	writeJSON(w, http.StatusOK, accepted())
}

func alwaysFailHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
}

func randomFailHandler(w http.ResponseWriter, r *http.Request) {
	if rand.Float64() < errorRate {
		alwaysFailHandler(w, r)
		return
	}
	alwaysSuccessHandler(w, r)
}

func invalidTokenHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sendResponse{
		MulticastID: rand.Int64(),
		Failure:     1,
		Results:     []result{{Error: "NotRegistered"}},
	})
}
