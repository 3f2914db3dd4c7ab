package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	body *bytes.Buffer
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	lrw.body.Write(b)
	return lrw.ResponseWriter.Write(b)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Error reading request body", "error", err)
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			logger.Info("Request", "path", r.URL.Path, "authorization", r.Header.Get("Authorization") != "", "body", string(body))

			lrw := &loggingResponseWriter{ResponseWriter: w, body: &bytes.Buffer{}}
			next.ServeHTTP(lrw, r)

			logger.Info("Response", "path", r.URL.Path, "body", lrw.body.String())
		})
	}
}

// tracker counts calls per endpoint and reports notifications sent twice for
// the same device and text, which points at a redelivered order event.
type tracker struct {
	mu             sync.Mutex
	seen           map[string]bool
	endpointCounts map[string]int
	logger         *slog.Logger
}

func newTracker(logger *slog.Logger) *tracker {
	return &tracker{
		seen:           make(map[string]bool),
		endpointCounts: make(map[string]int),
		logger:         logger,
	}
}

type pushRequest struct {
	To           string `json:"to"`
	Notification struct {
		Body string `json:"body"`
	} `json:"notification"`
}

func (t *tracker) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		var req pushRequest
		_ = json.Unmarshal(body, &req)
		key := req.To + "|" + req.Notification.Body

		t.mu.Lock()
		t.endpointCounts[r.URL.Path]++
		count := t.endpointCounts[r.URL.Path]
		duplicate := req.To != "" && t.seen[key]
		t.seen[key] = true
		t.mu.Unlock()

		t.logger.Info("Endpoint called", "path", r.URL.Path, "count", count)
		if duplicate {
			t.logger.Warn("Duplicate notification", "token", req.To, "body", req.Notification.Body)
		}

		next.ServeHTTP(w, r)
	})
}
