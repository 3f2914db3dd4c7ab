package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"order-callback-service/internal/config"
	"order-callback-service/internal/logging"
	"order-callback-service/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes is implemented by every handler mounted on the router.
type Routes interface {
	Routes(r chi.Router)
}

func NewRouter(logger *slog.Logger, handlers ...Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	for _, h := range handlers {
		h.Routes(r)
	}

	return r
}

func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.WriteTimeoutMs) * time.Millisecond,
	}
}

// requestLogger tags the request context with its id and logs one line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logging.AppendCtx(r.Context(), slog.String("requestId", middleware.GetReqID(r.Context())))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			logRequest(ctx, logger, r, ww.Status(), time.Since(start))
		})
	}
}

func logRequest(ctx context.Context, logger *slog.Logger, r *http.Request, status int, elapsed time.Duration) {
	if r.URL.Path == "/liveness" || r.URL.Path == "/metrics" {
		return
	}
	logger.InfoContext(ctx, "Handled request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"durationMs", elapsed.Milliseconds())
}
