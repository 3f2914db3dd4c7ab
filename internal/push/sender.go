package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"order-callback-service/internal/config"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
)

const (
	defaultTimeoutMs = 10_000
	maxResponseBytes = 1 << 20
)

var ErrDeliveryFailed = errors.New("push delivery failed")

var (
	pushSuccessCounter  = metrics.GetOrCreateCounter(`push_sender_total{result="success"}`)
	pushRejectedCounter = metrics.GetOrCreateCounter(`push_sender_total{result="rejected"}`)
	pushErrorCounter    = metrics.GetOrCreateCounter(`push_sender_total{result="error"}`)

	pushDurationHistogram = metrics.GetOrCreateHistogram(`push_sender_duration_milliseconds`)
)

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type request struct {
	To           string       `json:"to"`
	Notification notification `json:"notification"`
}

type result struct {
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type response struct {
	Success int      `json:"success"`
	Failure int      `json:"failure"`
	Results []result `json:"results"`
}

// Sender delivers notifications through the FCM HTTP endpoint.
type Sender struct {
	client    *http.Client
	url       string
	serverKey string
	logger    *slog.Logger
}

func NewSender(cfg config.Push, logger *slog.Logger) *Sender {
	timeoutMs := cfg.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = defaultTimeoutMs
	}
	return &Sender{
		client:    &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		url:       cfg.URL,
		serverKey: cfg.ServerKey,
		logger:    logger,
	}
}

func (s *Sender) Send(ctx context.Context, token, title, body string) error {
	startTime := time.Now()
	defer func() {
		pushDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	requestBytes, err := json.Marshal(request{To: token, Notification: notification{Title: title, Body: body}})
	if err != nil {
		pushErrorCounter.Inc()
		return errors.Wrap(err, "marshal push request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(requestBytes))
	if err != nil {
		pushErrorCounter.Inc()
		return errors.Wrap(err, "create push request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.serverKey)

	s.logger.DebugContext(ctx, "Sending push notification", "url", s.url)

	resp, err := s.client.Do(req)
	if err != nil {
		pushErrorCounter.Inc()
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		pushErrorCounter.Inc()
		return fmt.Errorf("%w: read response: %w", ErrDeliveryFailed, err)
	}

	if resp.StatusCode >= 400 {
		pushErrorCounter.Inc()
		return errors.Wrapf(ErrDeliveryFailed, "error response: %s", resp.Status)
	}

	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		pushErrorCounter.Inc()
		return fmt.Errorf("%w: decode response: %w", ErrDeliveryFailed, err)
	}

	if parsed.Failure > 0 {
		pushRejectedCounter.Inc()
		reason := "unknown"
		if len(parsed.Results) > 0 && parsed.Results[0].Error != "" {
			reason = parsed.Results[0].Error
		}
		return errors.Wrapf(ErrDeliveryFailed, "rejected by provider: %s", reason)
	}

	pushSuccessCounter.Inc()
	s.logger.DebugContext(ctx, "Push notification accepted", "status", resp.Status)
	return nil
}
