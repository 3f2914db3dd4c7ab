package callback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"order-callback-service/internal/db"
	"order-callback-service/internal/logging"
	"order-callback-service/internal/model"
	"order-callback-service/internal/payload"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
)

var (
	webhookAppliedCounter          = metrics.GetOrCreateCounter(`callback_webhook_total{result="applied"}`)
	webhookDuplicateCounter        = metrics.GetOrCreateCounter(`callback_webhook_total{result="duplicate"}`)
	webhookInvalidSignatureCounter = metrics.GetOrCreateCounter(`callback_webhook_total{result="invalid_signature"}`)
	webhookMalformedCounter        = metrics.GetOrCreateCounter(`callback_webhook_total{result="malformed"}`)
	webhookNotFoundCounter         = metrics.GetOrCreateCounter(`callback_webhook_total{result="order_not_found"}`)
	webhookStoreErrorCounter       = metrics.GetOrCreateCounter(`callback_webhook_total{result="store_error"}`)

	webhookDurationHistogram = metrics.GetOrCreateHistogram(`callback_webhook_duration_milliseconds`)
)

type Outcome string

const (
	// OutcomeApplied means this callback moved the order out of pending.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the order was already terminal; nothing was written.
	OutcomeDuplicate Outcome = "duplicate"
)

type Result struct {
	Outcome Outcome
	Status  model.OrderStatus
}

type Verifier interface {
	Verify(cb *payload.PaymentCallback) (bool, error)
}

type OrderStore interface {
	Get(ctx context.Context, userID, orderID string) (*model.Order, error)
	UpdateStatus(ctx context.Context, userID, orderID string, status model.OrderStatus, transID string) (bool, error)
}

type AuditLog interface {
	Record(ctx context.Context, entry db.CallbackLogEntity) error
}

type Processor struct {
	verifier Verifier
	orders   OrderStore
	audit    AuditLog
	logger   *slog.Logger
}

// NewProcessor builds the payment callback processor. audit may be nil.
func NewProcessor(verifier Verifier, orders OrderStore, audit AuditLog, logger *slog.Logger) *Processor {
	return &Processor{
		verifier: verifier,
		orders:   orders,
		audit:    audit,
		logger:   logger,
	}
}

// Process verifies cb and applies its result to the order it references.
// Replays of an already applied callback succeed with OutcomeDuplicate.
func (p *Processor) Process(ctx context.Context, cb *payload.PaymentCallback) (Result, error) {
	startTime := time.Now()
	defer func() {
		webhookDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	if cb == nil {
		webhookMalformedCounter.Inc()
		return Result{}, ErrMalformedPayload
	}

	ctx = logging.AppendCtx(ctx, slog.String("orderId", cb.OrderID))
	ctx = logging.AppendCtx(ctx, slog.String("transId", cb.TransID.String()))

	valid, err := p.verifier.Verify(cb)
	if err != nil {
		p.logger.WarnContext(ctx, "Rejected malformed payment callback", "error", err)
		webhookMalformedCounter.Inc()
		return Result{}, err
	}
	if !valid {
		p.logger.WarnContext(ctx, "Rejected payment callback with invalid signature")
		webhookInvalidSignatureCounter.Inc()
		return Result{}, ErrInvalidSignature
	}

	succeeded, ok := cb.Succeeded()
	if !ok {
		p.logger.WarnContext(ctx, "Rejected payment callback with non-numeric result code", "resultCode", cb.ResultCode.String())
		webhookMalformedCounter.Inc()
		return Result{}, errors.Wrap(ErrMalformedPayload, "resultCode is not an integer")
	}

	target := model.OrderFailed
	if succeeded {
		target = model.OrderCompleted
	}

	order, err := p.orders.Get(ctx, cb.UserID, cb.OrderID)
	if err != nil {
		return Result{}, p.storeFailure(ctx, cb, err)
	}

	if order.Status.Terminal() {
		return p.duplicate(ctx, cb, order.Status), nil
	}

	applied, err := p.orders.UpdateStatus(ctx, cb.UserID, cb.OrderID, target, cb.TransID.String())
	if err != nil {
		return Result{}, p.storeFailure(ctx, cb, err)
	}
	if !applied {
		// another delivery of this callback won the row lock
		current, err := p.orders.Get(ctx, cb.UserID, cb.OrderID)
		if err != nil {
			return Result{}, p.storeFailure(ctx, cb, err)
		}
		return p.duplicate(ctx, cb, current.Status), nil
	}

	p.logger.InfoContext(ctx, "Applied payment callback", "status", target, "resultCode", cb.ResultCode.String())
	webhookAppliedCounter.Inc()
	p.record(ctx, cb, string(OutcomeApplied))

	return Result{Outcome: OutcomeApplied, Status: target}, nil
}

func (p *Processor) duplicate(ctx context.Context, cb *payload.PaymentCallback, status model.OrderStatus) Result {
	p.logger.InfoContext(ctx, "Duplicate callback, order already terminal", "status", status, "resultCode", cb.ResultCode.String())
	webhookDuplicateCounter.Inc()
	p.record(ctx, cb, string(OutcomeDuplicate))

	return Result{Outcome: OutcomeDuplicate, Status: status}
}

func (p *Processor) storeFailure(ctx context.Context, cb *payload.PaymentCallback, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		p.logger.WarnContext(ctx, "Payment callback references unknown order")
		webhookNotFoundCounter.Inc()
		p.record(ctx, cb, "order_not_found")
		return ErrOrderNotFound
	}

	p.logger.ErrorContext(ctx, "Order store failed while processing payment callback", "error", err)
	webhookStoreErrorCounter.Inc()
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func (p *Processor) record(ctx context.Context, cb *payload.PaymentCallback, outcome string) {
	if p.audit == nil {
		return
	}

	err := p.audit.Record(ctx, db.CallbackLogEntity{
		UserID:     cb.UserID,
		OrderID:    cb.OrderID,
		RequestID:  cb.RequestID,
		TransID:    cb.TransID.String(),
		ResultCode: cb.ResultCode.String(),
		Outcome:    outcome,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "Error recording payment callback", "error", err)
	}
}
