package outbox

import (
	"context"
	"log/slog"
	"time"

	"order-callback-service/internal/config"
	"order-callback-service/internal/db"
	"order-callback-service/internal/logging"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
)

const (
	defaultPollingIntervalMs   = 500
	defaultFetchSize           = 200
	defaultRetryPublishDelayMs = 10_000
	defaultMaxPublishAttempts  = 3
)

var (
	// producer batch metrics
	producerErrorFetchingCounter = metrics.GetOrCreateCounter(`outbox_producer_total{result="fetching_failed"}`)
	producerErrorPublishCounter  = metrics.GetOrCreateCounter(`outbox_producer_total{result="publish_failed"}`)
	producerErrorUpdateCounter   = metrics.GetOrCreateCounter(`outbox_producer_total{result="db_update_failed"}`)
	producerSuccessCounter       = metrics.GetOrCreateCounter(`outbox_producer_total{result="success"}`)

	producerProcessDurationHistogram = metrics.GetOrCreateHistogram(`outbox_producer_duration_milliseconds`)

	// producer per message metrics
	producerMessagesPublishedCounter   = metrics.GetOrCreateCounter(`outbox_producer_messages_total{result="published"}`)
	producerMessagesMaxAttemptsCounter = metrics.GetOrCreateCounter(`outbox_producer_messages_total{result="max_attempts_reached"}`)
	producerMessagesRescheduledCounter = metrics.GetOrCreateCounter(`outbox_producer_messages_total{result="rescheduled"}`)
)

type Message struct {
	Key   []byte
	Value []byte
}

// Publisher hands order events to the message broker.
type Publisher interface {
	Publish(ctx context.Context, messages ...Message) error
}

// Producer relays order events enqueued by the orders insert trigger to the broker.
type Producer struct {
	repo               *db.OrderEventRepository
	publisher          Publisher
	pollingInterval    time.Duration
	fetchSize          int
	retryDelay         time.Duration
	maxPublishAttempts int
	logger             *slog.Logger
}

func NewProducer(repo *db.OrderEventRepository, publisher Publisher, cfg config.Outbox, logger *slog.Logger) *Producer {
	return &Producer{
		repo:               repo,
		publisher:          publisher,
		pollingInterval:    time.Duration(orDefault(cfg.PollingIntervalMs, defaultPollingIntervalMs)) * time.Millisecond,
		fetchSize:          orDefault(cfg.FetchSize, defaultFetchSize),
		retryDelay:         time.Duration(orDefault(cfg.RescheduleDelayMs, defaultRetryPublishDelayMs)) * time.Millisecond,
		maxPublishAttempts: orDefault(cfg.MaxPublishAttempts, defaultMaxPublishAttempts),
		logger:             logger,
	}
}

func orDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.pollingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.Process(ctx)
			case <-ctx.Done():
				p.logger.InfoContext(ctx, "Context done, stopping outbox producer")
				return
			}
		}
	}()
}

// Process publishes one batch of due events and records the outcome of each.
func (p *Producer) Process(ctx context.Context) {
	startTime := time.Now()
	defer func() {
		producerProcessDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	// set runId as a correlation id for all logs in scope
	ctx = logging.AppendCtx(ctx, slog.String("runId", uuid.New().String()))

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error starting transaction", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}

	defer tx.Rollback(ctx)

	events, err := p.repo.GetUnpublished(ctx, tx, p.fetchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error fetching unpublished order events", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}

	if len(events) == 0 {
		p.logger.DebugContext(ctx, "No unpublished order events found")
		producerSuccessCounter.Inc()
		return
	}

	p.logger.InfoContext(ctx, "Publishing order events", "count", len(events))

	publishErr := p.publisher.Publish(ctx, toMessages(events)...)
	if publishErr != nil {
		p.logger.ErrorContext(ctx, "Error publishing order events", "error", publishErr)
		producerErrorPublishCounter.Inc()
	}

	now := time.Now()
	for _, event := range events {
		eventCtx := logging.AppendCtx(ctx, slog.String("eventId", event.ID.String()))

		event.PublishAttempts++

		if publishErr != nil {
			errMsg := publishErr.Error()
			event.Error = &errMsg

			if event.PublishAttempts >= p.maxPublishAttempts {
				p.logger.WarnContext(eventCtx, "Max publish attempts reached for order event")
				event.ScheduledAt = nil

				producerMessagesMaxAttemptsCounter.Inc()
			} else {
				scheduledAt := now.Add(time.Duration(event.PublishAttempts) * p.retryDelay)
				event.ScheduledAt = &scheduledAt

				producerMessagesRescheduledCounter.Inc()
			}
		} else {
			event.ScheduledAt = nil
			event.PublishedAt = &now
			event.Error = nil

			producerMessagesPublishedCounter.Inc()
		}

		if err := p.repo.Update(eventCtx, tx, event); err != nil {
			p.logger.ErrorContext(eventCtx, "Error updating order event", "error", err)
			producerErrorUpdateCounter.Inc()
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Error committing transaction", "error", err)
		producerErrorUpdateCounter.Inc()
		return
	}

	producerSuccessCounter.Inc()
}

func toMessages(events []*db.OrderEventEntity) []Message {
	messages := make([]Message, 0, len(events))
	for _, event := range events {
		messages = append(messages, Message{
			// keyed by order so every event of one order lands on one partition
			Key:   []byte(event.UserID + "/" + event.OrderID),
			Value: []byte(event.Payload),
		})
	}
	return messages
}
