package kafka

import (
	"context"
	"log/slog"
	"strings"

	"order-callback-service/internal/logging"
	"order-callback-service/internal/message"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"
)

type Metrics struct {
	ReadErrorCounter      *metrics.Counter
	UnmarshalErrorCounter *metrics.Counter
	ProcessErrorCounter   *metrics.Counter
	SuccessCounter        *metrics.Counter
}

var orderEventMetrics = Metrics{
	ReadErrorCounter:      metrics.GetOrCreateCounter(`event_reader_total{result="read_error",broker="kafka"}`),
	UnmarshalErrorCounter: metrics.GetOrCreateCounter(`event_reader_total{result="unmarshal_error",broker="kafka"}`),
	ProcessErrorCounter:   metrics.GetOrCreateCounter(`event_reader_total{result="process_error",broker="kafka"}`),
	SuccessCounter:        metrics.GetOrCreateCounter(`event_reader_total{result="success",broker="kafka"}`),
}

type OrderCreatedHandler interface {
	Handle(ctx context.Context, event message.OrderCreated) error
}

func NewReader(kafkaURL, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(kafkaURL, ","),
		GroupID: groupID,
		Topic:   topic,
	})
}

// ReadOrderEvents feeds order.created events to handler until ctx is done.
// Events that cannot be handled are logged and committed; the watcher is
// best effort and does not get redeliveries.
func ReadOrderEvents(ctx context.Context, reader *kafka.Reader, handler OrderCreatedHandler, logger *slog.Logger) {
	readMessages(ctx, reader, logger, func(ctx context.Context, value []byte) error {
		e, err := message.DecodeOrderCreated(value)
		if err != nil {
			logger.ErrorContext(ctx, "Error unmarshalling order event", "error", err)
			orderEventMetrics.UnmarshalErrorCounter.Inc()
			return nil
		}
		return handler.Handle(ctx, e)
	}, orderEventMetrics)
}

func readMessages(ctx context.Context, reader *kafka.Reader, logger *slog.Logger, process func(context.Context, []byte) error, kafkaMetrics Metrics) {
	go func() {
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.InfoContext(ctx, "Context done, stopping kafka reader")
					return
				}
				logger.ErrorContext(ctx, "Error reading message", "error", err)
				kafkaMetrics.ReadErrorCounter.Inc()
				continue
			}

			msgCtx := logging.AppendCtx(ctx, slog.String("topic", m.Topic))
			msgCtx = logging.AppendCtx(msgCtx, slog.Int64("offset", m.Offset))
			logger.DebugContext(msgCtx, "Received message", "key", string(m.Key))

			if err := process(msgCtx, m.Value); err != nil {
				logger.ErrorContext(msgCtx, "Error processing message", "error", err)
				kafkaMetrics.ProcessErrorCounter.Inc()
				continue
			}
			kafkaMetrics.SuccessCounter.Inc()
		}
	}()
}
