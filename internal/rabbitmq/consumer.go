package rabbitmq

import (
	"context"
	"log/slog"

	"order-callback-service/internal/logging"
	"order-callback-service/internal/message"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"
)

const defaultPrefetch = 32

// ErrConsumerClosed is returned when the broker stops delivering before ctx is done.
var ErrConsumerClosed = errors.New("rabbitmq deliveries closed")

var (
	readerUnmarshalErrorCounter = metrics.GetOrCreateCounter(`event_reader_total{result="unmarshal_error",broker="rabbitmq"}`)
	readerProcessErrorCounter   = metrics.GetOrCreateCounter(`event_reader_total{result="process_error",broker="rabbitmq"}`)
	readerSuccessCounter        = metrics.GetOrCreateCounter(`event_reader_total{result="success",broker="rabbitmq"}`)
)

type OrderCreatedHandler interface {
	Handle(ctx context.Context, event message.OrderCreated) error
}

type Consumer struct {
	conn     *amqp091.Connection
	queue    string
	prefetch int
	logger   *slog.Logger
}

func NewConsumer(url, exchange, queue string, prefetch int, logger *slog.Logger) (*Consumer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	defer ch.Close()

	if err := declareExchange(ch, exchange); err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "declare queue")
	}

	if err := ch.QueueBind(
		queue,
		"",
		exchange,
		false,
		nil,
	); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "bind queue")
	}

	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	return &Consumer{
		conn:     conn,
		queue:    queue,
		prefetch: prefetch,
		logger:   logger,
	}, nil
}

// ReadOrderEvents consumes order.created events until ctx is done. Every
// delivery is acked once handled: the watcher is best effort and a
// redelivery would send the user a second notification. A lost broker
// connection ends the loop with an error.
func (c *Consumer) ReadOrderEvents(ctx context.Context, handler OrderCreatedHandler) error {
	return c.start(ctx, func(ctx context.Context, d amqp091.Delivery) {
		defer func() {
			if err := d.Ack(false); err != nil {
				c.logger.ErrorContext(ctx, "Error acking delivery", "error", err)
			}
		}()

		dispatch(ctx, d.Body, handler, c.logger)
	})
}

func dispatch(ctx context.Context, body []byte, handler OrderCreatedHandler, logger *slog.Logger) {
	e, err := message.DecodeOrderCreated(body)
	if err != nil {
		logger.ErrorContext(ctx, "Error unmarshalling order event", "error", err)
		readerUnmarshalErrorCounter.Inc()
		return
	}

	ctx = logging.AppendCtx(ctx, slog.String("eventId", e.ID.String()))
	if err := handler.Handle(ctx, e); err != nil {
		logger.ErrorContext(ctx, "Error processing order event", "error", err)
		readerProcessErrorCounter.Inc()
		return
	}
	readerSuccessCounter.Inc()
}

func (c *Consumer) start(ctx context.Context, handler func(context.Context, amqp091.Delivery)) error {
	closed := c.conn.NotifyClose(make(chan *amqp091.Error, 1))

	ch, err := c.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open channel")
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return errors.Wrap(err, "set qos")
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consume queue")
	}

	err = consume(ctx, msgs, closed, handler)
	if err == nil {
		c.logger.InfoContext(ctx, "Context done, stopping rabbitmq consumer")
	}
	return err
}

func consume(ctx context.Context, msgs <-chan amqp091.Delivery, closed <-chan *amqp091.Error, handler func(context.Context, amqp091.Delivery)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-closed:
			if ctx.Err() != nil {
				return nil
			}
			if ok && amqpErr != nil {
				return errors.Wrap(amqpErr, "rabbitmq connection closed")
			}
			return ErrConsumerClosed
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrConsumerClosed
			}
			handler(ctx, msg)
		}
	}
}

func (c *Consumer) Close() error {
	return c.conn.Close()
}
