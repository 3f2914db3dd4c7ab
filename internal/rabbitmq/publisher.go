package rabbitmq

import (
	"context"
	"log/slog"
	"sync"

	"order-callback-service/internal/outbox"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"
)

// Publisher sends order events to a fanout exchange. A connection dropped by
// the broker is redialed on the next Publish.
type Publisher struct {
	url      string
	exchange string
	dial     func(url string) (*amqp091.Connection, error)
	logger   *slog.Logger

	mu   sync.Mutex
	conn *amqp091.Connection
}

func NewPublisher(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{url: url, exchange: exchange, dial: amqp091.Dial, logger: logger}
	if _, err := p.connection(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connection(ctx context.Context) (*amqp091.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	if p.conn != nil {
		p.logger.WarnContext(ctx, "RabbitMQ connection lost, reconnecting")
	}

	conn, err := p.dial(p.url)
	if err != nil {
		return nil, errors.Wrap(err, "connect rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	defer ch.Close()

	if err := declareExchange(ch, p.exchange); err != nil {
		conn.Close()
		return nil, err
	}

	p.conn = conn
	return conn, nil
}

func (p *Publisher) Publish(ctx context.Context, messages ...outbox.Message) error {
	conn, err := p.connection(ctx)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open channel")
	}
	defer ch.Close()

	for _, m := range messages {
		err := ch.PublishWithContext(ctx, p.exchange, string(m.Key), false, false, amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Body:         m.Value,
		})
		if err != nil {
			return errors.Wrap(err, "publish")
		}
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}

func declareExchange(ch *amqp091.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return errors.Wrap(err, "declare exchange")
	}
	return nil
}
