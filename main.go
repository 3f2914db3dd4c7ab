package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-callback-service/internal/callback"
	"order-callback-service/internal/config"
	"order-callback-service/internal/db"
	"order-callback-service/internal/event"
	"order-callback-service/internal/inbox"
	"order-callback-service/internal/kafka"
	"order-callback-service/internal/logging"
	"order-callback-service/internal/metrics"
	"order-callback-service/internal/orders"
	"order-callback-service/internal/outbox"
	"order-callback-service/internal/push"
	"order-callback-service/internal/rabbitmq"
	"order-callback-service/internal/server"
	"order-callback-service/internal/signature"

	"github.com/pkg/errors"
)

func main() {
	cfg := config.MustLoadConfig(".")

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg, logger)
	stop()

	if err != nil {
		logger.Error("Service stopped", "error", err)
		os.Exit(1)
	}
}

// run wires the service and blocks until ctx is done or a background
// component fails; deferred cleanup runs before it returns.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	connStr := cfg.Database.ConnString()
	if err := db.RunMigrations(connStr); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	dbpool, err := db.GetPool(ctx, connStr)
	if err != nil {
		return errors.Wrap(err, "create database pool")
	}
	defer dbpool.Close()

	orderRepo := db.NewOrderRepository(dbpool)
	users := db.NewUserRepository(dbpool)
	notifications := db.NewNotificationRepository(dbpool)
	orderEvents := db.NewOrderEventRepository(dbpool)
	callbackLog := db.NewCallbackLogRepository(dbpool)

	verifier := signature.NewVerifier(cfg.Webhook.AccessKey, cfg.Webhook.SecretKey)
	processor := callback.NewProcessor(verifier, orderRepo, callbackLog, logger)
	watcher := event.NewOrderCreationWatcher(users, push.NewSender(cfg.Push, logger), notifications, logger)

	var publisher outbox.Publisher
	switch cfg.Events.Broker {
	case config.BrokerRabbitMQ:
		rabbitPublisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			return errors.Wrap(err, "create rabbitmq publisher")
		}
		defer rabbitPublisher.Close()
		publisher = rabbitPublisher

		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Queue, cfg.RabbitMQ.Prefetch, logger)
		if err != nil {
			return errors.Wrap(err, "create rabbitmq consumer")
		}
		defer consumer.Close()

		go func() {
			if err := consumer.ReadOrderEvents(ctx, watcher); err != nil {
				cancel(errors.Wrap(err, "rabbitmq consumer"))
			}
		}()
	default:
		writer := kafka.NewWriter(cfg.Kafka)
		defer writer.Close()
		publisher = kafka.NewPublisher(writer)

		reader := kafka.NewReader(cfg.Kafka.Broker.URL, cfg.Kafka.Topic.OrderEvents, cfg.Kafka.Reader.GroupID)
		defer reader.Close()

		kafka.ReadOrderEvents(ctx, reader, watcher, logger)
	}

	outbox.NewProducer(orderEvents, publisher, cfg.Outbox, logger).Start(ctx)

	router := server.NewRouter(logger,
		callback.NewHandler(processor, cfg.Webhook.OrderNotFoundStatus, logger),
		inbox.NewHandler(users, notifications, logger),
		orders.NewHandler(orderRepo, orderEvents, callbackLog, logger),
	)
	srv := server.New(cfg.Server, router)

	go func() {
		logger.Info("Starting HTTP server", "addr", srv.Addr, "broker", cfg.Events.Broker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cancel(errors.Wrap(err, "http server"))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutMs)*time.Millisecond)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", "error", err)
	}

	if cause := context.Cause(ctx); !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}
