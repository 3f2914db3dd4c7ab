package event

import (
	"context"
	"fmt"
	"log/slog"

	"order-callback-service/internal/logging"
	"order-callback-service/internal/message"
	"order-callback-service/internal/model"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
)

const OrderPlacedTitle = "Order Placed"

var ErrInvalidEvent = errors.New("invalid order created event")

var (
	watcherNotifiedCounter     = metrics.GetOrCreateCounter(`order_watcher_total{result="notified"}`)
	watcherNoTokenCounter      = metrics.GetOrCreateCounter(`order_watcher_total{result="no_token"}`)
	watcherPushFailedCounter   = metrics.GetOrCreateCounter(`order_watcher_total{result="push_failed"}`)
	watcherTokenErrorCounter   = metrics.GetOrCreateCounter(`order_watcher_total{result="token_lookup_failed"}`)
	watcherRecordFailedCounter = metrics.GetOrCreateCounter(`order_watcher_total{result="record_failed"}`)
	watcherInvalidCounter      = metrics.GetOrCreateCounter(`order_watcher_total{result="invalid_event"}`)
)

type UserStore interface {
	GetFcmToken(ctx context.Context, userID string) (string, error)
}

type PushSender interface {
	Send(ctx context.Context, token, title, body string) error
}

type NotificationStore interface {
	Append(ctx context.Context, record model.NotificationRecord) (model.NotificationRecord, error)
}

// OrderCreationWatcher tells a user their order was placed: a push to their
// device when a token is registered, and always an in-app notification.
type OrderCreationWatcher struct {
	users         UserStore
	pusher        PushSender
	notifications NotificationStore
	logger        *slog.Logger
}

func NewOrderCreationWatcher(users UserStore, pusher PushSender, notifications NotificationStore, logger *slog.Logger) *OrderCreationWatcher {
	return &OrderCreationWatcher{
		users:         users,
		pusher:        pusher,
		notifications: notifications,
		logger:        logger,
	}
}

func OrderPlacedBody(orderID string) string {
	return fmt.Sprintf("Your order %s has been placed successfully.", orderID)
}

// Handle reacts to one order.created event. Push failures are logged and
// absorbed. A failed token lookup or notification write is returned after
// the remaining steps ran.
func (w *OrderCreationWatcher) Handle(ctx context.Context, event message.OrderCreated) error {
	userID := event.Payload.UserID
	orderID := event.Payload.OrderID

	ctx = logging.AppendCtx(ctx, slog.String("eventId", event.ID.String()))
	ctx = logging.AppendCtx(ctx, slog.String("orderId", orderID))
	ctx = logging.AppendCtx(ctx, slog.String("userId", userID))

	if userID == "" || orderID == "" {
		w.logger.ErrorContext(ctx, "Order created event without user or order id")
		watcherInvalidCounter.Inc()
		return ErrInvalidEvent
	}

	title := OrderPlacedTitle
	body := OrderPlacedBody(orderID)

	token, lookupErr := w.users.GetFcmToken(ctx, userID)
	switch {
	case lookupErr != nil:
		w.logger.ErrorContext(ctx, "Error looking up fcm token, skipping push", "error", lookupErr)
		watcherTokenErrorCounter.Inc()
	case token == "":
		w.logger.InfoContext(ctx, "No fcm token for user, skipping push")
		watcherNoTokenCounter.Inc()
	default:
		if err := w.pusher.Send(ctx, token, title, body); err != nil {
			w.logger.WarnContext(ctx, "Error sending push notification", "error", err)
			watcherPushFailedCounter.Inc()
		} else {
			w.logger.InfoContext(ctx, "Push notification sent")
		}
	}

	record, err := w.notifications.Append(ctx, model.NotificationRecord{
		UserID: userID,
		Title:  title,
		Body:   body,
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "Error storing notification", "error", err)
		watcherRecordFailedCounter.Inc()
		return errors.Wrap(err, "append notification")
	}

	w.logger.InfoContext(ctx, "Stored order placed notification", "notificationId", record.ID)

	if lookupErr != nil {
		return errors.Wrap(lookupErr, "lookup fcm token")
	}

	watcherNotifiedCounter.Inc()
	return nil
}
