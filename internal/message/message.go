package message

import (
	"encoding/json"
	"time"

	"order-callback-service/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const EventOrderCreated = "order.created"

// OrderCreated is published once per inserted order. The orders insert
// trigger builds the same document in SQL.
type OrderCreated struct {
	ID      uuid.UUID    `json:"id"`
	Event   string       `json:"event"`
	Payload OrderPayload `json:"payload"`
}

type OrderPayload struct {
	OrderID   string            `json:"orderId"`
	UserID    string            `json:"userId"`
	Amount    int64             `json:"amount"`
	Status    model.OrderStatus `json:"status"`
	OrderInfo string            `json:"orderInfo"`
	OrderType string            `json:"orderType"`
	ExtraData string            `json:"extraData"`
	CreatedAt time.Time         `json:"createdAt"`
}

// DecodeOrderCreated parses a bus message and rejects other event types.
func DecodeOrderCreated(data []byte) (OrderCreated, error) {
	var event OrderCreated
	if err := json.Unmarshal(data, &event); err != nil {
		return OrderCreated{}, err
	}
	if event.Event != EventOrderCreated {
		return OrderCreated{}, errors.Errorf("unexpected event type %q", event.Event)
	}
	return event, nil
}
