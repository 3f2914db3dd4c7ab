package db

import (
	"time"

	"github.com/google/uuid"
)

type OrderEventEntity struct {
	ID              uuid.UUID
	UserID          string
	OrderID         string
	Payload         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ScheduledAt     *time.Time
	PublishedAt     *time.Time
	PublishAttempts int
	Error           *string
}

type CallbackLogEntity struct {
	ID         int64
	UserID     string
	OrderID    string
	RequestID  string
	TransID    string
	ResultCode string
	Outcome    string
	CreatedAt  time.Time
}
