package model

import (
	"time"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderFailed
}

type Order struct {
	OrderID   string      `json:"orderId"`
	UserID    string      `json:"userId"`
	Amount    int64       `json:"amount"`
	Status    OrderStatus `json:"status"`
	OrderInfo string      `json:"orderInfo"`
	OrderType string      `json:"orderType"`
	ExtraData string      `json:"extraData"`
	TransID   string      `json:"transId,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type NotificationRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

type UserProfile struct {
	UserID   string `json:"userId"`
	FcmToken string `json:"fcmToken,omitempty"`
}
