package event

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"order-callback-service/internal/message"
	"order-callback-service/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	tokens map[string]string
	err    error
}

func (f *fakeUsers) GetFcmToken(_ context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.tokens[userID], nil
}

type sentPush struct {
	token string
	title string
	body  string
}

type fakePusher struct {
	mu   sync.Mutex
	sent []sentPush
	err  error
}

func (f *fakePusher) Send(_ context.Context, token, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPush{token: token, title: title, body: body})
	return f.err
}

type fakeNotifications struct {
	mu      sync.Mutex
	records []model.NotificationRecord
	err     error
}

func (f *fakeNotifications) Append(_ context.Context, record model.NotificationRecord) (model.NotificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return record, f.err
	}
	record.ID = int64(len(f.records) + 1)
	record.Timestamp = time.Now()
	f.records = append(f.records, record)
	return record, nil
}

func orderCreated(userID, orderID string) message.OrderCreated {
	return message.OrderCreated{
		ID:    uuid.New(),
		Event: message.EventOrderCreated,
		Payload: message.OrderPayload{
			OrderID:   orderID,
			UserID:    userID,
			Amount:    150000,
			Status:    model.OrderPending,
			CreatedAt: time.Now(),
		},
	}
}

func TestOrderCreationWatcher_Handle(t *testing.T) {
	tests := []struct {
		name            string
		users           *fakeUsers
		pushErr         error
		expectedPushes  int
		expectedRecords int
		expectedErr     bool
	}{
		{
			name:            "TokenRegistered",
			users:           &fakeUsers{tokens: map[string]string{"U1": "device-token"}},
			expectedPushes:  1,
			expectedRecords: 1,
		},
		{
			name:            "NoToken",
			users:           &fakeUsers{tokens: map[string]string{}},
			expectedPushes:  0,
			expectedRecords: 1,
		},
		{
			name:            "PushFails",
			users:           &fakeUsers{tokens: map[string]string{"U1": "device-token"}},
			pushErr:         errors.New("NotRegistered"),
			expectedPushes:  1,
			expectedRecords: 1,
		},
		{
			name:            "TokenLookupFails",
			users:           &fakeUsers{err: errors.New("connection reset")},
			expectedPushes:  0,
			expectedRecords: 1,
			expectedErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pusher := &fakePusher{err: tt.pushErr}
			notifications := &fakeNotifications{}
			sut := NewOrderCreationWatcher(tt.users, pusher, notifications, slog.Default())

			err := sut.Handle(context.Background(), orderCreated("U1", "O1"))
			if tt.expectedErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			assert.Len(t, pusher.sent, tt.expectedPushes)
			require.Len(t, notifications.records, tt.expectedRecords)

			record := notifications.records[0]
			assert.Equal(t, "U1", record.UserID)
			assert.Equal(t, "Order Placed", record.Title)
			assert.Equal(t, "Your order O1 has been placed successfully.", record.Body)

			if tt.expectedPushes > 0 {
				assert.Equal(t, sentPush{token: "device-token", title: record.Title, body: record.Body}, pusher.sent[0])
			}
		})
	}
}

func TestOrderCreationWatcher_RecordFailureIsReturned(t *testing.T) {
	pusher := &fakePusher{}
	notifications := &fakeNotifications{err: errors.New("disk full")}
	sut := NewOrderCreationWatcher(&fakeUsers{tokens: map[string]string{"U1": "device-token"}}, pusher, notifications, slog.Default())

	err := sut.Handle(context.Background(), orderCreated("U1", "O1"))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, pusher.sent, 1)
}

func TestOrderCreationWatcher_InvalidEvent(t *testing.T) {
	pusher := &fakePusher{}
	notifications := &fakeNotifications{}
	sut := NewOrderCreationWatcher(&fakeUsers{}, pusher, notifications, slog.Default())

	err := sut.Handle(context.Background(), message.OrderCreated{ID: uuid.New(), Event: message.EventOrderCreated})

	assert.True(t, errors.Is(err, ErrInvalidEvent))
	assert.Empty(t, pusher.sent)
	assert.Empty(t, notifications.records)
}
