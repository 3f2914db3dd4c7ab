package orders

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"order-callback-service/internal/db"
	"order-callback-service/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	order     *model.Order
	getErr    error
	events    []*db.OrderEventEntity
	eventsErr error
	callbacks []db.CallbackLogEntity
}

func (f *fakeStore) Get(_ context.Context, userID, orderID string) (*model.Order, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.order == nil || f.order.UserID != userID || f.order.OrderID != orderID {
		return nil, db.ErrNotFound
	}
	return f.order, nil
}

func (f *fakeStore) SelectByOrder(context.Context, string, string) ([]*db.OrderEventEntity, error) {
	return f.events, f.eventsErr
}

func (f *fakeStore) ListByOrder(context.Context, string, string) ([]db.CallbackLogEntity, error) {
	return f.callbacks, nil
}

func serve(store *fakeStore, target string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	NewHandler(store, store, store, slog.Default()).Routes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestGetOrder(t *testing.T) {
	publishedAt := time.Now()
	eventID := uuid.New()
	store := &fakeStore{
		order: &model.Order{OrderID: "O1", UserID: "U1", Amount: 150000, Status: model.OrderCompleted, TransID: "T1"},
		events: []*db.OrderEventEntity{
			{ID: eventID, UserID: "U1", OrderID: "O1", PublishedAt: &publishedAt, PublishAttempts: 1},
		},
		callbacks: []db.CallbackLogEntity{
			{UserID: "U1", OrderID: "O1", RequestID: "R1", TransID: "T1", ResultCode: "0", Outcome: "applied"},
			{UserID: "U1", OrderID: "O1", RequestID: "R1", TransID: "T1", ResultCode: "0", Outcome: "duplicate"},
		},
	}

	rec := serve(store, "/users/U1/orders/O1")
	require.Equal(t, http.StatusOK, rec.Code)

	var view orderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, model.OrderCompleted, view.Order.Status)
	require.Len(t, view.Events, 1)
	assert.Equal(t, eventID.String(), view.Events[0].ID)
	assert.NotNil(t, view.Events[0].PublishedAt)
	require.Len(t, view.Callbacks, 2)
	assert.Equal(t, "duplicate", view.Callbacks[1].Outcome)
}

func TestGetOrder_Errors(t *testing.T) {
	tests := []struct {
		name           string
		store          *fakeStore
		target         string
		expectedStatus int
	}{
		{
			name:           "UnknownOrder",
			store:          &fakeStore{order: &model.Order{OrderID: "O1", UserID: "U1"}},
			target:         "/users/U1/orders/O2",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "WrongUser",
			store:          &fakeStore{order: &model.Order{OrderID: "O1", UserID: "U1"}},
			target:         "/users/U2/orders/O1",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "OrderStoreError",
			store:          &fakeStore{getErr: errors.New("connection refused")},
			target:         "/users/U1/orders/O1",
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "EventStoreError",
			store:          &fakeStore{order: &model.Order{OrderID: "O1", UserID: "U1"}, eventsErr: errors.New("connection refused")},
			target:         "/users/U1/orders/O1",
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.store, tt.target)
			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}
