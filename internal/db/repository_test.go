//go:build integration

package db_test

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"order-callback-service/internal/db"
	"order-callback-service/internal/message"
	"order-callback-service/internal/model"
	"order-callback-service/internal/testhelpers"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RepositoryTestSuite struct {
	suite.Suite
	pgContainer   *testhelpers.PostgresContainer
	pool          *pgxpool.Pool
	orders        *db.OrderRepository
	users         *db.UserRepository
	notifications *db.NotificationRepository
	events        *db.OrderEventRepository
	callbackLog   *db.CallbackLogRepository
	ctx           context.Context
}

func (s *RepositoryTestSuite) SetupSuite() {
	time.Local = time.UTC

	s.ctx = context.Background()
	pgContainer, err := testhelpers.CreatePostgresContainer(s.ctx)
	if err != nil {
		log.Fatal(err)
	}
	s.pgContainer = pgContainer

	if err := db.RunMigrations(pgContainer.ConnectionString); err != nil {
		log.Fatal(err)
	}

	pool, err := db.GetPool(s.ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatal(err)
	}

	s.pool = pool
	s.orders = db.NewOrderRepository(pool)
	s.users = db.NewUserRepository(pool)
	s.notifications = db.NewNotificationRepository(pool)
	s.events = db.NewOrderEventRepository(pool)
	s.callbackLog = db.NewCallbackLogRepository(pool)
}

func (s *RepositoryTestSuite) TearDownSuite() {
	s.pool.Close()

	if err := s.pgContainer.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *RepositoryTestSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, "TRUNCATE orders, users, notifications, order_event, payment_callback_log")
	if err != nil {
		log.Fatalf("error truncating tables: %s", err)
	}
}

// createOrder inserts the way the ordering flow does, leaving the event to the trigger.
func (s *RepositoryTestSuite) createOrder(userID, orderID string) {
	_, err := s.pool.Exec(s.ctx,
		`INSERT INTO orders (user_id, order_id, amount, order_info, order_type) VALUES ($1, $2, $3, $4, $5)`,
		userID, orderID, 150000, "Food order "+orderID, "momo_wallet")
	s.Require().NoError(err)
}

func (s *RepositoryTestSuite) TestInsertEnqueuesOrderCreated() {
	t := s.T()

	s.createOrder("U1", "O1")

	stored, err := s.orders.Get(s.ctx, "U1", "O1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, stored.Status)
	assert.Equal(t, int64(150000), stored.Amount)
	assert.Equal(t, "Food order O1", stored.OrderInfo)
	assert.Empty(t, stored.TransID)

	events, err := s.events.SelectByOrder(s.ctx, "U1", "O1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotNil(t, events[0].ScheduledAt)
	assert.Nil(t, events[0].PublishedAt)
	assert.Zero(t, events[0].PublishAttempts)

	decoded, err := message.DecodeOrderCreated([]byte(events[0].Payload))
	require.NoError(t, err)
	assert.Equal(t, events[0].ID, decoded.ID)
	assert.Equal(t, "O1", decoded.Payload.OrderID)
	assert.Equal(t, "U1", decoded.Payload.UserID)
	assert.Equal(t, int64(150000), decoded.Payload.Amount)
	assert.Equal(t, model.OrderPending, decoded.Payload.Status)
	assert.Equal(t, "momo_wallet", decoded.Payload.OrderType)
	assert.True(t, stored.CreatedAt.Equal(decoded.Payload.CreatedAt))

	tx, err := s.events.BeginTx(s.ctx)
	require.NoError(t, err)
	defer tx.Rollback(s.ctx)

	due, err := s.events.GetUnpublished(s.ctx, tx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, events[0].ID, due[0].ID)
}

func (s *RepositoryTestSuite) TestDuplicateInsertEnqueuesNothing() {
	t := s.T()

	s.createOrder("U1", "O1")
	_, err := s.pool.Exec(s.ctx, `INSERT INTO orders (user_id, order_id, amount) VALUES ('U1', 'O1', 1)`)
	assert.Error(t, err)

	events, err := s.events.SelectByOrder(s.ctx, "U1", "O1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func (s *RepositoryTestSuite) TestStatusUpdateEnqueuesNothing() {
	t := s.T()
	s.createOrder("U1", "O1")

	_, err := s.orders.UpdateStatus(s.ctx, "U1", "O1", model.OrderCompleted, "T1")
	require.NoError(t, err)

	events, err := s.events.SelectByOrder(s.ctx, "U1", "O1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func (s *RepositoryTestSuite) TestGetUnknownOrder() {
	s.createOrder("U1", "O1")

	_, err := s.orders.Get(s.ctx, "U2", "O1")
	s.True(errors.Is(err, db.ErrNotFound))
}

func (s *RepositoryTestSuite) TestUpdateStatusOnlyFromPending() {
	t := s.T()
	s.createOrder("U1", "O1")

	applied, err := s.orders.UpdateStatus(s.ctx, "U1", "O1", model.OrderCompleted, "T1")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.orders.UpdateStatus(s.ctx, "U1", "O1", model.OrderFailed, "T1")
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := s.orders.Get(s.ctx, "U1", "O1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderCompleted, stored.Status)
	assert.Equal(t, "T1", stored.TransID)
}

func (s *RepositoryTestSuite) TestUpdateStatusUnknownOrder() {
	_, err := s.orders.UpdateStatus(s.ctx, "U1", "missing", model.OrderCompleted, "T1")
	s.True(errors.Is(err, db.ErrNotFound))
}

func (s *RepositoryTestSuite) TestConcurrentUpdatesApplyOnce() {
	t := s.T()
	s.createOrder("U1", "O1")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 10; i++ {
		status := model.OrderCompleted
		if i%2 == 1 {
			status = model.OrderFailed
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.orders.UpdateStatus(s.ctx, "U1", "O1", status, "T1")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
}

func (s *RepositoryTestSuite) TestFcmToken() {
	t := s.T()

	token, err := s.users.GetFcmToken(s.ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, s.users.Upsert(s.ctx, model.UserProfile{UserID: "U1"}))
	token, err = s.users.GetFcmToken(s.ctx, "U1")
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, s.users.Upsert(s.ctx, model.UserProfile{UserID: "U1", FcmToken: "device-token"}))
	token, err = s.users.GetFcmToken(s.ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "device-token", token)
}

func (s *RepositoryTestSuite) TestAppendNotification() {
	t := s.T()

	record, err := s.notifications.Append(s.ctx, model.NotificationRecord{UserID: "U1", Title: "Order Placed", Body: "Your order O1 has been placed successfully."})
	require.NoError(t, err)
	assert.NotZero(t, record.ID)
	assert.WithinDuration(t, time.Now(), record.Timestamp, 5*time.Second)

	records, err := s.notifications.ListByUser(s.ctx, "U1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
	assert.Equal(t, "Order Placed", records[0].Title)
}

func (s *RepositoryTestSuite) TestCallbackLog() {
	t := s.T()

	err := s.callbackLog.Record(s.ctx, db.CallbackLogEntity{UserID: "U1", OrderID: "O1", RequestID: "R1", TransID: "T1", ResultCode: "0", Outcome: "applied"})
	require.NoError(t, err)
	err = s.callbackLog.Record(s.ctx, db.CallbackLogEntity{UserID: "U1", OrderID: "O1", RequestID: "R1", TransID: "T1", ResultCode: "0", Outcome: "duplicate"})
	require.NoError(t, err)

	entries, err := s.callbackLog.ListByOrder(s.ctx, "U1", "O1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "applied", entries[0].Outcome)
	assert.Equal(t, "duplicate", entries[1].Outcome)
}

func (s *RepositoryTestSuite) TestGetUnpublishedAndUpdate() {
	t := s.T()
	s.createOrder("U1", "O1")

	tx, err := s.events.BeginTx(s.ctx)
	require.NoError(t, err)
	defer tx.Rollback(s.ctx)

	events, err := s.events.GetUnpublished(s.ctx, tx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	now := time.Now()
	events[0].ScheduledAt = nil
	events[0].PublishedAt = &now
	events[0].PublishAttempts = 1
	require.NoError(t, s.events.Update(s.ctx, tx, events[0]))
	require.NoError(t, tx.Commit(s.ctx))

	stored, err := s.events.SelectByOrder(s.ctx, "U1", "O1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Nil(t, stored[0].ScheduledAt)
	assert.NotNil(t, stored[0].PublishedAt)
	assert.Equal(t, 1, stored[0].PublishAttempts)
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
