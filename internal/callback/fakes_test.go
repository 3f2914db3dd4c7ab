package callback

import (
	"context"
	"sync"

	"order-callback-service/internal/db"
	"order-callback-service/internal/model"
)

type orderKey struct {
	userID  string
	orderID string
}

type fakeOrderStore struct {
	mu       sync.Mutex
	orders   map[orderKey]*model.Order
	gets     int
	writes   int
	getErr   error
	writeErr error
	// stale makes UpdateStatus report a lost race once
	stale bool
}

func newFakeOrderStore(orders ...*model.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: make(map[orderKey]*model.Order)}
	for _, o := range orders {
		copied := *o
		s.orders[orderKey{o.UserID, o.OrderID}] = &copied
	}
	return s
}

func (s *fakeOrderStore) Get(_ context.Context, userID, orderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	order, ok := s.orders[orderKey{userID, orderID}]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *fakeOrderStore) UpdateStatus(_ context.Context, userID, orderID string, status model.OrderStatus, transID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return false, s.writeErr
	}
	order, ok := s.orders[orderKey{userID, orderID}]
	if !ok {
		return false, db.ErrNotFound
	}
	if s.stale {
		s.stale = false
		order.Status = model.OrderCompleted
		return false, nil
	}
	if order.Status != model.OrderPending {
		return false, nil
	}
	order.Status = status
	order.TransID = transID
	s.writes++
	return true, nil
}

func (s *fakeOrderStore) status(userID, orderID string) model.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[orderKey{userID, orderID}].Status
}

func (s *fakeOrderStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type fakeAuditLog struct {
	mu      sync.Mutex
	entries []db.CallbackLogEntity
	err     error
}

func (a *fakeAuditLog) Record(_ context.Context, entry db.CallbackLogEntity) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return a.err
}

func (a *fakeAuditLog) outcomes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		out = append(out, e.Outcome)
	}
	return out
}
