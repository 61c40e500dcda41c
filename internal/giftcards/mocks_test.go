package giftcards

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-checkout/pkg/eventbus"
	"github.com/stretchr/testify/mock"
)

// mockLedger implements LedgerClient for testing
type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) GetCard(ctx context.Context, code string) (*LedgerCard, error) {
	args := m.Called(ctx, code)
	card, _ := args.Get(0).(*LedgerCard)
	return card, args.Error(1)
}

func (m *mockLedger) Reserve(ctx context.Context, req ReserveRequest) (*LedgerTransaction, error) {
	args := m.Called(ctx, req)
	tx, _ := args.Get(0).(*LedgerTransaction)
	return tx, args.Error(1)
}

func (m *mockLedger) Capture(ctx context.Context, txID string) (*LedgerTransaction, error) {
	args := m.Called(ctx, txID)
	tx, _ := args.Get(0).(*LedgerTransaction)
	return tx, args.Error(1)
}

func (m *mockLedger) Release(ctx context.Context, txID string) (*LedgerTransaction, error) {
	args := m.Called(ctx, txID)
	tx, _ := args.Get(0).(*LedgerTransaction)
	return tx, args.Error(1)
}

func (m *mockLedger) GetTransaction(ctx context.Context, txID string) (*LedgerTransaction, error) {
	args := m.Called(ctx, txID)
	tx, _ := args.Get(0).(*LedgerTransaction)
	return tx, args.Error(1)
}

// memSessions is an in-memory SessionStore that round-trips through JSON like Redis does
type memSessions struct {
	mu      sync.Mutex
	data    map[string][]byte
	loadErr error
}

func newMemSessions() *memSessions {
	return &memSessions{data: map[string][]byte{}}
}

func (s *memSessions) Load(ctx context.Context, sessionID string) (*SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	state := &SessionState{}
	if raw, ok := s.data[sessionID]; ok {
		if err := json.Unmarshal(raw, state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func (s *memSessions) Save(ctx context.Context, sessionID string, state *SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.data[sessionID] = raw
	return nil
}

func (s *memSessions) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// memOrders is an in-memory OrderStore with revision checks
type memOrders struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*Order
	notes   map[uuid.UUID][]string
	refunds []*Refund
	totals  []float64

	getErr       error
	saveErr      error
	refundErr    error
	conflictOnce bool
	// beforeSave runs once before the next SaveGiftCards, simulating a concurrent writer
	beforeSave func(order *Order)
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[uuid.UUID]*Order{}, notes: map[uuid.UUID][]string{}}
}

func (s *memOrders) add(order *Order) *Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Currency == "" {
		order.Currency = "EUR"
	}
	order.CreatedAt = time.Now()
	s.orders[order.ID] = order
	return order
}

func (s *memOrders) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	order, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *order
	cp.GiftCards = cloneCards(order.GiftCards)
	return &cp, nil
}

func (s *memOrders) SaveGiftCards(ctx context.Context, orderID uuid.UUID, cards []AppliedCard, expectedRevision int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	order, ok := s.orders[orderID]
	if !ok {
		return 0, ErrOrderNotFound
	}
	if s.beforeSave != nil {
		hook := s.beforeSave
		s.beforeSave = nil
		hook(order)
		order.Revision++
	}
	if s.conflictOnce {
		s.conflictOnce = false
		order.Revision++
	}
	if order.Revision != expectedRevision {
		return 0, ErrRevisionConflict
	}
	order.GiftCards = cloneCards(cards)
	order.Revision++
	return order.Revision, nil
}

func (s *memOrders) SetOrderTotal(ctx context.Context, orderID uuid.UUID, total float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[orderID].Total = total
	s.totals = append(s.totals, total)
	return nil
}

func (s *memOrders) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[orderID].Status = status
	return nil
}

func (s *memOrders) AddOrderNote(ctx context.Context, orderID uuid.UUID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[orderID] = append(s.notes[orderID], note)
	return nil
}

func (s *memOrders) CreateRefund(ctx context.Context, refund *Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refundErr != nil {
		return s.refundErr
	}
	s.refunds = append(s.refunds, refund)
	return nil
}

func (s *memOrders) cards(orderID uuid.UUID) []AppliedCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCards(s.orders[orderID].GiftCards)
}

func (s *memOrders) notesFor(orderID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes[orderID]...)
}

func cloneCards(cards []AppliedCard) []AppliedCard {
	if cards == nil {
		return nil
	}
	out := make([]AppliedCard, len(cards))
	for i, c := range cards {
		out[i] = c
		out[i].ReservationTxID = clonePtr(c.ReservationTxID)
		out[i].CaptureTxID = clonePtr(c.CaptureTxID)
		out[i].ReleaseTxID = clonePtr(c.ReleaseTxID)
	}
	return out
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// mockPublisher records published events
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, subject string, event *eventbus.Event) error {
	args := m.Called(ctx, subject, event)
	return args.Error(0)
}

// memQueue records enqueued jobs
type memQueue struct {
	jobs   []MigrationJob
	delays []time.Duration
	err    error
}

func (q *memQueue) Enqueue(ctx context.Context, job MigrationJob, delay time.Duration) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	q.delays = append(q.delays, delay)
	return nil
}

func testSettings() Settings {
	return Settings{
		Currency:                     "EUR",
		NoteLanguage:                 "en",
		RefundTotalIncludesGiftCards: true,
		MigrationBatchSize:           75,
		MigrationBatchDelay:          10 * time.Second,
	}
}

func ledgerCard(id string, cents int64) *LedgerCard {
	return &LedgerCard{ID: id, Balance: cents, Currency: "EUR", IsRedeemable: true}
}

func ledgerTx(id string, status TransactionStatus, cents int64) *LedgerTransaction {
	return &LedgerTransaction{ID: id, Status: status, Amount: cents}
}

func reservedCard(id string, used float64, reservation string) AppliedCard {
	return AppliedCard{
		ID:              id,
		Code:            MaskCode("GIFT" + id),
		MaskedCode:      MaskCode("GIFT" + id),
		Balance:         used,
		AmountUsed:      used,
		ReservationTxID: strPtr(reservation),
	}
}
