package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/infrastructure/store/mocks"
	"github.com/example/ec-checkout/internal/money"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() (*order.Ledger, *mocks.MockOrderRepository, *mocks.MockPublisher) {
	repo := mocks.NewMockOrderRepository()
	pub := mocks.NewMockPublisher()
	return order.NewLedger(repo, pub), repo, pub
}

func scenarioLines() []order.Line {
	return []order.Line{
		{ProductID: "prod-empanada", ProductName: "Empanada", Quantity: 2, UnitPrice: money.MustParse("4.00")},
		{ProductID: "prod-churro", ProductName: "Churro", Quantity: 1, UnitPrice: money.MustParse("7.00")},
	}
}

func seedOrder(repo *mocks.MockOrderRepository, status order.Status) *order.Order {
	o := &order.Order{
		ID:        uuid.New().String(),
		UserID:    "user-1",
		Status:    status,
		Total:     money.MustParse("15.00"),
		Currency:  "usd",
		Lines:     scenarioLines(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	repo.Put(o)
	return o
}

// ============================================
// Status Machine Tests
// ============================================

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to order.Status
		want     bool
	}{
		{order.StatusPending, order.StatusProcessing, true},
		{order.StatusPending, order.StatusCompleted, true},
		{order.StatusPending, order.StatusCancelled, true},
		{order.StatusProcessing, order.StatusCompleted, true},
		{order.StatusProcessing, order.StatusCancelled, true},
		{order.StatusProcessing, order.StatusPending, false},
		{order.StatusCompleted, order.StatusCancelled, false},
		{order.StatusCancelled, order.StatusProcessing, false},
		{order.StatusPending, order.StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := order.ParseStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, s)
	assert.True(t, s.IsTerminal())

	_, err = order.ParseStatus("shipped")
	assert.ErrorIs(t, err, order.ErrInvalidStatus)
}

// ============================================
// CreatePendingOrder Tests
// ============================================

func TestLedger_CreatePendingOrder_Success(t *testing.T) {
	ledger, repo, pub := newTestLedger()
	ctx := context.Background()

	o, err := ledger.CreatePendingOrder(ctx, "user-1", scenarioLines(), money.MustParse("15.00"))

	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "15.00", o.Total.String())
	assert.Equal(t, "usd", o.Currency)
	require.Len(t, o.Lines, 2)
	for _, l := range o.Lines {
		assert.Equal(t, o.ID, l.OrderID)
		assert.NotEmpty(t, l.ID)
	}

	stored := repo.Order(o.ID)
	require.NotNil(t, stored)
	assert.Len(t, stored.Lines, 2)

	require.Len(t, pub.PublishCalls, 1)
	assert.Equal(t, o.ID, pub.PublishCalls[0].Key)
	event := pub.PublishCalls[0].Event.(store.Event)
	assert.Equal(t, order.EventOrderPlaced, event.EventType)
	assert.Equal(t, order.AggregateType, event.AggregateType)
}

func TestLedger_CreatePendingOrder_Validation(t *testing.T) {
	tests := []struct {
		name  string
		lines []order.Line
		total money.Amount
		want  error
	}{
		{"no lines", nil, 0, order.ErrEmptyOrder},
		{"zero quantity", []order.Line{{ProductID: "p", Quantity: 0, UnitPrice: 100}}, 0, order.ErrInvalidLine},
		{"missing product", []order.Line{{Quantity: 1, UnitPrice: 100}}, 100, order.ErrInvalidLine},
		{"quantity over the cap", []order.Line{{ProductID: "p", Quantity: order.MaxLineQuantity + 1, UnitPrice: 100}}, money.Amount(100 * (order.MaxLineQuantity + 1)), order.ErrInvalidLine},
		{"total mismatch", scenarioLines(), money.MustParse("14.99"), order.ErrTotalMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, repo, pub := newTestLedger()

			o, err := ledger.CreatePendingOrder(context.Background(), "user-1", tt.lines, tt.total)

			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, o)
			assert.Empty(t, repo.CreateCalls)
			assert.Empty(t, pub.PublishCalls)
		})
	}
}

func TestLedger_CreatePendingOrder_StoreFailureLeavesNothing(t *testing.T) {
	ledger, repo, pub := newTestLedger()
	repo.CreateErr = store.Unavailable("create order", errors.New("connection reset"))

	o, err := ledger.CreatePendingOrder(context.Background(), "user-1", scenarioLines(), money.MustParse("15.00"))

	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Nil(t, o)
	assert.Equal(t, 0, repo.Count())
	assert.Empty(t, pub.PublishCalls)
}

func TestLedger_CreatePendingOrder_PublishFailureIsNotFatal(t *testing.T) {
	ledger, repo, pub := newTestLedger()
	pub.PublishErr = errors.New("broker down")

	o, err := ledger.CreatePendingOrder(context.Background(), "user-1", scenarioLines(), money.MustParse("15.00"))

	require.NoError(t, err)
	assert.NotNil(t, repo.Order(o.ID))
}

func TestLedger_CreatePendingOrder_NilPublisher(t *testing.T) {
	repo := mocks.NewMockOrderRepository()
	ledger := order.NewLedger(repo, nil).WithCurrency("eur")

	o, err := ledger.CreatePendingOrder(context.Background(), "user-1", scenarioLines(), money.MustParse("15.00"))

	require.NoError(t, err)
	assert.Equal(t, "eur", o.Currency)
}

func TestLedger_PlaceOrder_RepeatWritesOneOrder(t *testing.T) {
	ledger, repo, pub := newTestLedger()

	o, err := ledger.NewPendingOrder("user-1", scenarioLines(), money.MustParse("15.00"))
	require.NoError(t, err)
	assert.Empty(t, repo.CreateCalls)

	require.NoError(t, ledger.PlaceOrder(context.Background(), o))
	require.NoError(t, ledger.PlaceOrder(context.Background(), o))

	assert.Equal(t, 1, repo.Count())
	assert.Len(t, pub.PublishCalls, 2)
}

func TestLedger_PlaceOrder_IDClash(t *testing.T) {
	ledger, repo, _ := newTestLedger()
	seeded := seedOrder(repo, order.StatusPending)

	o, err := ledger.NewPendingOrder("user-2", scenarioLines(), money.MustParse("15.00"))
	require.NoError(t, err)
	o.ID = seeded.ID

	assert.ErrorIs(t, ledger.PlaceOrder(context.Background(), o), order.ErrOrderExists)
	assert.Equal(t, "user-1", repo.Order(seeded.ID).UserID)
}

// ============================================
// TransitionStatus Tests
// ============================================

func TestLedger_TransitionStatus_ReloadFailureStillPublishes(t *testing.T) {
	ledger, repo, pub := newTestLedger()
	seeded := seedOrder(repo, order.StatusPending)
	repo.GetErr = store.Unavailable("get order", errors.New("connection reset"))

	tr, err := ledger.TransitionStatus(context.Background(), seeded.ID, order.StatusProcessing, "pi_123")

	require.NoError(t, err)
	assert.True(t, tr.Applied)
	assert.Nil(t, tr.Order)
	assert.Equal(t, order.StatusProcessing, repo.Order(seeded.ID).Status)
	require.Len(t, pub.PublishCalls, 1)

	// a redelivery finds the order moved and publishes nothing more
	repo.GetErr = nil
	tr, err = ledger.TransitionStatus(context.Background(), seeded.ID, order.StatusProcessing, "pi_123")

	require.NoError(t, err)
	assert.False(t, tr.Applied)
	assert.Len(t, pub.PublishCalls, 1)
}

func TestLedger_TransitionStatus_PendingToProcessing(t *testing.T) {
	ledger, repo, pub := newTestLedger()
	seeded := seedOrder(repo, order.StatusPending)

	tr, err := ledger.TransitionStatus(context.Background(), seeded.ID, order.StatusProcessing, "pi_123")

	require.NoError(t, err)
	assert.True(t, tr.Applied)
	assert.Equal(t, order.StatusPending, tr.From)
	assert.Equal(t, order.StatusProcessing, tr.Order.Status)
	assert.Equal(t, "pi_123", tr.Order.PaymentRef)

	require.Len(t, repo.UpdateStatusCalls, 1)
	assert.Equal(t, []order.Status{order.StatusPending}, repo.UpdateStatusCalls[0].From)

	require.Len(t, pub.PublishCalls, 1)
	assert.Equal(t, order.EventOrderStatusChanged, pub.PublishCalls[0].Event.(store.Event).EventType)
}

func TestLedger_TransitionStatus_RepeatedIsNoOp(t *testing.T) {
	ledger, repo, pub := newTestLedger()
	seeded := seedOrder(repo, order.StatusPending)
	ctx := context.Background()

	_, err := ledger.TransitionStatus(ctx, seeded.ID, order.StatusProcessing, "pi_123")
	require.NoError(t, err)

	tr, err := ledger.TransitionStatus(ctx, seeded.ID, order.StatusProcessing, "pi_123")

	require.NoError(t, err)
	assert.False(t, tr.Applied)
	assert.Equal(t, order.StatusProcessing, repo.Order(seeded.ID).Status)
	assert.Len(t, pub.PublishCalls, 1)
}

func TestLedger_TransitionStatus_TerminalIsNoOp(t *testing.T) {
	for _, terminal := range []order.Status{order.StatusCompleted, order.StatusCancelled} {
		ledger, repo, pub := newTestLedger()
		seeded := seedOrder(repo, terminal)

		tr, err := ledger.TransitionStatus(context.Background(), seeded.ID, order.StatusProcessing, "pi_late")

		require.NoError(t, err)
		assert.False(t, tr.Applied)
		assert.Equal(t, terminal, repo.Order(seeded.ID).Status)
		assert.Empty(t, repo.Order(seeded.ID).PaymentRef)
		assert.Empty(t, pub.PublishCalls)
	}
}

func TestLedger_TransitionStatus_ProcessingToCompleted(t *testing.T) {
	ledger, repo, _ := newTestLedger()
	seeded := seedOrder(repo, order.StatusProcessing)

	tr, err := ledger.TransitionStatus(context.Background(), seeded.ID, order.StatusCompleted, "")

	require.NoError(t, err)
	assert.True(t, tr.Applied)
	assert.Equal(t, order.StatusProcessing, tr.From)
	assert.Equal(t, order.StatusCompleted, repo.Order(seeded.ID).Status)
}

func TestLedger_TransitionStatus_BackwardFails(t *testing.T) {
	for _, from := range []order.Status{order.StatusProcessing, order.StatusCompleted, order.StatusCancelled} {
		t.Run(string(from), func(t *testing.T) {
			ledger, repo, pub := newTestLedger()
			seeded := seedOrder(repo, from)

			tr, err := ledger.TransitionStatus(context.Background(), seeded.ID, order.StatusPending, "")

			assert.ErrorIs(t, err, order.ErrInvalidTransition)
			assert.Nil(t, tr)
			assert.Equal(t, from, repo.Order(seeded.ID).Status)
			assert.Empty(t, repo.UpdateStatusCalls)
			assert.Empty(t, pub.PublishCalls)
		})
	}
}

func TestLedger_TransitionStatus_UnknownOrder(t *testing.T) {
	ledger, _, _ := newTestLedger()

	_, err := ledger.TransitionStatus(context.Background(), uuid.New().String(), order.StatusProcessing, "")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)

	_, err = ledger.TransitionStatus(context.Background(), "not-a-uuid", order.StatusProcessing, "")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestLedger_TransitionStatus_UnknownStatus(t *testing.T) {
	ledger, repo, _ := newTestLedger()
	seeded := seedOrder(repo, order.StatusPending)

	_, err := ledger.TransitionStatus(context.Background(), seeded.ID, order.Status("shipped"), "")

	assert.ErrorIs(t, err, order.ErrInvalidStatus)
}

func TestLedger_TransitionStatus_StoreUnavailable(t *testing.T) {
	ledger, repo, _ := newTestLedger()
	seeded := seedOrder(repo, order.StatusPending)
	repo.UpdateStatusErr = store.Unavailable("update status", errors.New("timeout"))

	_, err := ledger.TransitionStatus(context.Background(), seeded.ID, order.StatusProcessing, "pi_1")

	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, order.StatusPending, repo.Order(seeded.ID).Status)
}

// ============================================
// Query Tests
// ============================================

func TestLedger_FindOrder(t *testing.T) {
	ledger, repo, _ := newTestLedger()
	seeded := seedOrder(repo, order.StatusPending)

	o, err := ledger.FindOrder(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, o.ID)
	assert.Equal(t, money.MustParse("15.00"), order.SumLines(o.Lines))

	_, err = ledger.FindOrder(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestLedger_AttachPaymentSession(t *testing.T) {
	ledger, repo, _ := newTestLedger()
	seeded := seedOrder(repo, order.StatusPending)

	require.NoError(t, ledger.AttachPaymentSession(context.Background(), seeded.ID, "cs_test_1"))
	assert.Equal(t, "cs_test_1", repo.Order(seeded.ID).PaymentSessionID)

	err := ledger.AttachPaymentSession(context.Background(), uuid.New().String(), "cs_test_2")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestLedger_ListOrdersForUser(t *testing.T) {
	ledger, repo, _ := newTestLedger()
	older := seedOrder(repo, order.StatusCompleted)
	older.CreatedAt = time.Now().Add(-time.Hour)
	repo.Put(older)
	newer := seedOrder(repo, order.StatusPending)

	orders, err := ledger.ListOrdersForUser(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, newer.ID, orders[0].ID)
	assert.Equal(t, older.ID, orders[1].ID)
}
