package giftcards

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() (*Manager, *memSessions, *memOrders) {
	sessions := newMemSessions()
	orders := newMemOrders()
	return NewManager(sessions, orders), sessions, orders
}

// ============================================================
// Allocate
// ============================================================

func TestAllocate(t *testing.T) {
	tests := []struct {
		name     string
		balances []float64
		total    float64
		want     []float64
	}{
		{"single card covers part", []float64{50}, 10, []float64{10}},
		{"two cards, second partially", []float64{20, 15}, 30, []float64{20, 10}},
		{"cards exceed total, later get zero", []float64{20, 15, 5}, 20, []float64{20, 0, 0}},
		{"cards below total", []float64{5, 7.5}, 30, []float64{5, 7.5}},
		{"zero total", []float64{5, 7.5}, 0, []float64{0, 0}},
		{"cent precision", []float64{0.1, 0.2}, 0.3, []float64{0.1, 0.2}},
		{"no cards", nil, 10, []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cards := make([]AppliedCard, len(tt.balances))
			for i, b := range tt.balances {
				cards[i] = AppliedCard{ID: uuid.NewString(), Balance: b}
			}

			got := Allocate(cards, tt.total)

			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.Equal(t, tt.want[i], got[i].AmountUsed, "card %d", i)
			}
		})
	}
}

func TestAllocate_SumIsMinOfTotalAndBalances(t *testing.T) {
	balances := []float64{3.33, 12.5, 0.01, 40, 7.77}
	var cards []AppliedCard
	var sumBalance int64

	for _, b := range balances {
		cards = append(cards, AppliedCard{ID: uuid.NewString(), Balance: b})
		sumBalance += toCents(b)

		for _, total := range []float64{0, 1, 10.01, 33.33, 63.61, 100} {
			got := Allocate(cards, total)
			want := toCents(total)
			if sumBalance < want {
				want = sumBalance
			}
			assert.Equal(t, want, toCents(TotalUsed(got)), "total %.2f with %d cards", total, len(cards))

			// earlier cards saturate first
			for i := 1; i < len(got); i++ {
				if got[i].AmountUsed > 0 {
					assert.Equal(t, got[i-1].Balance, got[i-1].AmountUsed)
				}
			}
		}
	}
}

func TestAllocate_IsIdempotentAndPure(t *testing.T) {
	cards := []AppliedCard{
		{ID: "a", Balance: 20, AmountUsed: 99},
		{ID: "b", Balance: 15},
	}

	first := Allocate(cards, 30)
	second := Allocate(first, 30)

	assert.Equal(t, first, second)
	assert.Equal(t, 99.0, cards[0].AmountUsed, "input must not be modified")
}

// ============================================================
// Session scope
// ============================================================

func TestManager_ApplyAndHas(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	hasAny, err := manager.HasAny(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, hasAny)

	require.NoError(t, manager.Apply(ctx, "s1", AppliedCard{ID: "gc_1", Code: "ABCDEFGHIJKL1234", Balance: 20}))

	hasAny, err = manager.HasAny(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, hasAny)

	has, err := manager.Has(ctx, "s1", "gc_1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = manager.Has(ctx, "s2", "gc_1")
	require.NoError(t, err)
	assert.False(t, has, "sessions are isolated")

	cards, err := manager.Cards(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "XXXX - XXXX - XXXX - 1234", cards[0].MaskedCode)
}

func TestManager_Apply_RejectsDuplicate(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, manager.Apply(ctx, "s1", AppliedCard{ID: "gc_1", Balance: 20}))
	err := manager.Apply(ctx, "s1", AppliedCard{ID: "gc_1", Balance: 50})

	assert.ErrorIs(t, err, ErrAlreadyApplied)
	assert.ErrorIs(t, err, ErrValidation)

	cards, _ := manager.Cards(ctx, "s1")
	require.Len(t, cards, 1)
	assert.Equal(t, 20.0, cards[0].Balance)
}

func TestManager_Remove(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, manager.Apply(ctx, "s1", AppliedCard{ID: "a", Balance: 1}))
	require.NoError(t, manager.Apply(ctx, "s1", AppliedCard{ID: "b", Balance: 2}))
	require.NoError(t, manager.Apply(ctx, "s1", AppliedCard{ID: "c", Balance: 3}))

	require.NoError(t, manager.Remove(ctx, "s1", "b"))
	require.NoError(t, manager.Remove(ctx, "s1", "missing"))

	cards, err := manager.Cards(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "a", cards[0].ID)
	assert.Equal(t, "c", cards[1].ID)
}

func TestManager_Reallocate_PriorityFollowsApplicationOrder(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, manager.Apply(ctx, "s1", AppliedCard{ID: "a", Balance: 20}))
	require.NoError(t, manager.Apply(ctx, "s1", AppliedCard{ID: "b", Balance: 15}))

	cards, err := manager.Reallocate(ctx, "s1", 30)
	require.NoError(t, err)
	assert.Equal(t, 20.0, cards[0].AmountUsed)
	assert.Equal(t, 10.0, cards[1].AmountUsed)

	// removing the first card lets the second cover more
	require.NoError(t, manager.Remove(ctx, "s1", "a"))
	cards, err = manager.Reallocate(ctx, "s1", 30)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, 15.0, cards[0].AmountUsed)
}

func TestManager_DestroySession(t *testing.T) {
	manager, sessions, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, manager.Apply(ctx, "s1", AppliedCard{ID: "a", Balance: 20}))
	require.NoError(t, manager.DestroySession(ctx, "s1"))

	state, err := sessions.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, state.Cards)
	assert.Nil(t, state.OriginalTotal)
}

// ============================================================
// Order scope
// ============================================================

func TestManager_SnapshotToDurable_ScrubsCodes(t *testing.T) {
	manager, _, orders := newTestManager()
	ctx := context.Background()
	order := orders.add(&Order{Total: 30})

	err := manager.SnapshotToDurable(ctx, order.ID, []AppliedCard{
		{ID: "a", Code: "ABCD-EFGH-IJKL-MNOP", MaskedCode: MaskCode("ABCD-EFGH-IJKL-MNOP"), Balance: 20, AmountUsed: 20},
	})
	require.NoError(t, err)

	cards, err := manager.Durable(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "XXXX - XXXX - XXXX - MNOP", cards[0].Code)
	assert.Equal(t, cards[0].MaskedCode, cards[0].Code)
	assert.NotContains(t, cards[0].Code, "ABCD")
}

func TestManager_SnapshotToDurable_KeepsExistingLinkage(t *testing.T) {
	manager, _, orders := newTestManager()
	ctx := context.Background()
	existing := reservedCard("a", 10, "tx_a")
	existing.CaptureTxID = strPtr("cap_a")
	order := orders.add(&Order{GiftCards: []AppliedCard{existing}})

	err := manager.SnapshotToDurable(ctx, order.ID, []AppliedCard{
		{ID: "a", Code: "AAAABBBBCCCCDDDD", AmountUsed: 10},
		{ID: "b", Code: "EEEEFFFFGGGGHHHH", AmountUsed: 5},
	})
	require.NoError(t, err)

	cards := orders.cards(order.ID)
	require.Len(t, cards, 2)
	assert.Equal(t, "cap_a", *cards[0].CaptureTxID)
	assert.Equal(t, "b", cards[1].ID)
}

func TestManager_SnapshotToDurable_RetriesOnConflict(t *testing.T) {
	manager, _, orders := newTestManager()
	ctx := context.Background()
	order := orders.add(&Order{})
	orders.conflictOnce = true

	require.NoError(t, manager.SnapshotToDurable(ctx, order.ID, []AppliedCard{{ID: "a", Code: "AAAABBBBCCCCDDDD"}}))
	assert.Len(t, orders.cards(order.ID), 1)
}

func TestManager_Durable_EmptyWhenNone(t *testing.T) {
	manager, _, orders := newTestManager()
	order := orders.add(&Order{})

	cards, err := manager.Durable(context.Background(), order.ID)

	require.NoError(t, err)
	assert.NotNil(t, cards)
	assert.Empty(t, cards)
}

func TestManager_UpdateCard_ReappliesOnlyIfStillEmpty(t *testing.T) {
	manager, _, orders := newTestManager()
	ctx := context.Background()
	order := orders.add(&Order{GiftCards: []AppliedCard{reservedCard("a", 10, "tx_a")}})

	// a concurrent writer captures the card between our read and our write
	orders.beforeSave = func(o *Order) {
		o.GiftCards[0].CaptureTxID = strPtr("cap_other")
	}

	updated, err := manager.updateCard(ctx, order.ID, "a", func(c *AppliedCard) bool {
		if c.IsTerminal() {
			return false
		}
		c.ReleaseTxID = strPtr("rel_mine")
		return true
	})

	require.NoError(t, err)
	assert.False(t, updated)
	cards := orders.cards(order.ID)
	assert.Equal(t, "cap_other", *cards[0].CaptureTxID)
	assert.Nil(t, cards[0].ReleaseTxID)
}

func TestMaskCode(t *testing.T) {
	assert.Equal(t, "XXXX - XXXX - XXXX - MNOP", MaskCode("abcd-efgh-ijkl-mnop"))
	assert.Equal(t, "XXXX - XXXX - XXXX - AB", MaskCode("ab"))
	assert.Equal(t, "XXXX - XXXX - XXXX - ABCD", MaskCode(MaskCode("1111222233334444ABCD")))
}

func TestAppliedCard_State(t *testing.T) {
	card := AppliedCard{ID: "a"}
	assert.Equal(t, CardStateApplied, card.State())

	card.ReservationTxID = strPtr("tx")
	assert.Equal(t, CardStateReserved, card.State())
	assert.False(t, card.IsTerminal())

	released := card
	released.ReleaseTxID = strPtr("rel")
	assert.Equal(t, CardStateReleased, released.State())

	card.CaptureTxID = strPtr("cap")
	assert.Equal(t, CardStateCaptured, card.State())
	assert.True(t, card.IsTerminal())
}
