package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/repository"
)

func newUser(t *testing.T, store repository.Store, l *Ledger, balance int64) int64 {
	t.Helper()

	var id int64
	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		id, err = tx.CreateUser(ctx, "user", []byte("hash"))
		if err != nil {
			return err
		}
		if balance > 0 {
			_, err = l.Grant(ctx, tx, id, balance)
		}
		return err
	})
	require.NoError(t, err)
	return id
}

func reserve(ctx context.Context, store repository.Store, l *Ledger, userID int64, stakeID string, amount int64) error {
	return store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := l.Reserve(ctx, tx, userID, stakeID, amount)
		return err
	})
}

func settle(ctx context.Context, store repository.Store, l *Ledger, stakeID string, userID, delta int64, reason model.EntryReason) error {
	return store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := l.Settle(ctx, tx, stakeID, userID, delta, reason)
		return err
	})
}

func TestReserve(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	l := New(store)
	id := newUser(t, store, l, 50)

	require.NoError(t, reserve(ctx, store, l, id, "s1", 30))

	bal, err := l.BalanceOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(20), bal)

	err = reserve(ctx, store, l, id, "s2", 21)
	require.ErrorIs(t, err, model.ErrInsufficientBalance)

	err = reserve(ctx, store, l, id, "s3", 0)
	require.ErrorIs(t, err, model.ErrInvalidInput)

	history, err := l.History(ctx, id)
	require.NoError(t, err)
	// Неудачный резерв не оставляет записей.
	require.Len(t, history, 2)
	assert.Equal(t, model.ReasonGrant, history[0].Reason)
	assert.Equal(t, model.ReasonReserve, history[1].Reason)
	assert.Equal(t, int64(-30), history[1].Delta)
	assert.Equal(t, "s1", history[1].RelatedStakeID)
}

func TestReserveTwiceForStake(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	l := New(store)
	id := newUser(t, store, l, 50)

	require.NoError(t, reserve(ctx, store, l, id, "s1", 10))
	err := reserve(ctx, store, l, id, "s1", 10)
	require.ErrorIs(t, err, model.ErrDuplicateStake)

	bal, err := l.BalanceOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal)
}

func TestSettle(t *testing.T) {
	tests := []struct {
		name    string
		delta   int64
		reason  model.EntryReason
		wantBal int64
		wantErr error
	}{
		{name: "reward", delta: 45, reason: model.ReasonReward, wantBal: 85},
		{name: "refund", delta: 30, reason: model.ReasonRefund, wantBal: 70},
		{name: "release", delta: 30, reason: model.ReasonRelease, wantBal: 70},
		{name: "zero penalty", delta: 0, reason: model.ReasonPenalty, wantBal: 40},
		{name: "partial penalty", delta: -10, reason: model.ReasonPenalty, wantBal: 30},
		{name: "non-positive reward", delta: 0, reason: model.ReasonReward, wantErr: model.ErrInvalidInput},
		{name: "partial refund", delta: 20, reason: model.ReasonRefund, wantErr: model.ErrInvalidInput},
		{name: "positive penalty", delta: 5, reason: model.ReasonPenalty, wantErr: model.ErrInvalidInput},
		{name: "penalty above reserve", delta: -31, reason: model.ReasonPenalty, wantErr: model.ErrInvalidInput},
		{name: "reserve is not settlement", delta: 1, reason: model.ReasonReserve, wantErr: model.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := repository.NewMemoryStore()
			l := New(store)
			id := newUser(t, store, l, 70)
			require.NoError(t, reserve(ctx, store, l, id, "s1", 30))

			err := settle(ctx, store, l, "s1", id, tt.delta, tt.reason)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				tt.wantBal = 40
			} else {
				require.NoError(t, err)
			}

			bal, sum, err := l.Audit(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBal, bal)
			assert.Equal(t, bal, sum)
		})
	}
}

func TestSettleUnknownStake(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	l := New(store)
	id := newUser(t, store, l, 50)

	err := settle(ctx, store, l, "missing", id, 10, model.ReasonRefund)
	require.ErrorIs(t, err, model.ErrUnknownStake)
	assert.True(t, model.IsInconsistency(err))

	require.NoError(t, reserve(ctx, store, l, id, "s1", 10))
	other := newUserWithLogin(t, store, "other")
	err = settle(ctx, store, l, "s1", other, 10, model.ReasonRefund)
	require.ErrorIs(t, err, model.ErrUnknownStake)
}

func TestSettleTwice(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	l := New(store)
	id := newUser(t, store, l, 50)

	require.NoError(t, reserve(ctx, store, l, id, "s1", 10))
	require.NoError(t, settle(ctx, store, l, "s1", id, 15, model.ReasonReward))

	err := settle(ctx, store, l, "s1", id, 15, model.ReasonReward)
	require.ErrorIs(t, err, model.ErrAlreadySettled)

	bal, err := l.BalanceOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(55), bal)
}

func TestGrantRejectsNonPositive(t *testing.T) {
	store := repository.NewMemoryStore()
	l := New(store)
	id := newUser(t, store, l, 0)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := l.Grant(ctx, tx, id, 0)
		return err
	})
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestBalanceOfUnknownUser(t *testing.T) {
	l := New(repository.NewMemoryStore())

	_, err := l.BalanceOf(context.Background(), 99)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func newUserWithLogin(t *testing.T, store repository.Store, login string) int64 {
	t.Helper()

	var id int64
	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		id, err = tx.CreateUser(ctx, login, []byte("hash"))
		return err
	})
	require.NoError(t, err)
	return id
}
