package stakes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/truthstake/internal/claims"
	"github.com/mmeshcher/truthstake/internal/ledger"
	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/repository"
)

type env struct {
	store  *repository.MemoryStore
	ledger *ledger.Ledger
	claims *claims.Store
	book   *Book
}

func newEnv(limits Limits) *env {
	store := repository.NewMemoryStore()
	l := ledger.New(store)
	c := claims.New(store)
	return &env{store: store, ledger: l, claims: c, book: New(store, l, c, limits)}
}

func (e *env) user(t *testing.T, login string, balance int64) int64 {
	t.Helper()

	var id int64
	err := e.store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		if id, err = tx.CreateUser(ctx, login, nil); err != nil {
			return err
		}
		_, err = e.ledger.Grant(ctx, tx, id, balance)
		return err
	})
	require.NoError(t, err)
	return id
}

func (e *env) claim(t *testing.T, author int64) string {
	t.Helper()

	c, err := e.claims.Submit(context.Background(), author, model.ClaimDraft{Title: "t", Body: "b"})
	require.NoError(t, err)
	return c.ID
}

func TestPlaceStake(t *testing.T) {
	ctx := context.Background()
	e := newEnv(Limits{Min: 1})
	alice := e.user(t, "alice", 50)
	claimID := e.claim(t, alice)

	s, err := e.book.PlaceStake(ctx, claimID, alice, "true", 20)
	require.NoError(t, err)
	assert.Equal(t, model.SideTrue, s.Side)
	assert.Equal(t, int64(20), s.Amount)
	assert.False(t, s.Settled)

	bal, err := e.ledger.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(30), bal)

	c, err := e.claims.Get(ctx, claimID)
	require.NoError(t, err)
	require.NotNil(t, c.FirstStakeAt)
	assert.True(t, c.FirstStakeAt.Equal(s.PlacedAt))

	all, err := e.book.StakesFor(ctx, claimID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, s.ID, all[0].ID)

	mine, err := e.book.ByUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestPlaceStakeRejects(t *testing.T) {
	tests := []struct {
		name    string
		side    model.Side
		amount  int64
		wantErr error
	}{
		{name: "unknown side", side: "maybe", amount: 10, wantErr: model.ErrInvalidInput},
		{name: "zero amount", side: model.SideTrue, amount: 0, wantErr: model.ErrInvalidAmount},
		{name: "negative amount", side: model.SideTrue, amount: -5, wantErr: model.ErrInvalidAmount},
		{name: "below minimum", side: model.SideTrue, amount: 4, wantErr: model.ErrInvalidAmount},
		{name: "above maximum", side: model.SideFalse, amount: 41, wantErr: model.ErrInvalidAmount},
		{name: "insufficient balance", side: model.SideFalse, amount: 35, wantErr: model.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(Limits{Min: 5, Max: 40})
			alice := e.user(t, "alice", 30)
			claimID := e.claim(t, alice)

			_, err := e.book.PlaceStake(ctx, claimID, alice, tt.side, tt.amount)
			require.ErrorIs(t, err, tt.wantErr)

			bal, err := e.ledger.BalanceOf(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, int64(30), bal)

			all, err := e.book.StakesFor(ctx, claimID)
			require.NoError(t, err)
			assert.Empty(t, all)

			c, err := e.claims.Get(ctx, claimID)
			require.NoError(t, err)
			assert.Nil(t, c.FirstStakeAt)
		})
	}
}

func TestPlaceStakeDuplicate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(Limits{Min: 1})
	alice := e.user(t, "alice", 50)
	claimID := e.claim(t, alice)

	_, err := e.book.PlaceStake(ctx, claimID, alice, model.SideTrue, 10)
	require.NoError(t, err)

	_, err = e.book.PlaceStake(ctx, claimID, alice, model.SideFalse, 10)
	require.ErrorIs(t, err, model.ErrDuplicateStake)

	bal, err := e.ledger.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal)
}

func TestPlaceStakeClaimNotOpen(t *testing.T) {
	ctx := context.Background()
	e := newEnv(Limits{Min: 1})
	alice := e.user(t, "alice", 50)
	claimID := e.claim(t, alice)

	err := e.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := e.claims.TransitionToResolving(ctx, tx, claimID)
		return err
	})
	require.NoError(t, err)

	_, err = e.book.PlaceStake(ctx, claimID, alice, model.SideTrue, 10)
	require.ErrorIs(t, err, model.ErrClaimNotOpen)

	_, err = e.book.PlaceStake(ctx, "missing", alice, model.SideTrue, 10)
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = e.book.StakesFor(ctx, "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestTally(t *testing.T) {
	totals := Tally([]model.Stake{
		{Side: model.SideTrue, Amount: 100},
		{Side: model.SideFalse, Amount: 30},
		{Side: model.SideFalse, Amount: 20},
	})

	assert.Equal(t, model.SideTotals{Votes: 1, Amount: 100}, totals.True)
	assert.Equal(t, model.SideTotals{Votes: 2, Amount: 50}, totals.False)
	assert.Equal(t, int64(150), totals.Sum())

	winning, losing := totals.Pools(model.SideFalse)
	assert.Equal(t, int64(50), winning)
	assert.Equal(t, int64(100), losing)

	assert.Zero(t, Tally(nil).Sum())
}
