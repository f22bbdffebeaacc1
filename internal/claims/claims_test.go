package claims

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/repository"
)

func setup(t *testing.T) (*repository.MemoryStore, *Store, int64) {
	t.Helper()

	store := repository.NewMemoryStore()
	var author int64
	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		author, err = tx.CreateUser(ctx, "author", nil)
		return err
	})
	require.NoError(t, err)
	return store, New(store), author
}

func TestSubmit(t *testing.T) {
	_, s, author := setup(t)

	c, err := s.Submit(context.Background(), author, model.ClaimDraft{
		Title:  "  Water boils at 100C  ",
		Body:   "At sea level.",
		Source: "https://example.com/physics",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Water boils at 100C", c.Title)
	assert.Equal(t, model.ClaimOpen, c.State)
	assert.Equal(t, model.ResolutionNone, c.Resolution)
	assert.Nil(t, c.FirstStakeAt)

	got, err := s.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Title, got.Title)
}

func TestSubmitRejects(t *testing.T) {
	_, s, author := setup(t)

	_, err := s.Submit(context.Background(), author, model.ClaimDraft{Title: "", Body: "body"})
	require.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = s.Submit(context.Background(), 42, model.ClaimDraft{Title: "t", Body: "b"})
	require.ErrorIs(t, err, model.ErrNotFound)

	list, err := s.List(context.Background(), model.ClaimFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	store, s, author := setup(t)

	c, err := s.Submit(ctx, author, model.ClaimDraft{Title: "t", Body: "b"})
	require.NoError(t, err)

	transition := func(fn func(ctx context.Context, tx repository.Tx) error) error {
		return store.WithTx(ctx, fn)
	}

	err = transition(func(ctx context.Context, tx repository.Tx) error {
		_, err := s.TransitionToResolved(ctx, tx, c.ID, model.ResolutionTrue)
		return err
	})
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	err = transition(func(ctx context.Context, tx repository.Tx) error {
		_, err := s.TransitionToResolving(ctx, tx, c.ID)
		return err
	})
	require.NoError(t, err)

	err = transition(func(ctx context.Context, tx repository.Tx) error {
		_, err := s.TransitionToResolving(ctx, tx, c.ID)
		return err
	})
	require.ErrorIs(t, err, model.ErrAlreadyResolving)

	err = transition(func(ctx context.Context, tx repository.Tx) error {
		_, err := s.TransitionToResolved(ctx, tx, c.ID, model.ResolutionNone)
		return err
	})
	require.ErrorIs(t, err, model.ErrInvalidInput)

	err = transition(func(ctx context.Context, tx repository.Tx) error {
		_, err := s.TransitionToResolved(ctx, tx, c.ID, model.ResolutionFalse)
		return err
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimResolved, got.State)
	assert.Equal(t, model.ResolutionFalse, got.Resolution)
	require.NotNil(t, got.ResolvedAt)

	for _, fn := range []func(ctx context.Context, tx repository.Tx) error{
		func(ctx context.Context, tx repository.Tx) error {
			_, err := s.TransitionToResolving(ctx, tx, c.ID)
			return err
		},
		func(ctx context.Context, tx repository.Tx) error {
			_, err := s.TransitionToResolved(ctx, tx, c.ID, model.ResolutionTrue)
			return err
		},
	} {
		require.ErrorIs(t, transition(fn), model.ErrClaimFinalized)
	}
}

func TestMarkStakedAndExtend(t *testing.T) {
	ctx := context.Background()
	store, s, author := setup(t)

	c, err := s.Submit(ctx, author, model.ClaimDraft{Title: "t", Body: "b"})
	require.NoError(t, err)

	first := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	until := first.Add(72 * time.Hour)

	err = store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.LockClaim(ctx, c.ID)
		if err != nil {
			return err
		}
		if err := s.MarkStaked(ctx, tx, c, first); err != nil {
			return err
		}
		if err := s.MarkStaked(ctx, tx, c, first.Add(time.Hour)); err != nil {
			return err
		}
		return s.ExtendWindow(ctx, tx, c, until)
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FirstStakeAt)
	assert.True(t, got.FirstStakeAt.Equal(first))
	assert.Equal(t, 1, got.TieCount)
	require.NotNil(t, got.ExtendedUntil)
	assert.True(t, got.ExtendedUntil.Equal(until))

	got.State = model.ClaimResolving
	err = store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return s.ExtendWindow(ctx, tx, got, until)
	})
	require.ErrorIs(t, err, model.ErrClaimNotOpen)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	_, s, author := setup(t)

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.Submit(ctx, author, model.ClaimDraft{Title: title, Body: "b"})
		require.NoError(t, err)
	}

	list, err := s.List(ctx, model.ClaimFilter{State: model.ClaimOpen, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "third", list[0].Title)
	assert.Equal(t, "second", list[1].Title)
}
