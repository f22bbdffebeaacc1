// Package claims владеет записями утверждений и их жизненным циклом:
// Open -> Resolving -> Resolved. Resolved является конечным состоянием.
package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/repository"
	"github.com/mmeshcher/truthstake/internal/validation"
)

// Store управляет утверждениями.
type Store struct {
	store repository.Store
	now   func() time.Time
}

// New создаёт хранилище утверждений.
func New(store repository.Store) *Store {
	return &Store{
		store: store,
		now:   time.Now,
	}
}

// Submit публикует утверждение в состоянии Open.
func (s *Store) Submit(ctx context.Context, authorID int64, draft model.ClaimDraft) (*model.Claim, error) {
	draft, err := validation.NormalizeClaimDraft(draft)
	if err != nil {
		return nil, err
	}

	c := &model.Claim{
		ID:         uuid.NewString(),
		AuthorID:   authorID,
		Title:      draft.Title,
		Body:       draft.Body,
		Source:     draft.Source,
		ImageURL:   draft.ImageURL,
		State:      model.ClaimOpen,
		Resolution: model.ResolutionNone,
		CreatedAt:  s.now(),
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetUser(ctx, authorID); err != nil {
			return err
		}
		return tx.CreateClaim(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Get возвращает утверждение по идентификатору.
func (s *Store) Get(ctx context.Context, id string) (*model.Claim, error) {
	var c *model.Claim
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		c, err = tx.GetClaim(ctx, id)
		return err
	})
	return c, err
}

// List возвращает утверждения по фильтру, начиная с последних.
func (s *Store) List(ctx context.Context, f model.ClaimFilter) ([]model.Claim, error) {
	var res []model.Claim
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		res, err = tx.ListClaims(ctx, f)
		return err
	})
	return res, err
}

// TransitionToResolving переводит утверждение из Open в Resolving. Переход
// выполняется под блокировкой строки и служит шлюзом: выиграть его может
// только один вызывающий.
func (s *Store) TransitionToResolving(ctx context.Context, tx repository.Tx, id string) (*model.Claim, error) {
	c, err := tx.LockClaim(ctx, id)
	if err != nil {
		return nil, err
	}

	switch c.State {
	case model.ClaimResolving:
		return nil, fmt.Errorf("%w: claim %s", model.ErrAlreadyResolving, id)
	case model.ClaimResolved:
		return nil, fmt.Errorf("%w: claim %s", model.ErrClaimFinalized, id)
	}

	c.State = model.ClaimResolving
	if err := tx.UpdateClaim(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// TransitionToResolved завершает утверждение с исходом True или False.
func (s *Store) TransitionToResolved(ctx context.Context, tx repository.Tx, id string, resolution model.Resolution) (*model.Claim, error) {
	if _, ok := resolution.Side(); !ok {
		return nil, fmt.Errorf("%w: resolution %q", model.ErrInvalidInput, resolution)
	}

	c, err := tx.LockClaim(ctx, id)
	if err != nil {
		return nil, err
	}

	switch c.State {
	case model.ClaimResolved:
		return nil, fmt.Errorf("%w: claim %s", model.ErrClaimFinalized, id)
	case model.ClaimOpen:
		return nil, fmt.Errorf("%w: claim %s is open", model.ErrInvalidTransition, id)
	}

	now := s.now()
	c.State = model.ClaimResolved
	c.Resolution = resolution
	c.ResolvedAt = &now
	if err := tx.UpdateClaim(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// MarkStaked запоминает время первой ставки: от него отсчитывается окно разрешения.
func (s *Store) MarkStaked(ctx context.Context, tx repository.Tx, c *model.Claim, at time.Time) error {
	if c.FirstStakeAt != nil {
		return nil
	}
	c.FirstStakeAt = &at
	return tx.UpdateClaim(ctx, c)
}

// ExtendWindow фиксирует ничью и продлевает окно разрешения до until.
func (s *Store) ExtendWindow(ctx context.Context, tx repository.Tx, c *model.Claim, until time.Time) error {
	if c.State != model.ClaimOpen {
		return fmt.Errorf("%w: claim %s", model.ErrClaimNotOpen, c.ID)
	}
	c.TieCount++
	c.ExtendedUntil = &until
	return tx.UpdateClaim(ctx, c)
}
