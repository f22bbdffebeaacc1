// Package stakes ведёт книгу ставок: у пользователя не может быть двух
// незакрытых ставок на одно утверждение.
package stakes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/truthstake/internal/claims"
	"github.com/mmeshcher/truthstake/internal/ledger"
	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/repository"
	"github.com/mmeshcher/truthstake/internal/validation"
)

// Limits задаёт допустимый размер ставки. При Max <= 0 верхней границы нет.
type Limits struct {
	Min int64
	Max int64
}

// Book размещает ставки и выдаёт их для подсчёта консенсуса.
type Book struct {
	store  repository.Store
	ledger *ledger.Ledger
	claims *claims.Store
	limits Limits
	now    func() time.Time
}

// New создаёт книгу ставок.
func New(store repository.Store, l *ledger.Ledger, c *claims.Store, limits Limits) *Book {
	return &Book{
		store:  store,
		ledger: l,
		claims: c,
		limits: limits,
		now:    time.Now,
	}
}

// PlaceStake резервирует очки и записывает ставку одной транзакцией: либо
// появляются и запись Reserve, и ставка, либо ничего.
func (b *Book) PlaceStake(ctx context.Context, claimID string, userID int64, side model.Side, amount int64) (*model.Stake, error) {
	side, err := model.ParseSide(string(side))
	if err != nil {
		return nil, err
	}
	if err := validation.CheckStakeAmount(amount, b.limits.Min, b.limits.Max); err != nil {
		return nil, err
	}

	var stake *model.Stake
	err = b.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.LockClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if c.State != model.ClaimOpen {
			return fmt.Errorf("%w: claim %s is %s", model.ErrClaimNotOpen, claimID, c.State)
		}

		active, err := tx.ActiveStake(ctx, claimID, userID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("%w: stake %s already placed", model.ErrDuplicateStake, active.ID)
		}

		now := b.now()
		s := &model.Stake{
			ID:       uuid.NewString(),
			ClaimID:  claimID,
			UserID:   userID,
			Side:     side,
			Amount:   amount,
			PlacedAt: now,
		}

		if _, err := b.ledger.Reserve(ctx, tx, userID, s.ID, amount); err != nil {
			return err
		}
		if err := tx.CreateStake(ctx, s); err != nil {
			return err
		}
		if err := b.claims.MarkStaked(ctx, tx, c, now); err != nil {
			return err
		}

		stake = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stake, nil
}

// StakesFor возвращает все ставки на утверждение в порядке поступления.
func (b *Book) StakesFor(ctx context.Context, claimID string) ([]model.Stake, error) {
	var res []model.Stake
	err := b.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetClaim(ctx, claimID); err != nil {
			return err
		}
		var err error
		res, err = tx.StakesForClaim(ctx, claimID)
		return err
	})
	return res, err
}

// ByUser возвращает ставки пользователя, начиная с последних.
func (b *Book) ByUser(ctx context.Context, userID int64) ([]model.Stake, error) {
	var res []model.Stake
	err := b.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		res, err = tx.StakesForUser(ctx, userID)
		return err
	})
	return res, err
}

// Totals содержит распределение ставок по сторонам.
type Totals struct {
	True  model.SideTotals
	False model.SideTotals
}

// Sum возвращает общую сумму поставленных очков.
func (t Totals) Sum() int64 {
	return t.True.Amount + t.False.Amount
}

// Pools возвращает суммы выигравшей и проигравшей стороны.
func (t Totals) Pools(winner model.Side) (winning, losing int64) {
	if winner == model.SideTrue {
		return t.True.Amount, t.False.Amount
	}
	return t.False.Amount, t.True.Amount
}

// Tally подсчитывает голоса и суммы по сторонам.
func Tally(stakes []model.Stake) Totals {
	var t Totals
	for _, s := range stakes {
		switch s.Side {
		case model.SideTrue:
			t.True.Votes++
			t.True.Amount += s.Amount
		case model.SideFalse:
			t.False.Votes++
			t.False.Amount += s.Amount
		}
	}
	return t
}
