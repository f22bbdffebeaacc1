// Package ledger ведёт журнал изменений баланса и является единственным
// источником списаний и начислений очков.
//
// Баланс пользователя хранится материализованно и всегда равен сумме его
// записей в журнале. Каждая ставка получает ровно одну запись Reserve при
// размещении и не более одной записи расчёта (Release, Reward, Penalty, Refund).
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/repository"
)

// Ledger выполняет операции с балансом внутри транзакций хранилища.
type Ledger struct {
	store repository.Store
	now   func() time.Time
}

// New создаёт журнал поверх хранилища.
func New(store repository.Store) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
	}
}

// Grant начисляет стартовые или бонусные очки без привязки к ставке.
func (l *Ledger) Grant(ctx context.Context, tx repository.Tx, userID, amount int64) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: grant amount must be positive", model.ErrInvalidInput)
	}
	return l.apply(ctx, tx, userID, amount, model.ReasonGrant, "")
}

// Reserve списывает amount под ставку stakeID. При нехватке средств запись не создаётся.
func (l *Ledger) Reserve(ctx context.Context, tx repository.Tx, userID int64, stakeID string, amount int64) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: reserve amount must be positive", model.ErrInvalidInput)
	}
	if stakeID == "" {
		return nil, fmt.Errorf("%w: reserve requires stake id", model.ErrInvalidInput)
	}
	return l.apply(ctx, tx, userID, -amount, model.ReasonReserve, stakeID)
}

// Settle закрывает ставку записью расчёта. Reward должен быть положительным,
// Refund и Release возвращают ровно зарезервированную сумму, Penalty не может
// быть положительным и не может превышать резерв по модулю.
func (l *Ledger) Settle(ctx context.Context, tx repository.Tx, stakeID string, userID, delta int64, reason model.EntryReason) (*model.LedgerEntry, error) {
	if !reason.IsSettlement() {
		return nil, fmt.Errorf("%w: %s is not a settlement reason", model.ErrInvalidInput, reason)
	}

	entries, err := tx.EntriesForStake(ctx, stakeID)
	if err != nil {
		return nil, err
	}

	var reserved int64
	found := false
	for _, e := range entries {
		switch {
		case e.Reason == model.ReasonReserve:
			if e.UserID != userID {
				return nil, fmt.Errorf("%w: stake %s reserved by user %d, not %d", model.ErrUnknownStake, stakeID, e.UserID, userID)
			}
			reserved = -e.Delta
			found = true
		case e.Reason.IsSettlement():
			return nil, fmt.Errorf("%w: stake %s settled with %s", model.ErrAlreadySettled, stakeID, e.Reason)
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: stake %s has no reservation", model.ErrUnknownStake, stakeID)
	}

	switch reason {
	case model.ReasonReward:
		if delta <= 0 {
			return nil, fmt.Errorf("%w: reward must be positive, got %d", model.ErrInvalidInput, delta)
		}
	case model.ReasonRefund, model.ReasonRelease:
		if delta != reserved {
			return nil, fmt.Errorf("%w: %s must return exactly %d, got %d", model.ErrInvalidInput, reason, reserved, delta)
		}
	case model.ReasonPenalty:
		if delta > 0 || -delta > reserved {
			return nil, fmt.Errorf("%w: penalty %d out of range for reserve %d", model.ErrInvalidInput, delta, reserved)
		}
	}

	return l.apply(ctx, tx, userID, delta, reason, stakeID)
}

func (l *Ledger) apply(ctx context.Context, tx repository.Tx, userID, delta int64, reason model.EntryReason, stakeID string) (*model.LedgerEntry, error) {
	u, err := tx.LockUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if u.Balance+delta < 0 {
		return nil, fmt.Errorf("%w: balance %d, requested %d", model.ErrInsufficientBalance, u.Balance, -delta)
	}

	entry := &model.LedgerEntry{
		ID:             uuid.NewString(),
		UserID:         userID,
		Delta:          delta,
		Reason:         reason,
		RelatedStakeID: stakeID,
		CreatedAt:      l.now(),
	}
	if err := tx.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}

	u.Balance += delta
	if err := tx.UpdateUser(ctx, u); err != nil {
		return nil, err
	}

	return entry, nil
}

// BalanceOf возвращает текущий баланс пользователя.
func (l *Ledger) BalanceOf(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := l.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		balance = u.Balance
		return nil
	})
	return balance, err
}

// History возвращает журнал пользователя в порядке записи.
func (l *Ledger) History(ctx context.Context, userID int64) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := l.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		var err error
		entries, err = tx.EntriesForUser(ctx, userID)
		return err
	})
	return entries, err
}

// Audit сверяет сохранённый баланс с суммой записей журнала.
func (l *Ledger) Audit(ctx context.Context, userID int64) (balance, sum int64, err error) {
	err = l.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		entries, err := tx.EntriesForUser(ctx, userID)
		if err != nil {
			return err
		}

		balance, sum = u.Balance, 0
		for _, e := range entries {
			sum += e.Delta
		}
		return nil
	})
	return balance, sum, err
}
