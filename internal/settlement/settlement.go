// Package settlement проводит расчёт по разрешённому утверждению: выплаты
// и штрафы через журнал, отметку ставок закрытыми, пересчёт репутации и
// финальный переход утверждения в Resolved. Всё это выполняется одной
// транзакцией, события публикуются только после её фиксации.
package settlement

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/mmeshcher/truthstake/internal/claims"
	"github.com/mmeshcher/truthstake/internal/events"
	"github.com/mmeshcher/truthstake/internal/ledger"
	"github.com/mmeshcher/truthstake/internal/metrics"
	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/repository"
	"github.com/mmeshcher/truthstake/internal/reputation"
)

// Result описывает итог расчёта.
type Result struct {
	Claim   *model.Claim
	Entries []model.LedgerEntry
	Dust    int64
	// AlreadyResolved: утверждение было разрешено раньше, ничего не изменено.
	AlreadyResolved bool
}

// Engine выполняет расчёт по утверждениям.
type Engine struct {
	store     repository.Store
	ledger    *ledger.Ledger
	claims    *claims.Store
	tracker   *reputation.Tracker
	publisher events.Publisher
	logger    *zap.Logger
}

// New создаёт движок расчёта. publisher может быть nil.
func New(store repository.Store, l *ledger.Ledger, c *claims.Store, t *reputation.Tracker, publisher events.Publisher, logger *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		ledger:    l,
		claims:    c,
		tracker:   t,
		publisher: publisher,
		logger:    logger,
	}
}

// Settle рассчитывает все незакрытые ставки утверждения в пользу resolution.
// Для уже разрешённого утверждения вызов ничего не меняет. Утверждение должно
// находиться в Resolving: переход в него выполняет консенсус.
func (e *Engine) Settle(ctx context.Context, claimID string, resolution model.Resolution) (*Result, error) {
	winner, ok := resolution.Side()
	if !ok {
		return nil, fmt.Errorf("%w: cannot settle with resolution %q", model.ErrInvalidInput, resolution)
	}

	var res *Result
	err := e.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		res = &Result{}

		c, err := tx.LockClaim(ctx, claimID)
		if err != nil {
			return err
		}
		switch c.State {
		case model.ClaimResolved:
			res.Claim = c
			res.AlreadyResolved = true
			return nil
		case model.ClaimOpen:
			return fmt.Errorf("%w: claim %s has not entered resolving", model.ErrInvalidTransition, claimID)
		}

		all, err := tx.StakesForClaim(ctx, claimID)
		if err != nil {
			return err
		}
		payouts, dust := Payouts(all, winner)
		res.Dust = dust

		// Пользователи блокируются по возрастанию id, чтобы параллельные
		// расчёты не взаимоблокировались.
		users := make([]int64, 0, len(payouts))
		for _, p := range payouts {
			users = append(users, p.UserID)
		}
		slices.Sort(users)
		for _, id := range slices.Compact(users) {
			if _, err := tx.LockUser(ctx, id); err != nil {
				return err
			}
		}

		for _, p := range payouts {
			entry, err := e.ledger.Settle(ctx, tx, p.StakeID, p.UserID, p.Delta, p.Reason)
			if err != nil {
				return fmt.Errorf("settle stake %s: %w", p.StakeID, err)
			}
			if err := tx.MarkStakeSettled(ctx, p.StakeID); err != nil {
				return fmt.Errorf("mark stake %s settled: %w", p.StakeID, err)
			}
			if _, err := e.tracker.Record(ctx, tx, p.UserID, p.Correct); err != nil {
				return fmt.Errorf("record reputation for user %d: %w", p.UserID, err)
			}
			res.Entries = append(res.Entries, *entry)
		}

		res.Claim, err = e.claims.TransitionToResolved(ctx, tx, claimID, resolution)
		return err
	})
	if err != nil {
		metrics.ObserveError("settle", err)
		if model.IsInconsistency(err) {
			e.logger.Error("settlement inconsistency",
				zap.String("claimID", claimID),
				zap.String("resolution", string(resolution)),
				zap.Error(err),
			)
		}
		return nil, err
	}

	if res.AlreadyResolved {
		return res, nil
	}

	e.observe(res)
	e.publish(ctx, res)

	e.logger.Info("claim settled",
		zap.String("claimID", claimID),
		zap.String("resolution", string(resolution)),
		zap.Int("entries", len(res.Entries)),
		zap.Int64("dust", res.Dust),
	)
	return res, nil
}

func (e *Engine) observe(res *Result) {
	metrics.ClaimsResolved.WithLabelValues(string(res.Claim.Resolution)).Inc()
	metrics.DustBurned.Add(float64(res.Dust))
	for _, entry := range res.Entries {
		metrics.SettlementEntries.WithLabelValues(string(entry.Reason)).Inc()
		metrics.SettlementPoints.Add(float64(entry.Delta))
	}
}

// publish передаёт события уже зафиксированного расчёта. Внешние получатели
// стоят за очередями и не задерживают вызывающего; ошибка не откатывает
// расчёт и только логируется.
func (e *Engine) publish(ctx context.Context, res *Result) {
	if e.publisher == nil {
		return
	}

	evs := make([]events.Event, 0, len(res.Entries)+1)
	evs = append(evs, events.ClaimResolved(res.Claim))
	for i := range res.Entries {
		evs = append(evs, events.StakeSettled(res.Claim.ID, &res.Entries[i]))
	}

	if err := e.publisher.Publish(context.WithoutCancel(ctx), evs...); err != nil {
		e.logger.Warn("publish settlement events", zap.String("claimID", res.Claim.ID), zap.Error(err))
	}
}
