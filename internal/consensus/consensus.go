// Package consensus решает, когда и в чью пользу разрешается утверждение.
// Победа определяется суммой ставок, а не числом голосов.
//
// Переход Open -> Resolving выполняется под блокировкой утверждения и служит
// шлюзом: при параллельных вызовах TryResolve расчёт запускает только тот,
// кто выполнил переход.
package consensus

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/truthstake/internal/claims"
	"github.com/mmeshcher/truthstake/internal/metrics"
	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/repository"
	"github.com/mmeshcher/truthstake/internal/settlement"
	"github.com/mmeshcher/truthstake/internal/stakes"
)

// Report описывает итог вызова TryResolve.
type Report struct {
	ClaimID    string
	Outcome    Outcome
	Resolution model.Resolution
	Settlement *settlement.Result
}

// Engine применяет политику консенсуса к утверждениям.
type Engine struct {
	store   repository.Store
	claims  *claims.Store
	settler *settlement.Engine
	policy  Policy
	logger  *zap.Logger
	now     func() time.Time
}

// New создаёт движок консенсуса.
func New(store repository.Store, c *claims.Store, s *settlement.Engine, policy Policy, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		claims:  c,
		settler: s,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock подменяет источник времени.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Policy возвращает действующую политику.
func (e *Engine) Policy() Policy {
	return e.policy
}

// TryResolve проверяет условия разрешения утверждения и при их выполнении
// переводит его в Resolving и проводит расчёт. Для разрешённого утверждения
// возвращает OutcomeAlreadyResolved, для находящегося в Resolving возвращает ErrAlreadyResolving.
func (e *Engine) TryResolve(ctx context.Context, claimID string) (*Report, error) {
	report := &Report{ClaimID: claimID}

	err := e.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.LockClaim(ctx, claimID)
		if err != nil {
			return err
		}

		switch c.State {
		case model.ClaimResolved:
			report.Outcome = OutcomeAlreadyResolved
			report.Resolution = c.Resolution
			return nil
		case model.ClaimResolving:
			return fmt.Errorf("%w: claim %s", model.ErrAlreadyResolving, claimID)
		}

		all, err := tx.StakesForClaim(ctx, claimID)
		if err != nil {
			return err
		}

		d := e.policy.Decide(c, stakes.Tally(all), e.now())
		report.Outcome = d.Outcome
		report.Resolution = d.Resolution

		switch d.Outcome {
		case OutcomeExtended:
			return e.claims.ExtendWindow(ctx, tx, c, d.ExtendUntil)
		case OutcomeResolved:
			_, err := e.claims.TransitionToResolving(ctx, tx, claimID)
			return err
		}
		return nil
	})
	if err != nil {
		metrics.ObserveError("try_resolve", err)
		return nil, err
	}

	switch report.Outcome {
	case OutcomeExtended:
		metrics.TieExtensions.Inc()
		e.logger.Info("resolution window extended after tie", zap.String("claimID", claimID))
	case OutcomeResolved:
		res, err := e.settler.Settle(ctx, claimID, report.Resolution)
		if err != nil {
			// Утверждение остаётся в Resolving, его дорасчитает Recover.
			return nil, fmt.Errorf("settle claim %s: %w", claimID, err)
		}
		report.Settlement = res
	}

	return report, nil
}

// Recover доводит до конца расчёт утверждений, оставшихся в Resolving после
// сбоя. Исход повторно вычисляется по зафиксированному распределению ставок.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	stuck, err := e.claims.List(ctx, model.ClaimFilter{State: model.ClaimResolving})
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, c := range stuck {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}

		var all []model.Stake
		err := e.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			all, err = tx.StakesForClaim(ctx, c.ID)
			return err
		})
		if err != nil {
			return recovered, err
		}

		resolution := e.policy.Winner(stakes.Tally(all))
		if _, err := e.settler.Settle(ctx, c.ID, resolution); err != nil {
			e.logger.Error("recover settlement", zap.String("claimID", c.ID), zap.Error(err))
			continue
		}
		recovered++
		e.logger.Info("settlement recovered", zap.String("claimID", c.ID), zap.String("resolution", string(resolution)))
	}
	return recovered, nil
}

// Scan вызывает TryResolve для всех открытых утверждений и возвращает
// число разрешённых.
func (e *Engine) Scan(ctx context.Context) (int, error) {
	open, err := e.claims.List(ctx, model.ClaimFilter{State: model.ClaimOpen})
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, c := range open {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if c.FirstStakeAt == nil {
			continue
		}

		report, err := e.TryResolve(ctx, c.ID)
		if err != nil {
			e.logger.Warn("try resolve", zap.String("claimID", c.ID), zap.Error(err))
			continue
		}
		if report.Outcome == OutcomeResolved {
			resolved++
		}
	}
	return resolved, nil
}
