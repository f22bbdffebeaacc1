package consensus

import (
	"time"

	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/stakes"
)

// Policy задаёт параметры консенсуса.
type Policy struct {
	// Threshold: сумма ставок, при достижении которой утверждение разрешается.
	Threshold int64
	// Window отсчитывается от первой ставки; по его истечении утверждение разрешается.
	Window time.Duration
	// TieExtension продлевает окно после первой ничьей.
	TieExtension time.Duration
	// TieBreak задаёт исход повторной ничьей.
	TieBreak model.Resolution
}

// DefaultPolicy возвращает политику по умолчанию: 500 очков или 72 часа,
// повторная ничья разрешается в False.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:    500,
		Window:       72 * time.Hour,
		TieExtension: 72 * time.Hour,
		TieBreak:     model.ResolutionFalse,
	}
}

// Outcome описывает результат попытки разрешения.
type Outcome string

const (
	OutcomeNotReady        Outcome = "NOT_READY"
	OutcomeExtended        Outcome = "EXTENDED"
	OutcomeResolved        Outcome = "RESOLVED"
	OutcomeAlreadyResolved Outcome = "ALREADY_RESOLVED"
)

// Decision содержит решение политики по текущему распределению ставок.
type Decision struct {
	Outcome    Outcome
	Resolution model.Resolution
	// ExtendUntil заполняется для OutcomeExtended.
	ExtendUntil time.Time
}

// Deadline возвращает момент, после которого утверждение разрешается по времени.
// Без ставок срока нет.
func (p Policy) Deadline(c *model.Claim) (time.Time, bool) {
	if c.ExtendedUntil != nil {
		return *c.ExtendedUntil, true
	}
	if c.FirstStakeAt == nil {
		return time.Time{}, false
	}
	return c.FirstStakeAt.Add(p.Window), true
}

// Winner возвращает сторону с большей суммой ставок, при равенстве возвращает TieBreak.
func (p Policy) Winner(t stakes.Totals) model.Resolution {
	switch {
	case t.True.Amount > t.False.Amount:
		return model.ResolutionTrue
	case t.False.Amount > t.True.Amount:
		return model.ResolutionFalse
	default:
		return p.TieBreak
	}
}

// Decide решает, пора ли разрешать утверждение c с распределением t в момент now.
//
// Разрешение срабатывает, когда сумма ставок достигла порога или истёк срок.
// Первая ничья продлевает окно на TieExtension, ничья, сохранившаяся
// к концу продления, разрешается в TieBreak.
func (p Policy) Decide(c *model.Claim, t stakes.Totals, now time.Time) Decision {
	if t.Sum() == 0 {
		return Decision{Outcome: OutcomeNotReady}
	}

	deadline, ok := p.Deadline(c)
	expired := ok && !now.Before(deadline)
	if t.Sum() < p.Threshold && !expired {
		return Decision{Outcome: OutcomeNotReady}
	}

	if t.True.Amount != t.False.Amount {
		return Decision{Outcome: OutcomeResolved, Resolution: p.Winner(t)}
	}

	switch {
	case c.TieCount == 0:
		return Decision{Outcome: OutcomeExtended, ExtendUntil: now.Add(p.TieExtension)}
	case expired:
		return Decision{Outcome: OutcomeResolved, Resolution: p.TieBreak}
	default:
		return Decision{Outcome: OutcomeNotReady}
	}
}
