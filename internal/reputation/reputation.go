// Package reputation считает точность пользователя по итогам расчётов
// и выводит из неё и баланса уровень значка.
//
//	accuracy = 100 × correct / total  (за всё время, без затухания)
//	level    = min(5, 1 + balance/PointsPerLevel), ограниченный порогами точности
//
// Падение баланса само по себе уровень не снижает: понижение происходит
// только тогда, когда точность опускается ниже порога текущего уровня.
package reputation

import (
	"context"

	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/repository"
)

// Policy задаёт таблицу уровней значка.
type Policy struct {
	PointsPerLevel int64
	// MinAccuracy[level]: минимальная точность (в процентах) для уровня.
	MinAccuracy [model.MaxBadgeLevel + 1]float64
}

// DefaultPolicy возвращает таблицу по умолчанию: уровень 4 и выше требует точности 80%.
func DefaultPolicy() Policy {
	return Policy{
		PointsPerLevel: 100,
		MinAccuracy:    [model.MaxBadgeLevel + 1]float64{0, 0, 50, 65, 80, 90},
	}
}

// Accuracy возвращает точность в процентах; без истории 0.
func Accuracy(correct, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(correct) / float64(total)
}

// accuracyCap возвращает наивысший уровень, порог точности которого выполнен.
func (p Policy) accuracyCap(accuracy float64) int {
	level := 1
	for l := 2; l <= model.MaxBadgeLevel; l++ {
		if accuracy < p.MinAccuracy[l] {
			break
		}
		level = l
	}
	return level
}

// BadgeFor вычисляет новый уровень значка по балансу, точности и текущему уровню.
func (p Policy) BadgeFor(balance int64, accuracy float64, current int) int {
	perLevel := p.PointsPerLevel
	if perLevel <= 0 {
		perLevel = 100
	}

	byPoints := 1 + int(balance/perLevel)
	if byPoints > model.MaxBadgeLevel {
		byPoints = model.MaxBadgeLevel
	}

	limit := p.accuracyCap(accuracy)
	level := min(byPoints, limit)
	if level >= current {
		return level
	}
	// Понижаем только до порога точности, но не из-за очков.
	return max(min(current, limit), 1)
}

// BadgeLabel возвращает название уровня значка.
func BadgeLabel(level int) string {
	switch level {
	case 2:
		return "Fact Checker"
	case 3:
		return "Truth Guardian"
	case 4:
		return "Wisdom Keeper"
	case 5:
		return "Master Verifier"
	default:
		return "Novice"
	}
}

// Tracker обновляет репутацию пользователей.
type Tracker struct {
	store  repository.Store
	policy Policy
}

// NewTracker создаёт трекер репутации.
func NewTracker(store repository.Store, policy Policy) *Tracker {
	return &Tracker{store: store, policy: policy}
}

// Record учитывает исход одной ставки и пересчитывает точность и уровень.
// Вызывается после того, как журнал уже отразил выплату, чтобы уровень
// считался по итоговому балансу.
func (t *Tracker) Record(ctx context.Context, tx repository.Tx, userID int64, correct bool) (*model.User, error) {
	u, err := tx.LockUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	u.TotalCount++
	if correct {
		u.CorrectCount++
	}
	u.ReputationScore = Accuracy(u.CorrectCount, u.TotalCount)
	if u.BadgeLevel < 1 {
		u.BadgeLevel = 1
	}
	u.BadgeLevel = t.policy.BadgeFor(u.Balance, u.ReputationScore, u.BadgeLevel)

	if err := tx.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Profile возвращает публичные показатели пользователя.
func (t *Tracker) Profile(ctx context.Context, userID int64) (*model.Profile, error) {
	var p *model.Profile
	err := t.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		p = ProfileOf(u)
		return nil
	})
	return p, err
}

// Leaderboard возвращает первых limit пользователей по очкам или точности.
func (t *Tracker) Leaderboard(ctx context.Context, order model.LeaderboardOrder, limit int) ([]model.Profile, error) {
	var res []model.Profile
	err := t.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		users, err := tx.Leaderboard(ctx, order, limit)
		if err != nil {
			return err
		}
		res = make([]model.Profile, 0, len(users))
		for i := range users {
			res = append(res, *ProfileOf(&users[i]))
		}
		return nil
	})
	return res, err
}

// ProfileOf строит профиль из записи пользователя.
func ProfileOf(u *model.User) *model.Profile {
	level := u.BadgeLevel
	if level < 1 {
		level = 1
	}
	return &model.Profile{
		UserID:          u.ID,
		Login:           u.Login,
		PointBalance:    u.Balance,
		ReputationScore: u.ReputationScore,
		BadgeLevel:      level,
		BadgeLabel:      BadgeLabel(level),
		CorrectCount:    u.CorrectCount,
		TotalCount:      u.TotalCount,
	}
}
