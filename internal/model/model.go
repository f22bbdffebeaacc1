// Package model содержит доменные сущности сервиса truthstake.
package model

import (
	"fmt"
	"strings"
	"time"
)

// MaxBadgeLevel задаёт верхнюю ступень значка репутации.
const MaxBadgeLevel = 5

// User представляет участника платформы: баланс очков и репутацию.
type User struct {
	ID              int64
	Login           string
	PasswordHash    []byte
	Balance         int64
	CorrectCount    int64
	TotalCount      int64
	ReputationScore float64
	BadgeLevel      int
	CreatedAt       time.Time
}

// Side описывает сторону, на которую пользователь ставит очки.
type Side string

const (
	SideTrue  Side = "TRUE"
	SideFalse Side = "FALSE"
)

// ParseSide разбирает сторону ставки из строки вида "true"/"false".
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SideTrue):
		return SideTrue, nil
	case string(SideFalse):
		return SideFalse, nil
	}
	return "", fmt.Errorf("%w: unknown side %q", ErrInvalidInput, s)
}

// Resolution возвращает исход, соответствующий стороне.
func (s Side) Resolution() Resolution {
	if s == SideTrue {
		return ResolutionTrue
	}
	return ResolutionFalse
}

// Resolution описывает итог проверки утверждения.
type Resolution string

const (
	ResolutionTrue  Resolution = "TRUE"
	ResolutionFalse Resolution = "FALSE"
	ResolutionNone  Resolution = "NONE"
)

// Side возвращает выигравшую сторону. Для ResolutionNone ok = false.
func (r Resolution) Side() (Side, bool) {
	switch r {
	case ResolutionTrue:
		return SideTrue, true
	case ResolutionFalse:
		return SideFalse, true
	}
	return "", false
}

// ClaimState описывает стадию жизненного цикла утверждения.
type ClaimState string

const (
	ClaimOpen      ClaimState = "OPEN"
	ClaimResolving ClaimState = "RESOLVING"
	ClaimResolved  ClaimState = "RESOLVED"
)

// ClaimDraft содержит пользовательский ввод для публикации утверждения.
type ClaimDraft struct {
	Title    string
	Body     string
	Source   string
	ImageURL string
}

// Claim описывает утверждение, на которое пользователи делают ставки.
type Claim struct {
	ID           string
	AuthorID     int64
	Title        string
	Body         string
	Source       string
	ImageURL     string
	State        ClaimState
	Resolution   Resolution
	CreatedAt    time.Time
	ResolvedAt   *time.Time
	FirstStakeAt *time.Time
	// TieCount считает зафиксированные ничьи; после первой окно продлевается до ExtendedUntil.
	TieCount      int
	ExtendedUntil *time.Time
}

// ClaimFilter ограничивает выборку утверждений.
type ClaimFilter struct {
	State    ClaimState
	AuthorID int64
	Limit    int
}

// Stake описывает ставку пользователя на одну из сторон утверждения.
type Stake struct {
	ID       string
	ClaimID  string
	UserID   int64
	Side     Side
	Amount   int64
	PlacedAt time.Time
	Settled  bool
}

// EntryReason описывает причину изменения баланса.
type EntryReason string

const (
	ReasonGrant   EntryReason = "GRANT"
	ReasonReserve EntryReason = "RESERVE"
	ReasonRelease EntryReason = "RELEASE"
	ReasonReward  EntryReason = "REWARD"
	ReasonPenalty EntryReason = "PENALTY"
	ReasonRefund  EntryReason = "REFUND"
)

// IsSettlement сообщает, закрывает ли запись с этой причиной ставку.
func (r EntryReason) IsSettlement() bool {
	switch r {
	case ReasonRelease, ReasonReward, ReasonPenalty, ReasonRefund:
		return true
	}
	return false
}

// LedgerEntry описывает неизменяемую запись журнала изменений баланса.
type LedgerEntry struct {
	ID             string
	UserID         int64
	Delta          int64
	Reason         EntryReason
	RelatedStakeID string
	CreatedAt      time.Time
}

// SideTotals содержит агрегаты ставок по одной стороне.
type SideTotals struct {
	Votes  int64
	Amount int64
}

// ClaimView содержит утверждение вместе с текущим распределением голосов и ставок.
type ClaimView struct {
	Claim
	True              SideTotals
	False             SideTotals
	TotalStaked       int64
	TruePercent       int
	FalsePercent      int
	TrueStakePercent  int
	FalseStakePercent int
}

// Profile содержит публичные показатели пользователя.
type Profile struct {
	UserID          int64
	Login           string
	PointBalance    int64
	ReputationScore float64
	BadgeLevel      int
	BadgeLabel      string
	CorrectCount    int64
	TotalCount      int64
}

// LeaderboardOrder задаёт сортировку таблицы лидеров.
type LeaderboardOrder string

const (
	ByPoints   LeaderboardOrder = "points"
	ByAccuracy LeaderboardOrder = "accuracy"
)
