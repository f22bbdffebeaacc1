// Package repository содержит хранилища сущностей truthstake: PostgreSQL и in-memory.
package repository

import (
	"context"

	"github.com/mmeshcher/truthstake/internal/model"
)

// Store открывает транзакции над хранилищем. Все изменения внутри fn применяются
// атомарно: при ошибке fn ни одно из них не становится видимым.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Tx описывает операции над сущностями в рамках одной транзакции.
// Методы Lock* удерживают блокировку строки до конца транзакции.
type Tx interface {
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	LockUser(ctx context.Context, id int64) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	Leaderboard(ctx context.Context, order model.LeaderboardOrder, limit int) ([]model.User, error)

	AppendEntry(ctx context.Context, e *model.LedgerEntry) error
	EntriesForStake(ctx context.Context, stakeID string) ([]model.LedgerEntry, error)
	EntriesForUser(ctx context.Context, userID int64) ([]model.LedgerEntry, error)

	CreateClaim(ctx context.Context, c *model.Claim) error
	GetClaim(ctx context.Context, id string) (*model.Claim, error)
	LockClaim(ctx context.Context, id string) (*model.Claim, error)
	UpdateClaim(ctx context.Context, c *model.Claim) error
	ListClaims(ctx context.Context, f model.ClaimFilter) ([]model.Claim, error)

	CreateStake(ctx context.Context, s *model.Stake) error
	ActiveStake(ctx context.Context, claimID string, userID int64) (*model.Stake, error)
	StakesForClaim(ctx context.Context, claimID string) ([]model.Stake, error)
	StakesForUser(ctx context.Context, userID int64) ([]model.Stake, error)
	MarkStakeSettled(ctx context.Context, stakeID string) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresRepository)(nil)
	_ Tx    = (*memTx)(nil)
	_ Tx    = (*pgTx)(nil)
)
