package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/truthstake/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	constraintUsersLogin        = "users_login_key"
	constraintUsersBalance      = "users_balance_check"
	constraintStakesActive      = "stakes_active_uniq"
	constraintEntriesReserve    = "ledger_entries_reserve_uniq"
	constraintEntriesSettlement = "ledger_entries_settlement_uniq"
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// WithTx выполняет fn в транзакции; при сбое сериализации или взаимной блокировке
// транзакция повторяется целиком.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(ctx, &pgTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

type pgTx struct {
	tx pgx.Tx
}

// mapConstraint переводит нарушения ограничений схемы в доменные ошибки.
func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.ConstraintName {
	case constraintUsersLogin:
		return fmt.Errorf("%w: %s", model.ErrUserExists, pgErr.Detail)
	case constraintUsersBalance:
		return fmt.Errorf("%w: %s", model.ErrInsufficientBalance, pgErr.Detail)
	case constraintStakesActive, constraintEntriesReserve:
		return fmt.Errorf("%w: %s", model.ErrDuplicateStake, pgErr.Detail)
	case constraintEntriesSettlement:
		return fmt.Errorf("%w: %s", model.ErrAlreadySettled, pgErr.Detail)
	}
	return err
}

const userColumns = `id, login, password_hash, balance, correct_count, total_count, reputation_score, badge_level, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Balance, &u.CorrectCount,
		&u.TotalCount, &u.ReputationScore, &u.BadgeLevel, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser создаёт нового пользователя.
func (t *pgTx) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", model.ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func (t *pgTx) getUser(ctx context.Context, query string, arg any) (*model.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %v", model.ErrNotFound, arg)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (t *pgTx) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return t.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByLogin возвращает пользователя по логину.
func (t *pgTx) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return t.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE login = $1`, login)
}

// LockUser блокирует строку пользователя для сериализации изменений баланса.
func (t *pgTx) LockUser(ctx context.Context, id int64) (*model.User, error) {
	return t.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

// UpdateUser сохраняет баланс и показатели репутации.
func (t *pgTx) UpdateUser(ctx context.Context, u *model.User) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE users
		 SET balance = $2, correct_count = $3, total_count = $4, reputation_score = $5, badge_level = $6
		 WHERE id = $1`,
		u.ID, u.Balance, u.CorrectCount, u.TotalCount, u.ReputationScore, u.BadgeLevel,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", mapConstraint(err))
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", model.ErrNotFound, u.ID)
	}
	return nil
}

// Leaderboard возвращает пользователей, отсортированных по очкам или точности.
func (t *pgTx) Leaderboard(ctx context.Context, order model.LeaderboardOrder, limit int) ([]model.User, error) {
	orderBy := `balance DESC, id`
	if order == model.ByAccuracy {
		orderBy = `reputation_score DESC, total_count DESC, id`
	}

	rows, err := t.tx.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY `+orderBy+` LIMIT NULLIF($1, 0)`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// AppendEntry добавляет запись в журнал изменений баланса.
func (t *pgTx) AppendEntry(ctx context.Context, e *model.LedgerEntry) error {
	var stakeID *string
	if e.RelatedStakeID != "" {
		stakeID = &e.RelatedStakeID
	}

	_, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, user_id, delta, reason, related_stake_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.UserID, e.Delta, string(e.Reason), stakeID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", mapConstraint(err))
	}
	return nil
}

func (t *pgTx) queryEntries(ctx context.Context, query string, arg any) ([]model.LedgerEntry, error) {
	rows, err := t.tx.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("select ledger entries: %w", err)
	}
	defer rows.Close()

	var res []model.LedgerEntry
	for rows.Next() {
		var (
			e       model.LedgerEntry
			reason  string
			stakeID *string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &reason, &stakeID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Reason = model.EntryReason(reason)
		if stakeID != nil {
			e.RelatedStakeID = *stakeID
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// EntriesForStake возвращает записи журнала, связанные со ставкой.
func (t *pgTx) EntriesForStake(ctx context.Context, stakeID string) ([]model.LedgerEntry, error) {
	return t.queryEntries(ctx,
		`SELECT id, user_id, delta, reason, related_stake_id, created_at
		 FROM ledger_entries WHERE related_stake_id = $1 ORDER BY seq`,
		stakeID,
	)
}

// EntriesForUser возвращает журнал пользователя в порядке записи.
func (t *pgTx) EntriesForUser(ctx context.Context, userID int64) ([]model.LedgerEntry, error) {
	return t.queryEntries(ctx,
		`SELECT id, user_id, delta, reason, related_stake_id, created_at
		 FROM ledger_entries WHERE user_id = $1 ORDER BY seq`,
		userID,
	)
}

const claimColumns = `id, author_id, title, body, source, image_url, state, resolution,
	created_at, resolved_at, first_stake_at, tie_count, extended_until`

func scanClaim(row pgx.Row) (*model.Claim, error) {
	var (
		c          model.Claim
		state      string
		resolution string
	)
	err := row.Scan(&c.ID, &c.AuthorID, &c.Title, &c.Body, &c.Source, &c.ImageURL, &state, &resolution,
		&c.CreatedAt, &c.ResolvedAt, &c.FirstStakeAt, &c.TieCount, &c.ExtendedUntil)
	if err != nil {
		return nil, err
	}
	c.State = model.ClaimState(state)
	c.Resolution = model.Resolution(resolution)
	return &c, nil
}

// CreateClaim сохраняет новое утверждение.
func (t *pgTx) CreateClaim(ctx context.Context, c *model.Claim) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO claims (id, author_id, title, body, source, image_url, state, resolution, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.AuthorID, c.Title, c.Body, c.Source, c.ImageURL,
		string(c.State), string(c.Resolution), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (t *pgTx) getClaim(ctx context.Context, query, id string) (*model.Claim, error) {
	c, err := scanClaim(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: claim %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return c, nil
}

// GetClaim возвращает утверждение по идентификатору.
func (t *pgTx) GetClaim(ctx context.Context, id string) (*model.Claim, error) {
	return t.getClaim(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
}

// LockClaim блокирует строку утверждения до конца транзакции.
func (t *pgTx) LockClaim(ctx context.Context, id string) (*model.Claim, error) {
	return t.getClaim(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1 FOR UPDATE`, id)
}

// UpdateClaim сохраняет состояние утверждения.
func (t *pgTx) UpdateClaim(ctx context.Context, c *model.Claim) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE claims
		 SET state = $2, resolution = $3, resolved_at = $4, first_stake_at = $5, tie_count = $6, extended_until = $7
		 WHERE id = $1`,
		c.ID, string(c.State), string(c.Resolution), c.ResolvedAt, c.FirstStakeAt, c.TieCount, c.ExtendedUntil,
	)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: claim %s", model.ErrNotFound, c.ID)
	}
	return nil
}

// ListClaims возвращает утверждения, начиная с последних.
func (t *pgTx) ListClaims(ctx context.Context, f model.ClaimFilter) ([]model.Claim, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+claimColumns+`
		 FROM claims
		 WHERE ($1 = '' OR state = $1) AND ($2 = 0 OR author_id = $2)
		 ORDER BY seq DESC
		 LIMIT NULLIF($3, 0)`,
		string(f.State), f.AuthorID, f.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select claims: %w", err)
	}
	defer rows.Close()

	var res []model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateStake сохраняет ставку. Частичный уникальный индекс не допускает
// двух незакрытых ставок одного пользователя на одно утверждение.
func (t *pgTx) CreateStake(ctx context.Context, s *model.Stake) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO stakes (id, claim_id, user_id, side, amount, placed_at, settled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.ClaimID, s.UserID, string(s.Side), s.Amount, s.PlacedAt, s.Settled,
	)
	if err != nil {
		return fmt.Errorf("insert stake: %w", mapConstraint(err))
	}
	return nil
}

func (t *pgTx) queryStakes(ctx context.Context, query string, args ...any) ([]model.Stake, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select stakes: %w", err)
	}
	defer rows.Close()

	var res []model.Stake
	for rows.Next() {
		var (
			s    model.Stake
			side string
		)
		if err := rows.Scan(&s.ID, &s.ClaimID, &s.UserID, &side, &s.Amount, &s.PlacedAt, &s.Settled); err != nil {
			return nil, fmt.Errorf("scan stake: %w", err)
		}
		s.Side = model.Side(side)
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ActiveStake возвращает незакрытую ставку пользователя на утверждение или nil.
func (t *pgTx) ActiveStake(ctx context.Context, claimID string, userID int64) (*model.Stake, error) {
	stakes, err := t.queryStakes(ctx,
		`SELECT id, claim_id, user_id, side, amount, placed_at, settled
		 FROM stakes WHERE claim_id = $1 AND user_id = $2 AND NOT settled`,
		claimID, userID,
	)
	if err != nil {
		return nil, err
	}
	if len(stakes) == 0 {
		return nil, nil
	}
	return &stakes[0], nil
}

// StakesForClaim возвращает ставки на утверждение в порядке поступления.
func (t *pgTx) StakesForClaim(ctx context.Context, claimID string) ([]model.Stake, error) {
	return t.queryStakes(ctx,
		`SELECT id, claim_id, user_id, side, amount, placed_at, settled
		 FROM stakes WHERE claim_id = $1 ORDER BY seq`,
		claimID,
	)
}

// StakesForUser возвращает ставки пользователя, начиная с последних.
func (t *pgTx) StakesForUser(ctx context.Context, userID int64) ([]model.Stake, error) {
	return t.queryStakes(ctx,
		`SELECT id, claim_id, user_id, side, amount, placed_at, settled
		 FROM stakes WHERE user_id = $1 ORDER BY seq DESC`,
		userID,
	)
}

// MarkStakeSettled отмечает ставку рассчитанной. Повторная отметка возвращает ошибку.
func (t *pgTx) MarkStakeSettled(ctx context.Context, stakeID string) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE stakes SET settled = TRUE WHERE id = $1 AND NOT settled`,
		stakeID,
	)
	if err != nil {
		return fmt.Errorf("update stake: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stakes WHERE id = $1)`, stakeID).Scan(&exists); err != nil {
		return fmt.Errorf("select stake: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: stake %s", model.ErrUnknownStake, stakeID)
	}
	return fmt.Errorf("%w: stake %s", model.ErrAlreadySettled, stakeID)
}
