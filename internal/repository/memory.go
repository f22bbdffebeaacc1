package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/truthstake/internal/model"
)

// MemoryStore хранит сущности в памяти процесса. Транзакции сериализуются
// одним мьютексом, откат выполняется по журналу отмены.
type MemoryStore struct {
	mu sync.Mutex

	nextUserID  int64
	users       map[int64]model.User
	logins      map[string]int64
	claims      map[string]model.Claim
	claimOrder  []string
	stakes      map[string]model.Stake
	claimStakes map[string][]string
	userStakes  map[int64][]string
	entries     []model.LedgerEntry

	now func() time.Time
}

// NewMemoryStore создаёт пустое хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]model.User),
		logins:      make(map[string]int64),
		claims:      make(map[string]model.Claim),
		stakes:      make(map[string]model.Stake),
		claimStakes: make(map[string][]string),
		userStakes:  make(map[int64][]string),
		now:         time.Now,
	}
}

// Close ничего не делает: у хранилища в памяти нет внешних ресурсов.
func (m *MemoryStore) Close() error { return nil }

// WithTx выполняет fn под эксклюзивной блокировкой хранилища. Ошибка или
// паника fn откатывают все изменения транзакции; паника передаётся дальше.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memTx struct {
	store *MemoryStore
	undo  []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *memTx) CreateUser(_ context.Context, login string, passwordHash []byte) (int64, error) {
	s := t.store
	if _, ok := s.logins[login]; ok {
		return 0, fmt.Errorf("%w: %s", model.ErrUserExists, login)
	}

	prevNext := s.nextUserID
	s.nextUserID++
	id := s.nextUserID

	s.users[id] = model.User{
		ID:           id,
		Login:        login,
		PasswordHash: passwordHash,
		BadgeLevel:   1,
		CreatedAt:    s.now(),
	}
	s.logins[login] = id

	t.onRollback(func() {
		delete(s.users, id)
		delete(s.logins, login)
		s.nextUserID = prevNext
	})
	return id, nil
}

func (t *memTx) GetUser(_ context.Context, id int64) (*model.User, error) {
	u, ok := t.store.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", model.ErrNotFound, id)
	}
	return &u, nil
}

func (t *memTx) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	id, ok := t.store.logins[login]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, login)
	}
	return t.GetUser(ctx, id)
}

func (t *memTx) LockUser(ctx context.Context, id int64) (*model.User, error) {
	return t.GetUser(ctx, id)
}

func (t *memTx) UpdateUser(_ context.Context, u *model.User) error {
	s := t.store
	prev, ok := s.users[u.ID]
	if !ok {
		return fmt.Errorf("%w: user %d", model.ErrNotFound, u.ID)
	}
	if u.Balance < 0 {
		return fmt.Errorf("%w: user %d", model.ErrInsufficientBalance, u.ID)
	}

	s.users[u.ID] = *u
	t.onRollback(func() { s.users[u.ID] = prev })
	return nil
}

func (t *memTx) Leaderboard(_ context.Context, order model.LeaderboardOrder, limit int) ([]model.User, error) {
	res := make([]model.User, 0, len(t.store.users))
	for _, u := range t.store.users {
		res = append(res, u)
	}

	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if order == model.ByAccuracy {
			if a.ReputationScore != b.ReputationScore {
				return a.ReputationScore > b.ReputationScore
			}
			if a.TotalCount != b.TotalCount {
				return a.TotalCount > b.TotalCount
			}
		} else if a.Balance != b.Balance {
			return a.Balance > b.Balance
		}
		return a.ID < b.ID
	})

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (t *memTx) AppendEntry(_ context.Context, e *model.LedgerEntry) error {
	s := t.store
	if e.RelatedStakeID != "" {
		for _, existing := range s.entries {
			if existing.RelatedStakeID != e.RelatedStakeID {
				continue
			}
			if existing.Reason == model.ReasonReserve && e.Reason == model.ReasonReserve {
				return fmt.Errorf("%w: stake %s already reserved", model.ErrDuplicateStake, e.RelatedStakeID)
			}
			if existing.Reason.IsSettlement() && e.Reason.IsSettlement() {
				return fmt.Errorf("%w: stake %s", model.ErrAlreadySettled, e.RelatedStakeID)
			}
		}
	}

	n := len(s.entries)
	s.entries = append(s.entries, *e)
	t.onRollback(func() { s.entries = s.entries[:n] })
	return nil
}

func (t *memTx) EntriesForStake(_ context.Context, stakeID string) ([]model.LedgerEntry, error) {
	var res []model.LedgerEntry
	for _, e := range t.store.entries {
		if e.RelatedStakeID == stakeID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (t *memTx) EntriesForUser(_ context.Context, userID int64) ([]model.LedgerEntry, error) {
	var res []model.LedgerEntry
	for _, e := range t.store.entries {
		if e.UserID == userID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (t *memTx) CreateClaim(_ context.Context, c *model.Claim) error {
	s := t.store
	if _, ok := s.claims[c.ID]; ok {
		return fmt.Errorf("%w: claim %s already exists", model.ErrInvalidInput, c.ID)
	}

	s.claims[c.ID] = *c
	n := len(s.claimOrder)
	s.claimOrder = append(s.claimOrder, c.ID)

	t.onRollback(func() {
		delete(s.claims, c.ID)
		s.claimOrder = s.claimOrder[:n]
	})
	return nil
}

func (t *memTx) GetClaim(_ context.Context, id string) (*model.Claim, error) {
	c, ok := t.store.claims[id]
	if !ok {
		return nil, fmt.Errorf("%w: claim %s", model.ErrNotFound, id)
	}
	return &c, nil
}

func (t *memTx) LockClaim(ctx context.Context, id string) (*model.Claim, error) {
	return t.GetClaim(ctx, id)
}

func (t *memTx) UpdateClaim(_ context.Context, c *model.Claim) error {
	s := t.store
	prev, ok := s.claims[c.ID]
	if !ok {
		return fmt.Errorf("%w: claim %s", model.ErrNotFound, c.ID)
	}

	s.claims[c.ID] = *c
	t.onRollback(func() { s.claims[c.ID] = prev })
	return nil
}

func (t *memTx) ListClaims(_ context.Context, f model.ClaimFilter) ([]model.Claim, error) {
	s := t.store
	var res []model.Claim
	for i := len(s.claimOrder) - 1; i >= 0; i-- {
		c := s.claims[s.claimOrder[i]]
		if f.State != "" && c.State != f.State {
			continue
		}
		if f.AuthorID != 0 && c.AuthorID != f.AuthorID {
			continue
		}
		res = append(res, c)
		if f.Limit > 0 && len(res) == f.Limit {
			break
		}
	}
	return res, nil
}

func (t *memTx) CreateStake(ctx context.Context, st *model.Stake) error {
	s := t.store
	active, err := t.ActiveStake(ctx, st.ClaimID, st.UserID)
	if err != nil {
		return err
	}
	if active != nil {
		return fmt.Errorf("%w: claim %s user %d", model.ErrDuplicateStake, st.ClaimID, st.UserID)
	}

	s.stakes[st.ID] = *st
	nc := len(s.claimStakes[st.ClaimID])
	nu := len(s.userStakes[st.UserID])
	s.claimStakes[st.ClaimID] = append(s.claimStakes[st.ClaimID], st.ID)
	s.userStakes[st.UserID] = append(s.userStakes[st.UserID], st.ID)

	t.onRollback(func() {
		delete(s.stakes, st.ID)
		s.claimStakes[st.ClaimID] = s.claimStakes[st.ClaimID][:nc]
		s.userStakes[st.UserID] = s.userStakes[st.UserID][:nu]
	})
	return nil
}

func (t *memTx) ActiveStake(_ context.Context, claimID string, userID int64) (*model.Stake, error) {
	for _, id := range t.store.claimStakes[claimID] {
		st := t.store.stakes[id]
		if st.UserID == userID && !st.Settled {
			return &st, nil
		}
	}
	return nil, nil
}

func (t *memTx) StakesForClaim(_ context.Context, claimID string) ([]model.Stake, error) {
	ids := t.store.claimStakes[claimID]
	res := make([]model.Stake, 0, len(ids))
	for _, id := range ids {
		res = append(res, t.store.stakes[id])
	}
	return res, nil
}

func (t *memTx) StakesForUser(_ context.Context, userID int64) ([]model.Stake, error) {
	ids := t.store.userStakes[userID]
	res := make([]model.Stake, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		res = append(res, t.store.stakes[ids[i]])
	}
	return res, nil
}

func (t *memTx) MarkStakeSettled(_ context.Context, stakeID string) error {
	s := t.store
	st, ok := s.stakes[stakeID]
	if !ok {
		return fmt.Errorf("%w: stake %s", model.ErrUnknownStake, stakeID)
	}
	if st.Settled {
		return fmt.Errorf("%w: stake %s", model.ErrAlreadySettled, stakeID)
	}

	prev := st
	st.Settled = true
	s.stakes[stakeID] = st
	t.onRollback(func() { s.stakes[stakeID] = prev })
	return nil
}
