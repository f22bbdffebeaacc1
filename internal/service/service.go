// Package service реализует бизнес-логику сервиса truthstake: собирает
// журнал, утверждения, книгу ставок, консенсус, расчёт и репутацию в единый
// набор команд и запросов для HTTP-слоя.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/truthstake/internal/claims"
	"github.com/mmeshcher/truthstake/internal/consensus"
	"github.com/mmeshcher/truthstake/internal/events"
	"github.com/mmeshcher/truthstake/internal/ledger"
	"github.com/mmeshcher/truthstake/internal/metrics"
	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/repository"
	"github.com/mmeshcher/truthstake/internal/reputation"
	"github.com/mmeshcher/truthstake/internal/settlement"
	"github.com/mmeshcher/truthstake/internal/stakes"
	"github.com/mmeshcher/truthstake/internal/validation"
)

const closeTimeout = 5 * time.Second

// Options задаёт параметры сервиса.
type Options struct {
	StartingBalance int64
	Limits          stakes.Limits
	Consensus       consensus.Policy
	Reputation      reputation.Policy
	// EagerResolve включает проверку порога сразу после каждой ставки.
	EagerResolve bool
	ScanInterval time.Duration
	InboxSize    int
	// EventQueueSize ограничивает очередь каждого внешнего получателя событий.
	EventQueueSize int
	// Clock подменяет источник времени консенсуса; nil означает time.Now.
	Clock func() time.Time
}

// DefaultOptions возвращает параметры по умолчанию.
func DefaultOptions() Options {
	return Options{
		StartingBalance: 50,
		Limits:          stakes.Limits{Min: 1},
		Consensus:       consensus.DefaultPolicy(),
		Reputation:      reputation.DefaultPolicy(),
		EagerResolve:    true,
		ScanInterval:    time.Minute,
		InboxSize:       events.DefaultInboxSize,
		EventQueueSize:  events.DefaultQueueSize,
	}
}

// Service содержит бизнес-логику сервиса truthstake.
type Service struct {
	store     repository.Store
	ledger    *ledger.Ledger
	claims    *claims.Store
	stakes    *stakes.Book
	tracker   *reputation.Tracker
	consensus *consensus.Engine
	inbox     *events.Inbox
	dispatch  []*events.Async
	cancel    context.CancelFunc
	opts      Options
	logger    *zap.Logger
}

// NewService собирает сервис поверх хранилища. События расчётов попадают
// в ленту уведомлений и во все переданные получатели; каждый получатель
// обслуживается своей ограниченной очередью.
func NewService(store repository.Store, opts Options, logger *zap.Logger, sinks ...events.Sink) *Service {
	l := ledger.New(store)
	c := claims.New(store)
	tracker := reputation.NewTracker(store, opts.Reputation)
	inbox := events.NewInbox(opts.InboxSize)

	// Внешние получатели доставляются в фоне: команда не ждёт сети.
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	all := []events.Sink{{Name: "inbox", Publisher: inbox}}
	dispatchers := make([]*events.Async, 0, len(sinks))
	for _, sink := range sinks {
		a := events.NewAsync(sink.Name, sink.Publisher, opts.EventQueueSize, logger)
		a.Start(dispatchCtx)
		dispatchers = append(dispatchers, a)
		all = append(all, events.Sink{Name: sink.Name, Publisher: a})
	}
	publisher := events.NewMulti(logger, all...)

	settler := settlement.New(store, l, c, tracker, publisher, logger)
	engine := consensus.New(store, c, settler, opts.Consensus, logger)
	if opts.Clock != nil {
		engine.WithClock(opts.Clock)
	}

	return &Service{
		store:     store,
		ledger:    l,
		claims:    c,
		stakes:    stakes.New(store, l, c, opts.Limits),
		tracker:   tracker,
		consensus: engine,
		inbox:     inbox,
		dispatch:  dispatchers,
		cancel:    cancelDispatch,
		opts:      opts,
		logger:    logger,
	}
}

// Close дожидается доставки принятых событий (не дольше closeTimeout)
// и закрывает хранилище.
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var errs []error
	for _, d := range s.dispatch {
		if err := d.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}

// RegisterUser регистрирует нового пользователя и начисляет стартовый баланс.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	if !validation.IsValidLogin(login) || password == "" {
		return 0, fmt.Errorf("%w: login and password required", model.ErrInvalidInput)
	}

	hashed := hashPassword(login, password)

	var id int64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		id, err = tx.CreateUser(ctx, login, hashed)
		if err != nil {
			return err
		}
		if s.opts.StartingBalance > 0 {
			_, err = s.ledger.Grant(ctx, tx, id, s.opts.StartingBalance)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	var u *model.User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		u, err = tx.GetUserByLogin(ctx, login)
		return err
	})
	if errors.Is(err, model.ErrNotFound) {
		return 0, model.ErrInvalidCredentials
	}
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if subtle.ConstantTimeCompare(hashed, u.PasswordHash) != 1 {
		return 0, model.ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// SubmitClaim публикует утверждение от имени автора.
func (s *Service) SubmitClaim(ctx context.Context, authorID int64, draft model.ClaimDraft) (*model.Claim, error) {
	c, err := s.claims.Submit(ctx, authorID, draft)
	if err != nil {
		metrics.ObserveError("submit_claim", err)
		return nil, err
	}
	s.logger.Info("claim submitted", zap.String("claimID", c.ID), zap.Int64("authorID", authorID))
	return c, nil
}

// PlaceStake размещает ставку и, если включено, сразу проверяет порог разрешения.
func (s *Service) PlaceStake(ctx context.Context, claimID string, userID int64, side model.Side, amount int64) (*model.Stake, error) {
	st, err := s.stakes.PlaceStake(ctx, claimID, userID, side, amount)
	if err != nil {
		metrics.ObserveError("place_stake", err)
		return nil, err
	}
	metrics.StakesPlaced.WithLabelValues(string(st.Side)).Inc()
	metrics.PointsStaked.Add(float64(st.Amount))

	if s.opts.EagerResolve {
		if _, err := s.consensus.TryResolve(ctx, claimID); err != nil && !errors.Is(err, model.ErrAlreadyResolving) {
			// Ставка уже зафиксирована, разрешение повторит планировщик.
			s.logger.Warn("eager resolve failed", zap.String("claimID", claimID), zap.Error(err))
		}
	}
	return st, nil
}

// TryResolve проверяет условия разрешения утверждения.
func (s *Service) TryResolve(ctx context.Context, claimID string) (*consensus.Report, error) {
	return s.consensus.TryResolve(ctx, claimID)
}

// GetClaim возвращает утверждение с текущим распределением ставок.
func (s *Service) GetClaim(ctx context.Context, claimID string) (*model.ClaimView, error) {
	var view *model.ClaimView
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		view, err = s.view(ctx, tx, c)
		return err
	})
	return view, err
}

// ListClaims возвращает утверждения по фильтру, начиная с последних.
func (s *Service) ListClaims(ctx context.Context, f model.ClaimFilter) ([]model.ClaimView, error) {
	var res []model.ClaimView
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		list, err := tx.ListClaims(ctx, f)
		if err != nil {
			return err
		}
		res = make([]model.ClaimView, 0, len(list))
		for i := range list {
			v, err := s.view(ctx, tx, &list[i])
			if err != nil {
				return err
			}
			res = append(res, *v)
		}
		return nil
	})
	return res, err
}

// UserClaims возвращает утверждения, опубликованные пользователем.
func (s *Service) UserClaims(ctx context.Context, userID int64) ([]model.ClaimView, error) {
	return s.ListClaims(ctx, model.ClaimFilter{AuthorID: userID})
}

// UserStakes возвращает ставки пользователя, начиная с последних.
func (s *Service) UserStakes(ctx context.Context, userID int64) ([]model.Stake, error) {
	return s.stakes.ByUser(ctx, userID)
}

// LedgerHistory возвращает журнал изменений баланса пользователя.
func (s *Service) LedgerHistory(ctx context.Context, userID int64) ([]model.LedgerEntry, error) {
	return s.ledger.History(ctx, userID)
}

// Profile возвращает баланс, точность и значок пользователя.
func (s *Service) Profile(ctx context.Context, userID int64) (*model.Profile, error) {
	return s.tracker.Profile(ctx, userID)
}

// Leaderboard возвращает лучших пользователей по очкам или точности.
func (s *Service) Leaderboard(ctx context.Context, order model.LeaderboardOrder, limit int) ([]model.Profile, error) {
	switch order {
	case "":
		order = model.ByPoints
	case model.ByPoints, model.ByAccuracy:
	default:
		return nil, fmt.Errorf("%w: leaderboard order %q", model.ErrInvalidInput, order)
	}
	return s.tracker.Leaderboard(ctx, order, limit)
}

// Notifications возвращает последние события пользователя.
func (s *Service) Notifications(_ context.Context, userID int64, limit int) []events.Event {
	return s.inbox.For(userID, limit)
}

func (s *Service) view(ctx context.Context, tx repository.Tx, c *model.Claim) (*model.ClaimView, error) {
	all, err := tx.StakesForClaim(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return NewClaimView(c, stakes.Tally(all)), nil
}

// NewClaimView строит представление утверждения с процентами по голосам и суммам.
func NewClaimView(c *model.Claim, t stakes.Totals) *model.ClaimView {
	votes := t.True.Votes + t.False.Votes
	return &model.ClaimView{
		Claim:             *c,
		True:              t.True,
		False:             t.False,
		TotalStaked:       t.Sum(),
		TruePercent:       percent(t.True.Votes, votes),
		FalsePercent:      percent(t.False.Votes, votes),
		TrueStakePercent:  percent(t.True.Amount, t.Sum()),
		FalseStakePercent: percent(t.False.Amount, t.Sum()),
	}
}

func percent(part, total int64) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}
