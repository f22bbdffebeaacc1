// Package events доставляет события расчётов внешним получателям:
// брокеру Kafka, webhook-у уведомлений и ленте уведомлений пользователя.
package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/truthstake/internal/metrics"
	"github.com/mmeshcher/truthstake/internal/model"
)

// Type описывает вид события.
type Type string

const (
	TypeClaimResolved Type = "claim.resolved"
	TypeStakeSettled  Type = "stake.settled"
)

// Event публикуется после фиксации расчёта.
// UserID для ClaimResolved указывает автора утверждения, для StakeSettled владельца ставки.
type Event struct {
	Type       Type              `json:"type"`
	ClaimID    string            `json:"claimId"`
	Resolution model.Resolution  `json:"resolution,omitempty"`
	UserID     int64             `json:"userId"`
	StakeID    string            `json:"stakeId,omitempty"`
	Delta      int64             `json:"delta"`
	Reason     model.EntryReason `json:"reason,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// ClaimResolved создаёт событие о разрешении утверждения.
func ClaimResolved(c *model.Claim) Event {
	at := time.Now()
	if c.ResolvedAt != nil {
		at = *c.ResolvedAt
	}
	return Event{
		Type:       TypeClaimResolved,
		ClaimID:    c.ID,
		Resolution: c.Resolution,
		UserID:     c.AuthorID,
		OccurredAt: at,
	}
}

// StakeSettled создаёт событие о расчёте ставки по записи журнала.
func StakeSettled(claimID string, e *model.LedgerEntry) Event {
	return Event{
		Type:       TypeStakeSettled,
		ClaimID:    claimID,
		UserID:     e.UserID,
		StakeID:    e.RelatedStakeID,
		Delta:      e.Delta,
		Reason:     e.Reason,
		OccurredAt: e.CreatedAt,
	}
}

// Publisher принимает события для доставки.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Sink описывает именованного получателя событий для Multi.
type Sink struct {
	Name      string
	Publisher Publisher
}

// Multi рассылает события всем получателям. Ошибка одного получателя
// не мешает доставке остальным.
type Multi struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewMulti создаёт рассыльщик событий.
func NewMulti(logger *zap.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

// Publish передаёт события каждому получателю и объединяет ошибки.
func (m *Multi) Publish(ctx context.Context, evs ...Event) error {
	if len(evs) == 0 {
		return nil
	}

	var errs []error
	for _, s := range m.sinks {
		err := s.Publisher.Publish(ctx, evs...)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			errs = append(errs, err)
			m.logger.Warn("publish events failed",
				zap.String("sink", s.Name), zap.Int("count", len(evs)), zap.Error(err))
		}
		for _, e := range evs {
			metrics.EventsPublished.WithLabelValues(string(e.Type), s.Name, outcome).Inc()
		}
	}
	return errors.Join(errs...)
}

// LogPublisher пишет события в журнал приложения.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher создаёт получателя, пишущего события в лог.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish логирует каждое событие.
func (p *LogPublisher) Publish(_ context.Context, evs ...Event) error {
	for _, e := range evs {
		p.logger.Info("event",
			zap.String("type", string(e.Type)),
			zap.String("claimID", e.ClaimID),
			zap.Int64("userID", e.UserID),
			zap.String("stakeID", e.StakeID),
			zap.Int64("delta", e.Delta),
			zap.String("resolution", string(e.Resolution)),
		)
	}
	return nil
}
