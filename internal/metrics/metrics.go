// Package metrics содержит метрики Prometheus сервиса truthstake.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mmeshcher/truthstake/internal/model"
)

const namespace = "truthstake"

// StakesPlaced считает размещённые ставки по сторонам.
var StakesPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "stakes",
	Name:      "placed_total",
	Help:      "Total stakes placed, by side.",
}, []string{"side"})

// PointsStaked считает поставленные очки.
var PointsStaked = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "stakes",
	Name:      "points_total",
	Help:      "Total points reserved by stakes.",
})

// ClaimsResolved считает разрешённые утверждения по исходу.
var ClaimsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "consensus",
	Name:      "claims_resolved_total",
	Help:      "Total claims resolved, by resolution.",
}, []string{"resolution"})

// TieExtensions считает продления окна из-за ничьей.
var TieExtensions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "consensus",
	Name:      "tie_extensions_total",
	Help:      "Total resolution windows extended because of a tie.",
})

// SettlementEntries считает записи расчёта по причине.
var SettlementEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "settlement",
	Name:      "entries_total",
	Help:      "Total settlement ledger entries, by reason.",
}, []string{"reason"})

// SettlementPoints считает выплаченные очки.
var SettlementPoints = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "settlement",
	Name:      "points_paid_total",
	Help:      "Total points credited back to stakers by settlements.",
})

// DustBurned считает очки, потерянные при округлении выплат вниз.
var DustBurned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "settlement",
	Name:      "dust_points_total",
	Help:      "Total points lost to rounding down proportional rewards.",
})

// Inconsistencies считает ошибки, означающие нарушение внутренней согласованности.
var Inconsistencies = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "engine",
	Name:      "inconsistencies_total",
	Help:      "Internal inconsistency errors (unknown stake, already settled), by operation.",
}, []string{"operation"})

// EngineErrors считает ошибки команд по видам.
var EngineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "engine",
	Name:      "errors_total",
	Help:      "Command errors, by operation and kind.",
}, []string{"operation", "kind"})

// EventsPublished считает отправку событий по типу, получателю и результату.
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Events handed to sinks, by type, sink and outcome.",
}, []string{"type", "sink", "outcome"})

// EventDeliveries считает фоновую доставку событий получателям: delivered, failed, dropped.
var EventDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "deliveries_total",
	Help:      "Events delivered by background dispatchers, by sink and outcome.",
}, []string{"sink", "outcome"})

// ErrorKind возвращает метку вида ошибки для EngineErrors.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, model.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, model.ErrDuplicateStake):
		return "duplicate_stake"
	case errors.Is(err, model.ErrClaimNotOpen):
		return "claim_not_open"
	case errors.Is(err, model.ErrClaimFinalized):
		return "claim_finalized"
	case errors.Is(err, model.ErrAlreadyResolving):
		return "already_resolving"
	case errors.Is(err, model.ErrInvalidTransition):
		return "invalid_transition"
	case model.IsInconsistency(err):
		return "inconsistency"
	default:
		return "internal"
	}
}

// ObserveError учитывает ошибку операции. Нарушения согласованности
// дополнительно попадают в Inconsistencies.
func ObserveError(operation string, err error) {
	if err == nil {
		return
	}
	EngineErrors.WithLabelValues(operation, ErrorKind(err)).Inc()
	if model.IsInconsistency(err) {
		Inconsistencies.WithLabelValues(operation).Inc()
	}
}
