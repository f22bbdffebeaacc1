package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/truthstake/internal/model"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{model.ErrInvalidAmount, "invalid_input"},
		{fmt.Errorf("wrap: %w", model.ErrNotFound), "not_found"},
		{model.ErrInsufficientBalance, "insufficient_balance"},
		{model.ErrDuplicateStake, "duplicate_stake"},
		{model.ErrClaimNotOpen, "claim_not_open"},
		{model.ErrClaimFinalized, "claim_finalized"},
		{model.ErrAlreadyResolving, "already_resolving"},
		{model.ErrInvalidTransition, "invalid_transition"},
		{model.ErrAlreadySettled, "inconsistency"},
		{errors.New("connection reset"), "internal"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "error %v", tt.err)
	}
}

func TestObserveError(t *testing.T) {
	errs := EngineErrors.WithLabelValues("test_observe", "inconsistency")
	inc := Inconsistencies.WithLabelValues("test_observe")
	beforeErrs := testutil.ToFloat64(errs)
	beforeInc := testutil.ToFloat64(inc)

	ObserveError("test_observe", nil)
	ObserveError("test_observe", fmt.Errorf("settle: %w", model.ErrUnknownStake))

	assert.InDelta(t, beforeErrs+1, testutil.ToFloat64(errs), 1e-9)
	assert.InDelta(t, beforeInc+1, testutil.ToFloat64(inc), 1e-9)

	notFound := EngineErrors.WithLabelValues("test_observe", "not_found")
	before := testutil.ToFloat64(notFound)
	ObserveError("test_observe", model.ErrNotFound)
	assert.InDelta(t, before+1, testutil.ToFloat64(notFound), 1e-9)
	assert.InDelta(t, beforeInc+1, testutil.ToFloat64(inc), 1e-9)
}
