package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/stakes"
)

func totals(trueAmount, falseAmount int64) stakes.Totals {
	var t stakes.Totals
	if trueAmount > 0 {
		t.True = model.SideTotals{Votes: 1, Amount: trueAmount}
	}
	if falseAmount > 0 {
		t.False = model.SideTotals{Votes: 1, Amount: falseAmount}
	}
	return t
}

func TestPolicyDecide(t *testing.T) {
	p := DefaultPolicy()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	extended := start.Add(100 * time.Hour)

	tests := []struct {
		name   string
		claim  model.Claim
		totals stakes.Totals
		now    time.Time
		want   Decision
	}{
		{
			name:   "no stakes",
			claim:  model.Claim{},
			totals: totals(0, 0),
			now:    start.Add(1000 * time.Hour),
			want:   Decision{Outcome: OutcomeNotReady},
		},
		{
			name:   "below threshold inside window",
			claim:  model.Claim{FirstStakeAt: &start},
			totals: totals(100, 50),
			now:    start.Add(time.Hour),
			want:   Decision{Outcome: OutcomeNotReady},
		},
		{
			name:   "threshold reached",
			claim:  model.Claim{FirstStakeAt: &start},
			totals: totals(300, 200),
			now:    start.Add(time.Hour),
			want:   Decision{Outcome: OutcomeResolved, Resolution: model.ResolutionTrue},
		},
		{
			name:   "window elapsed",
			claim:  model.Claim{FirstStakeAt: &start},
			totals: totals(10, 40),
			now:    start.Add(72 * time.Hour),
			want:   Decision{Outcome: OutcomeResolved, Resolution: model.ResolutionFalse},
		},
		{
			name:   "first tie extends",
			claim:  model.Claim{FirstStakeAt: &start},
			totals: totals(250, 250),
			now:    start.Add(time.Hour),
			want:   Decision{Outcome: OutcomeExtended, ExtendUntil: start.Add(73 * time.Hour)},
		},
		{
			name:   "tie inside extension waits",
			claim:  model.Claim{FirstStakeAt: &start, TieCount: 1, ExtendedUntil: &extended},
			totals: totals(300, 300),
			now:    start.Add(90 * time.Hour),
			want:   Decision{Outcome: OutcomeNotReady},
		},
		{
			name:   "second tie forces tie break",
			claim:  model.Claim{FirstStakeAt: &start, TieCount: 1, ExtendedUntil: &extended},
			totals: totals(30, 30),
			now:    extended,
			want:   Decision{Outcome: OutcomeResolved, Resolution: model.ResolutionFalse},
		},
		{
			name:   "tie broken during extension resolves",
			claim:  model.Claim{FirstStakeAt: &start, TieCount: 1, ExtendedUntil: &extended},
			totals: totals(300, 250),
			now:    start.Add(80 * time.Hour),
			want:   Decision{Outcome: OutcomeResolved, Resolution: model.ResolutionTrue},
		},
		{
			name:   "extension replaces original window",
			claim:  model.Claim{FirstStakeAt: &start, TieCount: 1, ExtendedUntil: &extended},
			totals: totals(20, 10),
			now:    start.Add(80 * time.Hour),
			want:   Decision{Outcome: OutcomeNotReady},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Decide(&tt.claim, tt.totals, tt.now))
		})
	}
}

func TestPolicyTieBreakConfigurable(t *testing.T) {
	p := DefaultPolicy()
	p.TieBreak = model.ResolutionTrue

	assert.Equal(t, model.ResolutionTrue, p.Winner(totals(5, 5)))
	assert.Equal(t, model.ResolutionFalse, p.Winner(totals(5, 6)))
}

func TestPolicyDeadline(t *testing.T) {
	p := DefaultPolicy()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, ok := p.Deadline(&model.Claim{})
	assert.False(t, ok)

	d, ok := p.Deadline(&model.Claim{FirstStakeAt: &start})
	assert.True(t, ok)
	assert.Equal(t, start.Add(72*time.Hour), d)
}
