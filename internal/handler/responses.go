package handler

import (
	"time"

	"github.com/mmeshcher/truthstake/internal/model"
)

type sideResponse struct {
	Votes   int64 `json:"votes"`
	Amount  int64 `json:"amount"`
	Percent int   `json:"percent"`
	// StakePercent: доля стороны в сумме ставок.
	StakePercent int `json:"stakePercent"`
}

type claimResponse struct {
	ID          string       `json:"id"`
	AuthorID    int64        `json:"authorId"`
	Title       string       `json:"title"`
	Body        string       `json:"body"`
	Source      string       `json:"source,omitempty"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	State       string       `json:"state"`
	Resolution  string       `json:"resolution"`
	CreatedAt   string       `json:"createdAt"`
	ResolvedAt  string       `json:"resolvedAt,omitempty"`
	Extended    string       `json:"extendedUntil,omitempty"`
	True        sideResponse `json:"true"`
	False       sideResponse `json:"false"`
	TotalStaked int64        `json:"totalStaked"`
}

func newClaimResponse(v *model.ClaimView) claimResponse {
	resp := claimResponse{
		ID:         v.ID,
		AuthorID:   v.AuthorID,
		Title:      v.Title,
		Body:       v.Body,
		Source:     v.Source,
		ImageURL:   v.ImageURL,
		State:      string(v.State),
		Resolution: string(v.Resolution),
		CreatedAt:  v.CreatedAt.Format(time.RFC3339),
		True: sideResponse{
			Votes:        v.True.Votes,
			Amount:       v.True.Amount,
			Percent:      v.TruePercent,
			StakePercent: v.TrueStakePercent,
		},
		False: sideResponse{
			Votes:        v.False.Votes,
			Amount:       v.False.Amount,
			Percent:      v.FalsePercent,
			StakePercent: v.FalseStakePercent,
		},
		TotalStaked: v.TotalStaked,
	}
	if v.ResolvedAt != nil {
		resp.ResolvedAt = v.ResolvedAt.Format(time.RFC3339)
	}
	if v.ExtendedUntil != nil {
		resp.Extended = v.ExtendedUntil.Format(time.RFC3339)
	}
	return resp
}

type stakeResponse struct {
	ID       string `json:"id"`
	ClaimID  string `json:"claimId"`
	Side     string `json:"side"`
	Amount   int64  `json:"amount"`
	PlacedAt string `json:"placedAt"`
	Settled  bool   `json:"settled"`
}

func newStakeResponse(s *model.Stake) stakeResponse {
	return stakeResponse{
		ID:       s.ID,
		ClaimID:  s.ClaimID,
		Side:     string(s.Side),
		Amount:   s.Amount,
		PlacedAt: s.PlacedAt.Format(time.RFC3339),
		Settled:  s.Settled,
	}
}

type ledgerEntryResponse struct {
	ID        string `json:"id"`
	Delta     int64  `json:"delta"`
	Reason    string `json:"reason"`
	StakeID   string `json:"stakeId,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func newLedgerEntryResponse(e *model.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:        e.ID,
		Delta:     e.Delta,
		Reason:    string(e.Reason),
		StakeID:   e.RelatedStakeID,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

type profileResponse struct {
	UserID          int64   `json:"userId"`
	Login           string  `json:"login"`
	PointBalance    int64   `json:"pointBalance"`
	ReputationScore float64 `json:"reputationScore"`
	BadgeLevel      int     `json:"badgeLevel"`
	BadgeLabel      string  `json:"badgeLabel"`
	CorrectCount    int64   `json:"correctCount"`
	TotalCount      int64   `json:"totalCount"`
}

func newProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		UserID:          p.UserID,
		Login:           p.Login,
		PointBalance:    p.PointBalance,
		ReputationScore: p.ReputationScore,
		BadgeLevel:      p.BadgeLevel,
		BadgeLabel:      p.BadgeLabel,
		CorrectCount:    p.CorrectCount,
		TotalCount:      p.TotalCount,
	}
}
