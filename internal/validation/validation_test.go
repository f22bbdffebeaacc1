package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/mmeshcher/truthstake/internal/model"
)

func TestNormalizeClaimDraft(t *testing.T) {
	tests := []struct {
		name    string
		draft   model.ClaimDraft
		wantErr bool
	}{
		{
			name:  "valid with source name",
			draft: model.ClaimDraft{Title: " Coffee extends lifespan ", Body: "Study says so", Source: "Health Research Journal"},
		},
		{
			name:  "valid with urls",
			draft: model.ClaimDraft{Title: "t", Body: "b", Source: "https://example.org/a", ImageURL: "https://placehold.co/600x400"},
		},
		{
			name:    "empty title",
			draft:   model.ClaimDraft{Title: "   ", Body: "b"},
			wantErr: true,
		},
		{
			name:    "empty body",
			draft:   model.ClaimDraft{Title: "t", Body: ""},
			wantErr: true,
		},
		{
			name:    "title too long",
			draft:   model.ClaimDraft{Title: strings.Repeat("x", MaxTitleLength+1), Body: "b"},
			wantErr: true,
		},
		{
			name:    "image not http",
			draft:   model.ClaimDraft{Title: "t", Body: "b", ImageURL: "ftp://example.org/x.png"},
			wantErr: true,
		},
		{
			name:    "source with bad scheme",
			draft:   model.ClaimDraft{Title: "t", Body: "b", Source: "javascript://alert"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeClaimDraft(tt.draft)
			if tt.wantErr {
				if !errors.Is(err, model.ErrInvalidInput) {
					t.Fatalf("err = %v, want ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Title != strings.TrimSpace(tt.draft.Title) {
				t.Fatalf("title = %q, want trimmed", got.Title)
			}
		})
	}
}

func TestCheckStakeAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		min, max int64
		valid    bool
	}{
		{name: "positive unlimited", amount: 1000, min: 1, max: 0, valid: true},
		{name: "zero", amount: 0, min: 0, max: 0, valid: false},
		{name: "negative", amount: -5, min: 1, max: 0, valid: false},
		{name: "below min", amount: 4, min: 5, max: 100, valid: false},
		{name: "above max", amount: 101, min: 5, max: 100, valid: false},
		{name: "at bounds", amount: 100, min: 5, max: 100, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckStakeAmount(tt.amount, tt.min, tt.max)
			if (err == nil) != tt.valid {
				t.Fatalf("CheckStakeAmount(%d) err = %v, valid = %v", tt.amount, err, tt.valid)
			}
		})
	}
}

func TestIsValidLogin(t *testing.T) {
	if !IsValidLogin("truthseeker") {
		t.Fatalf("expected valid login")
	}
	if IsValidLogin("") || IsValidLogin("with space") || IsValidLogin(strings.Repeat("a", MaxLoginLength+1)) {
		t.Fatalf("expected invalid login")
	}
}
