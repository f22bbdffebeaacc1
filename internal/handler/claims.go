package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/truthstake/internal/middleware"
	"github.com/mmeshcher/truthstake/internal/model"
)

type claimRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Source   string `json:"source,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// SubmitClaim публикует утверждение от имени текущего пользователя.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.SubmitClaim(r.Context(), userID, model.ClaimDraft{
		Title:    req.Title,
		Body:     req.Body,
		Source:   req.Source,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		h.fail(w, "submit claim", err, zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"id": c.ID})
}

// ListClaims возвращает ленту утверждений с фильтром по состоянию.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, defaultListLimit)
	if !ok {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}

	f := model.ClaimFilter{Limit: limit}
	if raw := r.URL.Query().Get("state"); raw != "" {
		state := model.ClaimState(strings.ToUpper(raw))
		switch state {
		case model.ClaimOpen, model.ClaimResolving, model.ClaimResolved:
			f.State = state
		default:
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}
	}

	list, err := h.service.ListClaims(r.Context(), f)
	if err != nil {
		h.fail(w, "list claims", err)
		return
	}

	resp := make([]claimResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newClaimResponse(&list[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetClaim возвращает утверждение с текущим распределением голосов и ставок.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	view, err := h.service.GetClaim(r.Context(), claimID)
	if err != nil {
		h.fail(w, "get claim", err, zap.String("claimID", claimID))
		return
	}

	h.writeJSON(w, http.StatusOK, newClaimResponse(view))
}

type stakeRequest struct {
	Side   string `json:"side"`
	Amount int64  `json:"amount"`
}

// PlaceStake размещает ставку текущего пользователя на утверждение.
func (h *Handler) PlaceStake(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	claimID := chi.URLParam(r, "id")

	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	st, err := h.service.PlaceStake(r.Context(), claimID, userID, model.Side(strings.ToUpper(req.Side)), req.Amount)
	if err != nil {
		h.fail(w, "place stake", err, zap.String("claimID", claimID), zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, newStakeResponse(st))
}

type resolveResponse struct {
	ClaimID    string `json:"claimId"`
	Outcome    string `json:"outcome"`
	Resolution string `json:"resolution,omitempty"`
}

// Resolve проверяет условия разрешения утверждения.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	report, err := h.service.TryResolve(r.Context(), claimID)
	if err != nil {
		h.fail(w, "resolve claim", err, zap.String("claimID", claimID))
		return
	}

	h.writeJSON(w, http.StatusOK, resolveResponse{
		ClaimID:    report.ClaimID,
		Outcome:    string(report.Outcome),
		Resolution: string(report.Resolution),
	})
}
