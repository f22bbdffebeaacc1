// Package handler содержит HTTP-обработчики API сервиса truthstake.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/truthstake/internal/consensus"
	"github.com/mmeshcher/truthstake/internal/events"
	"github.com/mmeshcher/truthstake/internal/middleware"
	"github.com/mmeshcher/truthstake/internal/model"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)

	SubmitClaim(ctx context.Context, authorID int64, draft model.ClaimDraft) (*model.Claim, error)
	PlaceStake(ctx context.Context, claimID string, userID int64, side model.Side, amount int64) (*model.Stake, error)
	TryResolve(ctx context.Context, claimID string) (*consensus.Report, error)
	GetClaim(ctx context.Context, claimID string) (*model.ClaimView, error)
	ListClaims(ctx context.Context, f model.ClaimFilter) ([]model.ClaimView, error)

	UserClaims(ctx context.Context, userID int64) ([]model.ClaimView, error)
	UserStakes(ctx context.Context, userID int64) ([]model.Stake, error)
	LedgerHistory(ctx context.Context, userID int64) ([]model.LedgerEntry, error)
	Profile(ctx context.Context, userID int64) (*model.Profile, error)
	Leaderboard(ctx context.Context, order model.LeaderboardOrder, limit int) ([]model.Profile, error)
	Notifications(ctx context.Context, userID int64, limit int) []events.Event
}

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Handler реализует HTTP-обработчики API сервиса truthstake.
type Handler struct {
	service Service
	logger  *zap.Logger
	auth    *middleware.Auth
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.Auth) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
		auth:    auth,
	}
}

// statusFor сопоставляет доменную ошибку HTTP-статусу.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrDuplicateStake),
		errors.Is(err, model.ErrClaimNotOpen),
		errors.Is(err, model.ErrClaimFinalized),
		errors.Is(err, model.ErrAlreadyResolving),
		errors.Is(err, model.ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail отвечает статусом, соответствующим ошибке. Внутренние ошибки логируются.
func (h *Handler) fail(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(status), status)
		return
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

func queryLimit(r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxListLimit), true
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.fail(w, "register user", err)
		return
	}

	h.auth.SetCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.fail(w, "login user", err)
		return
	}

	h.auth.SetCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Logout закрывает сессию пользователя.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.ClearCookie(w)
	w.WriteHeader(http.StatusOK)
}

// GetProfile возвращает баланс, точность и значок текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	p, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		h.fail(w, "get profile", err, zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, newProfileResponse(p))
}

// GetUserClaims возвращает утверждения, опубликованные текущим пользователем.
func (h *Handler) GetUserClaims(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	list, err := h.service.UserClaims(r.Context(), userID)
	if err != nil {
		h.fail(w, "get user claims", err, zap.Int64("userID", userID))
		return
	}

	if len(list) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]claimResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newClaimResponse(&list[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetUserStakes возвращает ставки текущего пользователя.
func (h *Handler) GetUserStakes(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	list, err := h.service.UserStakes(r.Context(), userID)
	if err != nil {
		h.fail(w, "get user stakes", err, zap.Int64("userID", userID))
		return
	}

	if len(list) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]stakeResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newStakeResponse(&list[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetLedger возвращает журнал изменений баланса текущего пользователя.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	entries, err := h.service.LedgerHistory(r.Context(), userID)
	if err != nil {
		h.fail(w, "get ledger", err, zap.Int64("userID", userID))
		return
	}

	resp := make([]ledgerEntryResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, newLedgerEntryResponse(&entries[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetNotifications возвращает последние события текущего пользователя.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	limit, ok := queryLimit(r, defaultListLimit)
	if !ok {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}

	evs := h.service.Notifications(r.Context(), userID, limit)
	if len(evs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, evs)
}

// GetLeaderboard возвращает таблицу лидеров по очкам или точности.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, 10)
	if !ok {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}
	order := model.LeaderboardOrder(r.URL.Query().Get("by"))

	list, err := h.service.Leaderboard(r.Context(), order, limit)
	if err != nil {
		h.fail(w, "get leaderboard", err)
		return
	}

	resp := make([]profileResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newProfileResponse(&list[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}
