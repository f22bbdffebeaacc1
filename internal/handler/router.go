package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/truthstake/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса truthstake.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)

			r.Get("/profile", h.GetProfile)
			r.Get("/claims", h.GetUserClaims)
			r.Get("/stakes", h.GetUserStakes)
			r.Get("/ledger", h.GetLedger)
			r.Get("/notifications", h.GetNotifications)
		})
	})

	r.Route("/api/claims", func(r chi.Router) {
		r.Get("/", h.ListClaims)
		r.Get("/{id}", h.GetClaim)
		r.Post("/{id}/resolve", h.Resolve)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)

			r.Post("/", h.SubmitClaim)
			r.Post("/{id}/stakes", h.PlaceStake)
		})
	})

	r.Get("/api/leaderboard", h.GetLeaderboard)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
