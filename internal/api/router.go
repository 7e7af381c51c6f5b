package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/wa-commerce/internal/auth"
)

// Deps are the collaborators behind the admin API.
type Deps struct {
	DB       Pinger
	Accounts AccountGetter
	Queue    QueueAdmin
	// DeadLetters is optional; the endpoint is not registered when nil.
	DeadLetters DeadLetterLister
	AI          ProviderSwitch
	Deposits    DepositReviewer
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(deps Deps, jwtService *auth.JWTService, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(deps.DB))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.JWTAuth(jwtService))
		r.Use(auth.RequireRole(auth.RoleAdmin))

		r.Get("/accounts/{id}/queue", QueueStatusHandler(deps.Accounts, deps.Queue))
		r.Delete("/accounts/{id}/queue", ClearQueueHandler(deps.Accounts, deps.Queue))
		if deps.DeadLetters != nil {
			r.Get("/accounts/{id}/dead-letters", DeadLettersHandler(deps.Accounts, deps.DeadLetters))
		}

		r.Get("/ai/provider", GetProviderHandler(deps.AI))
		r.Put("/ai/provider", SetProviderHandler(deps.AI))

		r.Post("/transactions/{id}/approve", ReviewTransactionHandler(deps.Deposits, true))
		r.Post("/transactions/{id}/reject", ReviewTransactionHandler(deps.Deposits, false))
	})

	return r
}
