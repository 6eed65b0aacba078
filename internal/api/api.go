// Package api exposes the engine over a JSON HTTP API. Routes are
// scoped by chat context; everything under /api/contexts requires a
// bearer token issued by the auth endpoints.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/tallybot/tallybot/internal/auth"
	"github.com/tallybot/tallybot/internal/metrics"
	"github.com/tallybot/tallybot/internal/service"
)

type API struct {
	router     *mux.Router
	ledger     *service.LedgerService
	authSvc    *service.AuthService
	jwtManager *auth.JWTManager
	metrics    *metrics.Metrics
}

func New(ledger *service.LedgerService, authSvc *service.AuthService, jwtManager *auth.JWTManager, m *metrics.Metrics, registry *prometheus.Registry) *API {
	api := &API{
		router:     mux.NewRouter(),
		ledger:     ledger,
		authSvc:    authSvc,
		jwtManager: jwtManager,
		metrics:    m,
	}
	api.setupRoutes(registry)
	return api
}

func (a *API) setupRoutes(registry *prometheus.Registry) {
	a.router.Use(a.observeMiddleware)

	// Public endpoints
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")
	a.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
	a.router.HandleFunc("/api/auth/register", a.handleRegister).Methods("POST")
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("POST")

	// Context-scoped endpoints
	protected := a.router.PathPrefix("/api/contexts/{chat_id}/{thread_id}").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/users", a.handleRegisterUser).Methods("POST")
	protected.HandleFunc("/users", a.handleListUsers).Methods("GET")
	protected.HandleFunc("/payments", a.handleRecordPayment).Methods("POST")
	protected.HandleFunc("/payments/latest", a.handleUndo).Methods("DELETE")
	protected.HandleFunc("/balances", a.handleBalances).Methods("GET")
	protected.HandleFunc("/history", a.handleHistory).Methods("GET")

	protected.HandleFunc("/settlements", a.handleBeginSettlement).Methods("POST")
	protected.HandleFunc("/settlements/next", a.handleNextRatePair).Methods("GET")
	protected.HandleFunc("/settlements/rates", a.handleSupplyRate).Methods("POST")
	protected.HandleFunc("/settlements/complete", a.handleCompleteSettlement).Methods("POST")
	protected.HandleFunc("/settlements", a.handleCancelSettlement).Methods("DELETE")

	protected.HandleFunc("/allocations", a.handleBeginAllocation).Methods("POST")
	protected.HandleFunc("/allocations/entries", a.handleAllocate).Methods("POST")
	protected.HandleFunc("/allocations/finalize", a.handleFinalizeAllocation).Methods("POST")
	protected.HandleFunc("/allocations", a.handleCancelAllocation).Methods("DELETE")
}

// Handler returns the fully wrapped HTTP handler.
func (a *API) Handler() http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
