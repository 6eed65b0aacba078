package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/tallybot/tallybot/internal/api"
	"github.com/tallybot/tallybot/internal/auth"
	"github.com/tallybot/tallybot/internal/config"
	"github.com/tallybot/tallybot/internal/metrics"
	"github.com/tallybot/tallybot/internal/service"
	"github.com/tallybot/tallybot/internal/session"
	"github.com/tallybot/tallybot/internal/storage"
	"github.com/tallybot/tallybot/internal/storage/postgres"
	"github.com/tallybot/tallybot/internal/storage/sqlite"
	"github.com/tallybot/tallybot/pkg/logging"
)

const tokenDuration = 24 * time.Hour

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, err := openStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, tokenDuration)
	authenticator := auth.NewPasswordAuthenticator(store)
	sessions := session.NewManager(session.DefaultTTL)

	ledgerSvc := service.NewLedgerService(store, sessions, m, cfg.Currencies)
	authSvc := service.NewAuthService(authenticator, jwtManager)

	handler := api.New(ledgerSvc, authSvc, jwtManager, m, registry).Handler()

	// h2c so HTTP/2 clients work without TLS termination in front.
	h2cHandler := h2c.NewHandler(handler, &http2.Server{})

	slog.Info("Server starting", "address", cfg.Bind, "currencies", cfg.Currencies)
	if err := http.ListenAndServe(cfg.Bind, h2cHandler); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// openStore selects the storage backend by URL shape: postgres URLs go
// to the pgx pool, anything else is treated as a SQLite file path.
func openStore(databaseURL string) (storage.Store, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		slog.Info("Using PostgreSQL storage")
		return postgres.New(context.Background(), databaseURL)
	}
	slog.Info("Using SQLite storage", "path", databaseURL)
	return sqlite.New(databaseURL)
}
