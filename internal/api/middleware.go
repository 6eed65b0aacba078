package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/tallybot/tallybot/internal/auth"
	"github.com/tallybot/tallybot/internal/service"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// accountIDKey is the context key for the authenticated account ID.
	accountIDKey contextKey = "account_id"
	// emailKey is the context key for the authenticated account's email.
	emailKey contextKey = "email"
)

// AccountID extracts the authenticated account ID from the context.
// Returns empty string if not found.
func AccountID(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey).(string)
	return id
}

// authMiddleware validates the bearer token and adds the account ID and
// email to the request context.
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, service.Unauthenticated(auth.ErrMissingToken))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, service.Unauthenticated(auth.ErrInvalidToken))
			return
		}

		claims, err := a.jwtManager.Validate(parts[1])
		if err != nil {
			writeError(w, service.Unauthenticated(err))
			return
		}

		ctx := context.WithValue(r.Context(), accountIDKey, claims.AccountID)
		ctx = context.WithValue(ctx, emailKey, claims.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// observeMiddleware logs every request and records its latency.
func (a *API) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}

		a.metrics.RequestDuration.
			WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).
			Observe(elapsed.Seconds())
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}
