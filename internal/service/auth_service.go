package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tallybot/tallybot/internal/auth"
	"github.com/tallybot/tallybot/internal/models"
)

// AuthService manages the API accounts that front ends authenticate
// with. These are distinct from ledger users: an account drives the
// engine, a user participates in a context's ledger.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
	}
}

// Register creates a new API account and returns it with a signed token.
func (s *AuthService) Register(ctx context.Context, email, displayName, password string) (*models.Account, string, error) {
	if email == "" || displayName == "" {
		return nil, "", invalidArgument("email and display name are required")
	}

	account, err := s.authenticator.Register(ctx, email, displayName, password)
	if err != nil {
		slog.Warn("registration failed", "email", email, "error", err)
		switch {
		case errors.Is(err, auth.ErrEmailExists):
			return nil, "", newError(CodeFailedPrecondition, err)
		case errors.Is(err, auth.ErrWeakPassword):
			return nil, "", newError(CodeInvalidArgument, err)
		default:
			return nil, "", internalError(err)
		}
	}

	token, err := s.jwtManager.Generate(account)
	if err != nil {
		slog.Error("token generation failed", "account_id", account.ID, "error", err)
		return nil, "", internalError(err)
	}

	slog.Info("account registered", "account_id", account.ID, "email", account.Email)
	return account, token, nil
}

// Login authenticates an account and returns it with a signed token.
// Any credential failure maps to the same unauthenticated error so the
// response does not reveal whether the email exists.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Account, string, error) {
	if email == "" || password == "" {
		return nil, "", invalidArgument("email and password are required")
	}

	account, err := s.authenticator.Authenticate(ctx, email, password)
	if err != nil {
		slog.Warn("login failed", "email", email, "error", err)
		return nil, "", newError(CodeUnauthenticated, auth.ErrInvalidCredentials)
	}

	token, err := s.jwtManager.Generate(account)
	if err != nil {
		slog.Error("token generation failed", "account_id", account.ID, "error", err)
		return nil, "", internalError(err)
	}

	slog.Info("account logged in", "account_id", account.ID, "email", account.Email)
	return account, token, nil
}
