package handlers

import (
	"context"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/models"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/tryon"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// SessionManager issues, refreshes, verifies and revokes authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Verify(ctx context.Context, accessToken string) (string, error)
	Revoke(ctx context.Context, refreshToken string)
}

// GenerationPipeline runs one credit-gated generation request end to end.
type GenerationPipeline interface {
	Generate(ctx context.Context, bearerToken string, req tryon.Request) (tryon.Outcome, error)
}

// CreditReader exposes the read side of the credit ledger.
type CreditReader interface {
	Balance(ctx context.Context, userID string) (int, error)
}

// TryOnHistory lists a user's past generation records.
type TryOnHistory interface {
	ListForUser(ctx context.Context, userID string) ([]models.TryOn, error)
}
