package repositories

import (
	"context"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/models"
)

// TryOnRepository persists billed generation attempts and their outcomes.
type TryOnRepository interface {
	Create(ctx context.Context, record models.TryOn) error
	Complete(ctx context.Context, id, imageURL, videoURL string, elapsedMs int64) error
	MarkFailed(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]models.TryOn, error)
}
