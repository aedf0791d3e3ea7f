package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/server/models"
)

// Repository persists access tokens. Take and ReplaceLink must be atomic.
type Repository interface {
	Save(ctx context.Context, t *models.AccessToken) error
	ReplaceLink(ctx context.Context, t *models.AccessToken) error
	Get(ctx context.Context, token string) (*models.AccessToken, error)
	Take(ctx context.Context, token string, kind models.TokenKind) (*models.AccessToken, error)
	Delete(ctx context.Context, token string) error
	DeleteLinks(ctx context.Context, subject string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
