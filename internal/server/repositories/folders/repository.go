package folders

import (
	"context"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/server/models"
)

// Repository persists folder records and answers tree queries.
type Repository interface {
	Create(ctx context.Context, folder *models.Folder) error
	GetByID(ctx context.Context, id string) (*models.Folder, error)
	ListByParent(ctx context.Context, ownerID, parentID string) ([]*models.Folder, error)
	SetLock(ctx context.Context, id string, until *time.Time) (*models.Folder, error)
	ListLocked(ctx context.Context, ownerID string, now time.Time) ([]*models.Folder, error)
	Descendants(ctx context.Context, ownerID, folderID string) ([]string, error)
	Delete(ctx context.Context, id string) error
	DeleteByOwner(ctx context.Context, ownerID string) error
}
