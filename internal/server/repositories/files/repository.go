package files

import (
	"context"

	"github.com/dmitrijs2005/clouddrive/internal/server/models"
)

// Repository persists file metadata records.
type Repository interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	ListByParent(ctx context.Context, ownerID, parentID string) ([]*models.File, error)
	ListRecent(ctx context.Context, ownerID string, limit int) ([]*models.File, error)
	ListByParents(ctx context.Context, ownerID string, parentIDs []string) ([]*models.File, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error)
	SetThumbnail(ctx context.Context, id, key string, size int64, iv []byte) error
	SetLink(ctx context.Context, id string, linkType models.LinkType, link string) error
	Delete(ctx context.Context, id string) error
	DeleteByOwner(ctx context.Context, ownerID string) error
}
