package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/dbx"
	"github.com/dmitrijs2005/clouddrive/internal/server/folderlock"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

type FolderService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	locks       *folderlock.Index
}

func NewFolderService(db *sql.DB, rm repomanager.RepositoryManager, locks *folderlock.Index) *FolderService {
	return &FolderService{db: db, repomanager: rm, locks: locks}
}

// CreateFolder creates a folder of user under parentID ("" is the root).
func (s *FolderService) CreateFolder(ctx context.Context, user models.Principal, name, parentID string) (*models.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("missing folder name: %w", common.ErrorBadInput)
	}

	folder := &models.Folder{
		ID:       uuid.NewString(),
		OwnerID:  user.ID,
		Name:     name,
		ParentID: parentID,
	}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Folders(tx)
		if parentID != "" {
			parent, err := repo.GetByID(ctx, parentID)
			if err != nil {
				return err
			}
			if parent.OwnerID != user.ID {
				return common.ErrorForbidden
			}
		}
		return repo.Create(ctx, folder)
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// LockFolder locks a folder of user until the given time; nil unlocks it.
func (s *FolderService) LockFolder(ctx context.Context, user models.Principal, folderID string, until *time.Time) (*models.Folder, error) {
	return s.locks.LockFolder(ctx, user.ID, folderID, until)
}

func (s *FolderService) GetLockedFolders(ctx context.Context, user models.Principal) ([]*models.Folder, error) {
	return s.locks.LockedFolders(ctx, user.ID)
}

func (s *FolderService) GetFolderInfo(ctx context.Context, user models.Principal, folderID string) (*models.Folder, error) {
	f, err := s.repomanager.Folders(s.db).GetByID(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if f.OwnerID != user.ID {
		return nil, common.ErrorForbidden
	}
	return f, nil
}

// ListFolders returns the subfolders of parentID, subject to the same lock
// rule as file listing.
func (s *FolderService) ListFolders(ctx context.Context, user models.Principal, parentID string) ([]*models.Folder, error) {
	if err := checkUnlocked(ctx, s.locks, parentID); err != nil {
		return nil, err
	}
	return s.repomanager.Folders(s.db).ListByParent(ctx, user.ID, parentID)
}
