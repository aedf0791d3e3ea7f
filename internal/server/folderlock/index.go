// Package folderlock answers whether a folder, or any of its ancestors, is
// time-locked. Locks are never cascaded on write; descendants are checked by
// walking the parent chain at read time.
package folderlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
)

// maxDepth bounds the ancestor walk so a corrupt parent cycle cannot spin.
const maxDepth = 256

// FolderStore is the subset of the folder repository the index reads and writes.
type FolderStore interface {
	GetByID(ctx context.Context, id string) (*models.Folder, error)
	SetLock(ctx context.Context, id string, until *time.Time) (*models.Folder, error)
	ListLocked(ctx context.Context, ownerID string, now time.Time) ([]*models.Folder, error)
}

type Index struct {
	folders FolderStore
	now     func() time.Time
}

func New(folders FolderStore) *Index {
	return &Index{folders: folders, now: time.Now}
}

// SetClock replaces the time source.
func (x *Index) SetClock(now func() time.Time) { x.now = now }

// IsLocked reports whether folderID is locked now and until when.
func (x *Index) IsLocked(ctx context.Context, folderID string) (bool, *time.Time, error) {
	f, err := x.folders.GetByID(ctx, folderID)
	if err != nil {
		return false, nil, err
	}
	if f.LockedAt(x.now()) {
		return true, f.LockUntil, nil
	}
	return false, nil, nil
}

// LockFolder sets the lock of folderID owned by userID. A nil or past until
// clears it.
func (x *Index) LockFolder(ctx context.Context, userID, folderID string, until *time.Time) (*models.Folder, error) {
	f, err := x.folders.GetByID(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if f.OwnerID != userID {
		return nil, common.ErrorForbidden
	}
	if until != nil && !until.After(x.now()) {
		until = nil
	}
	return x.folders.SetLock(ctx, folderID, until)
}

// AncestorIsLocked walks from parentID up to the root and reports the first
// active lock found. An empty parentID is the root and is never locked.
func (x *Index) AncestorIsLocked(ctx context.Context, parentID string) (bool, *time.Time, error) {
	now := x.now()
	id := parentID
	for depth := 0; id != ""; depth++ {
		if depth >= maxDepth {
			return false, nil, fmt.Errorf("folder %s: ancestor chain too deep", parentID)
		}
		f, err := x.folders.GetByID(ctx, id)
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil, nil
		}
		if err != nil {
			return false, nil, err
		}
		if f.LockedAt(now) {
			return true, f.LockUntil, nil
		}
		id = f.ParentID
	}
	return false, nil, nil
}

// LockedFolderIDs returns the set of userID's folders locked now.
func (x *Index) LockedFolderIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	locked, err := x.folders.ListLocked(ctx, userID, x.now())
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(locked))
	for _, f := range locked {
		ids[f.ID] = struct{}{}
	}
	return ids, nil
}

// LockedFolders returns userID's folders locked now.
func (x *Index) LockedFolders(ctx context.Context, userID string) ([]*models.Folder, error) {
	return x.folders.ListLocked(ctx, userID, x.now())
}
