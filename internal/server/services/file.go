package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/server/folderlock"
	"github.com/dmitrijs2005/clouddrive/internal/server/listing"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"github.com/dmitrijs2005/clouddrive/internal/server/notify"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/clouddrive/internal/server/storage"
	"github.com/dmitrijs2005/clouddrive/internal/server/tokens"
)

// quickListLimit is the number of recent files in a quick list.
const quickListLimit = 20

// FileService handles file metadata, sharing links and temporary tokens.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	backend     storage.Backend
	tokens      *tokens.Manager
	locks       *folderlock.Index
	mailer      notify.Dispatcher
	now         func() time.Time
}

func NewFileService(db *sql.DB, rm repomanager.RepositoryManager, backend storage.Backend, tm *tokens.Manager, locks *folderlock.Index, mailer notify.Dispatcher) *FileService {
	return &FileService{
		db:          db,
		repomanager: rm,
		backend:     backend,
		tokens:      tm,
		locks:       locks,
		mailer:      mailer,
		now:         time.Now,
	}
}

func (s *FileService) owned(ctx context.Context, user models.Principal, fileID string) (*models.File, error) {
	return s.backend.Stat(ctx, storage.Access{UserID: user.ID}, fileID)
}

func (s *FileService) share(ctx context.Context, user models.Principal, fileID string, lt models.LinkType) (string, error) {
	if _, err := s.owned(ctx, user, fileID); err != nil {
		return "", err
	}

	var (
		tok string
		err error
	)
	if lt == models.LinkOneTime {
		tok, err = s.tokens.IssueOneTimePublicLink(ctx, user.ID, fileID)
	} else {
		tok, err = s.tokens.IssuePublicLink(ctx, user.ID, fileID)
	}
	if err != nil {
		return "", err
	}

	if err := s.repomanager.Files(s.db).SetLink(ctx, fileID, lt, tok); err != nil {
		return "", err
	}
	return tok, nil
}

// MakePublic issues a reusable link for a file of user. Any earlier link of
// the file stops working.
func (s *FileService) MakePublic(ctx context.Context, user models.Principal, fileID string) (string, error) {
	return s.share(ctx, user, fileID, models.LinkPublic)
}

// MakeOneTimePublic issues a single-use link for a file of user.
func (s *FileService) MakeOneTimePublic(ctx context.Context, user models.Principal, fileID string) (string, error) {
	return s.share(ctx, user, fileID, models.LinkOneTime)
}

// RemoveLink revokes the link of a file of user.
func (s *FileService) RemoveLink(ctx context.Context, user models.Principal, fileID string) error {
	if _, err := s.owned(ctx, user, fileID); err != nil {
		return err
	}
	if err := s.tokens.RevokeLinks(ctx, fileID); err != nil {
		return err
	}
	return s.repomanager.Files(s.db).SetLink(ctx, fileID, models.LinkNone, "")
}

// GetPublicInfo returns the record of a file to the holder of one of its
// links without consuming it.
func (s *FileService) GetPublicInfo(ctx context.Context, fileID, token string) (*models.File, error) {
	if _, err := s.tokens.ValidateLink(ctx, fileID, token, false); err != nil {
		return nil, err
	}
	f, err := s.backend.Stat(ctx, storage.Access{Public: true}, fileID)
	if err != nil {
		return nil, err
	}
	if err := checkUnlocked(ctx, s.locks, f.ParentID); err != nil {
		return nil, err
	}
	f.Link = ""
	return f, nil
}

func (s *FileService) GetDownloadToken(ctx context.Context, user models.Principal) (string, error) {
	return s.tokens.IssueDownloadToken(ctx, user.ID)
}

func (s *FileService) GetVideoAccessToken(ctx context.Context, user models.Principal, clientUUID string) (string, error) {
	return s.tokens.IssueVideoStreamToken(ctx, user.ID, clientUUID)
}

func (s *FileService) RemoveVideoAccessToken(ctx context.Context, user models.Principal, token, clientUUID string) error {
	return s.tokens.RevokeByUser(ctx, user.ID, token, clientUUID)
}

// RemoveTempToken drops a temporary token of user issued to clientUUID.
func (s *FileService) RemoveTempToken(ctx context.Context, user models.Principal, token, clientUUID string) error {
	if token == "" {
		return fmt.Errorf("missing token: %w", common.ErrorBadInput)
	}
	return s.tokens.RevokeByUser(ctx, user.ID, token, clientUUID)
}

// GetInfo returns the record of a file of user unless its folder is locked.
func (s *FileService) GetInfo(ctx context.Context, user models.Principal, fileID string) (*models.File, error) {
	f, err := s.owned(ctx, user, fileID)
	if err != nil {
		return nil, err
	}
	if err := checkUnlocked(ctx, s.locks, f.ParentID); err != nil {
		return nil, err
	}
	return f, nil
}

// QuickList returns the most recent files of user, leaving out files that sit
// directly in a locked folder.
func (s *FileService) QuickList(ctx context.Context, user models.Principal) ([]*models.File, error) {
	files, err := s.repomanager.Files(s.db).ListRecent(ctx, user.ID, quickListLimit)
	if err != nil {
		return nil, err
	}
	locked, err := s.locks.LockedFolderIDs(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return listing.FilterLocked(files, locked), nil
}

// List returns the files of user in parentID ("" is the root). While the
// folder or any ancestor is locked the result is ErrFolderLocked, owner
// included.
func (s *FileService) List(ctx context.Context, user models.Principal, parentID string) ([]*models.File, error) {
	if err := checkUnlocked(ctx, s.locks, parentID); err != nil {
		return nil, err
	}
	return s.repomanager.Files(s.db).ListByParent(ctx, user.ID, parentID)
}

func checkUnlocked(ctx context.Context, locks *folderlock.Index, folderID string) error {
	locked, until, err := locks.AncestorIsLocked(ctx, folderID)
	if err != nil {
		return err
	}
	if locked {
		return common.ErrFolderLockedUntil(*until)
	}
	return nil
}

// SendShareEmail hands the link of a file of user to the mail dispatcher.
func (s *FileService) SendShareEmail(ctx context.Context, user models.Principal, fileID, to string) error {
	if !user.EmailVerified {
		return fmt.Errorf("email not verified: %w", common.ErrorForbidden)
	}
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("recipient %q: %w", to, common.ErrorBadInput)
	}
	f, err := s.owned(ctx, user, fileID)
	if err != nil {
		return err
	}
	if f.LinkType == models.LinkNone || f.Link == "" {
		return fmt.Errorf("file has no link: %w", common.ErrorNotFound)
	}
	return s.mailer.Send(ctx, notify.ShareEmail{
		To:        addr.Address,
		From:      user.Email,
		FileID:    f.ID,
		FileName:  f.Name,
		Link:      f.Link,
		CreatedAt: s.now(),
	})
}
