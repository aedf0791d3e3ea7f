// Package services contains server-side business logic. ChunkService is the
// single entry point for moving file bytes: it authorizes the caller, then
// delegates to the configured storage.Backend and streams the result.
package services

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/logging"
	"github.com/dmitrijs2005/clouddrive/internal/server/folderlock"
	"github.com/dmitrijs2005/clouddrive/internal/server/metrics"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/clouddrive/internal/server/storage"
	"github.com/dmitrijs2005/clouddrive/internal/server/tokens"
)

type ChunkService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	backend     storage.Backend
	tokens      *tokens.Manager
	locks       *folderlock.Index
	logger      logging.Logger
}

func NewChunkService(db *sql.DB, rm repomanager.RepositoryManager, backend storage.Backend, tm *tokens.Manager, locks *folderlock.Index, logger logging.Logger) *ChunkService {
	return &ChunkService{
		db:          db,
		repomanager: rm,
		backend:     backend,
		tokens:      tm,
		locks:       locks,
		logger:      logger,
	}
}

// stat resolves fileID for access. Files inside a locked folder are refused
// with ErrFolderLocked, owner included.
func (s *ChunkService) stat(ctx context.Context, access storage.Access, fileID string) (*models.File, error) {
	f, err := s.backend.Stat(ctx, access, fileID)
	if err != nil {
		return nil, err
	}
	if err := checkUnlocked(ctx, s.locks, f.ParentID); err != nil {
		return nil, err
	}
	return f, nil
}

// checkFolderOwner fails unless folderID is empty or a folder of userID.
func (s *ChunkService) checkFolderOwner(ctx context.Context, userID, folderID string) error {
	if folderID == "" {
		return nil
	}
	f, err := s.repomanager.Folders(s.db).GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if f.OwnerID != userID {
		return common.ErrorForbidden
	}
	return nil
}

// UploadFile streams body into the backend as a file of user.
func (s *ChunkService) UploadFile(ctx context.Context, user models.Principal, body io.Reader, meta storage.UploadMeta) (*models.File, error) {
	if err := s.checkFolderOwner(ctx, user.ID, meta.ParentID); err != nil {
		return nil, err
	}
	f, err := s.backend.Upload(ctx, user.ID, body, meta)
	var size int64
	if f != nil {
		size = f.Size
	}
	metrics.RecordUpload(s.backend.Type(), size, err)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}

// streamBuffer is read ahead before any header is sent.
const streamBuffer = 32 << 10

// writeStream sends rc as the body. Headers, including those in extra, are
// set only once the first read succeeded, so a failing backend leaves the
// response untouched for the error writer.
func writeStream(w http.ResponseWriter, status int, contentType string, length int64, rc io.ReadCloser, extra ...string) (int64, error) {
	defer rc.Close()
	br := bufio.NewReaderSize(rc, streamBuffer)
	if _, err := br.Peek(1); err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}

	h := w.Header()
	for i := 0; i+1 < len(extra); i += 2 {
		h.Set(extra[i], extra[i+1])
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	return io.Copy(w, br)
}

func (s *ChunkService) download(ctx context.Context, access storage.Access, fileID, op string, w http.ResponseWriter) error {
	if _, err := s.stat(ctx, access, fileID); err != nil {
		return err
	}
	f, rc, err := s.backend.Download(ctx, access, fileID)
	if err != nil {
		return err
	}
	n, err := writeStream(w, http.StatusOK, f.ContentType, f.Size, rc, "Content-Disposition", attachment(f.Name))
	metrics.RecordBytesStreamed(op, n)
	return err
}

// DownloadFile streams a file of user.
func (s *ChunkService) DownloadFile(ctx context.Context, user models.Principal, fileID string, w http.ResponseWriter) error {
	return s.download(ctx, storage.Access{UserID: user.ID}, fileID, "download", w)
}

// DownloadWithToken streams a file to the holder of a download token.
func (s *ChunkService) DownloadWithToken(ctx context.Context, token, fileID string, w http.ResponseWriter) error {
	t, err := s.tokens.Validate(ctx, token, models.TokenDownload, tokens.ValidationContext{})
	if err != nil {
		return err
	}
	return s.download(ctx, storage.Access{UserID: t.UserID}, fileID, "download", w)
}

// GetPublicDownload streams a file to the holder of one of its links. A
// one-time link is consumed before any byte is sent, and only once the file
// is known to be downloadable.
func (s *ChunkService) GetPublicDownload(ctx context.Context, fileID, token string, w http.ResponseWriter) error {
	if _, err := s.tokens.ValidateLink(ctx, fileID, token, false); err != nil {
		return err
	}
	f, err := s.stat(ctx, storage.Access{Public: true}, fileID)
	if err != nil {
		return err
	}
	t, err := s.tokens.ValidateLink(ctx, fileID, token, true)
	if err != nil {
		return err
	}
	if t.Kind == models.TokenOneTime && f.Link == token {
		if err := s.repomanager.Files(s.db).SetLink(ctx, fileID, models.LinkNone, ""); err != nil {
			s.logger.Warn(ctx, "failed to clear used link", "file_id", fileID, "error", err)
		}
	}
	return s.download(ctx, storage.Access{Public: true}, fileID, "public", w)
}

// StreamVideo serves a video of user honouring the Range header. Without a
// range the whole file is sent with 200.
func (s *ChunkService) StreamVideo(ctx context.Context, user models.Principal, fileID, videoToken, clientUUID, rangeHeader string, w http.ResponseWriter) error {
	vc := tokens.ValidationContext{UserID: user.ID, ClientID: clientUUID}
	if _, err := s.tokens.Validate(ctx, videoToken, models.TokenVideo, vc); err != nil {
		return err
	}

	f, err := s.stat(ctx, storage.Access{UserID: user.ID}, fileID)
	if err != nil {
		return err
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")

	ranges, err := storage.ParseRange(rangeHeader, f.Size)
	if err != nil {
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", f.Size))
		return err
	}

	var n int64
	switch len(ranges) {
	case 0:
		_, rc, err := s.backend.Download(ctx, storage.Access{UserID: user.ID}, fileID)
		if err != nil {
			return err
		}
		n, err = writeStream(w, http.StatusOK, f.ContentType, f.Size, rc)
		metrics.RecordBytesStreamed("video", n)
		return err
	case 1:
		rc, err := s.backend.RangeRead(ctx, f, ranges[0])
		if err != nil {
			return err
		}
		n, err = writeStream(w, http.StatusPartialContent, f.ContentType, ranges[0].Length(), rc,
			"Content-Range", ranges[0].ContentRange(f.Size))
		metrics.RecordBytesStreamed("video", n)
		return err
	}

	n, err = s.writeByteRanges(ctx, f, ranges, w)
	metrics.RecordBytesStreamed("video", n)
	return err
}

// writeByteRanges sends several ranges as one multipart/byteranges body.
// Parts are opened one after another so only one is in flight.
func (s *ChunkService) writeByteRanges(ctx context.Context, f *models.File, ranges []storage.ByteRange, w http.ResponseWriter) (int64, error) {
	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/byteranges; boundary="+mw.Boundary())
	w.WriteHeader(http.StatusPartialContent)

	var total int64
	for _, r := range ranges {
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":  {f.ContentType},
			"Content-Range": {r.ContentRange(f.Size)},
		})
		if err != nil {
			return total, err
		}
		rc, err := s.backend.RangeRead(ctx, f, r)
		if err != nil {
			return total, err
		}
		n, err := io.Copy(part, rc)
		rc.Close()
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, mw.Close()
}

// GetThumbnail sends the JPEG preview of an image of user.
func (s *ChunkService) GetThumbnail(ctx context.Context, user models.Principal, fileID string, w http.ResponseWriter) error {
	return s.thumbnail(ctx, storage.Access{UserID: user.ID}, fileID, w)
}

// GetPublicThumbnail sends the preview of a file to the holder of one of its
// links. One-time links are not consumed by previews.
func (s *ChunkService) GetPublicThumbnail(ctx context.Context, fileID, token string, w http.ResponseWriter) error {
	if _, err := s.tokens.ValidateLink(ctx, fileID, token, false); err != nil {
		return err
	}
	return s.thumbnail(ctx, storage.Access{Public: true}, fileID, w)
}

func (s *ChunkService) thumbnail(ctx context.Context, access storage.Access, fileID string, w http.ResponseWriter) error {
	if _, err := s.stat(ctx, access, fileID); err != nil {
		return err
	}
	rc, size, err := s.backend.Thumbnail(ctx, access, fileID)
	if err != nil {
		return err
	}
	n, err := writeStream(w, http.StatusOK, "image/jpeg", size, rc, "Cache-Control", "private, max-age=3600")
	metrics.RecordBytesStreamed("thumbnail", n)
	return err
}

// GetFullThumbnail streams the original bytes of an image of user.
func (s *ChunkService) GetFullThumbnail(ctx context.Context, user models.Principal, fileID string, w http.ResponseWriter) error {
	access := storage.Access{UserID: user.ID}
	f, err := s.stat(ctx, access, fileID)
	if err != nil {
		return err
	}
	if !f.HasThumbnail {
		return fmt.Errorf("no preview for %s: %w", f.ContentType, common.ErrorNotFound)
	}
	_, rc, err := s.backend.Download(ctx, access, fileID)
	if err != nil {
		return err
	}
	n, err := writeStream(w, http.StatusOK, f.ContentType, f.Size, rc)
	metrics.RecordBytesStreamed("thumbnail", n)
	return err
}

// DeleteFile removes a file of user together with its links.
func (s *ChunkService) DeleteFile(ctx context.Context, user models.Principal, fileID string) error {
	if _, err := s.backend.Stat(ctx, storage.Access{UserID: user.ID}, fileID); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, fileID); err != nil {
		return err
	}
	return s.tokens.RevokeLinks(ctx, fileID)
}

// DeleteFolder removes a folder of user, every folder below it and all their
// files.
func (s *ChunkService) DeleteFolder(ctx context.Context, user models.Principal, folderID string) error {
	if folderID == "" {
		return fmt.Errorf("missing folder id: %w", common.ErrorBadInput)
	}
	if err := s.checkFolderOwner(ctx, user.ID, folderID); err != nil {
		return err
	}

	repo := s.repomanager.Folders(s.db)
	descendants, err := repo.Descendants(ctx, user.ID, folderID)
	if err != nil {
		return err
	}
	if err := s.backend.DeleteFolder(ctx, user.ID, folderID, descendants); err != nil {
		return err
	}
	return repo.Delete(ctx, folderID)
}

// DeleteAll removes every file, folder and token of user.
func (s *ChunkService) DeleteAll(ctx context.Context, user models.Principal) error {
	if err := s.backend.DeleteAll(ctx, user.ID); err != nil {
		return err
	}
	if err := s.repomanager.Folders(s.db).DeleteByOwner(ctx, user.ID); err != nil {
		return err
	}
	s.logger.Info(ctx, "user storage wiped", "user_id", user.ID)
	return s.tokens.RevokeAll(ctx, user.ID)
}
