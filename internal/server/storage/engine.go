package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/cryptox"
	"github.com/dmitrijs2005/clouddrive/internal/logging"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// sniffLen is how much of an upload is inspected for the content type.
const sniffLen = 3072

// masterKeySalt is fixed so the same passphrase always yields the same keys.
var masterKeySalt = []byte("clouddrive/at-rest/v1")

// FileStore is the subset of the file repository the engine needs.
type FileStore interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	ListByParents(ctx context.Context, ownerID string, parentIDs []string) ([]*models.File, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error)
	SetThumbnail(ctx context.Context, id, key string, size int64, iv []byte) error
	Delete(ctx context.Context, id string) error
	DeleteByOwner(ctx context.Context, ownerID string) error
}

type Options struct {
	ChunkSize     int64
	MaxUploadSize int64
	// EncryptionKey enables AES-CTR encryption at rest when non-empty.
	EncryptionKey string
}

// Engine implements Backend over a ChunkStore.
type Engine struct {
	files     FileStore
	store     ChunkStore
	chunkSize int64
	maxUpload int64
	masterKey []byte
	logger    logging.Logger
	now       func() time.Time
}

func NewEngine(files FileStore, store ChunkStore, opts Options, logger logging.Logger) *Engine {
	e := &Engine{
		files:     files,
		store:     store,
		chunkSize: opts.ChunkSize,
		maxUpload: opts.MaxUploadSize,
		logger:    logger,
		now:       time.Now,
	}
	if e.chunkSize <= 0 {
		e.chunkSize = 8 << 20
	}
	if opts.EncryptionKey != "" {
		e.masterKey = cryptox.DeriveMasterKey([]byte(opts.EncryptionKey), masterKeySalt)
	}
	return e
}

func (e *Engine) Type() string { return e.store.Name() }

// storageKey returns a fresh date-sharded key.
func (e *Engine) storageKey() string {
	d := e.now().UTC()
	return fmt.Sprintf("files/%d/%02d/%02d/%s", d.Year(), d.Month(), d.Day(), uuid.NewString())
}

// backendErr tags uncoded errors as backend failures and keeps coded ones.
func backendErr(err error) error {
	var ce *common.CodedError
	if errors.As(err, &ce) {
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrBackendFailure, err)
}

func (e *Engine) userKey(ownerID string) ([]byte, error) {
	return cryptox.DeriveUserKey(e.masterKey, ownerID)
}

// seal wraps r with encryption when enabled and returns the IV used.
func (e *Engine) seal(r io.Reader, ownerID string) (io.Reader, []byte, error) {
	if e.masterKey == nil {
		return r, nil, nil
	}
	key, err := e.userKey(ownerID)
	if err != nil {
		return nil, nil, err
	}
	iv, err := cryptox.NewIV()
	if err != nil {
		return nil, nil, err
	}
	er, err := cryptox.EncryptReader(r, key, iv)
	if err != nil {
		return nil, nil, err
	}
	return er, iv, nil
}

// open returns plaintext bytes [offset, offset+length) of loc.
func (e *Engine) open(ctx context.Context, loc models.Locator, iv []byte, ownerID string, offset, length int64) (io.ReadCloser, error) {
	rc, err := e.store.Open(ctx, loc, offset, length)
	if err != nil {
		return nil, backendErr(err)
	}
	if iv == nil {
		return rc, nil
	}
	if e.masterKey == nil {
		rc.Close()
		return nil, fmt.Errorf("file is encrypted but no key is configured: %w", common.ErrBackendFailure)
	}
	key, err := e.userKey(ownerID)
	if err != nil {
		rc.Close()
		return nil, err
	}
	dr, err := cryptox.DecryptReaderAt(rc, key, iv, offset)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return readCloser{Reader: dr, Closer: rc}, nil
}

// discard removes key without the request context, which may be cancelled.
func (e *Engine) discard(ctx context.Context, key string) {
	if err := e.store.Remove(context.WithoutCancel(ctx), key); err != nil {
		e.logger.Error(ctx, "failed to clean up partial upload", "key", key, "error", err)
	}
}

func (e *Engine) Upload(ctx context.Context, ownerID string, r io.Reader, meta UploadMeta) (*models.File, error) {
	if meta.Name == "" {
		return nil, fmt.Errorf("missing file name: %w", common.ErrorBadInput)
	}
	if e.maxUpload > 0 {
		r = &limitReader{r: r, n: e.maxUpload}
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, backendErr(err)
	}
	head = head[:n]

	contentType := mimetype.Detect(head).String()
	if meta.ContentType != "" && (n == 0 || mimetype.Detect(head).Is("application/octet-stream")) {
		contentType = meta.ContentType
	}

	counter := &countingReader{r: io.MultiReader(bytes.NewReader(head), r)}
	sealed, iv, err := e.seal(counter, ownerID)
	if err != nil {
		return nil, err
	}

	key := e.storageKey()
	chunks, err := e.store.Put(ctx, key, sealed, e.chunkSize)
	if err != nil {
		e.discard(ctx, key)
		return nil, backendErr(err)
	}

	f := &models.File{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        meta.Name,
		ParentID:    meta.ParentID,
		Size:        counter.n,
		ContentType: contentType,
		LinkType:    models.LinkNone,
		StorageKey:  key,
		ChunkSize:   e.chunkSize,
		ChunkCount:  chunks,
		IV:          iv,
	}
	if err := e.files.Create(ctx, f); err != nil {
		e.discard(ctx, key)
		return nil, err
	}
	f.Derive()

	e.logger.Info(ctx, "file stored", "file_id", f.ID, "size", f.Size, "chunks", chunks, "backend", e.store.Name())
	return f, nil
}

func (e *Engine) Stat(ctx context.Context, access Access, fileID string) (*models.File, error) {
	f, err := e.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !access.Public && f.OwnerID != access.UserID {
		return nil, common.ErrorForbidden
	}
	return f, nil
}

func (e *Engine) Download(ctx context.Context, access Access, fileID string) (*models.File, io.ReadCloser, error) {
	f, err := e.Stat(ctx, access, fileID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := e.open(ctx, f.Locator(), f.IV, f.OwnerID, 0, f.Size)
	if err != nil {
		return nil, nil, err
	}
	return f, rc, nil
}

func (e *Engine) RangeRead(ctx context.Context, f *models.File, rng ByteRange) (io.ReadCloser, error) {
	if rng.Start < 0 || rng.End < rng.Start || rng.End >= f.Size {
		return nil, common.ErrRangeNotSatisfiable
	}
	return e.open(ctx, f.Locator(), f.IV, f.OwnerID, rng.Start, rng.Length())
}

func (e *Engine) Thumbnail(ctx context.Context, access Access, fileID string) (io.ReadCloser, int64, error) {
	f, err := e.Stat(ctx, access, fileID)
	if err != nil {
		return nil, 0, err
	}
	if f.ThumbnailKey != "" {
		rc, err := e.open(ctx, f.ThumbnailLocator(), f.ThumbnailIV, f.OwnerID, 0, f.ThumbnailSize)
		if err != nil {
			return nil, 0, err
		}
		return rc, f.ThumbnailSize, nil
	}
	if !f.HasThumbnail {
		return nil, 0, fmt.Errorf("no thumbnail for %s: %w", f.ContentType, common.ErrorNotFound)
	}

	data, err := e.buildThumbnail(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// buildThumbnail renders the preview of f and stores it next to the content.
// Storing is best effort; the rendered bytes are returned either way.
func (e *Engine) buildThumbnail(ctx context.Context, f *models.File) ([]byte, error) {
	if f.Size > maxThumbnailSource {
		return nil, fmt.Errorf("%d bytes: %w", f.Size, common.ErrorNotFound)
	}
	rc, err := e.open(ctx, f.Locator(), f.IV, f.OwnerID, 0, f.Size)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := MakeThumbnail(rc)
	if err != nil {
		return nil, fmt.Errorf("render thumbnail: %w: %v", common.ErrorNotFound, err)
	}

	key := f.StorageKey + ".thumb"
	sealed, iv, err := e.seal(bytes.NewReader(data), f.OwnerID)
	if err != nil {
		return data, nil
	}
	if _, err := e.store.Put(ctx, key, sealed, e.chunkSize); err != nil {
		e.logger.Warn(ctx, "failed to store thumbnail", "file_id", f.ID, "error", err)
		e.discard(ctx, key)
		return data, nil
	}
	if err := e.files.SetThumbnail(ctx, f.ID, key, int64(len(data)), iv); err != nil {
		e.logger.Warn(ctx, "failed to record thumbnail", "file_id", f.ID, "error", err)
		e.discard(ctx, key)
	}
	return data, nil
}

func (e *Engine) removeContent(ctx context.Context, f *models.File) error {
	if err := e.store.Remove(ctx, f.StorageKey); err != nil {
		return backendErr(err)
	}
	if f.ThumbnailKey != "" {
		if err := e.store.Remove(ctx, f.ThumbnailKey); err != nil {
			return backendErr(err)
		}
	}
	return nil
}

func (e *Engine) Delete(ctx context.Context, fileID string) error {
	f, err := e.files.GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if err := e.removeContent(ctx, f); err != nil {
		return err
	}
	return e.files.Delete(ctx, f.ID)
}

func (e *Engine) DeleteFolder(ctx context.Context, userID, folderID string, descendants []string) error {
	parents := append([]string{folderID}, descendants...)
	files, err := e.files.ListByParents(ctx, userID, parents)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := e.removeContent(ctx, f); err != nil {
			return err
		}
		if err := e.files.Delete(ctx, f.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
	}
	return nil
}

func (e *Engine) DeleteAll(ctx context.Context, userID string) error {
	files, err := e.files.ListByOwner(ctx, userID)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := e.removeContent(ctx, f); err != nil {
			return err
		}
	}
	return e.files.DeleteByOwner(ctx, userID)
}
