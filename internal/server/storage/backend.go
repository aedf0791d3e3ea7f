// Package storage holds file content. A single Backend contract is served by
// the Engine over one of three media: database chunk rows, the local
// filesystem or an S3 bucket. The medium is chosen once at start-up.
package storage

import (
	"context"
	"io"

	"github.com/dmitrijs2005/clouddrive/internal/server/models"
)

// Backend types.
const (
	TypeDB = "db"
	TypeFS = "fs"
	TypeS3 = "s3"
)

// Access describes who reads a file. Public access was already authorized by
// a link token for that file, so ownership is not checked.
type Access struct {
	UserID string
	Public bool
}

// UploadMeta is the client-supplied metadata of an upload.
type UploadMeta struct {
	Name     string
	ParentID string
	// ContentType is used only when sniffing finds nothing specific.
	ContentType string
}

// Backend is the storage contract the chunk service works against.
type Backend interface {
	// Type returns the medium identifier ("db", "fs", "s3").
	Type() string

	// Stat returns the file record after checking access.
	Stat(ctx context.Context, access Access, fileID string) (*models.File, error)

	// Upload streams r into storage and persists the file record. On any
	// failure nothing written for this upload remains.
	Upload(ctx context.Context, ownerID string, r io.Reader, meta UploadMeta) (*models.File, error)

	// Download returns the whole content of the file.
	Download(ctx context.Context, access Access, fileID string) (*models.File, io.ReadCloser, error)

	// RangeRead returns the bytes of rng. f must come from Stat.
	RangeRead(ctx context.Context, f *models.File, rng ByteRange) (io.ReadCloser, error)

	// Thumbnail returns a JPEG preview of an image file, synthesizing and
	// storing it on first use.
	Thumbnail(ctx context.Context, access Access, fileID string) (io.ReadCloser, int64, error)

	// Delete removes the content and record of a file.
	Delete(ctx context.Context, fileID string) error

	// DeleteFolder removes every file of userID directly inside folderID or
	// any of descendants.
	DeleteFolder(ctx context.Context, userID, folderID string, descendants []string) error

	// DeleteAll removes every file of userID.
	DeleteAll(ctx context.Context, userID string) error
}

// ChunkStore is the physical medium under the Engine.
type ChunkStore interface {
	Name() string

	// Put stores r under key in parts of at most chunkSize bytes and returns
	// the number of parts written.
	Put(ctx context.Context, key string, r io.Reader, chunkSize int64) (int, error)

	// Open returns length bytes starting at offset of the content at loc.
	// Only the parts covering the range are read.
	Open(ctx context.Context, loc models.Locator, offset, length int64) (io.ReadCloser, error)

	// Remove deletes everything stored under key. A missing key is not an error.
	Remove(ctx context.Context, key string) error
}
