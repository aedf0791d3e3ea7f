// Package models defines server-side data models persisted in the database.
package models

import (
	"strings"
	"time"
)

// LinkType is the sharing state of a file.
type LinkType string

const (
	LinkNone    LinkType = "none"
	LinkPublic  LinkType = "public"
	LinkOneTime LinkType = "one"
)

// File is the metadata record of an uploaded file. The bytes themselves are
// owned by the storage backend and addressed through StorageKey.
type File struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner"`
	Name        string    `json:"filename"`
	ParentID    string    `json:"parent"`
	Size        int64     `json:"length"`
	ContentType string    `json:"contentType"`
	LinkType    LinkType  `json:"linkType"`
	Link        string    `json:"link,omitempty"`
	CreatedAt   time.Time `json:"uploadDate"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Backend-internal location.
	StorageKey string `json:"-"`
	ChunkSize  int64  `json:"-"`
	ChunkCount int    `json:"-"`
	// IV is set when the bytes are encrypted at rest.
	IV []byte `json:"-"`

	ThumbnailKey  string `json:"-"`
	ThumbnailSize int64  `json:"-"`
	ThumbnailIV   []byte `json:"-"`

	HasThumbnail bool `json:"hasThumbnail"`
	IsVideo      bool `json:"isVideo"`
}

// Derive fills the presentation flags from the content type.
func (f *File) Derive() {
	f.IsVideo = strings.HasPrefix(f.ContentType, "video/")
	f.HasThumbnail = strings.HasPrefix(f.ContentType, "image/")
}

// Locator returns the chunk descriptor of the file content.
func (f *File) Locator() Locator {
	return Locator{Key: f.StorageKey, Size: f.Size, ChunkSize: f.ChunkSize, ChunkCount: f.ChunkCount}
}

// ThumbnailLocator returns the chunk descriptor of the stored thumbnail.
func (f *File) ThumbnailLocator() Locator {
	return Locator{Key: f.ThumbnailKey, Size: f.ThumbnailSize, ChunkSize: f.ChunkSize, ChunkCount: -1}
}

// Locator addresses bytes inside a chunk store. ChunkCount is -1 when unknown.
type Locator struct {
	Key        string
	Size       int64
	ChunkSize  int64
	ChunkCount int
}
