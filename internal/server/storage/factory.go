package storage

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/clouddrive/internal/logging"
	"github.com/dmitrijs2005/clouddrive/internal/server/config"
)

// New builds the Engine over the medium named by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config, files FileStore, chunks ChunkRepository, logger logging.Logger) (*Engine, error) {
	var store ChunkStore
	switch cfg.StorageBackend {
	case config.BackendDB, "":
		store = NewDBChunkStore(chunks)
	case config.BackendFS:
		fs, err := NewFSStore(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		store = fs
	case config.BackendS3:
		s3, err := NewS3Store(ctx, S3Config{
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3RootUser,
			SecretKey:    cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
		}, logger)
		if err != nil {
			return nil, err
		}
		store = s3
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	return NewEngine(files, store, Options{
		ChunkSize:     cfg.ChunkSize,
		MaxUploadSize: cfg.MaxUploadSize,
		EncryptionKey: cfg.EncryptionKey,
	}, logger.With("backend", store.Name())), nil
}
