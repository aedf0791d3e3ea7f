package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
)

// ChunkRepository is the row store behind DBChunkStore.
type ChunkRepository interface {
	Put(ctx context.Context, key string, idx int, data []byte) error
	Get(ctx context.Context, key string, idx int) ([]byte, error)
	DeleteByKey(ctx context.Context, key string) (int64, error)
}

// DBChunkStore keeps content as fixed-size rows in the database.
type DBChunkStore struct {
	chunks ChunkRepository
}

func NewDBChunkStore(chunks ChunkRepository) *DBChunkStore {
	return &DBChunkStore{chunks: chunks}
}

func (s *DBChunkStore) Name() string { return TypeDB }

func (s *DBChunkStore) Put(ctx context.Context, key string, r io.Reader, chunkSize int64) (int, error) {
	buf := make([]byte, chunkSize)
	idx := 0
	for {
		if err := ctx.Err(); err != nil {
			return idx, err
		}
		n, last, err := readChunk(r, buf)
		if err != nil {
			return idx, err
		}
		if n > 0 {
			if err := s.chunks.Put(ctx, key, idx, buf[:n]); err != nil {
				return idx, err
			}
			idx++
		}
		if last {
			return idx, nil
		}
	}
}

func (s *DBChunkStore) Open(ctx context.Context, loc models.Locator, offset, length int64) (io.ReadCloser, error) {
	if loc.ChunkSize <= 0 {
		return nil, fmt.Errorf("%s has chunk size %d: %w", loc.Key, loc.ChunkSize, common.ErrBackendFailure)
	}
	return &chunkReader{
		ctx:       ctx,
		chunks:    s.chunks,
		key:       loc.Key,
		idx:       int(offset / loc.ChunkSize),
		skip:      offset % loc.ChunkSize,
		remaining: length,
	}, nil
}

func (s *DBChunkStore) Remove(ctx context.Context, key string) error {
	_, err := s.chunks.DeleteByKey(ctx, key)
	return err
}

// chunkReader fetches one row at a time, starting at the row that holds the
// first requested byte.
type chunkReader struct {
	ctx       context.Context
	chunks    ChunkRepository
	key       string
	idx       int
	skip      int64
	remaining int64
	cur       []byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		return 0, io.EOF
	}
	if len(c.cur) == 0 {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
		data, err := c.chunks.Get(c.ctx, c.key, c.idx)
		if err != nil {
			return 0, err
		}
		c.idx++
		if c.skip > 0 {
			if c.skip >= int64(len(data)) {
				return 0, io.ErrUnexpectedEOF
			}
			data = data[c.skip:]
			c.skip = 0
		}
		c.cur = data
	}

	n := copy(p, c.cur)
	if int64(n) > c.remaining {
		n = int(c.remaining)
	}
	c.cur = c.cur[n:]
	c.remaining -= int64(n)
	return n, nil
}

func (c *chunkReader) Close() error {
	c.cur = nil
	c.remaining = 0
	return nil
}
