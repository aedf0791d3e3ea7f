// Package chunks stores file content as fixed-size rows keyed by storage key
// and chunk index. It is the medium of the database storage backend.
package chunks

import "context"

type Repository interface {
	Put(ctx context.Context, key string, idx int, data []byte) error
	Get(ctx context.Context, key string, idx int) ([]byte, error)
	DeleteByKey(ctx context.Context, key string) (int64, error)
}
