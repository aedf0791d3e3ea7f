package chunks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Put writes one chunk. Rewriting an existing index replaces its data.
func (r *PostgresRepository) Put(ctx context.Context, key string, idx int, data []byte) error {
	query := `
		INSERT INTO file_chunks (storage_key, idx, data) VALUES ($1, $2, $3)
		ON CONFLICT (storage_key, idx) DO UPDATE SET data = EXCLUDED.data
	`
	if _, err := r.db.ExecContext(ctx, query, key, idx, data); err != nil {
		return fmt.Errorf("failed to write chunk %d: %w", idx, err)
	}
	return nil
}

// Get reads one chunk or returns common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, key string, idx int) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM file_chunks WHERE storage_key=$1 AND idx=$2`, key, idx).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %d: %w", idx, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %d: %w", idx, err)
	}
	return data, nil
}

// DeleteByKey removes every chunk of key and reports how many were removed.
func (r *PostgresRepository) DeleteByKey(ctx context.Context, key string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_chunks WHERE storage_key=$1`, key)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return res.RowsAffected()
}
