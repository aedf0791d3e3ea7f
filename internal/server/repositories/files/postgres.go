package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/dbx"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
)

const fileColumns = `id, owner_id, name, parent_id, size, content_type, storage_key, chunk_size, chunk_count,
	iv, thumbnail_key, thumbnail_size, thumbnail_iv, link_type, link, created_at, updated_at`

// PostgresRepository implements file metadata storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// PgArray renders ids as a Postgres array literal, suitable for ANY($n::uuid[]).
func PgArray(ids []string) string {
	return "{" + strings.Join(ids, ",") + "}"
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*models.File, error) {
	var (
		f                      models.File
		parent, thumbKey, link sql.NullString
		linkType               string
	)
	err := row.Scan(&f.ID, &f.OwnerID, &f.Name, &parent, &f.Size, &f.ContentType, &f.StorageKey, &f.ChunkSize, &f.ChunkCount,
		&f.IV, &thumbKey, &f.ThumbnailSize, &f.ThumbnailIV, &linkType, &link, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.ParentID = parent.String
	f.ThumbnailKey = thumbKey.String
	f.LinkType = models.LinkType(linkType)
	f.Link = link.String
	f.Derive()
	return &f, nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Create inserts a new file record and fills its timestamps.
func (r *PostgresRepository) Create(ctx context.Context, f *models.File) error {
	query := `
		INSERT INTO files (id, owner_id, name, parent_id, size, content_type, storage_key, chunk_size, chunk_count, iv, link_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	if f.LinkType == "" {
		f.LinkType = models.LinkNone
	}
	err := r.db.QueryRowContext(ctx, query,
		f.ID, f.OwnerID, f.Name, nullable(f.ParentID), f.Size, f.ContentType, f.StorageKey, f.ChunkSize, f.ChunkCount, f.IV, string(f.LinkType),
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns the file with the given id or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id=$1`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

// ListByParent returns the owner's files directly inside parentID ("" is the root).
func (r *PostgresRepository) ListByParent(ctx context.Context, ownerID, parentID string) ([]*models.File, error) {
	if parentID == "" {
		query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id=$1 AND parent_id IS NULL ORDER BY created_at DESC`
		return r.query(ctx, query, ownerID)
	}
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id=$1 AND parent_id=$2 ORDER BY created_at DESC`
	return r.query(ctx, query, ownerID, parentID)
}

// ListRecent returns the owner's most recently uploaded files.
func (r *PostgresRepository) ListRecent(ctx context.Context, ownerID string, limit int) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id=$1 ORDER BY created_at DESC LIMIT $2`
	return r.query(ctx, query, ownerID, limit)
}

// ListByParents returns the owner's files contained in any of parentIDs.
func (r *PostgresRepository) ListByParents(ctx context.Context, ownerID string, parentIDs []string) ([]*models.File, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id=$1 AND parent_id = ANY($2::uuid[])`
	return r.query(ctx, query, ownerID, PgArray(parentIDs))
}

// ListByOwner returns every file of the owner.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id=$1`
	return r.query(ctx, query, ownerID)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// SetThumbnail records the stored thumbnail of a file.
func (r *PostgresRepository) SetThumbnail(ctx context.Context, id, key string, size int64, iv []byte) error {
	query := `UPDATE files SET thumbnail_key=$2, thumbnail_size=$3, thumbnail_iv=$4, updated_at=now() WHERE id=$1`
	return r.execOne(ctx, query, id, key, size, iv)
}

// SetLink updates the sharing state of a file. An empty link clears it.
func (r *PostgresRepository) SetLink(ctx context.Context, id string, linkType models.LinkType, link string) error {
	query := `UPDATE files SET link_type=$2, link=$3, updated_at=now() WHERE id=$1`
	return r.execOne(ctx, query, id, string(linkType), nullable(link))
}

// Delete removes a file record. Deleting a missing record is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id=$1`, id); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// DeleteByOwner removes every file record of the owner.
func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE owner_id=$1`, ownerID); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return nil
}
