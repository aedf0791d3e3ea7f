package folders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/dbx"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
)

const folderColumns = `id, owner_id, name, parent_id, lock_until, created_at, updated_at`

// PostgresRepository implements folder storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFolder(row scanner) (*models.Folder, error) {
	var (
		f      models.Folder
		parent sql.NullString
		lock   sql.NullTime
	)
	if err := row.Scan(&f.ID, &f.OwnerID, &f.Name, &parent, &lock, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.ParentID = parent.String
	if lock.Valid {
		t := lock.Time
		f.LockUntil = &t
	}
	return &f, nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.Folder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select folders: %w", err)
	}
	defer rows.Close()

	var result []*models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
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

func (r *PostgresRepository) Create(ctx context.Context, f *models.Folder) error {
	query := `
		INSERT INTO folders (id, owner_id, name, parent_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	parent := sql.NullString{String: f.ParentID, Valid: f.ParentID != ""}
	if err := r.db.QueryRowContext(ctx, query, f.ID, f.OwnerID, f.Name, parent).Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns the folder with the given id or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	f, err := scanFolder(r.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select folder: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) ListByParent(ctx context.Context, ownerID, parentID string) ([]*models.Folder, error) {
	if parentID == "" {
		return r.query(ctx, `SELECT `+folderColumns+` FROM folders WHERE owner_id=$1 AND parent_id IS NULL ORDER BY name`, ownerID)
	}
	return r.query(ctx, `SELECT `+folderColumns+` FROM folders WHERE owner_id=$1 AND parent_id=$2 ORDER BY name`, ownerID, parentID)
}

// SetLock sets lock_until (nil clears it) and returns the updated folder.
func (r *PostgresRepository) SetLock(ctx context.Context, id string, until *time.Time) (*models.Folder, error) {
	query := `UPDATE folders SET lock_until=$2, updated_at=now() WHERE id=$1 RETURNING ` + folderColumns
	var lock sql.NullTime
	if until != nil {
		lock = sql.NullTime{Time: *until, Valid: true}
	}
	f, err := scanFolder(r.db.QueryRowContext(ctx, query, id, lock))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock folder: %w", err)
	}
	return f, nil
}

// ListLocked returns the owner's folders whose lock is still active at now.
func (r *PostgresRepository) ListLocked(ctx context.Context, ownerID string, now time.Time) ([]*models.Folder, error) {
	return r.query(ctx, `SELECT `+folderColumns+` FROM folders WHERE owner_id=$1 AND lock_until > $2`, ownerID, now)
}

// Descendants returns the ids of every folder below folderID, at any depth.
func (r *PostgresRepository) Descendants(ctx context.Context, ownerID, folderID string) ([]string, error) {
	query := `
		WITH RECURSIVE tree AS (
			SELECT id FROM folders WHERE parent_id=$2 AND owner_id=$1
			UNION ALL
			SELECT f.id FROM folders f JOIN tree t ON f.parent_id = t.id
		)
		SELECT id FROM tree
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to select descendants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Delete removes a folder; children go with it through ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM folders WHERE id=$1`, id); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM folders WHERE owner_id=$1`, ownerID); err != nil {
		return fmt.Errorf("failed to delete folders: %w", err)
	}
	return nil
}
