package tokens

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

const tokenColumns = `token, kind, user_id, subject, client_id, expires_at, created_at`

// PostgresRepository implements token storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanToken(row interface{ Scan(...any) error }) (*models.AccessToken, error) {
	var (
		t       models.AccessToken
		kind    string
		expires sql.NullTime
	)
	if err := row.Scan(&t.Token, &kind, &t.UserID, &t.Subject, &t.ClientID, &expires, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Kind = models.TokenKind(kind)
	if expires.Valid {
		e := expires.Time
		t.ExpiresAt = &e
	}
	return &t, nil
}

func expiry(t *models.AccessToken) sql.NullTime {
	if t.ExpiresAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t.ExpiresAt, Valid: true}
}

// Save inserts a token.
func (r *PostgresRepository) Save(ctx context.Context, t *models.AccessToken) error {
	query := `
		INSERT INTO access_tokens (token, kind, user_id, subject, client_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query, t.Token, string(t.Kind), t.UserID, t.Subject, t.ClientID, expiry(t)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ReplaceLink stores a link token, atomically displacing any live link for
// the same subject. The partial unique index on subject makes this a single
// statement so the old and new token are never valid together.
func (r *PostgresRepository) ReplaceLink(ctx context.Context, t *models.AccessToken) error {
	query := `
		INSERT INTO access_tokens (token, kind, user_id, subject, client_id, expires_at)
		VALUES ($1, $2, $3, $4, '', $5)
		ON CONFLICT (subject) WHERE kind IN ('public', 'one-time')
		DO UPDATE SET
			token = EXCLUDED.token,
			kind = EXCLUDED.kind,
			user_id = EXCLUDED.user_id,
			expires_at = EXCLUDED.expires_at,
			created_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, t.Token, string(t.Kind), t.UserID, t.Subject, expiry(t)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns a token or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, token string) (*models.AccessToken, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM access_tokens WHERE token=$1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select token: %w", err)
	}
	return t, nil
}

// Take deletes and returns a token of the given kind in one statement.
// Of several concurrent callers exactly one gets the row; the rest get
// common.ErrorNotFound.
func (r *PostgresRepository) Take(ctx context.Context, token string, kind models.TokenKind) (*models.AccessToken, error) {
	query := `DELETE FROM access_tokens WHERE token=$1 AND kind=$2 RETURNING ` + tokenColumns
	t, err := scanToken(r.db.QueryRowContext(ctx, query, token, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take token: %w", err)
	}
	return t, nil
}

// Delete removes a token; missing tokens are ignored.
func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE token=$1`, token); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// DeleteLinks removes the public and one-time links of a subject.
func (r *PostgresRepository) DeleteLinks(ctx context.Context, subject string) error {
	query := `DELETE FROM access_tokens WHERE subject=$1 AND kind IN ('public', 'one-time')`
	if _, err := r.db.ExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("failed to delete links: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}

// DeleteExpired purges tokens that expired before now and reports how many.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
