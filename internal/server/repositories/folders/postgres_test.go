package folders

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var cols = []string{"id", "owner_id", "name", "parent_id", "lock_until", "created_at", "updated_at"}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := time.Now()
	mock.ExpectQuery(`(?s)INSERT INTO folders .*RETURNING created_at, updated_at`).
		WithArgs("d1", "u1", "Photos", sql.NullString{}).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(ts, ts))

	f := &models.Folder{ID: "d1", OwnerID: "u1", Name: "Photos"}
	require.NoError(t, repo.Create(context.Background(), f))
	assert.Equal(t, ts, f.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := time.Now()
	until := ts.Add(time.Hour)
	mock.ExpectQuery(`FROM folders WHERE id=\$1`).WithArgs("d1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("d1", "u1", "Photos", "root", until, ts, ts))
	mock.ExpectQuery(`FROM folders WHERE id=\$1`).WithArgs("d2").
		WillReturnRows(sqlmock.NewRows(cols))

	f, err := repo.GetByID(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "root", f.ParentID)
	require.NotNil(t, f.LockUntil)
	assert.True(t, f.LockUntil.Equal(until))

	_, err = repo.GetByID(context.Background(), "d2")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetLock(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := time.Now()
	until := ts.Add(time.Hour)

	mock.ExpectQuery(`UPDATE folders SET lock_until=\$2.*RETURNING`).
		WithArgs("d1", sql.NullTime{Time: until, Valid: true}).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("d1", "u1", "Photos", nil, until, ts, ts))
	mock.ExpectQuery(`UPDATE folders SET lock_until=\$2.*RETURNING`).
		WithArgs("d1", sql.NullTime{}).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("d1", "u1", "Photos", nil, nil, ts, ts))
	mock.ExpectQuery(`UPDATE folders SET lock_until=\$2.*RETURNING`).
		WithArgs("missing", sql.NullTime{}).
		WillReturnRows(sqlmock.NewRows(cols))

	f, err := repo.SetLock(context.Background(), "d1", &until)
	require.NoError(t, err)
	require.NotNil(t, f.LockUntil)

	f, err = repo.SetLock(context.Background(), "d1", nil)
	require.NoError(t, err)
	assert.Nil(t, f.LockUntil)

	_, err = repo.SetLock(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListLocked(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`WHERE owner_id=\$1 AND lock_until > \$2`).WithArgs("u1", now).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("d1", "u1", "A", nil, now.Add(time.Hour), now, now).
			AddRow("d2", "u1", "B", "d1", now.Add(time.Minute), now, now))

	got, err := repo.ListLocked(context.Background(), "u1", now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d1", got[1].ParentID)
}

func TestDescendants(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)WITH RECURSIVE tree AS .*SELECT id FROM tree`).WithArgs("u1", "d1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("d2").AddRow("d3"))
	mock.ExpectQuery(`WITH RECURSIVE`).WithArgs("u1", "d9").WillReturnError(errors.New("boom"))

	ids, err := repo.Descendants(context.Background(), "u1", "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d3"}, ids)

	_, err = repo.Descendants(context.Background(), "u1", "d9")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM folders WHERE id=\$1`).WithArgs("d1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM folders WHERE owner_id=\$1`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.Delete(context.Background(), "d1"))
	require.NoError(t, repo.DeleteByOwner(context.Background(), "u1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
