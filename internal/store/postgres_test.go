package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/ptw/internal/models"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestPostgresMigrate(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS permits")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, pg.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveUpserts(t *testing.T) {
	pg, mock := newMockPostgres(t)
	p := permitAt("p-1", "north", models.StatusActive, 0)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO permits (id, status, site_id, is_template, created_at, updated_at, document)\nVALUES ($1, $2, $3, $4, $5, $6, $7)\nON CONFLICT (id) DO UPDATE")).
		WithArgs("p-1", "active", "north", false, base.UnixNano(), base.UnixNano(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, pg.Save(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoad(t *testing.T) {
	pg, mock := newMockPostgres(t)
	doc, err := models.Encode(permitAt("p-1", "north", models.StatusActive, 0))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM permits WHERE id = $1")).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(doc))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM permits WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	got, err := pg.Load(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "north", got.SiteID)

	_, err = pg.Load(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListBuildsNumberedFilter(t *testing.T) {
	pg, mock := newMockPostgres(t)
	from := base.Add(-time.Hour)
	doc, err := models.Encode(permitAt("p-1", "north", models.StatusActive, 0))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM permits WHERE is_template = $1 AND site_id = $2 AND status = $3 AND created_at >= $4 ORDER BY created_at DESC, id ASC")).
		WithArgs(false, "north", "active", from.UnixNano()).
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(doc))

	ps, err := pg.List(context.Background(), Filter{SiteID: "north", Status: models.StatusActive, From: from})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "p-1", ps[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListAppliesRequiresAfterDecode(t *testing.T) {
	pg, mock := newMockPostgres(t)
	welding := permitAt("p-1", "north", models.StatusActive, 0)
	welding.SpecializedPermits["hotWork"] = &models.SpecializedPermitState{Required: true}
	plain := permitAt("p-2", "north", models.StatusActive, time.Hour)

	rows := sqlmock.NewRows([]string{"document"})
	for _, p := range []*models.Permit{plain, welding} {
		doc, err := models.Encode(p)
		require.NoError(t, err)
		rows.AddRow(doc)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM permits WHERE is_template = $1 ORDER BY created_at DESC, id ASC")).
		WithArgs(false).
		WillReturnRows(rows)

	ps, err := pg.List(context.Background(), Filter{Requires: "hotWork"})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "p-1", ps[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDelete(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM permits WHERE id = $1")).
		WithArgs("p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM permits WHERE id = $1")).
		WithArgs("p-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, pg.Delete(context.Background(), "p-1"))
	assert.True(t, errors.Is(pg.Delete(context.Background(), "p-1"), ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
