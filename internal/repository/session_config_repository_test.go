package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSessionConfigRepositoryGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSessionConfigRepository(db)
	payload := []byte(`{"Transport": {"Single Tier": 0.4}}`)
	rows := sqlmock.NewRows([]string{"json_value"}).AddRow(payload)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT json_value FROM session_configs")).
		WithArgs(int64(1), models.ConfigWeightings).
		WillReturnRows(rows)

	raw, err := repo.Get(context.Background(), 1, models.ConfigWeightings)
	require.NoError(t, err)
	require.Equal(t, payload, raw)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionConfigRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSessionConfigRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT json_value FROM session_configs")).
		WithArgs(int64(1), models.ConfigExceptions).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 1, models.ConfigExceptions)
	require.Error(t, err)
	require.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}
