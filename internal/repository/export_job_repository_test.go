package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
)

func TestExportJobRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExportJobRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO export_jobs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ExportJob{
		Type:   models.ExportTypeTotals,
		Params: models.ExportJobParams{Session: "2025", Format: models.ExportFormatCSV},
	}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NotEmpty(t, job.ID)
	require.Equal(t, models.ExportStatusQueued, job.Status)

	rows := sqlmock.NewRows([]string{"id", "type", "params", "status", "result_url", "created_at", "finished_at", "error_message"}).
		AddRow(job.ID, string(job.Type), []byte(`{"session":"2025","format":"csv"}`), string(job.Status), nil, time.Now().UTC(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM export_jobs WHERE id = $1")).
		WithArgs(job.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, "2025", found.Params.Session)
	require.Equal(t, models.ExportFormatCSV, found.Params.Format)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExportJobRepository(db)
	finished := models.ExportStatusFinished
	url := "/api/v1/export/token-1"
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE export_jobs SET")).
		WithArgs(string(finished), url, now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateExportJobParams{
		Status:     &finished,
		ResultURL:  &url,
		FinishedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryUpdateNoFields(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExportJobRepository(db)
	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateExportJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}
