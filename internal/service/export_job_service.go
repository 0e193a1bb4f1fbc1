package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
	"github.com/mysociety/ceuk-marking-sub000/internal/repository"
	appErrors "github.com/mysociety/ceuk-marking-sub000/pkg/errors"
	"github.com/mysociety/ceuk-marking-sub000/pkg/jobs"
	"github.com/mysociety/ceuk-marking-sub000/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
}

type jobDispatcher interface {
	Enqueue(task jobs.Task) error
}

type scoringRunner interface {
	Aggregate(ctx context.Context, sessionLabel string) (*models.ScoringResult, error)
}

// ExportRequest is the payload for creating an asynchronous export.
type ExportRequest struct {
	Session string              `json:"session" validate:"required"`
	Type    models.ExportType   `json:"type" validate:"required,oneof=section_scores totals raw_and_weighted maxes"`
	Format  models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// ExportJobServiceConfig governs retries and result retention.
type ExportJobServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ExportJobService orchestrates export job lifecycle management: create and
// enqueue, expose status, resolve signed download tokens, recover queued
// jobs after a restart and clean up expired files.
type ExportJobService struct {
	repo     exportJobStore
	queue    jobDispatcher
	store    *storage.ExportStore
	signer   *storage.SignedURLSigner
	validate *validator.Validate
	logger   *zap.Logger
	cfg      ExportJobServiceConfig
}

// NewExportJobService constructs the export job service.
func NewExportJobService(repo exportJobStore, queue jobDispatcher, store *storage.ExportStore, signer *storage.SignedURLSigner, logger *zap.Logger, cfg ExportJobServiceConfig) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ExportJobService{
		repo:     repo,
		queue:    queue,
		store:    store,
		signer:   signer,
		validate: validator.New(),
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateJob validates the request, persists the job and enqueues processing.
func (s *ExportJobService) CreateJob(ctx context.Context, req ExportRequest) (*models.ExportJob, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	job := &models.ExportJob{
		Type:   req.Type,
		Params: models.ExportJobParams{Session: req.Session, Format: req.Format},
		Status: models.ExportStatusQueued,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Task{JobID: job.ID, Kind: string(job.Type), Session: job.Params.Session}); err != nil {
		failed := models.ExportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &failed,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return job, nil
}

// GetStatus exposes job metadata to clients.
func (s *ExportJobService) GetStatus(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

// ResolveDownload validates a token and opens the stored export file.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	exportID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, exportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a process restart.
func (s *ExportJobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued export jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Task{JobID: job.ID, Kind: string(job.Type), Session: job.Params.Session}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired export files
// periodically.
func (s *ExportJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed, err := s.store.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
					s.logger.Sugar().Warnw("export cleanup failed", "error", err)
				} else if len(removed) > 0 {
					s.logger.Sugar().Infow("removed expired export files", "count", len(removed))
				}
			}
		}
	}()
}

// ExportWorker bridges queue jobs to the scoring engine and renderers.
type ExportWorker struct {
	repo       exportJobStore
	scorer     scoringRunner
	exporter   *ExportService
	store      *storage.ExportStore
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
	maxRetries int
}

// NewExportWorker constructs a worker.
func NewExportWorker(repo exportJobStore, scorer scoringRunner, exporter *ExportService, store *storage.ExportStore, signer *storage.SignedURLSigner, maxRetries int, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ExportWorker{
		repo:       repo,
		scorer:     scorer,
		exporter:   exporter,
		store:      store,
		signer:     signer,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes a queue task end to end: aggregate, render, store, sign.
func (w *ExportWorker) Handle(ctx context.Context, task jobs.Task) error {
	record, err := w.repo.GetByID(ctx, task.JobID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	if err := w.repo.Update(ctx, task.JobID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		return err
	}

	url, err := w.generate(ctx, record)
	if err != nil {
		// Data inconsistencies are deterministic; retrying only repeats the
		// same failure.
		if appErrors.IsDataInconsistency(err) || task.Attempt >= w.maxRetries {
			w.markFailed(ctx, task.JobID, err)
			if appErrors.IsDataInconsistency(err) {
				return nil
			}
			return err
		}
		msg := err.Error()
		queued := models.ExportStatusQueued
		if updateErr := w.repo.Update(ctx, task.JobID, repository.UpdateExportJobParams{
			Status:       &queued,
			ErrorMessage: &msg,
		}); updateErr != nil {
			w.logger.Sugar().Warnw("failed to mark job queued", "job_id", task.JobID, "error", updateErr)
		}
		return err
	}

	finished := models.ExportStatusFinished
	now := time.Now().UTC()
	clear := ""
	if err := w.repo.Update(ctx, task.JobID, repository.UpdateExportJobParams{
		Status:       &finished,
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", task.JobID, "error", err)
		return err
	}
	return nil
}

func (w *ExportWorker) generate(ctx context.Context, record *models.ExportJob) (string, error) {
	result, err := w.scorer.Aggregate(ctx, record.Params.Session)
	if err != nil {
		return "", err
	}
	data, filename, err := w.exporter.Render(result, record.Type, record.Params.Format)
	if err != nil {
		return "", err
	}
	name, err := w.store.SaveArtifact(record.ID, filename, data)
	if err != nil {
		return "", fmt.Errorf("store export artifact: %w", err)
	}
	token, _, err := w.signer.Generate(record.ID, name)
	if err != nil {
		return "", fmt.Errorf("sign export url: %w", err)
	}
	return "/api/v1/export/" + token, nil
}

func (w *ExportWorker) markFailed(ctx context.Context, jobID string, cause error) {
	failed := models.ExportStatusFailed
	msg := cause.Error()
	now := time.Now().UTC()
	if err := w.repo.Update(ctx, jobID, repository.UpdateExportJobParams{
		Status:       &failed,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job failed", "job_id", jobID, "error", err)
	}
}
