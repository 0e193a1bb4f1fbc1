package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
	"github.com/mysociety/ceuk-marking-sub000/internal/repository"
	"github.com/mysociety/ceuk-marking-sub000/internal/service"
	"github.com/mysociety/ceuk-marking-sub000/pkg/config"
	"github.com/mysociety/ceuk-marking-sub000/pkg/database"
	appErrors "github.com/mysociety/ceuk-marking-sub000/pkg/errors"
	"github.com/mysociety/ceuk-marking-sub000/pkg/export"
	"github.com/mysociety/ceuk-marking-sub000/pkg/logger"
)

var exportTypes = []models.ExportType{
	models.ExportTypeSectionScores,
	models.ExportTypeTotals,
	models.ExportTypeRawAndWeighted,
	models.ExportTypeMaxes,
}

func main() {
	var (
		sessionLabel = flag.String("session", "", "marking session label to export")
		outDir       = flag.String("dir", ".", "directory to write export files into")
		format       = flag.String("format", "csv", "output format: csv or pdf")
	)
	flag.Parse()

	if *sessionLabel == "" {
		fmt.Fprintln(os.Stderr, "usage: export-marks -session <label> [-dir <path>] [-format csv|pdf]")
		os.Exit(2)
	}
	exportFormat := models.ExportFormat(*format)
	if exportFormat != models.ExportFormatCSV && exportFormat != models.ExportFormatPDF {
		fmt.Fprintf(os.Stderr, "unsupported format %q\n", *format)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	sessionRepo := repository.NewSessionRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	authorityRepo := repository.NewAuthorityRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	configRepo := repository.NewSessionConfigRepository(db)

	configSvc := service.NewConfigService(configRepo, responseRepo, logr)
	scoringSvc := service.NewScoringService(
		sessionRepo, sectionRepo, questionRepo, authorityRepo, responseRepo,
		configSvc, service.NewMaximumService(logr), service.NewExceptionService(logr),
		service.NewResponseScorer(logr), nil, logr, cfg.Scoring.Workers)
	exportSvc := service.NewExportService(export.NewCSVExporter(), export.NewPDFExporter(), logr)

	ctx := context.Background()
	result, err := scoringSvc.Aggregate(ctx, *sessionLabel)
	if err != nil {
		if appErrors.IsDataInconsistency(err) {
			logr.Sugar().Errorw("aggregation aborted on inconsistent data", "session", *sessionLabel, "error", err)
		} else {
			logr.Sugar().Errorw("aggregation failed", "session", *sessionLabel, "error", err)
		}
		os.Exit(1)
	}

	// Render everything before writing anything so a failure never leaves a
	// partial set of files behind.
	type rendered struct {
		filename string
		data     []byte
	}
	files := make([]rendered, 0, len(exportTypes))
	for _, exportType := range exportTypes {
		data, filename, err := exportSvc.Render(result, exportType, exportFormat)
		if err != nil {
			logr.Sugar().Errorw("failed to render export", "type", exportType, "error", err)
			os.Exit(1)
		}
		files = append(files, rendered{filename: filename, data: data})
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logr.Sugar().Errorw("failed to create output directory", "dir", *outDir, "error", err)
		os.Exit(1)
	}
	for _, f := range files {
		path := filepath.Join(*outDir, f.filename)
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			logr.Sugar().Errorw("failed to write export file", "path", path, "error", err)
			os.Exit(1)
		}
		logr.Sugar().Infow("wrote export file", "path", path)
	}
	logr.Sugar().Infow("export complete", "session", *sessionLabel, "councils", len(result.Authorities))
}
