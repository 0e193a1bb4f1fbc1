package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
	appErrors "github.com/mysociety/ceuk-marking-sub000/pkg/errors"
)

// Councils created in the April 2023 local government reorganisation. They
// existed too briefly to be marked fairly, so their scorecards are published
// as zero regardless of any responses recorded against them.
var forcedZeroCouncils = map[string]bool{
	"Cumberland Council":              true,
	"North Yorkshire Council":         true,
	"Somerset Council":                true,
	"Westmorland and Furness Council": true,
}

type sessionReader interface {
	FindByLabel(ctx context.Context, label string) (*models.MarkingSession, error)
}

type sectionReader interface {
	ListBySession(ctx context.Context, sessionID int64) ([]models.Section, error)
}

type questionReader interface {
	ListBySession(ctx context.Context, sessionID int64) ([]models.Question, error)
}

type authorityReader interface {
	ListMarkable(ctx context.Context, sessionID int64) ([]models.Authority, error)
}

type responseReader interface {
	ListByStage(ctx context.Context, sessionID int64, stage string) ([]models.Response, error)
}

type configResolver interface {
	GetExceptions(ctx context.Context, session models.MarkingSession) (*models.ExceptionsTable, error)
	GetScoreExceptions(ctx context.Context, session models.MarkingSession) (models.ScoreExceptionsTable, error)
	GetWeightings(ctx context.Context, session models.MarkingSession) (models.WeightingsTable, error)
}

type scoringObserver interface {
	ObserveScoringRun(session string, authorities int, duration time.Duration, success bool)
	IncConfigWarning(kind string)
}

// ScoringService runs full-session aggregation: it loads a frozen snapshot
// of one session's inputs, computes the max tables once, then scores every
// markable authority concurrently. Aggregation is a pure read; it never
// writes scores back, so re-running it against unchanged inputs always
// yields identical output.
type ScoringService struct {
	sessions    sessionReader
	sections    sectionReader
	questions   questionReader
	authorities authorityReader
	responses   responseReader
	config      configResolver
	maxima      *MaximumService
	exceptions  *ExceptionService
	scorer      *ResponseScorer
	metrics     scoringObserver
	logger      *zap.Logger
	workers     int
}

// NewScoringService constructs a ScoringService. metrics may be nil.
func NewScoringService(
	sessions sessionReader,
	sections sectionReader,
	questions questionReader,
	authorities authorityReader,
	responses responseReader,
	config configResolver,
	maxima *MaximumService,
	exceptions *ExceptionService,
	scorer *ResponseScorer,
	metrics scoringObserver,
	logger *zap.Logger,
	workers int,
) *ScoringService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	return &ScoringService{
		sessions:    sessions,
		sections:    sections,
		questions:   questions,
		authorities: authorities,
		responses:   responses,
		config:      config,
		maxima:      maxima,
		exceptions:  exceptions,
		scorer:      scorer,
		metrics:     metrics,
		logger:      logger,
		workers:     workers,
	}
}

// sessionTables bundles the per-session inputs shared by every authority
// worker. All of it is read-only once built.
type sessionTables struct {
	data               *models.SessionData
	questionsBySection map[string][]*models.Question
	questionsByID      map[int64]*models.Question
	responsesByAuth    map[int64]map[int64]*models.Response
	exceptions         *models.ExceptionsTable
	scoreExceptions    models.ScoreExceptionsTable
	weightings         models.WeightingsTable
	maxes              *models.SessionMaxes
	standardTitles     []string
	combinedTitles     []string
}

// Aggregate scores every markable authority in the named session and
// returns the complete result. Any data inconsistency aborts the whole run;
// no partial result is ever returned.
func (s *ScoringService) Aggregate(ctx context.Context, sessionLabel string) (*models.ScoringResult, error) {
	started := time.Now()
	result, err := s.aggregate(ctx, sessionLabel)
	if s.metrics != nil {
		count := 0
		if result != nil {
			count = len(result.Authorities)
		}
		s.metrics.ObserveScoringRun(sessionLabel, count, time.Since(started), err == nil)
	}
	return result, err
}

func (s *ScoringService) aggregate(ctx context.Context, sessionLabel string) (*models.ScoringResult, error) {
	tables, err := s.loadTables(ctx, sessionLabel)
	if err != nil {
		return nil, err
	}

	s.logger.Info("starting aggregation",
		zap.String("session", sessionLabel),
		zap.Int("authorities", len(tables.data.Authorities)),
		zap.Int("questions", len(tables.data.Questions)),
		zap.Int("workers", s.workers))

	scores, err := s.scoreAll(ctx, tables)
	if err != nil {
		return nil, err
	}

	return &models.ScoringResult{
		SessionLabel: tables.data.Session.Label,
		Authorities:  scores,
		Maxes:        tables.maxes,
	}, nil
}

func (s *ScoringService) loadTables(ctx context.Context, sessionLabel string) (*sessionTables, error) {
	session, err := s.sessions.FindByLabel(ctx, sessionLabel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnknownSession, "no marking session labelled "+sessionLabel)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	sections, err := s.sections.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sections")
	}
	questions, err := s.questions.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	authorities, err := s.authorities.ListMarkable(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load authorities")
	}
	responses, err := s.responses.ListByStage(ctx, session.ID, models.StageAudit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load responses")
	}

	exceptions, err := s.config.GetExceptions(ctx, *session)
	if err != nil {
		return nil, err
	}
	scoreExceptions, err := s.config.GetScoreExceptions(ctx, *session)
	if err != nil {
		return nil, err
	}
	weightings, err := s.config.GetWeightings(ctx, *session)
	if err != nil {
		return nil, err
	}

	data := &models.SessionData{
		Session:     *session,
		Sections:    sections,
		Questions:   questions,
		Authorities: authorities,
		Responses:   responses,
	}

	byAuth := make(map[int64]map[int64]*models.Response)
	for i := range responses {
		r := &responses[i]
		if byAuth[r.AuthorityID] == nil {
			byAuth[r.AuthorityID] = make(map[int64]*models.Response)
		}
		byAuth[r.AuthorityID][r.QuestionID] = r
	}

	standard, combined := data.SectionTitles()

	bySection := make(map[string][]*models.Question)
	byID := make(map[int64]*models.Question, len(questions))
	for i := range questions {
		q := &questions[i]
		bySection[q.Section] = append(bySection[q.Section], q)
		byID[q.ID] = q
	}
	for _, qs := range bySection {
		sort.Slice(qs, func(i, j int) bool {
			if qs[i].Number != qs[j].Number {
				return qs[i].Number < qs[j].Number
			}
			return qs[i].NumberPart < qs[j].NumberPart
		})
	}

	return &sessionTables{
		data:               data,
		questionsBySection: bySection,
		questionsByID:      byID,
		responsesByAuth:    byAuth,
		exceptions:      exceptions,
		scoreExceptions: scoreExceptions,
		weightings:      weightings,
		maxes:           s.maxima.Calculate(questions, scoreExceptions),
		standardTitles:  standard,
		combinedTitles:  combined,
	}, nil
}

// scoreAll fans the authorities out over a bounded worker pool. The first
// error cancels the remaining work and fails the run.
func (s *ScoringService) scoreAll(ctx context.Context, tables *sessionTables) (map[string]models.AuthorityScore, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan models.Authority)
	scores := make(map[string]models.AuthorityScore, len(tables.data.Authorities))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for authority := range jobs {
				score, err := s.scoreAuthority(authority, tables)
				if err != nil {
					fail(err)
					return
				}
				mu.Lock()
				scores[authority.Name] = score
				mu.Unlock()
			}
		}()
	}

	for _, authority := range tables.data.Authorities {
		select {
		case jobs <- authority:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (s *ScoringService) scoreAuthority(authority models.Authority, tables *sessionTables) (models.AuthorityScore, error) {
	titles := tables.standardTitles
	if authority.IsCombined() {
		titles = tables.combinedTitles
	}

	score := models.AuthorityScore{
		Name:     authority.Name,
		Category: authority.Category,
		Country:  authority.Country,
		Sections: make(map[string]models.SectionScore, len(titles)),
	}

	if forcedZeroCouncils[authority.Name] {
		for _, title := range titles {
			score.Sections[title] = models.SectionScore{}
		}
		return score, nil
	}

	responses := tables.responsesByAuth[authority.ID]
	s.reportStrayResponses(authority, titles, responses, tables)

	var effRawTotal int
	for _, title := range titles {
		section, err := s.scoreSection(authority, title, responses, tables)
		if err != nil {
			return models.AuthorityScore{}, err
		}
		score.Sections[title] = section

		effRaw, _ := s.exceptions.EffectiveMaxima(tables.maxes, tables.exceptions, title, authority)
		effRawTotal += effRaw
		score.RawTotal += section.Raw
		score.WeightedTotal += section.Weighted
	}
	score.WeightedTotal = round2(score.WeightedTotal)

	if effRawTotal == 0 {
		if score.RawTotal > 0 {
			return models.AuthorityScore{}, appErrors.Inconsistency(
				authority.Name, "", "", "positive total score against a zero overall maximum")
		}
		score.PercentTotal = 0
	} else {
		score.PercentTotal = round2(float64(score.RawTotal) / float64(effRawTotal))
	}
	return score, nil
}

// reportStrayResponses surfaces responses recorded against questions the
// authority cannot be scored on, either because the section is not in its
// set or the question does not apply to its category. Such responses are
// skipped during scoring; logging them keeps bad loads visible.
func (s *ScoringService) reportStrayResponses(authority models.Authority, titles []string, responses map[int64]*models.Response, tables *sessionTables) {
	scorable := make(map[int64]bool)
	for _, title := range titles {
		for _, q := range tables.questionsBySection[title] {
			if q.AppliesTo(authority.Category) {
				scorable[q.ID] = true
			}
		}
	}
	for qid := range responses {
		if scorable[qid] {
			continue
		}
		q, ok := tables.questionsByID[qid]
		if !ok {
			s.logger.Warn("response recorded against unknown question",
				zap.String("authority", authority.Name),
				zap.Int64("question_id", qid))
			continue
		}
		s.logger.Debug("skipping response outside authority's scorable set",
			zap.String("authority", authority.Name),
			zap.String("category", authority.Category),
			zap.String("section", q.Section),
			zap.String("question", q.NumberAndPart()))
	}
}

func (s *ScoringService) scoreSection(authority models.Authority, title string, responses map[int64]*models.Response, tables *sessionTables) (models.SectionScore, error) {
	var section models.SectionScore

	for _, q := range tables.questionsBySection[title] {
		if !q.AppliesTo(authority.Category) {
			continue
		}
		number := q.NumberAndPart()
		if tables.exceptions.IsExcepted(title, number, authority) {
			continue
		}

		result, err := s.scorer.Score(authority, *q, responses[q.ID], tables.scoreExceptions)
		if err != nil {
			return models.SectionScore{}, err
		}
		if result.State == models.ScoreMissing {
			continue
		}

		section.Raw += result.Value

		if q.IsNegative() {
			section.RawWeighted += float64(result.Value)
			continue
		}

		qMax := tables.maxes.QuestionMaxes[title][number]
		if qMax == 0 {
			if result.Value > 0 {
				return models.SectionScore{}, appErrors.Inconsistency(
					authority.Name, title, number, "positive score against a zero question maximum")
			}
			continue
		}
		tierPoints := tables.maxes.QuestionWeightedMaxes[title][number]
		section.RawWeighted += (float64(result.Value) / float64(qMax)) * tierPoints
	}

	effRaw, effWeighted := s.exceptions.EffectiveMaxima(tables.maxes, tables.exceptions, title, authority)

	switch {
	case effRaw == 0 && section.Raw > 0:
		return models.SectionScore{}, appErrors.Inconsistency(
			authority.Name, title, "", "positive section score against a zero section maximum")
	case effRaw > 0:
		section.RawPercent = round2(float64(section.Raw) / float64(effRaw))
	}

	switch {
	case effWeighted == 0 && section.RawWeighted > 0:
		return models.SectionScore{}, appErrors.Inconsistency(
			authority.Name, title, "", "positive weighted score against a zero weighted maximum")
	case effWeighted > 0:
		section.UnweightedPercentage = section.RawWeighted / effWeighted
	}

	factor, ok := tables.weightings.Factor(title, authority.Category)
	if !ok {
		s.logger.Warn("no section weighting configured",
			zap.String("section", title),
			zap.String("category", authority.Category))
		if s.metrics != nil {
			s.metrics.IncConfigWarning("missing_section_weighting")
		}
	}
	section.Weighted = round2(section.UnweightedPercentage * factor)

	return section, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
