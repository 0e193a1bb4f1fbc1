package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
	appErrors "github.com/mysociety/ceuk-marking-sub000/pkg/errors"
)

type mockSessionRepo struct {
	sessions map[string]models.MarkingSession
}

func (m *mockSessionRepo) FindByLabel(ctx context.Context, label string) (*models.MarkingSession, error) {
	session, ok := m.sessions[label]
	if !ok {
		return nil, fmt.Errorf("find session %q: %w", label, sql.ErrNoRows)
	}
	return &session, nil
}

type mockSectionRepo struct {
	sections []models.Section
}

func (m *mockSectionRepo) ListBySession(ctx context.Context, sessionID int64) ([]models.Section, error) {
	return m.sections, nil
}

type mockQuestionRepo struct {
	questions []models.Question
}

func (m *mockQuestionRepo) ListBySession(ctx context.Context, sessionID int64) ([]models.Question, error) {
	return m.questions, nil
}

type mockAuthorityRepo struct {
	authorities []models.Authority
}

func (m *mockAuthorityRepo) ListMarkable(ctx context.Context, sessionID int64) ([]models.Authority, error) {
	return m.authorities, nil
}

type mockResponseRepo struct {
	responses []models.Response
	selecting []string
}

func (m *mockResponseRepo) ListByStage(ctx context.Context, sessionID int64, stage string) ([]models.Response, error) {
	return m.responses, nil
}

func (m *mockResponseRepo) AuthoritiesSelectingOption(ctx context.Context, sessionID int64, sectionTitle, questionNumber, optionDescription string) ([]string, error) {
	return m.selecting, nil
}

type mockConfigResolver struct {
	exceptions      *models.ExceptionsTable
	scoreExceptions models.ScoreExceptionsTable
	weightings      models.WeightingsTable
}

func (m *mockConfigResolver) GetExceptions(ctx context.Context, session models.MarkingSession) (*models.ExceptionsTable, error) {
	if m.exceptions == nil {
		return &models.ExceptionsTable{}, nil
	}
	return m.exceptions, nil
}

func (m *mockConfigResolver) GetScoreExceptions(ctx context.Context, session models.MarkingSession) (models.ScoreExceptionsTable, error) {
	if m.scoreExceptions == nil {
		return models.ScoreExceptionsTable{}, nil
	}
	return m.scoreExceptions, nil
}

func (m *mockConfigResolver) GetWeightings(ctx context.Context, session models.MarkingSession) (models.WeightingsTable, error) {
	if m.weightings == nil {
		return models.WeightingsTable{}, nil
	}
	return m.weightings, nil
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

func fixtureQuestions() []models.Question {
	return []models.Question{
		{
			ID: 1, SectionID: 1, Section: "Transport", Number: 1,
			Type: models.QuestionTypeYesNo, Weighting: models.WeightingMedium,
			Categories: []string{models.CategorySingleTier},
			Options:    []models.Option{{Score: 0}, {Score: 2}},
		},
		{
			ID: 2, SectionID: 1, Section: "Transport", Number: 2,
			Type: models.QuestionTypeMultipleChoice, Weighting: models.WeightingMedium,
			Categories: []string{models.CategorySingleTier},
			Options:    []models.Option{{Score: 2}, {Score: 5}, {Score: 3}},
		},
		{
			ID: 3, SectionID: 2, Section: "Governance (CA)", Number: 1,
			Type: models.QuestionTypeYesNo, Weighting: models.WeightingHigh,
			Categories: []string{models.CategoryCombinedAuthority},
			Options:    []models.Option{{Score: 0}, {Score: 1}},
		},
	}
}

func fixtureScoringService(responses *mockResponseRepo, config *mockConfigResolver, authorities []models.Authority) *ScoringService {
	logger := zap.NewNop()
	return NewScoringService(
		&mockSessionRepo{sessions: map[string]models.MarkingSession{"2025": {ID: 1, Label: "2025"}}},
		&mockSectionRepo{sections: []models.Section{
			{ID: 1, SessionID: 1, Title: "Transport"},
			{ID: 2, SessionID: 1, Title: "Governance (CA)"},
		}},
		&mockQuestionRepo{questions: fixtureQuestions()},
		&mockAuthorityRepo{authorities: authorities},
		responses,
		config,
		NewMaximumService(logger),
		NewExceptionService(logger),
		NewResponseScorer(logger),
		nil,
		logger,
		2,
	)
}

func fixtureWeightings() models.WeightingsTable {
	return models.WeightingsTable{
		"Transport":       {models.CategorySingleTier: 0.5},
		"Governance (CA)": {models.CategoryCombinedAuthority: 1.0},
	}
}

func TestAggregateScoresCouncilAndCombinedAuthority(t *testing.T) {
	responses := &mockResponseRepo{responses: []models.Response{
		{ID: 1, AuthorityID: 1, QuestionID: 1, Stage: models.StageAudit, OptionScore: intPtr(1)},
		{ID: 2, AuthorityID: 1, QuestionID: 2, Stage: models.StageAudit, MultiTotal: 7, MultiCount: 2},
		{ID: 3, AuthorityID: 2, QuestionID: 3, Stage: models.StageAudit, OptionScore: intPtr(1)},
	}}
	svc := fixtureScoringService(responses, &mockConfigResolver{weightings: fixtureWeightings()}, []models.Authority{
		{ID: 1, Name: "Borsetshire Council", Category: models.CategorySingleTier, Country: "england"},
		{ID: 2, Name: "Borchester Combined Authority", Category: models.CategoryCombinedAuthority, Country: "england"},
	})

	result, err := svc.Aggregate(context.Background(), "2025")
	require.NoError(t, err)
	require.Len(t, result.Authorities, 2)

	council := result.Authorities["Borsetshire Council"]
	require.Contains(t, council.Sections, "Transport")
	assert.NotContains(t, council.Sections, "Governance (CA)")

	transport := council.Sections["Transport"]
	assert.Equal(t, 8, transport.Raw)
	assert.InDelta(t, 0.67, transport.RawPercent, 0.0001)
	// q1 contributes (1/2)*2 = 1 and q2 contributes (7/10)*2 = 1.4.
	assert.InDelta(t, 2.4, transport.RawWeighted, 0.0001)
	assert.InDelta(t, 0.6, transport.UnweightedPercentage, 0.0001)
	assert.InDelta(t, 0.3, transport.Weighted, 0.0001)

	assert.Equal(t, 8, council.RawTotal)
	assert.InDelta(t, 0.67, council.PercentTotal, 0.0001)
	assert.InDelta(t, 0.3, council.WeightedTotal, 0.0001)

	combined := result.Authorities["Borchester Combined Authority"]
	require.Contains(t, combined.Sections, "Governance (CA)")
	assert.NotContains(t, combined.Sections, "Transport")
	governance := combined.Sections["Governance (CA)"]
	assert.Equal(t, 1, governance.Raw)
	assert.InDelta(t, 1.0, governance.RawPercent, 0.0001)
	assert.InDelta(t, 3.0, governance.RawWeighted, 0.0001)
	assert.InDelta(t, 1.0, governance.Weighted, 0.0001)
}

func TestAggregateIsIdempotent(t *testing.T) {
	responses := &mockResponseRepo{responses: []models.Response{
		{ID: 1, AuthorityID: 1, QuestionID: 1, Stage: models.StageAudit, OptionScore: intPtr(1)},
		{ID: 2, AuthorityID: 1, QuestionID: 2, Stage: models.StageAudit, MultiTotal: 7, MultiCount: 2},
	}}
	svc := fixtureScoringService(responses, &mockConfigResolver{weightings: fixtureWeightings()}, []models.Authority{
		{ID: 1, Name: "Borsetshire Council", Category: models.CategorySingleTier, Country: "england"},
	})

	first, err := svc.Aggregate(context.Background(), "2025")
	require.NoError(t, err)
	second, err := svc.Aggregate(context.Background(), "2025")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAggregateExceptionHidesQuestionAndReducesMaxima(t *testing.T) {
	exceptions := &models.ExceptionsTable{}
	exceptions.Add(models.ExceptionRule{
		Section:       "Transport",
		AuthorityName: "Borsetshire Council",
		Questions:     []string{"2"},
	})
	responses := &mockResponseRepo{responses: []models.Response{
		{ID: 1, AuthorityID: 1, QuestionID: 1, Stage: models.StageAudit, OptionScore: intPtr(1)},
		// Recorded against the excepted question; must not count.
		{ID: 2, AuthorityID: 1, QuestionID: 2, Stage: models.StageAudit, MultiTotal: 7, MultiCount: 2},
	}}
	svc := fixtureScoringService(responses, &mockConfigResolver{
		exceptions: exceptions,
		weightings: fixtureWeightings(),
	}, []models.Authority{
		{ID: 1, Name: "Borsetshire Council", Category: models.CategorySingleTier, Country: "england"},
	})

	result, err := svc.Aggregate(context.Background(), "2025")
	require.NoError(t, err)

	transport := result.Authorities["Borsetshire Council"].Sections["Transport"]
	assert.Equal(t, 1, transport.Raw)
	assert.InDelta(t, 0.5, transport.RawPercent, 0.0001)
	assert.InDelta(t, 1.0, transport.RawWeighted, 0.0001)
	assert.InDelta(t, 0.5, transport.UnweightedPercentage, 0.0001)
	assert.InDelta(t, 0.25, transport.Weighted, 0.0001)
}

func TestAggregateForcedZeroCouncil(t *testing.T) {
	responses := &mockResponseRepo{responses: []models.Response{
		{ID: 1, AuthorityID: 1, QuestionID: 1, Stage: models.StageAudit, OptionScore: intPtr(1)},
	}}
	svc := fixtureScoringService(responses, &mockConfigResolver{weightings: fixtureWeightings()}, []models.Authority{
		{ID: 1, Name: "Somerset Council", Category: models.CategorySingleTier, Country: "england"},
	})

	result, err := svc.Aggregate(context.Background(), "2025")
	require.NoError(t, err)

	somerset := result.Authorities["Somerset Council"]
	require.Contains(t, somerset.Sections, "Transport")
	assert.Equal(t, models.SectionScore{}, somerset.Sections["Transport"])
	assert.Equal(t, 0, somerset.RawTotal)
	assert.Zero(t, somerset.PercentTotal)
	assert.Zero(t, somerset.WeightedTotal)
}

func TestAggregateZeroOverZeroScoresZero(t *testing.T) {
	// No responses at all: section scores are 0 over a positive max, total
	// percentages are plain zero, never NaN.
	svc := fixtureScoringService(&mockResponseRepo{}, &mockConfigResolver{weightings: fixtureWeightings()}, []models.Authority{
		{ID: 1, Name: "Borsetshire Council", Category: models.CategorySingleTier, Country: "england"},
	})

	result, err := svc.Aggregate(context.Background(), "2025")
	require.NoError(t, err)

	council := result.Authorities["Borsetshire Council"]
	assert.Zero(t, council.Sections["Transport"].RawPercent)
	assert.Zero(t, council.PercentTotal)
}

func TestAggregatePositiveScoreOverZeroMaxFails(t *testing.T) {
	// A question whose options all score zero has a zero max; a positive
	// recorded score against it can only be bad data.
	logger := zap.NewNop()
	svc := NewScoringService(
		&mockSessionRepo{sessions: map[string]models.MarkingSession{"2025": {ID: 1, Label: "2025"}}},
		&mockSectionRepo{sections: []models.Section{{ID: 1, SessionID: 1, Title: "Transport"}}},
		&mockQuestionRepo{questions: []models.Question{{
			ID: 1, SectionID: 1, Section: "Transport", Number: 1,
			Type: models.QuestionTypeYesNo, Weighting: models.WeightingLow,
			Categories: []string{models.CategorySingleTier},
			Options:    []models.Option{{Score: 0}},
		}}},
		&mockAuthorityRepo{authorities: []models.Authority{
			{ID: 1, Name: "Borsetshire Council", Category: models.CategorySingleTier, Country: "england"},
		}},
		&mockResponseRepo{responses: []models.Response{
			{ID: 1, AuthorityID: 1, QuestionID: 1, Stage: models.StageAudit, OptionScore: intPtr(2)},
		}},
		&mockConfigResolver{},
		NewMaximumService(logger),
		NewExceptionService(logger),
		NewResponseScorer(logger),
		nil,
		logger,
		1,
	)

	result, err := svc.Aggregate(context.Background(), "2025")
	require.Error(t, err)
	assert.True(t, appErrors.IsDataInconsistency(err))
	assert.Nil(t, result)
}

func TestAggregateNegativeQuestionSubtractsWithoutRaisingMaxima(t *testing.T) {
	logger := zap.NewNop()
	questions := append(fixtureQuestions(), models.Question{
		ID: 4, SectionID: 1, Section: "Transport", Number: 4,
		Type: models.QuestionTypeNegative, Weighting: models.WeightingMedium,
		Categories: []string{models.CategorySingleTier},
	})
	svc := NewScoringService(
		&mockSessionRepo{sessions: map[string]models.MarkingSession{"2025": {ID: 1, Label: "2025"}}},
		&mockSectionRepo{sections: []models.Section{
			{ID: 1, SessionID: 1, Title: "Transport"},
			{ID: 2, SessionID: 1, Title: "Governance (CA)"},
		}},
		&mockQuestionRepo{questions: questions},
		&mockAuthorityRepo{authorities: []models.Authority{
			{ID: 1, Name: "Borsetshire Council", Category: models.CategorySingleTier, Country: "england"},
		}},
		&mockResponseRepo{responses: []models.Response{
			{ID: 1, AuthorityID: 1, QuestionID: 1, Stage: models.StageAudit, OptionScore: intPtr(2)},
			{ID: 2, AuthorityID: 1, QuestionID: 2, Stage: models.StageAudit, MultiTotal: 7, MultiCount: 2},
			{ID: 3, AuthorityID: 1, QuestionID: 4, Stage: models.StageAudit, Points: intPtr(-2)},
		}},
		&mockConfigResolver{weightings: fixtureWeightings()},
		NewMaximumService(logger),
		NewExceptionService(logger),
		NewResponseScorer(logger),
		nil,
		logger,
		1,
	)

	result, err := svc.Aggregate(context.Background(), "2025")
	require.NoError(t, err)

	// The penalty question never raises the maxima.
	assert.Equal(t, 0, result.Maxes.QuestionMaxes["Transport"]["4"])
	assert.True(t, result.Maxes.NegativeQuestions["Transport"]["4"])
	assert.Equal(t, 12, result.Maxes.SectionMaxes["Transport"][models.CategorySingleTier])

	council := result.Authorities["Borsetshire Council"]
	transport := council.Sections["Transport"]
	// 2 + 7 - 2 = 7 raw, over the unchanged max of 12.
	assert.Equal(t, 7, transport.Raw)
	assert.InDelta(t, 0.58, transport.RawPercent, 0.0001)
	// (2/2)*2 + (7/10)*2 - 2: the penalty lands in the weighted
	// accumulator unnormalized.
	assert.InDelta(t, 1.4, transport.RawWeighted, 0.0001)
	assert.InDelta(t, 0.35, transport.UnweightedPercentage, 0.0001)

	assert.Equal(t, 7, council.RawTotal)
	assert.InDelta(t, 0.58, council.PercentTotal, 0.0001)
}

func TestAggregateUnknownSession(t *testing.T) {
	svc := fixtureScoringService(&mockResponseRepo{}, &mockConfigResolver{}, nil)

	result, err := svc.Aggregate(context.Background(), "1987")
	require.Error(t, err)
	assert.Nil(t, result)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnknownSession.Code, appErr.Code)
}

func TestAggregateLogsStrayResponses(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	svc := NewScoringService(
		&mockSessionRepo{sessions: map[string]models.MarkingSession{"2025": {ID: 1, Label: "2025"}}},
		&mockSectionRepo{sections: []models.Section{
			{ID: 1, SessionID: 1, Title: "Transport"},
			{ID: 2, SessionID: 1, Title: "Governance (CA)"},
		}},
		&mockQuestionRepo{questions: fixtureQuestions()},
		&mockAuthorityRepo{authorities: []models.Authority{
			{ID: 1, Name: "Borsetshire Council", Category: models.CategorySingleTier, Country: "england"},
		}},
		&mockResponseRepo{responses: []models.Response{
			{ID: 1, AuthorityID: 1, QuestionID: 1, Stage: models.StageAudit, OptionScore: intPtr(1)},
			// A council answer against the combined-authority-only question.
			{ID: 2, AuthorityID: 1, QuestionID: 3, Stage: models.StageAudit, OptionScore: intPtr(1)},
			// And one against a question that does not exist at all.
			{ID: 3, AuthorityID: 1, QuestionID: 99, Stage: models.StageAudit, OptionScore: intPtr(1)},
		}},
		&mockConfigResolver{weightings: fixtureWeightings()},
		NewMaximumService(logger),
		NewExceptionService(logger),
		NewResponseScorer(logger),
		nil,
		logger,
		1,
	)

	result, err := svc.Aggregate(context.Background(), "2025")
	require.NoError(t, err)

	// Neither stray response counts towards the council's score.
	assert.Equal(t, 1, result.Authorities["Borsetshire Council"].RawTotal)

	assert.Equal(t, 1, logs.FilterMessage("skipping response outside authority's scorable set").Len())
	assert.Equal(t, 1, logs.FilterMessage("response recorded against unknown question").Len())
}

func TestAggregateMissingAnswerIsNotZero(t *testing.T) {
	// A council answering only one of two questions still gets percentages
	// over the full maxima; the unanswered question simply contributes
	// nothing.
	responses := &mockResponseRepo{responses: []models.Response{
		{ID: 1, AuthorityID: 1, QuestionID: 1, Stage: models.StageAudit, OptionScore: intPtr(2)},
	}}
	svc := fixtureScoringService(responses, &mockConfigResolver{weightings: fixtureWeightings()}, []models.Authority{
		{ID: 1, Name: "Borsetshire Council", Category: models.CategorySingleTier, Country: "england"},
	})

	result, err := svc.Aggregate(context.Background(), "2025")
	require.NoError(t, err)

	transport := result.Authorities["Borsetshire Council"].Sections["Transport"]
	assert.Equal(t, 2, transport.Raw)
	assert.InDelta(t, 0.17, transport.RawPercent, 0.0001)
}
