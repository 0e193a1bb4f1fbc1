package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
	appErrors "github.com/mysociety/ceuk-marking-sub000/pkg/errors"
)

type mockDuplicateRepo struct {
	groups []models.DuplicateGroup
}

func (m *mockDuplicateRepo) ListDuplicates(ctx context.Context, sessionID int64) ([]models.DuplicateGroup, error) {
	return m.groups, nil
}

func TestFindDuplicatesClassifiesGroups(t *testing.T) {
	repo := &mockDuplicateRepo{groups: []models.DuplicateGroup{
		{
			AuthorityName: "Borsetshire Council", Section: "Transport", QuestionNumber: "1",
			Responses: []models.Response{
				{ID: 1, OptionID: int64Ptr(10)},
				{ID: 2, OptionID: int64Ptr(10)},
			},
		},
		{
			AuthorityName: "Ambridge District Council", Section: "Transport", QuestionNumber: "2",
			Responses: []models.Response{
				{ID: 3, OptionID: int64Ptr(10)},
				{ID: 4, OptionID: int64Ptr(11)},
			},
		},
		{
			AuthorityName: "Felpersham City Council", Section: "Waste", QuestionNumber: "11",
			Responses: []models.Response{
				{ID: 5, Points: intPtr(-1)},
				{ID: 6, Points: intPtr(-2)},
			},
		},
	}}
	svc := NewDuplicateService(
		&mockSessionRepo{sessions: map[string]models.MarkingSession{"2025": {ID: 1, Label: "2025"}}},
		repo, zap.NewNop())

	groups, err := svc.FindDuplicates(context.Background(), "2025")
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.True(t, groups[0].Exact)
	assert.False(t, groups[1].Exact)
	assert.False(t, groups[2].Exact)
}

func TestFindDuplicatesUnknownSession(t *testing.T) {
	svc := NewDuplicateService(
		&mockSessionRepo{sessions: map[string]models.MarkingSession{}},
		&mockDuplicateRepo{}, zap.NewNop())

	_, err := svc.FindDuplicates(context.Background(), "1987")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnknownSession.Code, appErrors.FromError(err).Code)
}
