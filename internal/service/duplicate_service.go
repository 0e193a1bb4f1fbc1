package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
	appErrors "github.com/mysociety/ceuk-marking-sub000/pkg/errors"
)

type duplicateReader interface {
	ListDuplicates(ctx context.Context, sessionID int64) ([]models.DuplicateGroup, error)
}

// DuplicateService finds (question, authority) pairs with more than one
// Audit response and classifies each group as an exact duplicate, where
// every copy records the same answer and the extras can be deleted blind,
// or a conflict needing a human decision.
type DuplicateService struct {
	sessions  sessionReader
	responses duplicateReader
	logger    *zap.Logger
}

// NewDuplicateService constructs a DuplicateService.
func NewDuplicateService(sessions sessionReader, responses duplicateReader, logger *zap.Logger) *DuplicateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuplicateService{sessions: sessions, responses: responses, logger: logger}
}

// FindDuplicates returns the session's duplicate response groups.
func (s *DuplicateService) FindDuplicates(ctx context.Context, sessionLabel string) ([]models.DuplicateGroup, error) {
	session, err := s.sessions.FindByLabel(ctx, sessionLabel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnknownSession, "no marking session labelled "+sessionLabel)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	groups, err := s.responses.ListDuplicates(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list duplicates")
	}

	for i := range groups {
		groups[i].Exact = sameAnswer(groups[i].Responses)
		if !groups[i].Exact {
			s.logger.Warn("conflicting duplicate responses",
				zap.String("authority", groups[i].AuthorityName),
				zap.String("section", groups[i].Section),
				zap.String("question", groups[i].QuestionNumber),
				zap.Int("copies", len(groups[i].Responses)))
		}
	}
	return groups, nil
}

// sameAnswer reports whether every response in the group records the same
// answer: same selected option and same points override.
func sameAnswer(responses []models.Response) bool {
	if len(responses) < 2 {
		return true
	}
	first := responses[0]
	for _, r := range responses[1:] {
		if !equalInt64Ptr(first.OptionID, r.OptionID) || !equalIntPtr(first.Points, r.Points) {
			return false
		}
	}
	return true
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
