package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
	appErrors "github.com/mysociety/ceuk-marking-sub000/pkg/errors"
)

// Housing-stock rule. Authorities answering the Buildings & Heating stock
// ownership question with the no-stock option are exempt from the
// housing-dependent questions in that section. This is a one-off business
// rule from the source data, kept as literal configuration on purpose.
const (
	housingSectionTitle  = "Buildings & Heating"
	housingStockQuestion = "7"
	housingNoStockOption = "The council does not own or manage any council homes"
)

var housingDependentQuestions = []string{"8"}

type sessionConfigStore interface {
	Get(ctx context.Context, sessionID int64, name string) ([]byte, error)
}

type optionSelectionStore interface {
	AuthoritiesSelectingOption(ctx context.Context, sessionID int64, sectionTitle, questionNumber, optionDescription string) ([]string, error)
}

// ConfigService resolves and caches the three per-session config tables:
// question exceptions, score exceptions and section weightings. Stored
// config is immutable for the life of a scoring run, so each table is
// fetched and parsed once per session until ClearCache is called. The
// housing-stock exemptions depend on Audit responses and are re-derived on
// every GetExceptions call, never cached.
type ConfigService struct {
	configs   sessionConfigStore
	responses optionSelectionStore
	logger    *zap.Logger

	mu              sync.RWMutex
	exceptions      map[int64]*models.ExceptionsTable
	scoreExceptions map[int64]models.ScoreExceptionsTable
	weightings      map[int64]models.WeightingsTable
}

// NewConfigService constructs a ConfigService.
func NewConfigService(configs sessionConfigStore, responses optionSelectionStore, logger *zap.Logger) *ConfigService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigService{
		configs:         configs,
		responses:       responses,
		logger:          logger,
		exceptions:      make(map[int64]*models.ExceptionsTable),
		scoreExceptions: make(map[int64]models.ScoreExceptionsTable),
		weightings:      make(map[int64]models.WeightingsTable),
	}
}

// GetExceptions returns the exception table for a session: the stored rules
// plus per-authority rules derived from housing-stock responses. The stored
// part is cached; the derived part is layered onto a copy each call.
func (s *ConfigService) GetExceptions(ctx context.Context, session models.MarkingSession) (*models.ExceptionsTable, error) {
	stored, err := s.storedExceptions(ctx, session)
	if err != nil {
		return nil, err
	}

	table := stored.Clone()
	names, err := s.responses.AuthoritiesSelectingOption(ctx, session.ID, housingSectionTitle, housingStockQuestion, housingNoStockOption)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to derive housing exceptions")
	}
	for _, name := range names {
		table.Add(models.ExceptionRule{
			Section:       housingSectionTitle,
			AuthorityName: name,
			Questions:     housingDependentQuestions,
		})
	}
	return table, nil
}

// GetScoreExceptions returns the score exception table for a session,
// defaulting to an empty table when none is configured.
func (s *ConfigService) GetScoreExceptions(ctx context.Context, session models.MarkingSession) (models.ScoreExceptionsTable, error) {
	s.mu.RLock()
	cached, ok := s.scoreExceptions[session.ID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	table := models.ScoreExceptionsTable{}
	raw, err := s.configs.Get(ctx, session.ID, models.ConfigScoreExceptions)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load score exceptions")
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &table); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to parse score exceptions")
		}
	}

	s.mu.Lock()
	s.scoreExceptions[session.ID] = table
	s.mu.Unlock()
	return table, nil
}

// GetWeightings returns the section weighting table for a session,
// defaulting to an empty table when none is configured.
func (s *ConfigService) GetWeightings(ctx context.Context, session models.MarkingSession) (models.WeightingsTable, error) {
	s.mu.RLock()
	cached, ok := s.weightings[session.ID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	table := models.WeightingsTable{}
	raw, err := s.configs.Get(ctx, session.ID, models.ConfigWeightings)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section weightings")
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &table); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to parse section weightings")
		}
	}

	s.mu.Lock()
	s.weightings[session.ID] = table
	s.mu.Unlock()
	return table, nil
}

// ClearCache drops all cached config tables. Any process that edits session
// config between runs must call this before the next aggregation.
func (s *ConfigService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = make(map[int64]*models.ExceptionsTable)
	s.scoreExceptions = make(map[int64]models.ScoreExceptionsTable)
	s.weightings = make(map[int64]models.WeightingsTable)
}

func (s *ConfigService) storedExceptions(ctx context.Context, session models.MarkingSession) (*models.ExceptionsTable, error) {
	s.mu.RLock()
	cached, ok := s.exceptions[session.ID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	table := &models.ExceptionsTable{}
	raw, err := s.configs.Get(ctx, session.ID, models.ConfigExceptions)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exceptions")
	}
	if len(raw) > 0 {
		table, err = parseExceptions(raw)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to parse exceptions")
		}
	}

	s.mu.Lock()
	s.exceptions[session.ID] = table
	s.mu.Unlock()
	return table, nil
}

var knownCategories = map[string]bool{
	models.CategorySingleTier:        true,
	models.CategoryDistrict:          true,
	models.CategoryCounty:            true,
	models.CategoryNorthernIreland:   true,
	models.CategoryCombinedAuthority: true,
}

// parseExceptions converts the stored JSON into typed rules. The stored
// shape keys each section by authority category (whose value nests country
// to question lists), authority type code, or authority name:
//
//	{"Transport": {"Single Tier": {"scotland": ["6","8b"]},
//	               "LBO": ["6"],
//	               "Greater London Authority": ["6"]}}
//
// Category names come from the fixed set; of the remaining keys, short
// all-caps ones are type codes and everything else is an authority name.
func parseExceptions(raw []byte) (*models.ExceptionsTable, error) {
	var decoded map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode exceptions: %w", err)
	}

	table := &models.ExceptionsTable{}
	for section, entries := range decoded {
		for key, value := range entries {
			switch {
			case knownCategories[key]:
				var byCountry map[string][]string
				if err := json.Unmarshal(value, &byCountry); err != nil {
					return nil, fmt.Errorf("decode exceptions for %s/%s: %w", section, key, err)
				}
				for country, questions := range byCountry {
					table.Add(models.ExceptionRule{
						Section:   section,
						Category:  key,
						Country:   country,
						Questions: questions,
					})
				}
			case isAuthorityTypeCode(key):
				var questions []string
				if err := json.Unmarshal(value, &questions); err != nil {
					return nil, fmt.Errorf("decode exceptions for %s/%s: %w", section, key, err)
				}
				table.Add(models.ExceptionRule{
					Section:       section,
					AuthorityType: key,
					Questions:     questions,
				})
			default:
				var questions []string
				if err := json.Unmarshal(value, &questions); err != nil {
					return nil, fmt.Errorf("decode exceptions for %s/%s: %w", section, key, err)
				}
				table.Add(models.ExceptionRule{
					Section:       section,
					AuthorityName: key,
					Questions:     questions,
				})
			}
		}
	}
	return table, nil
}

func isAuthorityTypeCode(key string) bool {
	return len(key) <= 4 && key == strings.ToUpper(key) && !strings.Contains(key, " ")
}
