package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
	"github.com/mysociety/ceuk-marking-sub000/pkg/response"
)

type scoringRunner interface {
	Aggregate(ctx context.Context, sessionLabel string) (*models.ScoringResult, error)
}

type duplicateFinder interface {
	FindDuplicates(ctx context.Context, sessionLabel string) ([]models.DuplicateGroup, error)
}

type configCacheClearer interface {
	ClearCache()
}

type resultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// ScoringHandler exposes the scoring engine over HTTP. All endpoints are
// read-only; the result cache keeps repeated reads from re-running the
// aggregation.
type ScoringHandler struct {
	scoring    scoringRunner
	duplicates duplicateFinder
	config     configCacheClearer
	cache      resultCache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewScoringHandler constructs a ScoringHandler.
func NewScoringHandler(scoring scoringRunner, duplicates duplicateFinder, config configCacheClearer, cache resultCache, cacheTTL time.Duration, logger *zap.Logger) *ScoringHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoringHandler{
		scoring:    scoring,
		duplicates: duplicates,
		config:     config,
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

func scoresCacheKey(session string) string {
	return "scores:" + session
}

func (h *ScoringHandler) cachedResult(c *gin.Context, session string) (*models.ScoringResult, error) {
	var cached models.ScoringResult
	if hit, err := h.cache.Get(c.Request.Context(), scoresCacheKey(session), &cached); err == nil && hit {
		return &cached, nil
	}

	result, err := h.scoring.Aggregate(c.Request.Context(), session)
	if err != nil {
		return nil, err
	}
	if err := h.cache.Set(c.Request.Context(), scoresCacheKey(session), result, h.cacheTTL); err != nil {
		h.logger.Warn("failed to cache scoring result", zap.String("session", session), zap.Error(err))
	}
	return result, nil
}

// GetScores returns the full scoring result for a session.
func (h *ScoringHandler) GetScores(c *gin.Context) {
	result, err := h.cachedResult(c, c.Param("session"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// GetMaxes returns just the session max tables.
func (h *ScoringHandler) GetMaxes(c *gin.Context) {
	result, err := h.cachedResult(c, c.Param("session"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Maxes)
}

// GetDuplicates lists conflicting and exact duplicate responses for a
// session.
func (h *ScoringHandler) GetDuplicates(c *gin.Context) {
	groups, err := h.duplicates.FindDuplicates(c.Request.Context(), c.Param("session"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, map[string]interface{}{"count": len(groups)})
}

// ClearCache drops the in-process config tables and the cached result for
// the session.
func (h *ScoringHandler) ClearCache(c *gin.Context) {
	session := c.Param("session")
	h.config.ClearCache()
	if err := h.cache.Invalidate(c.Request.Context(), scoresCacheKey(session)+"*"); err != nil {
		h.logger.Warn("failed to invalidate scoring cache", zap.String("session", session), zap.Error(err))
	}
	response.JSON(c, http.StatusOK, gin.H{"cleared": session})
}
