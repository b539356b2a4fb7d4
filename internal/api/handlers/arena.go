package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/arena-match-engine/internal/api/middleware"
	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/rl-arena/arena-match-engine/internal/service"
	"github.com/rl-arena/arena-match-engine/pkg/logger"
)

// ArenaService operations behind the arena endpoints
type ArenaService interface {
	StartMatch(ctx context.Context, req service.StartMatchRequest) (*models.MatchView, error)
	Submit(ctx context.Context, userID, matchID string, value float64) (*service.SubmitResult, error)
	Cancel(ctx context.Context, userID, matchID string) (*models.MatchView, error)
	Get(ctx context.Context, userID, matchID string) (*models.MatchView, error)
	ActiveMatch(userID string) (string, bool)
	Quota(ctx context.Context, userID string) (models.QuotaStatus, error)
}

type ArenaHandler struct {
	arena ArenaService
}

func NewArenaHandler(arena ArenaService) *ArenaHandler {
	return &ArenaHandler{arena: arena}
}

type startMatchBody struct {
	Wager      *int64   `json:"wager" binding:"required"`
	BookIDs    []string `json:"bookIds"`
	Category   string   `json:"category"`
	Difficulty int      `json:"difficulty" binding:"gte=0"`
}

type answerBody struct {
	Value *float64 `json:"value" binding:"required"`
}

// StartMatch POST /arena/matches
func (h *ArenaHandler) StartMatch(c *gin.Context) {
	var body startMatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_INPUT"})
		return
	}

	view, err := h.arena.StartMatch(c.Request.Context(), service.StartMatchRequest{
		UserID:     middleware.UserID(c),
		Wager:      *body.Wager,
		BookIDs:    body.BookIDs,
		Category:   body.Category,
		Difficulty: body.Difficulty,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"match": view})
}

// GetMatch GET /arena/matches/:id
func (h *ArenaHandler) GetMatch(c *gin.Context) {
	view, err := h.arena.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match": view})
}

// GetActiveMatch GET /arena/matches/active, used by clients reconnecting
// mid-match.
func (h *ArenaHandler) GetActiveMatch(c *gin.Context) {
	userID := middleware.UserID(c)
	matchID, ok := h.arena.ActiveMatch(userID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active match", "code": "MATCH_NOT_FOUND"})
		return
	}

	view, err := h.arena.Get(c.Request.Context(), userID, matchID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match": view})
}

// SubmitAnswer POST /arena/matches/:id/answers. A rejected answer is still a
// 200 with accepted=false and a reason.
func (h *ArenaHandler) SubmitAnswer(c *gin.Context) {
	var body answerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_INPUT"})
		return
	}

	result, err := h.arena.Submit(c.Request.Context(), middleware.UserID(c), c.Param("id"), *body.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelMatch POST /arena/matches/:id/cancel
func (h *ArenaHandler) CancelMatch(c *gin.Context) {
	view, err := h.arena.Cancel(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match": view})
}

// GetQuota GET /arena/quota
func (h *ArenaHandler) GetQuota(c *gin.Context) {
	status, err := h.arena.Quota(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

var configErrorStatus = map[service.ConfigErrorCode]int{
	service.CodeTooManyBooksSelected: http.StatusUnprocessableEntity,
	service.CodeWagerOutOfRange:      http.StatusUnprocessableEntity,
	service.CodeInsufficientFunds:    http.StatusPaymentRequired,
	service.CodeDailyLimitReached:    http.StatusTooManyRequests,
}

// respondError maps service errors to a status and an {error, code} body
func respondError(c *gin.Context, err error) {
	var cfgErr *service.ConfigError
	if errors.As(err, &cfgErr) {
		status, ok := configErrorStatus[cfgErr.Code]
		if !ok {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": cfgErr.Error(), "code": cfgErr.Code})
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_INPUT"})
	case errors.Is(err, service.ErrMatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found", "code": "MATCH_NOT_FOUND"})
	case errors.Is(err, service.ErrMatchNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "MATCH_NOT_ACTIVE"})
	case errors.Is(err, service.ErrActiveMatchExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "ACTIVE_MATCH_EXISTS"})
	case errors.Is(err, service.ErrNoQuestions):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": "NO_QUESTIONS"})
	default:
		logger.Error("Arena request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "INTERNAL"})
	}
}
