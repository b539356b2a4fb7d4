package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/arena-match-engine/internal/api/middleware"
	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/rl-arena/arena-match-engine/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubArena struct {
	startReq  service.StartMatchRequest
	submitted []float64
	err       error
	result    *service.SubmitResult
	active    string
	view      *models.MatchView
}

func (s *stubArena) StartMatch(ctx context.Context, req service.StartMatchRequest) (*models.MatchView, error) {
	s.startReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.view, nil
}

func (s *stubArena) Submit(ctx context.Context, userID, matchID string, value float64) (*service.SubmitResult, error) {
	s.submitted = append(s.submitted, value)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubArena) Cancel(ctx context.Context, userID, matchID string) (*models.MatchView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.view, nil
}

func (s *stubArena) Get(ctx context.Context, userID, matchID string) (*models.MatchView, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.view == nil || s.view.ID != matchID || s.view.UserID != userID {
		return nil, service.ErrMatchNotFound
	}
	return s.view, nil
}

func (s *stubArena) ActiveMatch(userID string) (string, bool) {
	return s.active, s.active != ""
}

func (s *stubArena) Quota(ctx context.Context, userID string) (models.QuotaStatus, error) {
	if s.err != nil {
		return models.QuotaStatus{}, s.err
	}
	return models.QuotaStatus{Tier: models.TierFree, Day: "2026-03-14", Limit: 3, Used: 1, Remaining: 2}, nil
}

func newTestRouter(arena ArenaService) *gin.Engine {
	h := NewArenaHandler(arena)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "player-1")
		c.Next()
	})
	r.POST("/matches", h.StartMatch)
	r.GET("/matches/active", h.GetActiveMatch)
	r.GET("/matches/:id", h.GetMatch)
	r.POST("/matches/:id/answers", h.SubmitAnswer)
	r.POST("/matches/:id/cancel", h.CancelMatch)
	r.GET("/quota", h.GetQuota)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func sampleView() *models.MatchView {
	m := &models.Match{ID: "m-1", UserID: "player-1", Status: models.MatchStatusInProgress, Rounds: make([]models.Round, 1)}
	v := m.View()
	return &v
}

func TestArenaHandler_StartMatch(t *testing.T) {
	arena := &stubArena{view: sampleView()}
	r := newTestRouter(arena)

	w := doJSON(r, http.MethodPost, "/matches", `{"wager":50,"bookIds":["b1","b2"],"category":"math","difficulty":3}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "player-1", arena.startReq.UserID)
	assert.Equal(t, int64(50), arena.startReq.Wager)
	assert.Equal(t, []string{"b1", "b2"}, arena.startReq.BookIDs)
	assert.Equal(t, 3, arena.startReq.Difficulty)

	match := decode(t, w)["match"].(map[string]interface{})
	assert.Equal(t, "m-1", match["id"])
}

func TestArenaHandler_StartMatchBadBody(t *testing.T) {
	r := newTestRouter(&stubArena{})

	for _, body := range []string{`{}`, `{"wager":"ten"}`, `{"wager":10,"difficulty":-1}`, `not json`} {
		w := doJSON(r, http.MethodPost, "/matches", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "INVALID_INPUT", decode(t, w)["code"], body)
	}
}

func TestArenaHandler_NonPositiveWagerReachesValidation(t *testing.T) {
	arena := &stubArena{}
	r := newTestRouter(arena)

	for _, wager := range []int64{0, -5} {
		w := doJSON(r, http.MethodPost, "/matches", fmt.Sprintf(`{"wager":%d}`, wager))
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, wager, arena.startReq.Wager)
	}
}

func TestArenaHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"wager out of range", &service.ConfigError{Code: service.CodeWagerOutOfRange}, http.StatusUnprocessableEntity, "WAGER_OUT_OF_RANGE"},
		{"too many books", &service.ConfigError{Code: service.CodeTooManyBooksSelected}, http.StatusUnprocessableEntity, "TOO_MANY_BOOKS_SELECTED"},
		{"insufficient funds", &service.ConfigError{Code: service.CodeInsufficientFunds}, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
		{"daily limit", fmt.Errorf("start: %w", &service.ConfigError{Code: service.CodeDailyLimitReached}), http.StatusTooManyRequests, "DAILY_LIMIT_REACHED"},
		{"active match", service.ErrActiveMatchExists, http.StatusConflict, "ACTIVE_MATCH_EXISTS"},
		{"invalid input", fmt.Errorf("%w: unknown difficulty", service.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT"},
		{"no questions", service.ErrNoQuestions, http.StatusServiceUnavailable, "NO_QUESTIONS"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&stubArena{err: tt.err})
			w := doJSON(r, http.MethodPost, "/matches", `{"wager":50}`)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestArenaHandler_SubmitAnswer(t *testing.T) {
	arena := &stubArena{result: &service.SubmitResult{Accepted: false, Reason: service.ErrDuplicateSubmission.Error()}}
	r := newTestRouter(arena)

	w := doJSON(r, http.MethodPost, "/matches/m-1/answers", `{"value":0}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []float64{0}, arena.submitted, "zero is a valid answer")

	body := decode(t, w)
	assert.Equal(t, false, body["accepted"])
	assert.Equal(t, "duplicate submission", body["reason"])

	w = doJSON(r, http.MethodPost, "/matches/m-1/answers", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArenaHandler_GetAndCancel(t *testing.T) {
	arena := &stubArena{view: sampleView()}
	r := newTestRouter(arena)

	w := doJSON(r, http.MethodGet, "/matches/m-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/matches/other", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "MATCH_NOT_FOUND", decode(t, w)["code"])

	w = doJSON(r, http.MethodPost, "/matches/m-1/cancel", "")
	assert.Equal(t, http.StatusOK, w.Code)

	arena.err = service.ErrMatchNotActive
	w = doJSON(r, http.MethodPost, "/matches/m-1/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "MATCH_NOT_ACTIVE", decode(t, w)["code"])
}

func TestArenaHandler_ActiveMatch(t *testing.T) {
	arena := &stubArena{view: sampleView()}
	r := newTestRouter(arena)

	w := doJSON(r, http.MethodGet, "/matches/active", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	arena.active = "m-1"
	w = doJSON(r, http.MethodGet, "/matches/active", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "m-1", decode(t, w)["match"].(map[string]interface{})["id"])
}

func TestArenaHandler_Quota(t *testing.T) {
	r := newTestRouter(&stubArena{})

	w := doJSON(r, http.MethodGet, "/quota", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "free", body["tier"])
	assert.Equal(t, float64(2), body["remaining"])
}

func TestHealthHandler(t *testing.T) {
	ok := PingFunc(func(ctx context.Context) error { return nil })
	down := PingFunc(func(ctx context.Context) error { return errors.New("connection refused") })

	r := gin.New()
	r.GET("/up", NewHealthHandler(map[string]Pinger{"postgres": ok}).HealthCheck)
	r.GET("/down", NewHealthHandler(map[string]Pinger{"postgres": ok, "redis": down}).HealthCheck)

	w := doJSON(r, http.MethodGet, "/up", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = doJSON(r, http.MethodGet, "/down", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["dependencies"].(map[string]interface{})["redis"])
}
