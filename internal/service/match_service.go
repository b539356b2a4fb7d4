package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rl-arena/arena-match-engine/internal/config"
	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultRoundDuration = 10 * time.Second
	settleTimeout        = 10 * time.Second
	maxArchiveAttempts   = 5
)

// StartMatchRequest player input for a new match
type StartMatchRequest struct {
	UserID     string
	Wager      int64
	BookIDs    []string
	Category   string
	Difficulty int
}

// SubmitResult outcome of a player answer. A round error is reported as
// Accepted=false with a reason, never as a failure.
type SubmitResult struct {
	Accepted bool             `json:"accepted"`
	Reason   string           `json:"reason,omitempty"`
	Round    models.RoundView `json:"round"`
}

// MatchServiceDeps collaborators of MatchService
type MatchServiceDeps struct {
	Arena         *config.ArenaConfig
	Configurator  *MatchConfigurator
	Quota         *DailyQuotaGuard
	Tiers         TierProvider
	Wallet        Wallet
	Questions     QuestionBank
	Books         BookBonusLookup
	AI            *AIOpponent
	Settlement    *SettlementService
	Archive       MatchArchive
	Events        *EventBroker
	Clock         Clock
	RoundDuration time.Duration
	Intermission  time.Duration
	// Seed returns the PRNG seed of a new match
	Seed func() uint64
}

// matchSession live state of one in-progress match. mu serializes player
// calls and timer callbacks.
type matchSession struct {
	mu           sync.Mutex
	match        *models.Match
	questions    []models.Question
	bet          models.BetConfig
	profile      models.AIProfile
	bonus        decimal.Decimal
	score        *ScoreKeeper
	round        *RoundScheduler
	intermission Timer
	// set once a terminal match failed to reach the archive
	archivePending  bool
	archiveAttempts int
}

// effects work collected under a session lock and run after it is released
type effects struct {
	events []Event
	settle *models.SettlementRecord
}

func (fx *effects) emit(e Event) {
	fx.events = append(fx.events, e)
}

// MatchService runs arena matches between a player and the AI opponent
type MatchService struct {
	deps   MatchServiceDeps
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*matchSession
	active   map[string]string // userID -> matchID, "" while starting
}

func NewMatchService(deps MatchServiceDeps, logger *zap.Logger) *MatchService {
	if deps.Clock == nil {
		deps.Clock = NewRealClock()
	}
	if deps.RoundDuration <= 0 {
		deps.RoundDuration = defaultRoundDuration
	}
	if deps.AI == nil {
		deps.AI = NewAIOpponent()
	}
	if deps.Seed == nil {
		deps.Seed = rand.Uint64
	}
	return &MatchService{
		deps:     deps,
		logger:   logger,
		sessions: make(map[string]*matchSession),
		active:   make(map[string]string),
	}
}

// StartMatch configures a match, consumes the daily quota and opens round one
func (s *MatchService) StartMatch(ctx context.Context, req StartMatchRequest) (*models.MatchView, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	if err := s.claimSlot(req.UserID); err != nil {
		return nil, err
	}
	started := false
	defer func() {
		if !started {
			s.releaseSlot(req.UserID, "")
		}
	}()

	tier, err := s.deps.Tiers.TierFor(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tier: %w", err)
	}
	bet, ok := s.deps.Arena.BetConfig(tier)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}

	difficulty := req.Difficulty
	if difficulty == 0 {
		difficulty = bet.DefaultDifficulty
	}
	profile, ok := s.deps.Arena.AIProfile(difficulty)
	if !ok {
		return nil, fmt.Errorf("%w: unknown difficulty %d", ErrInvalidInput, difficulty)
	}

	category := req.Category
	if category == "" {
		category = s.deps.Arena.DefaultCategory
	}

	balance, err := s.deps.Wallet.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	cfgReq := ConfigureRequest{
		UserID:  req.UserID,
		Tier:    tier,
		Wager:   req.Wager,
		BookIDs: req.BookIDs,
		Balance: balance,
	}
	if _, err := s.deps.Configurator.Validate(cfgReq); err != nil {
		return nil, err
	}

	cfgReq.BookBonus = decimal.Zero
	if len(req.BookIDs) > 0 {
		bonus, err := s.deps.Books.BonusFor(ctx, req.BookIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to look up book bonus: %w", err)
		}
		cfgReq.BookBonus = bonus
	}

	questions, err := s.deps.Questions.NextQuestions(ctx, models.RoundsPerMatch, category)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	if len(questions) < models.RoundsPerMatch {
		return nil, fmt.Errorf("%w: category %q has %d", ErrNoQuestions, category, len(questions))
	}
	questions = questions[:models.RoundsPerMatch]

	// quota is consumed here, after every read succeeded
	cfgReq.Date = s.deps.Clock.Now()
	cfg, err := s.deps.Configurator.Configure(ctx, cfgReq)
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock.Now()
	match := &models.Match{
		ID:               uuid.New().String(),
		UserID:           cfg.UserID,
		Tier:             cfg.Tier,
		Wager:            cfg.Wager,
		BookIDs:          cfg.BookIDs,
		BookBonusPercent: cfg.BookBonus.String(),
		Category:         category,
		Difficulty:       difficulty,
		Seed:             s.deps.Seed(),
		RoundCount:       models.RoundsPerMatch,
		Rounds:           make([]models.Round, models.RoundsPerMatch),
		Status:           models.MatchStatusConfiguring,
		CreatedAt:        now,
	}
	for i := range match.Rounds {
		match.Rounds[i] = models.Round{
			Index:      i,
			QuestionID: questions[i].ID,
			State:      models.RoundStateAwaitingAnswer,
			Winner:     models.RoundWinnerPending,
		}
	}

	sess := &matchSession{
		match:     match,
		questions: questions,
		bet:       cfg.Bet,
		profile:   profile,
		bonus:     cfg.BookBonus,
		score:     NewScoreKeeper(),
	}

	var fx effects
	sess.mu.Lock()
	s.mu.Lock()
	s.sessions[match.ID] = sess
	s.active[req.UserID] = match.ID
	s.mu.Unlock()
	started = true

	match.Status = models.MatchStatusInProgress
	match.StartedAt = &now
	s.startRound(sess, 0, &fx)
	view := match.View()
	snapshot := match.Clone()
	sess.mu.Unlock()

	s.archive(ctx, snapshot)

	s.logger.Info("Match started",
		zap.String("matchId", match.ID),
		zap.String("userId", match.UserID),
		zap.String("tier", string(match.Tier)),
		zap.Int64("wager", match.Wager),
		zap.String("bookBonus", match.BookBonusPercent),
		zap.Int("difficulty", difficulty),
	)

	s.flush(sess, &fx)
	return &view, nil
}

// Submit records the player's answer to the current round
func (s *MatchService) Submit(ctx context.Context, userID, matchID string, value float64) (*SubmitResult, error) {
	sess, err := s.session(userID, matchID)
	if errors.Is(err, ErrMatchNotFound) {
		// archived matches are over; the answer is simply not accepted
		view, getErr := s.Get(ctx, userID, matchID)
		if getErr != nil {
			return nil, getErr
		}
		return &SubmitResult{
			Reason: ErrSubmissionAfterResolution.Error(),
			Round:  view.Rounds[view.CurrentRoundIndex],
		}, nil
	}
	if err != nil {
		return nil, err
	}

	var fx effects
	sess.mu.Lock()
	m := sess.match
	result := &SubmitResult{}

	switch {
	case m.Status != models.MatchStatusInProgress || sess.round == nil || sess.round.Resolved():
		result.Reason = ErrSubmissionAfterResolution.Error()
		result.Round = m.Rounds[m.CurrentRoundIndex].View()
	default:
		idx := m.CurrentRoundIndex
		resolved, subErr := sess.round.SubmitPlayer(value)
		if subErr != nil {
			result.Reason = subErr.Error()
		} else {
			result.Accepted = true
		}
		result.Round = m.Rounds[idx].View()
		if resolved {
			s.afterResolve(sess, &fx)
			result.Round = m.Rounds[idx].View()
		}
	}
	sess.mu.Unlock()

	if !result.Accepted {
		s.logger.Debug("Submission not accepted",
			zap.String("matchId", matchID),
			zap.String("reason", result.Reason),
		)
	}

	s.flush(sess, &fx)
	return result, nil
}

// Cancel abandons an in-progress match. The wager is fully refunded and the
// consumed quota stays consumed.
func (s *MatchService) Cancel(ctx context.Context, userID, matchID string) (*models.MatchView, error) {
	sess, err := s.session(userID, matchID)
	if errors.Is(err, ErrMatchNotFound) {
		if _, getErr := s.Get(ctx, userID, matchID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrMatchNotActive
	}
	if err != nil {
		return nil, err
	}

	var fx effects
	sess.mu.Lock()
	m := sess.match
	if !m.Status.CanTransitionTo(models.MatchStatusCancelled) {
		sess.mu.Unlock()
		return nil, ErrMatchNotActive
	}
	s.cancelLocked(sess, &fx)
	view := m.View()
	sess.mu.Unlock()

	s.logger.Info("Match cancelled",
		zap.String("matchId", matchID),
		zap.Int("roundIndex", view.CurrentRoundIndex),
	)

	s.flush(sess, &fx)
	return &view, nil
}

// Get returns the client view of a match owned by userID
func (s *MatchService) Get(ctx context.Context, userID, matchID string) (*models.MatchView, error) {
	s.mu.Lock()
	sess := s.sessions[matchID]
	s.mu.Unlock()

	if sess != nil {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if sess.match.UserID != userID {
			return nil, ErrMatchNotFound
		}
		view := sess.match.View()
		return &view, nil
	}

	if s.deps.Archive == nil {
		return nil, ErrMatchNotFound
	}
	match, err := s.deps.Archive.FindByID(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match: %w", err)
	}
	if match == nil || match.UserID != userID {
		return nil, ErrMatchNotFound
	}
	view := match.View()
	return &view, nil
}

// ActiveMatch returns the id of the player's in-progress match, if any
func (s *MatchService) ActiveMatch(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[userID]
	return id, ok && id != ""
}

// Quota remaining matches of the player's current day
func (s *MatchService) Quota(ctx context.Context, userID string) (models.QuotaStatus, error) {
	tier, err := s.deps.Tiers.TierFor(ctx, userID)
	if err != nil {
		return models.QuotaStatus{}, fmt.Errorf("failed to resolve tier: %w", err)
	}
	return s.deps.Quota.Remaining(ctx, userID, s.deps.Clock.Now(), tier)
}

// Shutdown cancels every in-progress match so no wager is left unsettled
func (s *MatchService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*matchSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		if ctx.Err() != nil {
			return
		}
		var fx effects
		sess.mu.Lock()
		if sess.match.Status.CanTransitionTo(models.MatchStatusCancelled) {
			s.cancelLocked(sess, &fx)
		}
		sess.mu.Unlock()
		s.flush(sess, &fx)
	}
}

func (s *MatchService) claimSlot(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[userID]; ok {
		return ErrActiveMatchExists
	}
	s.active[userID] = ""
	return nil
}

// releaseSlot frees the player's slot if it still points at matchID
func (s *MatchService) releaseSlot(userID, matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.active[userID]; ok && id == matchID {
		delete(s.active, userID)
	}
}

func (s *MatchService) session(userID, matchID string) (*matchSession, error) {
	s.mu.Lock()
	sess := s.sessions[matchID]
	s.mu.Unlock()

	if sess == nil {
		return nil, ErrMatchNotFound
	}
	// UserID is immutable after creation
	if sess.match.UserID != userID {
		return nil, ErrMatchNotFound
	}
	return sess, nil
}

func (s *MatchService) lookup(matchID string) *matchSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[matchID]
}

// startRound opens round idx. Caller holds sess.mu.
func (s *MatchService) startRound(sess *matchSession, idx int, fx *effects) {
	m := sess.match
	m.CurrentRoundIndex = idx
	sess.intermission = nil

	q := sess.questions[idx]
	sched := NewRoundScheduler(s.deps.Clock, &m.Rounds[idx], q, s.deps.RoundDuration)
	ai := s.deps.AI.Answer(q, sess.profile, m.Seed+uint64(idx))

	matchID := m.ID
	sched.Start(ai,
		func() { s.onDeadline(matchID, idx) },
		func() { s.onAIAnswer(matchID, idx) },
	)
	sess.round = sched

	fx.emit(newEvent(EventRoundStarted, m.ID, m.UserID, s.deps.Clock.Now(), RoundStartedPayload{
		Index:    idx,
		Prompt:   m.Rounds[idx].Prompt,
		Deadline: m.Rounds[idx].Deadline,
	}))
}

func (s *MatchService) onDeadline(matchID string, idx int) {
	s.onTimer(matchID, idx, (*RoundScheduler).Expire)
}

func (s *MatchService) onAIAnswer(matchID string, idx int) {
	s.onTimer(matchID, idx, (*RoundScheduler).DeliverAIAnswer)
}

// onTimer runs a round transition from a timer. Callbacks of a round that is
// no longer current are ignored.
func (s *MatchService) onTimer(matchID string, idx int, transition func(*RoundScheduler) bool) {
	sess := s.lookup(matchID)
	if sess == nil {
		return
	}

	var fx effects
	sess.mu.Lock()
	m := sess.match
	if m.Status == models.MatchStatusInProgress && m.CurrentRoundIndex == idx && sess.round != nil {
		if transition(sess.round) {
			s.afterResolve(sess, &fx)
		}
	}
	sess.mu.Unlock()

	s.flush(sess, &fx)
}

// afterResolve scores the completed round and advances the match. Caller holds sess.mu.
func (s *MatchService) afterResolve(sess *matchSession, fx *effects) {
	m := sess.match
	r := sess.round.Round()

	sess.score.RecordRound(r.Winner, r.PlayerCorrect)
	m.Score = sess.score.Score()

	fx.emit(newEvent(EventRoundResult, m.ID, m.UserID, s.deps.Clock.Now(), RoundResultPayload{
		Round: r.View(),
		Score: m.Score,
	}))

	next := r.Index + 1
	if next >= m.RoundCount {
		s.finishLocked(sess, fx)
		return
	}

	if s.deps.Intermission > 0 {
		matchID := m.ID
		sess.intermission = s.deps.Clock.AfterFunc(s.deps.Intermission, func() {
			s.onIntermissionEnd(matchID, next)
		})
		return
	}
	s.startRound(sess, next, fx)
}

func (s *MatchService) onIntermissionEnd(matchID string, next int) {
	sess := s.lookup(matchID)
	if sess == nil {
		return
	}

	var fx effects
	sess.mu.Lock()
	m := sess.match
	if m.Status == models.MatchStatusInProgress && m.CurrentRoundIndex == next-1 && sess.round.Resolved() {
		s.startRound(sess, next, &fx)
	}
	sess.mu.Unlock()

	s.flush(sess, &fx)
}

// finishLocked moves the match to Finished and computes its settlement once.
// Caller holds sess.mu.
func (s *MatchService) finishLocked(sess *matchSession, fx *effects) {
	m := sess.match
	if !m.Status.CanTransitionTo(models.MatchStatusFinished) {
		return
	}

	now := s.deps.Clock.Now()
	outcome := sess.score.FinalOutcome()
	m.Status = models.MatchStatusFinished
	m.Outcome = &outcome
	m.CompletedAt = &now

	rec := Settle(outcome, m.Wager, sess.bonus, sess.bet, m.Score.CorrectPlayer)
	rec.MatchID = m.ID
	rec.UserID = m.UserID
	rec.ActivityDate = s.deps.Quota.DayKey(now)
	rec.RecordStreak = true
	m.Settlement = &rec
	fx.settle = &rec

	fx.emit(newEvent(EventMatchFinished, m.ID, m.UserID, now, MatchFinishedPayload{
		Outcome:    outcome,
		Score:      m.Score,
		Settlement: &rec,
	}))
}

// cancelLocked moves the match to Cancelled with a refund record. Caller holds sess.mu.
func (s *MatchService) cancelLocked(sess *matchSession, fx *effects) {
	m := sess.match
	if sess.round != nil {
		sess.round.Stop()
	}
	if sess.intermission != nil {
		sess.intermission.Stop()
		sess.intermission = nil
	}

	now := s.deps.Clock.Now()
	m.Status = models.MatchStatusCancelled
	m.CompletedAt = &now

	rec := RefundRecord(m.Wager, m.Tier)
	rec.MatchID = m.ID
	rec.UserID = m.UserID
	rec.ActivityDate = s.deps.Quota.DayKey(now)
	m.Settlement = &rec
	fx.settle = &rec

	fx.emit(newEvent(EventMatchCancelled, m.ID, m.UserID, now, MatchCancelledPayload{
		RoundIndex: m.CurrentRoundIndex,
		Settlement: &rec,
	}))
}

// flush publishes collected events and, for a terminal match, applies the
// settlement, archives the match and frees the player's slot
func (s *MatchService) flush(sess *matchSession, fx *effects) {
	s.deps.Events.Publish(fx.events...)

	if fx.settle == nil {
		return
	}

	// the session keeps its own copy; Apply mutates rec outside the lock
	rec := *fx.settle
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	if err := s.deps.Settlement.Apply(ctx, &rec); err != nil {
		s.logger.Warn("Settlement deferred",
			zap.String("matchId", rec.MatchID),
			zap.Error(err),
		)
	}

	sess.mu.Lock()
	sess.match.Settlement = &rec
	snapshot := sess.match.Clone()
	sess.mu.Unlock()

	s.store(ctx, sess, snapshot)
	s.releaseSlot(snapshot.UserID, snapshot.ID)
}

// RetryArchive saves terminal matches whose archive write failed and returns
// how many were stored
func (s *MatchService) RetryArchive(ctx context.Context) int {
	s.mu.Lock()
	sessions := make([]*matchSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	stored := 0
	for _, sess := range sessions {
		if ctx.Err() != nil {
			break
		}
		sess.mu.Lock()
		if !sess.archivePending {
			sess.mu.Unlock()
			continue
		}
		snapshot := sess.match.Clone()
		sess.mu.Unlock()

		if s.store(ctx, sess, snapshot) {
			stored++
		}
	}
	return stored
}

// store archives a terminal match and drops its session. Finished matches are
// served from the archive afterwards. A session whose save keeps failing is
// dropped after maxArchiveAttempts.
func (s *MatchService) store(ctx context.Context, sess *matchSession, m *models.Match) bool {
	if s.deps.Archive == nil {
		s.evict(m.ID)
		return false
	}

	err := s.deps.Archive.Save(ctx, m)
	if err == nil {
		s.evict(m.ID)
		return true
	}

	sess.mu.Lock()
	sess.archivePending = true
	sess.archiveAttempts++
	attempts := sess.archiveAttempts
	sess.mu.Unlock()

	if attempts >= maxArchiveAttempts {
		s.logger.Error("Giving up on archiving match",
			zap.String("matchId", m.ID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		s.evict(m.ID)
		return false
	}
	s.logger.Warn("Failed to archive match",
		zap.String("matchId", m.ID),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	return false
}

func (s *MatchService) evict(matchID string) {
	s.mu.Lock()
	delete(s.sessions, matchID)
	s.mu.Unlock()
}
