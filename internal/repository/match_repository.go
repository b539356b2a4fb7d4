package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/rl-arena/arena-match-engine/pkg/database"
)

// storedRound keeps the fields the client view hides
type storedRound struct {
	Index         int                `json:"index"`
	QuestionID    string             `json:"questionId"`
	Prompt        string             `json:"prompt"`
	CorrectAnswer float64            `json:"correctAnswer"`
	Tolerance     float64            `json:"tolerance"`
	State         models.RoundState  `json:"state"`
	StartedAt     time.Time          `json:"startedAt"`
	Deadline      time.Time          `json:"deadline"`
	PlayerAnswer  *storedAnswer      `json:"playerAnswer,omitempty"`
	AIAnswer      *storedAnswer      `json:"aiAnswer,omitempty"`
	PlayerCorrect bool               `json:"playerCorrect"`
	AICorrect     bool               `json:"aiCorrect"`
	Winner        models.RoundWinner `json:"winner"`
	ResolvedAt    *time.Time         `json:"resolvedAt,omitempty"`
}

type storedAnswer struct {
	Value          float64 `json:"value"`
	ResponseTimeMs int64   `json:"responseTimeMs"`
}

func toStoredAnswer(a *models.Answer) *storedAnswer {
	if a == nil {
		return nil
	}
	return &storedAnswer{Value: a.Value, ResponseTimeMs: a.ResponseTime.Milliseconds()}
}

func (a *storedAnswer) answer() *models.Answer {
	if a == nil {
		return nil
	}
	return &models.Answer{Value: a.Value, ResponseTime: time.Duration(a.ResponseTimeMs) * time.Millisecond}
}

func encodeRounds(rounds []models.Round) ([]byte, error) {
	stored := make([]storedRound, len(rounds))
	for i, r := range rounds {
		stored[i] = storedRound{
			Index:         r.Index,
			QuestionID:    r.QuestionID,
			Prompt:        r.Prompt,
			CorrectAnswer: r.CorrectAnswer,
			Tolerance:     r.Tolerance,
			State:         r.State,
			StartedAt:     r.StartedAt,
			Deadline:      r.Deadline,
			PlayerAnswer:  toStoredAnswer(r.PlayerAnswer),
			AIAnswer:      toStoredAnswer(r.AIAnswer),
			PlayerCorrect: r.PlayerCorrect,
			AICorrect:     r.AICorrect,
			Winner:        r.Winner,
			ResolvedAt:    r.ResolvedAt,
		}
	}
	return json.Marshal(stored)
}

func decodeRounds(data []byte) ([]models.Round, error) {
	var stored []storedRound
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	rounds := make([]models.Round, len(stored))
	for i, s := range stored {
		rounds[i] = models.Round{
			Index:         s.Index,
			QuestionID:    s.QuestionID,
			Prompt:        s.Prompt,
			CorrectAnswer: s.CorrectAnswer,
			Tolerance:     s.Tolerance,
			State:         s.State,
			StartedAt:     s.StartedAt,
			Deadline:      s.Deadline,
			PlayerAnswer:  s.PlayerAnswer.answer(),
			AIAnswer:      s.AIAnswer.answer(),
			PlayerCorrect: s.PlayerCorrect,
			AICorrect:     s.AICorrect,
			Winner:        s.Winner,
			ResolvedAt:    s.ResolvedAt,
		}
	}
	return rounds, nil
}

// MatchRepository archive of arena matches
type MatchRepository struct {
	db *database.DB
}

func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Save inserts or replaces the archived copy of a match
func (r *MatchRepository) Save(ctx context.Context, m *models.Match) error {
	rounds, err := encodeRounds(m.Rounds)
	if err != nil {
		return fmt.Errorf("failed to encode rounds: %w", err)
	}
	score, err := json.Marshal(m.Score)
	if err != nil {
		return fmt.Errorf("failed to encode score: %w", err)
	}
	var settlement []byte
	if m.Settlement != nil {
		if settlement, err = json.Marshal(m.Settlement); err != nil {
			return fmt.Errorf("failed to encode settlement: %w", err)
		}
	}
	var outcome sql.NullString
	if m.Outcome != nil {
		outcome = sql.NullString{String: string(*m.Outcome), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO arena_matches (
			id, user_id, tier, wager, book_ids, book_bonus_percent, category, difficulty, seed,
			round_count, status, current_round_index, rounds, score, outcome, settlement,
			started_at, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_round_index = EXCLUDED.current_round_index,
			rounds = EXCLUDED.rounds,
			score = EXCLUDED.score,
			outcome = EXCLUDED.outcome,
			settlement = EXCLUDED.settlement,
			completed_at = EXCLUDED.completed_at,
			updated_at = NOW()
	`,
		m.ID, m.UserID, string(m.Tier), m.Wager, pq.Array(m.BookIDs), m.BookBonusPercent, m.Category,
		m.Difficulty, int64(m.Seed), m.RoundCount, string(m.Status), m.CurrentRoundIndex,
		rounds, score, outcome, settlement, m.StartedAt, m.CompletedAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}

// FindByID archived match, nil when unknown
func (r *MatchRepository) FindByID(ctx context.Context, id string) (*models.Match, error) {
	m := &models.Match{}
	var (
		seed       int64
		outcome    sql.NullString
		rounds     []byte
		score      []byte
		settlement []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, tier, wager, book_ids, book_bonus_percent::text, category, difficulty, seed,
			round_count, status, current_round_index, rounds, score, outcome, settlement,
			started_at, completed_at, created_at
		FROM arena_matches
		WHERE id = $1
	`, id).Scan(
		&m.ID, &m.UserID, &m.Tier, &m.Wager, pq.Array(&m.BookIDs), &m.BookBonusPercent, &m.Category,
		&m.Difficulty, &seed, &m.RoundCount, &m.Status, &m.CurrentRoundIndex,
		&rounds, &score, &outcome, &settlement, &m.StartedAt, &m.CompletedAt, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}

	m.Seed = uint64(seed)
	if outcome.Valid {
		o := models.MatchOutcome(outcome.String)
		m.Outcome = &o
	}
	if m.Rounds, err = decodeRounds(rounds); err != nil {
		return nil, fmt.Errorf("failed to decode rounds: %w", err)
	}
	if err := json.Unmarshal(score, &m.Score); err != nil {
		return nil, fmt.Errorf("failed to decode score: %w", err)
	}
	if len(settlement) > 0 {
		m.Settlement = &models.SettlementRecord{}
		if err := json.Unmarshal(settlement, m.Settlement); err != nil {
			return nil, fmt.Errorf("failed to decode settlement: %w", err)
		}
	}
	return m, nil
}
