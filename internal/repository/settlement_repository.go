package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/rl-arena/arena-match-engine/pkg/database"
)

// SettlementRepository settlement records that still have ledger legs to write
type SettlementRepository struct {
	db *database.DB
}

func NewSettlementRepository(db *database.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Save upserts the record. Computed amounts are written only on first insert.
func (r *SettlementRepository) Save(ctx context.Context, rec *models.SettlementRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_settlements (
			match_id, user_id, tier, outcome, cancelled, wager, book_bonus_percent,
			currency_delta, xp_gain, correct_rounds, activity_date, record_streak,
			wallet_applied, xp_applied, streak_applied, status, attempts, last_error,
			next_attempt_at, applied_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, NOW())
		ON CONFLICT (match_id) DO UPDATE SET
			wallet_applied = EXCLUDED.wallet_applied,
			xp_applied = EXCLUDED.xp_applied,
			streak_applied = EXCLUDED.streak_applied,
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			next_attempt_at = EXCLUDED.next_attempt_at,
			applied_at = EXCLUDED.applied_at,
			updated_at = NOW()
	`,
		rec.MatchID, rec.UserID, string(rec.Tier), string(rec.Outcome), rec.Cancelled, rec.Wager,
		rec.BookBonusPercent, rec.CurrencyDelta, rec.XPGain, rec.CorrectRounds, rec.ActivityDate,
		rec.RecordStreak, rec.WalletApplied, rec.XPApplied, rec.StreakApplied, string(rec.Status),
		rec.Attempts, rec.LastError, rec.NextAttemptAt, rec.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save settlement: %w", err)
	}
	return nil
}

// ListDue pending records whose next attempt is at or before now
func (r *SettlementRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.SettlementRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT match_id, user_id, tier, outcome, cancelled, wager, book_bonus_percent::text,
			currency_delta, xp_gain, correct_rounds, activity_date::text, record_streak,
			wallet_applied, xp_applied, streak_applied, status, attempts, last_error,
			next_attempt_at, applied_at
		FROM pending_settlements
		WHERE status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		ORDER BY next_attempt_at NULLS FIRST
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending settlements: %w", err)
	}
	defer rows.Close()

	var records []*models.SettlementRecord
	for rows.Next() {
		rec := &models.SettlementRecord{}
		if err := rows.Scan(
			&rec.MatchID, &rec.UserID, &rec.Tier, &rec.Outcome, &rec.Cancelled, &rec.Wager,
			&rec.BookBonusPercent, &rec.CurrencyDelta, &rec.XPGain, &rec.CorrectRounds,
			&rec.ActivityDate, &rec.RecordStreak, &rec.WalletApplied, &rec.XPApplied,
			&rec.StreakApplied, &rec.Status, &rec.Attempts, &rec.LastError,
			&rec.NextAttemptAt, &rec.AppliedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
