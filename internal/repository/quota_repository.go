package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/rl-arena/arena-match-engine/pkg/database"
)

type QuotaRepository struct {
	db *database.DB
}

func NewQuotaRepository(db *database.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// Reserve increments the day's counter in one statement; the conditional
// update leaves a full counter untouched and returns no row
func (r *QuotaRepository) Reserve(ctx context.Context, key models.QuotaKey, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	var started int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO daily_quotas (user_id, day, tier, matches_started, "limit", updated_at)
		VALUES ($1, $2, $3, 1, $4, NOW())
		ON CONFLICT (user_id, day, tier) DO UPDATE SET
			matches_started = daily_quotas.matches_started + 1,
			"limit" = EXCLUDED."limit",
			updated_at = NOW()
		WHERE daily_quotas.matches_started < EXCLUDED."limit"
		RETURNING matches_started
	`, key.UserID, key.Day, string(key.Tier), limit).Scan(&started)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to reserve quota: %w", err)
	}
	return true, nil
}

// Count matches started on the key's day, 0 when none
func (r *QuotaRepository) Count(ctx context.Context, key models.QuotaKey) (int, error) {
	var started int
	err := r.db.QueryRowContext(ctx, `
		SELECT matches_started FROM daily_quotas
		WHERE user_id = $1 AND day = $2 AND tier = $3
	`, key.UserID, key.Day, string(key.Tier)).Scan(&started)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count quota: %w", err)
	}
	return started, nil
}
