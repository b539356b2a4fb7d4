package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/rl-arena/arena-match-engine/pkg/database"
)

type StreakRepository struct {
	db *database.DB
}

func NewStreakRepository(db *database.DB) *StreakRepository {
	return &StreakRepository{db: db}
}

// RecordActivity marks day (YYYY-MM-DD) as active and updates the streak
func (r *StreakRepository) RecordActivity(ctx context.Context, userID, day string) (*models.Streak, error) {
	var result models.Streak

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		prev := models.Streak{UserID: userID}
		var last sql.NullString
		err := tx.QueryRowContext(ctx, `
			SELECT current_streak, best_streak, last_activity::text
			FROM player_streaks WHERE user_id = $1 FOR UPDATE
		`, userID).Scan(&prev.Current, &prev.Best, &last)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to lock streak: %w", err)
		}
		prev.LastActivity = last.String

		next, err := models.NextStreak(prev, day)
		if err != nil {
			return fmt.Errorf("invalid activity day %q: %w", day, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO player_streaks (user_id, current_streak, best_streak, last_activity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE SET
				current_streak = EXCLUDED.current_streak,
				best_streak = EXCLUDED.best_streak,
				last_activity = EXCLUDED.last_activity
		`, userID, next.Current, next.Best, next.LastActivity)
		if err != nil {
			return fmt.Errorf("failed to update streak: %w", err)
		}

		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
