package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/rl-arena/arena-match-engine/pkg/database"
)

type ProgressRepository struct {
	db *database.DB
}

func NewProgressRepository(db *database.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// AddXP credits amount once per reference and recomputes the level
func (r *ProgressRepository) AddXP(ctx context.Context, userID string, amount int64, reference string) (*models.Progress, error) {
	progress := &models.Progress{UserID: userID, Level: 1}

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO xp_events (user_id, reference, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, reference) DO NOTHING
		`, userID, reference, amount)
		if err != nil {
			return fmt.Errorf("failed to record xp event: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			SELECT total_xp, level, last_level_up_at FROM player_progress
			WHERE user_id = $1 FOR UPDATE
		`, userID).Scan(&progress.TotalXP, &progress.Level, &progress.LastLevelUpAt)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to lock progress: %w", err)
		}

		if inserted == 0 {
			// already credited
			return nil
		}

		previous := progress.Level
		progress.TotalXP += amount
		progress.Level = models.LevelForXP(progress.TotalXP)
		if progress.Level > previous {
			now := time.Now()
			progress.LeveledUp = true
			progress.LastLevelUpAt = &now
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO player_progress (user_id, total_xp, level, last_level_up_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				total_xp = EXCLUDED.total_xp,
				level = EXCLUDED.level,
				last_level_up_at = EXCLUDED.last_level_up_at,
				updated_at = NOW()
		`, userID, progress.TotalXP, progress.Level, progress.LastLevelUpAt)
		if err != nil {
			return fmt.Errorf("failed to update progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return progress, nil
}
