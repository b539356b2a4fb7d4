package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/rl-arena/arena-match-engine/pkg/database"
)

type PlayerRepository struct {
	db *database.DB
}

func NewPlayerRepository(db *database.DB) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// FindByID nil when the account is not mirrored yet
func (r *PlayerRepository) FindByID(ctx context.Context, id string) (*models.Player, error) {
	player := &models.Player{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, tier, created_at FROM players WHERE id = $1
	`, id).Scan(&player.ID, &player.Username, &player.Tier, &player.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find player: %w", err)
	}
	return player, nil
}

// TierFor subscription tier of a player. Unknown players are on the free tier.
func (r *PlayerRepository) TierFor(ctx context.Context, userID string) (models.Tier, error) {
	player, err := r.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if player == nil {
		return models.TierFree, nil
	}
	return player.Tier, nil
}
