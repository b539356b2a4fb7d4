package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/rl-arena/arena-match-engine/pkg/database"
	"github.com/shopspring/decimal"
)

type BookRepository struct {
	db *database.DB
}

func NewBookRepository(db *database.DB) *BookRepository {
	return &BookRepository{db: db}
}

// BonusFor sum of the bonus fractions of the given books. Unknown ids add nothing.
func (r *BookRepository) BonusFor(ctx context.Context, bookIDs []string) (decimal.Decimal, error) {
	if len(bookIDs) == 0 {
		return decimal.Zero, nil
	}

	var raw string
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(bonus_percent), 0)::text FROM books WHERE id = ANY($1)
	`, pq.Array(bookIDs)).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum book bonus: %w", err)
	}

	bonus, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid book bonus %q: %w", raw, err)
	}
	return bonus, nil
}
