package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rl-arena/arena-match-engine/internal/config"
	"github.com/rl-arena/arena-match-engine/internal/models"
)

// DailyQuotaGuard caps matches started per player, calendar day and tier.
// A new day key starts a fresh counter, so there is no reset operation.
type DailyQuotaGuard struct {
	store    QuotaStore
	arena    *config.ArenaConfig
	location *time.Location
}

func NewDailyQuotaGuard(store QuotaStore, arena *config.ArenaConfig, location *time.Location) *DailyQuotaGuard {
	if location == nil {
		location = time.UTC
	}
	return &DailyQuotaGuard{
		store:    store,
		arena:    arena,
		location: location,
	}
}

// DayKey calendar day of t in the guard's time zone
func (g *DailyQuotaGuard) DayKey(t time.Time) string {
	return t.In(g.location).Format(models.DayLayout)
}

func (g *DailyQuotaGuard) limit(tier models.Tier) (int, error) {
	bet, ok := g.arena.BetConfig(tier)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	return bet.DailyMatchLimit, nil
}

// CheckAndReserve consumes one match from the day's quota. Returns false,
// without mutation, when the day's count already meets the tier limit.
func (g *DailyQuotaGuard) CheckAndReserve(ctx context.Context, userID string, date time.Time, tier models.Tier) (bool, error) {
	limit, err := g.limit(tier)
	if err != nil {
		return false, err
	}

	key := models.QuotaKey{UserID: userID, Day: g.DayKey(date), Tier: tier}
	ok, err := g.store.Reserve(ctx, key, limit)
	if err != nil {
		return false, fmt.Errorf("failed to reserve daily quota: %w", err)
	}
	return ok, nil
}

// Remaining quota of the day for display
func (g *DailyQuotaGuard) Remaining(ctx context.Context, userID string, date time.Time, tier models.Tier) (models.QuotaStatus, error) {
	limit, err := g.limit(tier)
	if err != nil {
		return models.QuotaStatus{}, err
	}

	key := models.QuotaKey{UserID: userID, Day: g.DayKey(date), Tier: tier}
	used, err := g.store.Count(ctx, key)
	if err != nil {
		return models.QuotaStatus{}, fmt.Errorf("failed to read daily quota: %w", err)
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return models.QuotaStatus{
		Tier:      tier,
		Day:       key.Day,
		Limit:     limit,
		Used:      used,
		Remaining: remaining,
	}, nil
}
