package service

import (
	"context"
	"time"

	"github.com/rl-arena/arena-match-engine/internal/config"
	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/shopspring/decimal"
)

// ConfigureRequest inputs of a match configuration
type ConfigureRequest struct {
	UserID    string
	Tier      models.Tier
	Wager     int64
	BookIDs   []string
	BookBonus decimal.Decimal
	Balance   int64
	Date      time.Time
}

// MatchConfig validated, immutable parameters of a match about to start
type MatchConfig struct {
	UserID    string
	Tier      models.Tier
	Wager     int64
	BookIDs   []string
	BookBonus decimal.Decimal
	Bet       models.BetConfig
	Day       string
}

// MatchConfigurator gates match creation on wager, books, balance and quota
type MatchConfigurator struct {
	arena *config.ArenaConfig
	quota *DailyQuotaGuard
}

func NewMatchConfigurator(arena *config.ArenaConfig, quota *DailyQuotaGuard) *MatchConfigurator {
	return &MatchConfigurator{
		arena: arena,
		quota: quota,
	}
}

// Validate runs the side-effect free checks in order: books, wager range, balance
func (c *MatchConfigurator) Validate(req ConfigureRequest) (models.BetConfig, error) {
	bet, ok := c.arena.BetConfig(req.Tier)
	if !ok {
		return models.BetConfig{}, ErrUnknownTier
	}

	if len(req.BookIDs) > models.MaxBooksPerMatch {
		return bet, newConfigError(CodeTooManyBooksSelected, ErrTooManyBooksSelected,
			"%d selected, at most %d", len(req.BookIDs), models.MaxBooksPerMatch)
	}
	if !bet.WagerInRange(req.Wager) {
		return bet, newConfigError(CodeWagerOutOfRange, ErrWagerOutOfRange,
			"wager %d outside [%d,%d] for tier %s", req.Wager, bet.MinWager, bet.MaxWager, req.Tier)
	}
	if req.Wager > req.Balance {
		return bet, newConfigError(CodeInsufficientFunds, ErrInsufficientFunds,
			"wager %d exceeds balance %d", req.Wager, req.Balance)
	}
	return bet, nil
}

// Configure validates the request and, only when every check passes, consumes
// one match from the daily quota. Nothing is mutated on failure.
func (c *MatchConfigurator) Configure(ctx context.Context, req ConfigureRequest) (*MatchConfig, error) {
	bet, err := c.Validate(req)
	if err != nil {
		return nil, err
	}

	reserved, err := c.quota.CheckAndReserve(ctx, req.UserID, req.Date, req.Tier)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, newConfigError(CodeDailyLimitReached, ErrDailyLimitReached,
			"%d matches per day for tier %s", bet.DailyMatchLimit, req.Tier)
	}

	bonus := req.BookBonus
	if bonus.IsNegative() {
		bonus = decimal.Zero
	}
	if bonus.GreaterThan(bet.MaxBookBonus) {
		bonus = bet.MaxBookBonus
	}

	return &MatchConfig{
		UserID:    req.UserID,
		Tier:      req.Tier,
		Wager:     req.Wager,
		BookIDs:   append([]string(nil), req.BookIDs...),
		BookBonus: bonus,
		Bet:       bet,
		Day:       c.quota.DayKey(req.Date),
	}, nil
}
