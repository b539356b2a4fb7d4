package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier subscription level of a player
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierPro     Tier = "pro"
)

// BetConfig per tier wager bounds, payout multipliers, quota and XP parameters.
// Configuration data, never mutated by the engine.
type BetConfig struct {
	Tier              Tier            `json:"tier"`
	MinWager          int64           `json:"minWager"`
	MaxWager          int64           `json:"maxWager"`
	WinMultiplier     decimal.Decimal `json:"winMultiplier"`
	DrawMultiplier    decimal.Decimal `json:"drawMultiplier"`
	LossMultiplier    decimal.Decimal `json:"lossMultiplier"`
	DailyMatchLimit   int             `json:"dailyMatchLimit"`
	XPBase            int64           `json:"xpBase"`
	XPPerCorrect      int64           `json:"xpPerCorrect"`
	XPMultiplier      decimal.Decimal `json:"xpMultiplier"`
	MaxBookBonus      decimal.Decimal `json:"maxBookBonus"`
	DefaultDifficulty int             `json:"defaultDifficulty"`
}

// WagerInRange reports min <= wager <= max
func (c BetConfig) WagerInRange(wager int64) bool {
	return wager >= c.MinWager && wager <= c.MaxWager
}

const (
	MinAIResponseTime = 1000 * time.Millisecond
	MaxAIResponseTime = 10000 * time.Millisecond
)

// AIProfile simulated opponent parameters. Read-only per match.
type AIProfile struct {
	Difficulty      int           `json:"difficulty"`
	Accuracy        float64       `json:"accuracy"`
	MinResponseTime time.Duration `json:"minResponseTime"`
	MaxResponseTime time.Duration `json:"maxResponseTime"`
}
