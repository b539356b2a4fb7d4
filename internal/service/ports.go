package service

import (
	"context"
	"time"

	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/shopspring/decimal"
)

// Wallet player currency balance
type Wallet interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	// AdjustBalance applies delta once per (userID, reference). Fails when the
	// balance would drop below zero.
	AdjustBalance(ctx context.Context, userID string, delta int64, txType models.TransactionType, reference string) (int64, error)
}

// XPLedger experience and level progression
type XPLedger interface {
	AddXP(ctx context.Context, userID string, amount int64, reference string) (*models.Progress, error)
}

// StreakLedger consecutive active days
type StreakLedger interface {
	RecordActivity(ctx context.Context, userID, day string) (*models.Streak, error)
}

// QuestionBank supplies the questions of one match
type QuestionBank interface {
	NextQuestions(ctx context.Context, count int, category string) ([]models.Question, error)
}

// BookBonusLookup payout bonus granted by selected books, as a fraction
type BookBonusLookup interface {
	BonusFor(ctx context.Context, bookIDs []string) (decimal.Decimal, error)
}

// TierProvider subscription tier of a player
type TierProvider interface {
	TierFor(ctx context.Context, userID string) (models.Tier, error)
}

// QuotaStore persisted daily quota counters
type QuotaStore interface {
	// Reserve atomically increments the counter if it is below limit
	Reserve(ctx context.Context, key models.QuotaKey, limit int) (bool, error)
	Count(ctx context.Context, key models.QuotaKey) (int, error)
}

// PendingSettlementStore settlement records awaiting ledger writes
type PendingSettlementStore interface {
	Save(ctx context.Context, rec *models.SettlementRecord) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.SettlementRecord, error)
}

// MatchArchive durable copy of matches
type MatchArchive interface {
	Save(ctx context.Context, match *models.Match) error
	FindByID(ctx context.Context, id string) (*models.Match, error)
}
