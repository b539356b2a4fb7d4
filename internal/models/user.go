package models

import (
	"math"
	"time"
)

// Player account fields the engine reads. Accounts are owned by the account service.
type Player struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Tier      Tier      `json:"tier" db:"tier"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type TransactionType string

const (
	TransactionTypeMatchWin    TransactionType = "match_win"
	TransactionTypeMatchLoss   TransactionType = "match_loss"
	TransactionTypeMatchDraw   TransactionType = "match_draw"
	TransactionTypeMatchRefund TransactionType = "match_refund"
)

// WalletTransaction journal row. (user_id, reference) is unique.
type WalletTransaction struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"userId" db:"user_id"`
	Amount       int64           `json:"amount" db:"amount"`
	Type         TransactionType `json:"type" db:"type"`
	Reference    string          `json:"reference" db:"reference"`
	BalanceAfter int64           `json:"balanceAfter" db:"balance_after"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}

// Progress XP and level of a player
type Progress struct {
	UserID        string     `json:"userId" db:"user_id"`
	TotalXP       int64      `json:"totalXp" db:"total_xp"`
	Level         int        `json:"level" db:"level"`
	LeveledUp     bool       `json:"leveledUp" db:"-"`
	LastLevelUpAt *time.Time `json:"lastLevelUpAt,omitempty" db:"last_level_up_at"`
}

// Streak consecutive active days
type Streak struct {
	UserID       string `json:"userId" db:"user_id"`
	Current      int    `json:"current" db:"current_streak"`
	Best         int    `json:"best" db:"best_streak"`
	LastActivity string `json:"lastActivity" db:"last_activity"`
}

// BaseXPPerLevel XP from level 1 to 2; later levels grow as n^1.2
const BaseXPPerLevel = 100

// XPForNextLevel XP needed to go from level to level+1
func XPForNextLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(float64(BaseXPPerLevel) * math.Pow(float64(level), 1.2))
}

// LevelForXP level reached with totalXP, starting at level 1
func LevelForXP(totalXP int64) int {
	level := 1
	for {
		need := XPForNextLevel(level)
		if totalXP < need {
			return level
		}
		totalXP -= need
		level++
	}
}

// NextStreak streak after activity on day (YYYY-MM-DD). Activity on the same
// day is counted once; a missed day restarts the streak at 1.
func NextStreak(prev Streak, day string) (Streak, error) {
	today, err := time.Parse(DayLayout, day)
	if err != nil {
		return prev, err
	}

	next := prev
	next.LastActivity = day

	switch {
	case prev.LastActivity == day:
		return prev, nil
	case prev.LastActivity == today.AddDate(0, 0, -1).Format(DayLayout):
		next.Current = prev.Current + 1
	default:
		if prev.LastActivity != "" {
			last, err := time.Parse(DayLayout, prev.LastActivity)
			if err == nil && last.After(today) {
				// out of order activity does not move the streak back
				return prev, nil
			}
		}
		next.Current = 1
	}

	if next.Current > next.Best {
		next.Best = next.Current
	}
	return next, nil
}
