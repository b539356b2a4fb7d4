package models

import "time"

type SettlementStatus string

const (
	SettlementStatusPending SettlementStatus = "pending"
	SettlementStatusApplied SettlementStatus = "applied"
)

// SettlementRecord economic result of a match. Computed once, never recomputed;
// each ledger leg is flagged as it is applied so retries skip finished legs.
type SettlementRecord struct {
	MatchID          string           `json:"matchId" db:"match_id"`
	UserID           string           `json:"userId" db:"user_id"`
	Tier             Tier             `json:"tier" db:"tier"`
	Outcome          MatchOutcome     `json:"outcome" db:"outcome"`
	Cancelled        bool             `json:"cancelled" db:"cancelled"`
	Wager            int64            `json:"wager" db:"wager"`
	BookBonusPercent string           `json:"bookBonusPercent" db:"book_bonus_percent"`
	CurrencyDelta    int64            `json:"currencyDelta" db:"currency_delta"`
	XPGain           int64            `json:"xpGain" db:"xp_gain"`
	CorrectRounds    int              `json:"correctRounds" db:"correct_rounds"`
	ActivityDate     string           `json:"activityDate" db:"activity_date"`
	RecordStreak     bool             `json:"recordStreak" db:"record_streak"`
	WalletApplied    bool             `json:"walletApplied" db:"wallet_applied"`
	XPApplied        bool             `json:"xpApplied" db:"xp_applied"`
	StreakApplied    bool             `json:"streakApplied" db:"streak_applied"`
	Status           SettlementStatus `json:"status" db:"status"`
	Attempts         int              `json:"attempts" db:"attempts"`
	LastError        *string          `json:"lastError,omitempty" db:"last_error"`
	NextAttemptAt    *time.Time       `json:"nextAttemptAt,omitempty" db:"next_attempt_at"`
	AppliedAt        *time.Time       `json:"appliedAt,omitempty" db:"applied_at"`
}

// Complete reports whether every required ledger leg has been written
func (r *SettlementRecord) Complete() bool {
	if !r.WalletApplied {
		return false
	}
	if r.XPGain > 0 && !r.XPApplied {
		return false
	}
	if r.RecordStreak && !r.StreakApplied {
		return false
	}
	return true
}
