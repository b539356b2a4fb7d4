package models

import "time"

// DayLayout calendar-day key format of quota records
const DayLayout = "2006-01-02"

// QuotaKey identifies one daily quota counter
type QuotaKey struct {
	UserID string `json:"userId" db:"user_id"`
	Day    string `json:"day" db:"day"`
	Tier   Tier   `json:"tier" db:"tier"`
}

// DailyQuotaRecord matches started by a player on one calendar day
type DailyQuotaRecord struct {
	UserID         string    `json:"userId" db:"user_id"`
	Day            string    `json:"day" db:"day"`
	Tier           Tier      `json:"tier" db:"tier"`
	MatchesStarted int       `json:"matchesStarted" db:"matches_started"`
	Limit          int       `json:"limit" db:"limit"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// QuotaStatus remaining quota for display
type QuotaStatus struct {
	Tier      Tier   `json:"tier"`
	Day       string `json:"day"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
}
