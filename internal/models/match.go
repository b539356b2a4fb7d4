package models

import "time"

// RoundsPerMatch is fixed for every arena match.
const RoundsPerMatch = 10

// MaxBooksPerMatch caps the number of book bonuses a player can attach.
const MaxBooksPerMatch = 3

type MatchStatus string

const (
	MatchStatusConfiguring MatchStatus = "configuring"
	MatchStatusInProgress  MatchStatus = "in_progress"
	MatchStatusFinished    MatchStatus = "finished"
	MatchStatusCancelled   MatchStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusFinished || s == MatchStatusCancelled
}

// CanTransitionTo enforces Configuring -> InProgress -> {Finished | Cancelled}.
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	switch s {
	case MatchStatusConfiguring:
		return next == MatchStatusInProgress || next == MatchStatusCancelled
	case MatchStatusInProgress:
		return next == MatchStatusFinished || next == MatchStatusCancelled
	default:
		return false
	}
}

type MatchOutcome string

const (
	OutcomePlayerWin MatchOutcome = "player_win"
	OutcomeAIWin     MatchOutcome = "ai_win"
	OutcomeDraw      MatchOutcome = "draw"
)

// Score running tally of a match
type Score struct {
	RoundsWonPlayer int `json:"roundsWonPlayer" db:"rounds_won_player"`
	RoundsWonAI     int `json:"roundsWonAi" db:"rounds_won_ai"`
	Draws           int `json:"draws" db:"draws"`
	CorrectPlayer   int `json:"correctPlayer" db:"correct_player"`
}

// Total number of resolved rounds
func (s Score) Total() int {
	return s.RoundsWonPlayer + s.RoundsWonAI + s.Draws
}

type Match struct {
	ID                string            `json:"id" db:"id"`
	UserID            string            `json:"userId" db:"user_id"`
	Tier              Tier              `json:"tier" db:"tier"`
	Wager             int64             `json:"wager" db:"wager"`
	BookIDs           []string          `json:"bookIds" db:"book_ids"`
	BookBonusPercent  string            `json:"bookBonusPercent" db:"book_bonus_percent"`
	Category          string            `json:"category" db:"category"`
	Difficulty        int               `json:"difficulty" db:"difficulty"`
	Seed              uint64            `json:"-" db:"seed"`
	RoundCount        int               `json:"roundCount" db:"round_count"`
	Rounds            []Round           `json:"rounds"`
	Status            MatchStatus       `json:"status" db:"status"`
	CurrentRoundIndex int               `json:"currentRoundIndex" db:"current_round_index"`
	Score             Score             `json:"score"`
	Outcome           *MatchOutcome     `json:"outcome,omitempty" db:"outcome"`
	Settlement        *SettlementRecord `json:"settlement,omitempty"`
	StartedAt         *time.Time        `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt         time.Time         `json:"createdAt" db:"created_at"`
}

// Clone deep copy for handing a snapshot outside the engine
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	out := *m
	out.BookIDs = append([]string(nil), m.BookIDs...)
	out.Rounds = make([]Round, len(m.Rounds))
	for i := range m.Rounds {
		out.Rounds[i] = m.Rounds[i].Clone()
	}
	if m.Outcome != nil {
		o := *m.Outcome
		out.Outcome = &o
	}
	if m.Settlement != nil {
		s := *m.Settlement
		out.Settlement = &s
	}
	return &out
}

// MatchView client facing representation with unresolved rounds redacted
type MatchView struct {
	*Match
	Rounds []RoundView `json:"rounds"`
}

// View builds the representation returned by the API and pushed over websocket
func (m *Match) View() MatchView {
	snap := m.Clone()
	views := make([]RoundView, len(snap.Rounds))
	for i, r := range snap.Rounds {
		views[i] = r.View()
	}
	return MatchView{Match: snap, Rounds: views}
}
