package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rl-arena/arena-match-engine/internal/models"
)

type EventType string

const (
	EventRoundStarted      EventType = "round_started"
	EventRoundResult       EventType = "round_result"
	EventMatchFinished     EventType = "match_finished"
	EventMatchCancelled    EventType = "match_cancelled"
	EventSettlementPending EventType = "settlement_pending"
	EventLevelUp           EventType = "level_up"
)

// Event engine notification delivered to subscribers
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	MatchID   string      `json:"matchId,omitempty"`
	UserID    string      `json:"userId"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// RoundStartedPayload never carries the correct answer
type RoundStartedPayload struct {
	Index    int       `json:"index"`
	Prompt   string    `json:"prompt"`
	Deadline time.Time `json:"deadline"`
}

type RoundResultPayload struct {
	Round models.RoundView `json:"round"`
	Score models.Score     `json:"score"`
}

type MatchFinishedPayload struct {
	Outcome    models.MatchOutcome      `json:"outcome"`
	Score      models.Score             `json:"score"`
	Settlement *models.SettlementRecord `json:"settlement,omitempty"`
}

type MatchCancelledPayload struct {
	RoundIndex int                      `json:"roundIndex"`
	Settlement *models.SettlementRecord `json:"settlement,omitempty"`
}

type SettlementPendingPayload struct {
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
}

type LevelUpPayload struct {
	Level   int   `json:"level"`
	TotalXP int64 `json:"totalXp"`
}

func newEvent(t EventType, matchID, userID string, now time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		MatchID:   matchID,
		UserID:    userID,
		Timestamp: now,
		Payload:   payload,
	}
}

// EventBroker in-process fan-out of engine events. Handlers run on the
// publisher's goroutine and must not block.
type EventBroker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func NewEventBroker() *EventBroker {
	return &EventBroker{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function removing it
func (b *EventBroker) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *EventBroker) Publish(events ...Event) {
	if b == nil || len(events) == 0 {
		return
	}

	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, e := range events {
		for _, fn := range handlers {
			fn(e)
		}
	}
}
