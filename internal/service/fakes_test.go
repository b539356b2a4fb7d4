package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/shopspring/decimal"
)

var errStoreDown = errors.New("store unavailable")

// fakeClock manual clock. Advance fires due timers in order on the caller's
// goroutine without holding the clock lock.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, when: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.when.After(target) {
				continue
			}
			if next == nil || t.when.Before(next.when) || (t.when.Equal(next.when) && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.when.After(c.now) {
			c.now = next.when
		}
		c.mu.Unlock()
		next.fn()
		c.mu.Lock()
	}
}

// pendingTimers counts armed timers
func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type memWallet struct {
	mu       sync.Mutex
	balances map[string]int64
	journal  map[string]models.WalletTransaction
	failures int
}

func newMemWallet() *memWallet {
	return &memWallet{
		balances: make(map[string]int64),
		journal:  make(map[string]models.WalletTransaction),
	}
}

func (w *memWallet) GetBalance(ctx context.Context, userID string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID], nil
}

func (w *memWallet) AdjustBalance(ctx context.Context, userID string, delta int64, txType models.TransactionType, reference string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return 0, errStoreDown
	}
	key := userID + "|" + reference
	if tx, ok := w.journal[key]; ok {
		return tx.BalanceAfter, nil
	}
	next := w.balances[userID] + delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	w.balances[userID] = next
	w.journal[key] = models.WalletTransaction{UserID: userID, Amount: delta, Type: txType, Reference: reference, BalanceAfter: next}
	return next, nil
}

func (w *memWallet) transactions() []models.WalletTransaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.WalletTransaction, 0, len(w.journal))
	for _, tx := range w.journal {
		out = append(out, tx)
	}
	return out
}

type memXP struct {
	mu       sync.Mutex
	total    map[string]int64
	calls    int
	failures int
	levelUp  bool
}

func newMemXP() *memXP {
	return &memXP{total: make(map[string]int64)}
}

func (x *memXP) AddXP(ctx context.Context, userID string, amount int64, reference string) (*models.Progress, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.failures > 0 {
		x.failures--
		return nil, errStoreDown
	}
	x.calls++
	x.total[userID] += amount
	return &models.Progress{UserID: userID, TotalXP: x.total[userID], Level: 2, LeveledUp: x.levelUp}, nil
}

type memStreak struct {
	mu   sync.Mutex
	days []string
}

func (s *memStreak) RecordActivity(ctx context.Context, userID, day string) (*models.Streak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days = append(s.days, day)
	return &models.Streak{UserID: userID, Current: 1, Best: 1, LastActivity: day}, nil
}

func (s *memStreak) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.days)
}

// memQuestions question i has answer i+1 and no tolerance
type memQuestions struct {
	available int
}

func (q memQuestions) NextQuestions(ctx context.Context, count int, category string) ([]models.Question, error) {
	n := count
	if q.available > 0 && q.available < n {
		n = q.available
	}
	out := make([]models.Question, n)
	for i := range out {
		out[i] = models.Question{
			ID:            fmt.Sprintf("q-%d", i),
			Category:      category,
			Prompt:        fmt.Sprintf("%d + 1 = ?", i),
			CorrectAnswer: float64(i + 1),
		}
	}
	return out, nil
}

type memBooks map[string]decimal.Decimal

func (b memBooks) BonusFor(ctx context.Context, bookIDs []string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, id := range bookIDs {
		sum = sum.Add(b[id])
	}
	return sum, nil
}

type memTiers map[string]models.Tier

func (t memTiers) TierFor(ctx context.Context, userID string) (models.Tier, error) {
	if tier, ok := t[userID]; ok {
		return tier, nil
	}
	return models.TierFree, nil
}

type memQuota struct {
	mu     sync.Mutex
	counts map[models.QuotaKey]int
}

func newMemQuota() *memQuota {
	return &memQuota{counts: make(map[models.QuotaKey]int)}
}

func (q *memQuota) Reserve(ctx context.Context, key models.QuotaKey, limit int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.counts[key] >= limit {
		return false, nil
	}
	q.counts[key]++
	return true, nil
}

func (q *memQuota) Count(ctx context.Context, key models.QuotaKey) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[key], nil
}

type memPending struct {
	mu       sync.Mutex
	records  map[string]models.SettlementRecord
	failures int
}

func newMemPending() *memPending {
	return &memPending{records: make(map[string]models.SettlementRecord)}
}

func (p *memPending) Save(ctx context.Context, rec *models.SettlementRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errStoreDown
	}
	p.records[rec.MatchID] = *rec
	return nil
}

func (p *memPending) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.SettlementRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*models.SettlementRecord
	for _, rec := range p.records {
		if rec.Status != models.SettlementStatusPending {
			continue
		}
		if rec.NextAttemptAt != nil && rec.NextAttemptAt.After(now) {
			continue
		}
		cp := rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *memPending) get(matchID string) (models.SettlementRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[matchID]
	return rec, ok
}

type memArchive struct {
	mu       sync.Mutex
	matches  map[string]*models.Match
	saves    int
	failures int
}

func newMemArchive() *memArchive {
	return &memArchive{matches: make(map[string]*models.Match)}
}

func (a *memArchive) Save(ctx context.Context, m *models.Match) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failures > 0 {
		a.failures--
		return errStoreDown
	}
	a.saves++
	a.matches[m.ID] = m.Clone()
	return nil
}

func (a *memArchive) FindByID(ctx context.Context, id string) (*models.Match, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.matches[id]
	if !ok {
		return nil, nil
	}
	return m.Clone(), nil
}

// eventLog records published events
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(t EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}
