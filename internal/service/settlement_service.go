package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const retryBatchSize = 100

// Settle converts a finished match into currency and XP deltas. Pure and
// deterministic; money is rounded half away from zero to whole units.
func Settle(outcome models.MatchOutcome, wager int64, bookBonus decimal.Decimal, bet models.BetConfig, correctRounds int) models.SettlementRecord {
	return models.SettlementRecord{
		Tier:             bet.Tier,
		Outcome:          outcome,
		Wager:            wager,
		BookBonusPercent: bookBonus.String(),
		CurrencyDelta:    CurrencyDelta(outcome, wager, bookBonus, bet),
		XPGain:           XPGain(bet, correctRounds),
		CorrectRounds:    correctRounds,
		Status:           models.SettlementStatusPending,
	}
}

// CurrencyDelta win: +wager x win x (1 + bonus), loss: -wager x loss, draw: wager x draw
func CurrencyDelta(outcome models.MatchOutcome, wager int64, bookBonus decimal.Decimal, bet models.BetConfig) int64 {
	stake := decimal.NewFromInt(wager)

	var delta decimal.Decimal
	switch outcome {
	case models.OutcomePlayerWin:
		delta = stake.Mul(bet.WinMultiplier).Mul(decimal.NewFromInt(1).Add(bookBonus))
	case models.OutcomeAIWin:
		delta = stake.Mul(bet.LossMultiplier).Neg()
	default:
		delta = stake.Mul(bet.DrawMultiplier)
	}
	return delta.Round(0).IntPart()
}

// XPGain (base + perCorrect x correct rounds) x tier multiplier, for any outcome
func XPGain(bet models.BetConfig, correctRounds int) int64 {
	raw := decimal.NewFromInt(bet.XPBase + bet.XPPerCorrect*int64(correctRounds))
	return raw.Mul(bet.XPMultiplier).Round(0).IntPart()
}

// RefundRecord settlement of a cancelled match: the full wager is returned,
// no XP and no streak activity
func RefundRecord(wager int64, tier models.Tier) models.SettlementRecord {
	return models.SettlementRecord{
		Tier:             tier,
		Cancelled:        true,
		Wager:            wager,
		BookBonusPercent: "0",
		Status:           models.SettlementStatusPending,
	}
}

func transactionType(rec *models.SettlementRecord) models.TransactionType {
	if rec.Cancelled {
		return models.TransactionTypeMatchRefund
	}
	switch rec.Outcome {
	case models.OutcomePlayerWin:
		return models.TransactionTypeMatchWin
	case models.OutcomeAIWin:
		return models.TransactionTypeMatchLoss
	default:
		return models.TransactionTypeMatchDraw
	}
}

func ledgerReference(matchID string) string {
	return "arena-match:" + matchID
}

// SettlementService reports settlement records to the wallet, XP and streak
// ledgers. A record whose legs cannot all be written is persisted as pending
// and retried with capped exponential backoff until every leg is applied.
type SettlementService struct {
	wallet  Wallet
	xp      XPLedger
	streak  StreakLedger
	pending PendingSettlementStore
	events  *EventBroker
	clock   Clock
	logger  *zap.Logger

	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu      sync.Mutex
	unsaved map[string]*models.SettlementRecord
}

func NewSettlementService(
	wallet Wallet,
	xp XPLedger,
	streak StreakLedger,
	pending PendingSettlementStore,
	events *EventBroker,
	clock Clock,
	baseBackoff, maxBackoff time.Duration,
	logger *zap.Logger,
) *SettlementService {
	if baseBackoff <= 0 {
		baseBackoff = 5 * time.Second
	}
	if maxBackoff < baseBackoff {
		maxBackoff = baseBackoff
	}
	return &SettlementService{
		wallet:      wallet,
		xp:          xp,
		streak:      streak,
		pending:     pending,
		events:      events,
		clock:       clock,
		logger:      logger,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		unsaved:     make(map[string]*models.SettlementRecord),
	}
}

// Apply writes every unapplied leg of rec. On failure the record is kept
// pending and ErrLedgerWriteFailed is returned; the match itself is unaffected.
func (s *SettlementService) Apply(ctx context.Context, rec *models.SettlementRecord) error {
	legErr := s.applyLegs(ctx, rec)
	now := s.clock.Now()

	if legErr == nil {
		rec.Status = models.SettlementStatusApplied
		rec.AppliedAt = &now
		rec.LastError = nil
		rec.NextAttemptAt = nil
		if rec.Attempts > 0 {
			s.persist(ctx, rec)
		}
		s.logger.Info("Settlement applied",
			zap.String("matchId", rec.MatchID),
			zap.String("userId", rec.UserID),
			zap.Int64("currencyDelta", rec.CurrencyDelta),
			zap.Int64("xpGain", rec.XPGain),
			zap.Int("attempts", rec.Attempts),
		)
		return nil
	}

	rec.Attempts++
	msg := legErr.Error()
	rec.LastError = &msg
	next := now.Add(s.backoff(rec.Attempts))
	rec.NextAttemptAt = &next
	rec.Status = models.SettlementStatusPending
	s.persist(ctx, rec)

	s.logger.Warn("Settlement pending",
		zap.String("matchId", rec.MatchID),
		zap.Int("attempts", rec.Attempts),
		zap.Time("nextAttemptAt", next),
		zap.Error(legErr),
	)
	s.events.Publish(newEvent(EventSettlementPending, rec.MatchID, rec.UserID, now, SettlementPendingPayload{
		Attempts:      rec.Attempts,
		NextAttemptAt: rec.NextAttemptAt,
	}))

	return fmt.Errorf("%w: %v", ErrLedgerWriteFailed, legErr)
}

func (s *SettlementService) applyLegs(ctx context.Context, rec *models.SettlementRecord) error {
	if !rec.WalletApplied {
		if _, err := s.wallet.AdjustBalance(ctx, rec.UserID, rec.CurrencyDelta, transactionType(rec), ledgerReference(rec.MatchID)); err != nil {
			return fmt.Errorf("wallet: %w", err)
		}
		rec.WalletApplied = true
	}

	if rec.XPGain > 0 && !rec.XPApplied {
		progress, err := s.xp.AddXP(ctx, rec.UserID, rec.XPGain, ledgerReference(rec.MatchID))
		if err != nil {
			return fmt.Errorf("xp: %w", err)
		}
		rec.XPApplied = true

		if progress != nil && progress.LeveledUp {
			s.events.Publish(newEvent(EventLevelUp, rec.MatchID, rec.UserID, s.clock.Now(), LevelUpPayload{
				Level:   progress.Level,
				TotalXP: progress.TotalXP,
			}))
		}
	}

	if rec.RecordStreak && !rec.StreakApplied {
		if _, err := s.streak.RecordActivity(ctx, rec.UserID, rec.ActivityDate); err != nil {
			return fmt.Errorf("streak: %w", err)
		}
		rec.StreakApplied = true
	}

	return nil
}

// persist stores rec in the pending store, keeping an in-memory copy when the
// store is unavailable so the record is never dropped
func (s *SettlementService) persist(ctx context.Context, rec *models.SettlementRecord) {
	err := s.pending.Save(ctx, rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.logger.Error("Failed to persist settlement record",
			zap.String("matchId", rec.MatchID),
			zap.Error(err),
		)
		if rec.Status == models.SettlementStatusPending {
			cp := *rec
			s.unsaved[rec.MatchID] = &cp
			return
		}
	}
	delete(s.unsaved, rec.MatchID)
}

// RetryPending re-applies due pending records. Returns how many became applied.
func (s *SettlementService) RetryPending(ctx context.Context) (int, error) {
	now := s.clock.Now()

	due, listErr := s.pending.ListDue(ctx, now, retryBatchSize)
	if listErr != nil {
		listErr = fmt.Errorf("failed to list pending settlements: %w", listErr)
	}

	seen := make(map[string]bool, len(due))
	for _, rec := range due {
		seen[rec.MatchID] = true
	}

	s.mu.Lock()
	for id, rec := range s.unsaved {
		if seen[id] {
			continue
		}
		if rec.NextAttemptAt == nil || !rec.NextAttemptAt.After(now) {
			cp := *rec
			due = append(due, &cp)
		}
	}
	s.mu.Unlock()

	applied := 0
	for _, rec := range due {
		if ctx.Err() != nil {
			break
		}
		if rec.Status == models.SettlementStatusApplied {
			continue
		}
		if err := s.Apply(ctx, rec); err == nil {
			applied++
		}
	}

	if applied > 0 {
		s.logger.Info("Pending settlements applied", zap.Int("count", applied))
	}
	return applied, listErr
}

// backoff base x 2^(attempts-1), capped
func (s *SettlementService) backoff(attempts int) time.Duration {
	delay := s.baseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= s.maxBackoff {
			return s.maxBackoff
		}
	}
	if delay > s.maxBackoff {
		return s.maxBackoff
	}
	return delay
}
