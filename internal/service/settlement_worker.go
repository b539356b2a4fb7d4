package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rl-arena/arena-match-engine/pkg/distributed"
	"go.uber.org/zap"
)

const (
	settlementLockKey = "arena:settlement:retry:lock"
	// a sweep may outlive its lease, which is then extended
	sweepTimeoutFactor = 4
)

// ArchiveRetrier stores terminal matches whose archive write failed
type ArchiveRetrier interface {
	RetryArchive(ctx context.Context) int
}

// SettlementWorker periodically retries pending settlements. With a lock
// manager only one instance runs a given sweep.
type SettlementWorker struct {
	settlement *SettlementService
	locks      *distributed.RedisLockManager
	archives   ArchiveRetrier
	interval   time.Duration
	instanceID string
	scheduler  gocron.Scheduler
	logger     *zap.Logger
}

func NewSettlementWorker(
	settlement *SettlementService,
	locks *distributed.RedisLockManager,
	interval time.Duration,
	logger *zap.Logger,
) *SettlementWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SettlementWorker{
		settlement: settlement,
		locks:      locks,
		interval:   interval,
		instanceID: uuid.New().String(),
		logger:     logger,
	}
}

// WithArchiveRetry also retries this instance's unarchived matches on every
// tick. Those live in local memory so they are swept outside the cluster lock.
func (w *SettlementWorker) WithArchiveRetry(archives ArchiveRetrier) *SettlementWorker {
	w.archives = archives
	return w
}

// Start schedules the sweep on a gocron duration job
func (w *SettlementWorker) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeoutFactor*w.interval)
			defer cancel()
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("Settlement retry sweep failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule settlement retry: %w", err)
	}

	w.scheduler = scheduler
	scheduler.Start()

	w.logger.Info("Starting SettlementWorker", zap.Duration("interval", w.interval))
	return nil
}

// Stop waits for a running sweep and stops the scheduler
func (w *SettlementWorker) Stop() error {
	if w.scheduler == nil {
		return nil
	}
	w.logger.Info("Stopping SettlementWorker")
	return w.scheduler.Shutdown()
}

// RunOnce executes one sweep. When another instance holds the lock the
// settlement part is skipped.
func (w *SettlementWorker) RunOnce(ctx context.Context) (int, error) {
	if w.archives != nil {
		if n := w.archives.RetryArchive(ctx); n > 0 {
			w.logger.Info("Archived matches on retry", zap.Int("count", n))
		}
	}

	if w.locks == nil {
		return w.settlement.RetryPending(ctx)
	}

	lock, err := w.locks.AcquireLock(ctx, settlementLockKey, w.instanceID, w.interval)
	if errors.Is(err, distributed.ErrLockNotAcquired) {
		w.logger.Debug("Settlement retry lock held elsewhere, skipping")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to acquire settlement lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, distributed.ErrLockNotHeld) {
			w.logger.Warn("Failed to release settlement lock", zap.Error(err))
		}
	}()

	stop := w.keepLease(ctx, lock)
	defer stop()

	return w.settlement.RetryPending(ctx)
}

// keepLease extends the lock every half interval until stop is called
func (w *SettlementWorker) keepLease(ctx context.Context, lock *distributed.RedisLock) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(w.interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := lock.Extend(ctx, w.interval); err != nil {
					w.logger.Warn("Failed to extend settlement lock", zap.Error(err))
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}
