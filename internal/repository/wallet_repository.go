package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/rl-arena/arena-match-engine/pkg/database"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

type WalletRepository struct {
	db *database.DB
}

func NewWalletRepository(db *database.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetBalance current balance, 0 for players without a wallet row
func (r *WalletRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// AdjustBalance applies delta and journals it under reference. Replaying a
// reference returns the balance recorded the first time without changing it.
func (r *WalletRepository) AdjustBalance(ctx context.Context, userID string, delta int64, txType models.TransactionType, reference string) (int64, error) {
	var balance int64

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT balance_after FROM wallet_transactions
			WHERE user_id = $1 AND reference = $2
		`, userID, reference).Scan(&balance)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check journal: %w", err)
		}

		var current int64
		err = tx.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(&current)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to lock wallet: %w", err)
		}

		next := current + delta
		if next < 0 {
			return fmt.Errorf("%w: balance %d, delta %d", ErrInsufficientBalance, current, delta)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wallets (user_id, balance, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()
		`, userID, next); err != nil {
			return fmt.Errorf("failed to update wallet: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wallet_transactions (id, user_id, amount, type, reference, balance_after)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New().String(), userID, delta, string(txType), reference, next); err != nil {
			return fmt.Errorf("failed to journal transaction: %w", err)
		}

		balance = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}
