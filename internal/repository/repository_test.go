package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/rl-arena/arena-match-engine/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.Wrap(db), mock
}

func TestWalletRepository_AdjustBalance(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance_after FROM wallet_transactions")).
		WithArgs("user-1", "arena-match:m-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance_after"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(1000)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallets")).
		WithArgs("user-1", int64(1198)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_transactions")).
		WithArgs(sqlmock.AnyArg(), "user-1", int64(198), "match_win", "arena-match:m-1", int64(1198)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	balance, err := repo.AdjustBalance(context.Background(), "user-1", 198, models.TransactionTypeMatchWin, "arena-match:m-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1198), balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_AdjustBalanceReplay(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance_after FROM wallet_transactions")).
		WithArgs("user-1", "arena-match:m-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance_after"}).AddRow(int64(1198)))
	mock.ExpectCommit()

	balance, err := repo.AdjustBalance(context.Background(), "user-1", 198, models.TransactionTypeMatchWin, "arena-match:m-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1198), balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_AdjustBalanceInsufficient(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance_after FROM wallet_transactions")).
		WillReturnRows(sqlmock.NewRows([]string{"balance_after"}))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(40)))
	mock.ExpectRollback()

	_, err := repo.AdjustBalance(context.Background(), "user-1", -100, models.TransactionTypeMatchLoss, "arena-match:m-2")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_GetBalanceMissingWallet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM wallets")).
		WithArgs("user-9").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	balance, err := repo.GetBalance(context.Background(), "user-9")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestQuotaRepository_Reserve(t *testing.T) {
	key := models.QuotaKey{UserID: "user-1", Day: "2026-03-14", Tier: models.TierFree}

	tests := []struct {
		name     string
		rows     *sqlmock.Rows
		reserved bool
	}{
		{"below limit", sqlmock.NewRows([]string{"matches_started"}).AddRow(2), true},
		{"limit reached", sqlmock.NewRows([]string{"matches_started"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewQuotaRepository(db)

			mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO daily_quotas")).
				WithArgs("user-1", "2026-03-14", "free", 3).
				WillReturnRows(tt.rows)

			ok, err := repo.Reserve(context.Background(), key, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.reserved, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestQuotaRepository_Count(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuotaRepository(db)
	key := models.QuotaKey{UserID: "user-1", Day: "2026-03-14", Tier: models.TierPro}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT matches_started FROM daily_quotas")).
		WithArgs("user-1", "2026-03-14", "pro").
		WillReturnRows(sqlmock.NewRows([]string{"matches_started"}))

	n, err := repo.Count(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBookRepository_BonusFor(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(bonus_percent), 0)::text FROM books")).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("0.1500"))

	bonus, err := repo.BonusFor(context.Background(), []string{"b-1", "b-2"})
	require.NoError(t, err)
	assert.True(t, bonus.Equal(decimal.RequireFromString("0.15")))

	none, err := repo.BonusFor(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, none.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlayerRepository_TierFor(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPlayerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, tier, created_at FROM players")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "tier", "created_at"}).
			AddRow("user-1", "alice", "premium", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, tier, created_at FROM players")).
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "tier", "created_at"}))

	tier, err := repo.TierFor(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, tier)

	tier, err = repo.TierFor(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, tier)
}

func TestStreakRepository_RecordActivity(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStreakRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM player_streaks WHERE user_id = $1 FOR UPDATE")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"current_streak", "best_streak", "last_activity"}).
			AddRow(3, 5, "2026-03-13"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO player_streaks")).
		WithArgs("user-1", 4, 5, "2026-03-14").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	streak, err := repo.RecordActivity(context.Background(), "user-1", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 4, streak.Current)
	assert.Equal(t, 5, streak.Best)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressRepository_AddXP(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProgressRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO xp_events")).
		WithArgs("user-1", "arena-match:m-1", int64(70)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM player_progress")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"total_xp", "level", "last_level_up_at"}).AddRow(int64(50), 1, nil))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO player_progress")).
		WithArgs("user-1", int64(120), 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	progress, err := repo.AddXP(context.Background(), "user-1", 70, "arena-match:m-1")
	require.NoError(t, err)
	assert.Equal(t, int64(120), progress.TotalXP)
	assert.Equal(t, 2, progress.Level)
	assert.True(t, progress.LeveledUp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressRepository_AddXPReplay(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProgressRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO xp_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM player_progress")).
		WillReturnRows(sqlmock.NewRows([]string{"total_xp", "level", "last_level_up_at"}).AddRow(int64(120), 2, nil))
	mock.ExpectCommit()

	progress, err := repo.AddXP(context.Background(), "user-1", 70, "arena-match:m-1")
	require.NoError(t, err)
	assert.Equal(t, int64(120), progress.TotalXP)
	assert.False(t, progress.LeveledUp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepository_RoundsKeepHiddenFields(t *testing.T) {
	resolved := time.Date(2026, 3, 14, 12, 0, 5, 0, time.UTC)
	rounds := []models.Round{{
		Index:         0,
		QuestionID:    "q-0",
		CorrectAnswer: 42,
		Tolerance:     0.5,
		State:         models.RoundStateComplete,
		PlayerAnswer:  &models.Answer{Value: 42, ResponseTime: 1500 * time.Millisecond},
		Winner:        models.RoundWinnerPlayer,
		ResolvedAt:    &resolved,
	}}

	data, err := encodeRounds(rounds)
	require.NoError(t, err)
	decoded, err := decodeRounds(data)
	require.NoError(t, err)

	require.Len(t, decoded, 1)
	assert.Equal(t, 42.0, decoded[0].CorrectAnswer)
	assert.Equal(t, 0.5, decoded[0].Tolerance)
	assert.Equal(t, 1500*time.Millisecond, decoded[0].PlayerAnswer.ResponseTime)
	assert.Nil(t, decoded[0].AIAnswer)
}
