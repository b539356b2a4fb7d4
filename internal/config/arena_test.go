package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultArenaConfig(t *testing.T) {
	cfg := DefaultArenaConfig()

	free, ok := cfg.BetConfig(models.TierFree)
	require.True(t, ok)
	assert.Equal(t, int64(10), free.MinWager)
	assert.Equal(t, int64(100), free.MaxWager)
	assert.Equal(t, 3, free.DailyMatchLimit)
	assert.True(t, free.WinMultiplier.Equal(decimal.RequireFromString("1.8")))
	assert.True(t, free.DrawMultiplier.IsZero())
	assert.Equal(t, 2, free.DefaultDifficulty)

	pro, ok := cfg.BetConfig(models.TierPro)
	require.True(t, ok)
	assert.Equal(t, 3, pro.DefaultDifficulty)

	_, ok = cfg.BetConfig("platinum")
	assert.False(t, ok)
}

func TestDefaultArenaConfig_DifficultyScaling(t *testing.T) {
	cfg := DefaultArenaConfig()

	for d := 2; d <= 5; d++ {
		easier, _ := cfg.AIProfile(d - 1)
		harder, ok := cfg.AIProfile(d)
		require.True(t, ok)
		assert.Greater(t, harder.Accuracy, easier.Accuracy, "difficulty %d", d)
		assert.Less(t, harder.MaxResponseTime, easier.MaxResponseTime, "difficulty %d", d)
		assert.GreaterOrEqual(t, harder.MinResponseTime, models.MinAIResponseTime)
		assert.LessOrEqual(t, harder.MaxResponseTime, models.MaxAIResponseTime)
	}
}

func TestLoadArenaConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadArenaConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Tiers, 3)
	assert.Len(t, cfg.Difficulties, 5)
}

func TestLoadArenaConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	content := `
default_category: math
default_difficulty: 1
tiers:
  - tier: free
    min_wager: 5
    max_wager: 50
    daily_match_limit: 2
    xp_base: 10
    xp_per_correct: 2
difficulties:
  - difficulty: 1
    accuracy: 0.4
    min_response_ms: 2000
    max_response_ms: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadArenaConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "math", cfg.DefaultCategory)
	free, ok := cfg.BetConfig(models.TierFree)
	require.True(t, ok)
	assert.Equal(t, int64(5), free.MinWager)
	// omitted multipliers fall back to the default payout policy
	assert.True(t, free.WinMultiplier.Equal(decimal.RequireFromString("1.8")))
	assert.True(t, free.LossMultiplier.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1, free.DefaultDifficulty)

	p, ok := cfg.AIProfile(1)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, p.MinResponseTime)
	assert.Equal(t, 9*time.Second, p.MaxResponseTime)
}

func TestParseArenaConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "wager bounds inverted",
			content: `
default_difficulty: 1
tiers:
  - {tier: free, min_wager: 100, max_wager: 10, daily_match_limit: 1}
difficulties:
  - {difficulty: 1, accuracy: 0.5, min_response_ms: 1000, max_response_ms: 10000}
`,
		},
		{
			name: "latency beyond deadline",
			content: `
default_difficulty: 1
tiers:
  - {tier: free, min_wager: 10, max_wager: 100, daily_match_limit: 1}
difficulties:
  - {difficulty: 1, accuracy: 0.5, min_response_ms: 1000, max_response_ms: 12000}
`,
		},
		{
			name: "harder difficulty is less accurate",
			content: `
default_difficulty: 1
tiers:
  - {tier: free, min_wager: 10, max_wager: 100, daily_match_limit: 1}
difficulties:
  - {difficulty: 1, accuracy: 0.7, min_response_ms: 1000, max_response_ms: 9000}
  - {difficulty: 2, accuracy: 0.6, min_response_ms: 1000, max_response_ms: 8000}
`,
		},
		{
			name: "bad multiplier",
			content: `
default_difficulty: 1
tiers:
  - {tier: free, min_wager: 10, max_wager: 100, daily_match_limit: 1, win_multiplier: "abc"}
difficulties:
  - {difficulty: 1, accuracy: 0.5, min_response_ms: 1000, max_response_ms: 9000}
`,
		},
		{
			name: "unknown default difficulty",
			content: `
default_difficulty: 4
tiers:
  - {tier: free, min_wager: 10, max_wager: 100, daily_match_limit: 1}
difficulties:
  - {difficulty: 1, accuracy: 0.5, min_response_ms: 1000, max_response_ms: 9000}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArenaConfig([]byte(tt.content))
			assert.Error(t, err)
		})
	}
}
