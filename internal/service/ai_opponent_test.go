package service

import (
	"testing"
	"time"

	"github.com/rl-arena/arena-match-engine/internal/config"
	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAIOpponent_Deterministic(t *testing.T) {
	ai := NewAIOpponent()
	q := models.Question{ID: "q", CorrectAnswer: 12.5, Tolerance: 0.1}
	profile := models.AIProfile{Difficulty: 3, Accuracy: 0.7, MinResponseTime: 2 * time.Second, MaxResponseTime: 8 * time.Second}

	for seed := uint64(0); seed < 50; seed++ {
		assert.Equal(t, ai.Answer(q, profile, seed), ai.Answer(q, profile, seed), "seed %d", seed)
	}
}

func TestAIOpponent_Accuracy(t *testing.T) {
	ai := NewAIOpponent()
	q := models.Question{ID: "q", CorrectAnswer: 100, Tolerance: 2}

	tests := []struct {
		name     string
		accuracy float64
		correct  bool
	}{
		{"always right", 1, true},
		{"always wrong", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := models.AIProfile{Accuracy: tt.accuracy, MinResponseTime: time.Second, MaxResponseTime: 5 * time.Second}
			for seed := uint64(1); seed <= 200; seed++ {
				a := ai.Answer(q, profile, seed)
				assert.Equal(t, tt.correct, q.IsCorrect(a.Value), "seed %d value %v", seed, a.Value)
			}
		})
	}
}

func TestAIOpponent_ResponseTimeBounds(t *testing.T) {
	ai := NewAIOpponent()
	q := models.Question{CorrectAnswer: 3}
	profile := models.AIProfile{Accuracy: 0.5, MinResponseTime: 2500 * time.Millisecond, MaxResponseTime: 9000 * time.Millisecond}

	for seed := uint64(0); seed < 500; seed++ {
		rt := ai.Answer(q, profile, seed).ResponseTime
		assert.GreaterOrEqual(t, rt, profile.MinResponseTime)
		assert.LessOrEqual(t, rt, profile.MaxResponseTime)
	}

	// bounds outside the simulated range are clamped
	wide := models.AIProfile{Accuracy: 1, MinResponseTime: 0, MaxResponseTime: time.Minute}
	for seed := uint64(0); seed < 100; seed++ {
		rt := ai.Answer(q, wide, seed).ResponseTime
		assert.GreaterOrEqual(t, rt, models.MinAIResponseTime)
		assert.LessOrEqual(t, rt, models.MaxAIResponseTime)
	}
}

func TestAIOpponent_DifficultyScaling(t *testing.T) {
	ai := NewAIOpponent()
	arena := config.DefaultArenaConfig()
	q := models.Question{CorrectAnswer: 7}

	easy, ok := arena.AIProfile(1)
	require.True(t, ok)
	hard, ok := arena.AIProfile(5)
	require.True(t, ok)

	stats := func(p models.AIProfile) (int, time.Duration) {
		correct := 0
		var total time.Duration
		for seed := uint64(0); seed < 2000; seed++ {
			a := ai.Answer(q, p, seed)
			if q.IsCorrect(a.Value) {
				correct++
			}
			total += a.ResponseTime
		}
		return correct, total / 2000
	}

	easyCorrect, easyLatency := stats(easy)
	hardCorrect, hardLatency := stats(hard)

	assert.Greater(t, hardCorrect, easyCorrect)
	assert.Less(t, hardLatency, easyLatency)
}
