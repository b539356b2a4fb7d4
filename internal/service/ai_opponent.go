package service

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rl-arena/arena-match-engine/internal/models"
)

// AIOpponent simulates the opponent's answer for one round. The same
// (question, profile, seed) always produces the same answer.
type AIOpponent struct{}

func NewAIOpponent() *AIOpponent {
	return &AIOpponent{}
}

// Answer returns the simulated value and response time. With probability
// profile.Accuracy the value is correct, otherwise it lies outside the
// question's tolerance band.
func (o *AIOpponent) Answer(q models.Question, profile models.AIProfile, seed uint64) models.Answer {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	value := q.CorrectAnswer
	if r.Float64() >= profile.Accuracy {
		value = perturb(q, r)
	}

	return models.Answer{
		Value:        value,
		ResponseTime: responseTime(profile, r),
	}
}

// perturb moves the answer at least one step past the tolerance band
func perturb(q models.Question, r *rand.Rand) float64 {
	step := math.Max(1, math.Abs(q.CorrectAnswer)*0.1)
	offset := math.Max(q.Tolerance, 0) + step*float64(1+r.IntN(3))
	if r.IntN(2) == 0 {
		offset = -offset
	}
	return math.Round((q.CorrectAnswer+offset)*100) / 100
}

func responseTime(profile models.AIProfile, r *rand.Rand) time.Duration {
	lo := profile.MinResponseTime.Milliseconds()
	hi := profile.MaxResponseTime.Milliseconds()
	if lo < models.MinAIResponseTime.Milliseconds() {
		lo = models.MinAIResponseTime.Milliseconds()
	}
	if hi > models.MaxAIResponseTime.Milliseconds() {
		hi = models.MaxAIResponseTime.Milliseconds()
	}
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}
	return time.Duration(lo+r.Int64N(hi-lo+1)) * time.Millisecond
}
