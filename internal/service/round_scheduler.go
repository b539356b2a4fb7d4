package service

import (
	"time"

	"github.com/rl-arena/arena-match-engine/internal/models"
)

// RoundScheduler drives one round: AwaitingAnswer -> Resolving -> Complete.
// It is not safe for concurrent use; the owner serializes every call, including
// the timer callbacks passed to Start.
type RoundScheduler struct {
	clock    Clock
	round    *models.Round
	question models.Question
	duration time.Duration

	aiAnswer    *models.Answer
	aiDelivered bool

	deadlineTimer Timer
	aiTimer       Timer
}

func NewRoundScheduler(clock Clock, round *models.Round, question models.Question, duration time.Duration) *RoundScheduler {
	return &RoundScheduler{
		clock:    clock,
		round:    round,
		question: question,
		duration: duration,
	}
}

// Start opens the round and arms the deadline. The AI answer is released
// through onAIAnswer after its simulated latency; an answer that would arrive
// at or after the deadline is never delivered.
func (s *RoundScheduler) Start(ai models.Answer, onDeadline, onAIAnswer func()) {
	now := s.clock.Now()
	s.round.QuestionID = s.question.ID
	s.round.Prompt = s.question.Prompt
	s.round.CorrectAnswer = s.question.CorrectAnswer
	s.round.Tolerance = s.question.Tolerance
	s.round.State = models.RoundStateAwaitingAnswer
	s.round.Winner = models.RoundWinnerPending
	s.round.StartedAt = now
	s.round.Deadline = now.Add(s.duration)

	s.deadlineTimer = s.clock.AfterFunc(s.duration, onDeadline)
	if ai.ResponseTime < s.duration {
		answer := ai
		s.aiAnswer = &answer
		s.aiTimer = s.clock.AfterFunc(ai.ResponseTime, onAIAnswer)
	}
}

// Resolved reports whether the round has left AwaitingAnswer
func (s *RoundScheduler) Resolved() bool {
	return s.round.State != models.RoundStateAwaitingAnswer
}

func (s *RoundScheduler) Round() *models.Round {
	return s.round
}

// SubmitPlayer records the player's answer. The round resolves immediately if
// the AI has already answered. A submission at or past the deadline resolves
// the round as expired and is rejected. resolved reports whether this call
// completed the round; err is a round error when the answer was not accepted.
func (s *RoundScheduler) SubmitPlayer(value float64) (resolved bool, err error) {
	if s.Resolved() {
		return false, ErrSubmissionAfterResolution
	}
	if s.round.PlayerAnswer != nil {
		return false, ErrDuplicateSubmission
	}

	elapsed := s.clock.Now().Sub(s.round.StartedAt)
	if elapsed >= s.duration {
		return s.Expire(), ErrSubmissionAfterResolution
	}

	s.round.PlayerAnswer = &models.Answer{Value: value, ResponseTime: elapsed}

	// a late firing AI timer must not reorder answers
	if !s.aiDelivered && s.aiAnswer != nil && s.aiAnswer.ResponseTime <= elapsed {
		s.deliverAI()
	}

	if s.aiDelivered {
		s.resolve()
		return true, nil
	}
	return false, nil
}

// DeliverAIAnswer releases the AI answer. Returns true if this resolved the round.
func (s *RoundScheduler) DeliverAIAnswer() bool {
	if s.Resolved() || s.aiDelivered || s.aiAnswer == nil {
		return false
	}
	s.deliverAI()

	if s.round.PlayerAnswer != nil {
		s.resolve()
		return true
	}
	return false
}

// Expire forces resolution at the deadline. Returns false if already resolved.
func (s *RoundScheduler) Expire() bool {
	if s.Resolved() {
		return false
	}
	if !s.aiDelivered && s.aiAnswer != nil {
		s.deliverAI()
	}
	s.resolve()
	return true
}

// Stop disarms the round's timers without resolving it
func (s *RoundScheduler) Stop() {
	if s.deadlineTimer != nil {
		s.deadlineTimer.Stop()
	}
	if s.aiTimer != nil {
		s.aiTimer.Stop()
	}
}

func (s *RoundScheduler) deliverAI() {
	answer := *s.aiAnswer
	s.round.AIAnswer = &answer
	s.aiDelivered = true
}

func (s *RoundScheduler) resolve() {
	s.round.State = models.RoundStateResolving
	s.Stop()

	r := s.round
	r.PlayerCorrect = r.PlayerAnswer != nil && s.question.IsCorrect(r.PlayerAnswer.Value)
	r.AICorrect = r.AIAnswer != nil && s.question.IsCorrect(r.AIAnswer.Value)
	r.Winner = decideWinner(r)

	now := s.clock.Now()
	r.ResolvedAt = &now
	r.State = models.RoundStateComplete
}

func decideWinner(r *models.Round) models.RoundWinner {
	switch {
	case r.PlayerCorrect && r.AICorrect:
		switch {
		case r.PlayerAnswer.ResponseTime < r.AIAnswer.ResponseTime:
			return models.RoundWinnerPlayer
		case r.AIAnswer.ResponseTime < r.PlayerAnswer.ResponseTime:
			return models.RoundWinnerAI
		default:
			return models.RoundWinnerDraw
		}
	case r.PlayerCorrect:
		return models.RoundWinnerPlayer
	case r.AICorrect:
		return models.RoundWinnerAI
	default:
		return models.RoundWinnerDraw
	}
}
