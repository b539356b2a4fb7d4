package models

import (
	"encoding/json"
	"time"
)

type RoundState string

const (
	RoundStateAwaitingAnswer RoundState = "awaiting_answer"
	RoundStateResolving      RoundState = "resolving"
	RoundStateComplete       RoundState = "complete"
)

type RoundWinner string

const (
	RoundWinnerPending RoundWinner = "pending"
	RoundWinnerPlayer  RoundWinner = "player"
	RoundWinnerAI      RoundWinner = "ai"
	RoundWinnerDraw    RoundWinner = "draw"
)

// Answer one side's submission. ResponseTime is measured from round start.
type Answer struct {
	Value        float64       `json:"value"`
	ResponseTime time.Duration `json:"-"`
}

func (a Answer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value          float64 `json:"value"`
		ResponseTimeMs int64   `json:"responseTimeMs"`
	}{a.Value, a.ResponseTime.Milliseconds()})
}

type Round struct {
	Index         int         `json:"index"`
	QuestionID    string      `json:"questionId"`
	Prompt        string      `json:"prompt"`
	CorrectAnswer float64     `json:"-"`
	Tolerance     float64     `json:"-"`
	State         RoundState  `json:"state"`
	StartedAt     time.Time   `json:"startedAt"`
	Deadline      time.Time   `json:"deadline"`
	PlayerAnswer  *Answer     `json:"playerAnswer,omitempty"`
	AIAnswer      *Answer     `json:"aiAnswer,omitempty"`
	PlayerCorrect bool        `json:"playerCorrect"`
	AICorrect     bool        `json:"aiCorrect"`
	Winner        RoundWinner `json:"winner"`
	ResolvedAt    *time.Time  `json:"resolvedAt,omitempty"`
}

// Clone copies the round including answer pointers
func (r Round) Clone() Round {
	out := r
	if r.PlayerAnswer != nil {
		a := *r.PlayerAnswer
		out.PlayerAnswer = &a
	}
	if r.AIAnswer != nil {
		a := *r.AIAnswer
		out.AIAnswer = &a
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

// RoundView is what a client may see. The correct answer is revealed only once resolved.
type RoundView struct {
	Round
	CorrectAnswer *float64 `json:"correctAnswer,omitempty"`
}

// View builds the client facing representation of the round
func (r Round) View() RoundView {
	v := RoundView{Round: r.Clone()}
	if r.State == RoundStateComplete {
		c := r.CorrectAnswer
		v.CorrectAnswer = &c
	} else {
		// AI answer stays hidden until resolution
		v.AIAnswer = nil
	}
	return v
}
