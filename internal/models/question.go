package models

import "math"

// Question supplied by the question bank. Tolerance of 0 means exact match.
type Question struct {
	ID            string  `json:"id" db:"id"`
	Category      string  `json:"category" db:"category"`
	Prompt        string  `json:"prompt" db:"prompt"`
	CorrectAnswer float64 `json:"-" db:"correct_answer"`
	Tolerance     float64 `json:"-" db:"tolerance"`
}

// IsCorrect exact numeric match or within the tolerance band
func (q Question) IsCorrect(value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	if q.Tolerance <= 0 {
		return value == q.CorrectAnswer
	}
	return math.Abs(value-q.CorrectAnswer) <= q.Tolerance
}
