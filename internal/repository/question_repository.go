package repository

import (
	"context"
	"fmt"

	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/rl-arena/arena-match-engine/pkg/database"
)

type QuestionRepository struct {
	db *database.DB
}

func NewQuestionRepository(db *database.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// NextQuestions random active questions of a category
func (r *QuestionRepository) NextQuestions(ctx context.Context, count int, category string) ([]models.Question, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category, prompt, correct_answer, tolerance
		FROM questions
		WHERE category = $1 AND active
		ORDER BY random()
		LIMIT $2
	`, category, count)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	questions := make([]models.Question, 0, count)
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.Category, &q.Prompt, &q.CorrectAnswer, &q.Tolerance); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
