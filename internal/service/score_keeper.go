package service

import "github.com/rl-arena/arena-match-engine/internal/models"

// ScoreKeeper running tally of resolved rounds
type ScoreKeeper struct {
	score models.Score
}

func NewScoreKeeper() *ScoreKeeper {
	return &ScoreKeeper{}
}

// RecordRound counts one resolved round. Pending rounds are not counted.
func (k *ScoreKeeper) RecordRound(winner models.RoundWinner, playerCorrect bool) {
	switch winner {
	case models.RoundWinnerPlayer:
		k.score.RoundsWonPlayer++
	case models.RoundWinnerAI:
		k.score.RoundsWonAI++
	case models.RoundWinnerDraw:
		k.score.Draws++
	default:
		return
	}
	if playerCorrect {
		k.score.CorrectPlayer++
	}
}

func (k *ScoreKeeper) Score() models.Score {
	return k.score
}

// FinalOutcome compares rounds won by each side
func (k *ScoreKeeper) FinalOutcome() models.MatchOutcome {
	switch {
	case k.score.RoundsWonPlayer > k.score.RoundsWonAI:
		return models.OutcomePlayerWin
	case k.score.RoundsWonAI > k.score.RoundsWonPlayer:
		return models.OutcomeAIWin
	default:
		return models.OutcomeDraw
	}
}
