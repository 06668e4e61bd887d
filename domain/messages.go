package domain

import (
	"time"

	"github.com/satriahrh/lafal/domain/entities"
)

// WordFeedbackMessage is one compared word as sent to clients
type WordFeedbackMessage struct {
	Index    int     `json:"index"`
	Spoken   string  `json:"spoken"`
	Expected string  `json:"expected"`
	Ratio    float64 `json:"ratio"`
	Correct  bool    `json:"correct"`
	Feedback string  `json:"feedback"`
}

// EvaluationMessage is the result of one pronunciation evaluation as sent to clients
type EvaluationMessage struct {
	AttemptID     string                `json:"attempt_id,omitempty"`
	Reference     string                `json:"reference"`
	Transcription string                `json:"transcription"`
	Words         []WordFeedbackMessage `json:"words"`
	Score         float64               `json:"score"`
	ScorePercent  string                `json:"score_percent"`
	AudioSeconds  float64               `json:"audio_seconds"`
}

// EvaluationEvent is published on the message bus after every successful evaluation
type EvaluationEvent struct {
	AttemptID  string    `json:"attempt_id"`
	LearnerID  string    `json:"learner_id"`
	Reference  string    `json:"reference"`
	Transcript string    `json:"transcript"`
	Language   string    `json:"language"`
	Score      float64   `json:"score"`
	WordCount  int       `json:"word_count"`
	Correct    int       `json:"correct"`
	Provider   string    `json:"provider"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewWordFeedback converts scored words into their wire form
func NewWordFeedback(words []entities.WordScore) []WordFeedbackMessage {
	out := make([]WordFeedbackMessage, 0, len(words))
	for _, w := range words {
		out = append(out, WordFeedbackMessage{
			Index:    w.Index,
			Spoken:   w.Spoken,
			Expected: w.Expected,
			Ratio:    w.Ratio,
			Correct:  w.Correct,
			Feedback: w.Feedback(),
		})
	}
	return out
}

// NewAttemptMessage renders a stored attempt the same way a live evaluation is rendered
func NewAttemptMessage(a *entities.Attempt) EvaluationMessage {
	result := entities.EvaluationResult{Words: a.Words, Score: a.Score}
	return EvaluationMessage{
		AttemptID:     a.ID,
		Reference:     a.Reference,
		Transcription: a.Transcript,
		Words:         NewWordFeedback(a.Words),
		Score:         a.Score,
		ScorePercent:  result.Percent(),
		AudioSeconds:  a.AudioSeconds,
	}
}
