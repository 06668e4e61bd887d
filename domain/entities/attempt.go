package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Attempt is the stored summary of one evaluation. Audio is never kept.
type Attempt struct {
	ID           string      `json:"id" bson:"_id"`
	LearnerID    string      `json:"learner_id" bson:"learner_id"`
	Reference    string      `json:"reference" bson:"reference"`
	Transcript   string      `json:"transcript" bson:"transcript"`
	Language     string      `json:"language" bson:"language"`
	Score        float64     `json:"score" bson:"score"`
	Words        []WordScore `json:"words" bson:"words"`
	AudioSeconds float64     `json:"audio_seconds" bson:"audio_seconds"`
	CreatedAt    time.Time   `json:"created_at" bson:"created_at"`
}

// NewAttempt builds an attempt from a finished evaluation
func NewAttempt(learnerID, reference, language, transcript string, clip AudioClip, result EvaluationResult) *Attempt {
	return &Attempt{
		ID:           uuid.NewString(),
		LearnerID:    learnerID,
		Reference:    reference,
		Transcript:   transcript,
		Language:     language,
		Score:        result.Score,
		Words:        result.Words,
		AudioSeconds: clip.Duration().Seconds(),
		CreatedAt:    time.Now().UTC(),
	}
}

// Validate validates the attempt data
func (a *Attempt) Validate() error {
	if a.LearnerID == "" {
		return errors.New("learner_id is required")
	}
	if a.Reference == "" {
		return errors.New("reference is required")
	}
	if a.Score < 0 || a.Score > 1 {
		return errors.New("score must be between 0 and 1")
	}
	return nil
}
