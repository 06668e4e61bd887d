package api

import (
	"time"

	"github.com/satriahrh/lafal/domain"
	"github.com/satriahrh/lafal/domain/entities"
)

// TokenRequest represents the request payload for learner authentication.
// An empty learner_id issues a token for a new anonymous learner. A learner_id
// is only accepted together with a valid bearer token for that learner.
type TokenRequest struct {
	LearnerID string `json:"learner_id"`
}

// TokenResponse represents the response payload for learner authentication
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	LearnerID string    `json:"learner_id"`
}

// SamplesRequest is a block capture of float samples in [-1.0, 1.0]
type SamplesRequest struct {
	Reference  string    `json:"reference"`
	Language   string    `json:"language,omitempty"`
	SampleRate int       `json:"sample_rate"`
	Samples    []float32 `json:"samples"`
}

// EvaluationResponse is a scored recording with its feedback lines
type EvaluationResponse struct {
	domain.EvaluationMessage
	Feedback []string `json:"feedback"`
}

// AttemptResponse is one stored evaluation
type AttemptResponse struct {
	domain.EvaluationMessage
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse lists a learner's attempts, newest first
type HistoryResponse struct {
	Attempts []AttemptResponse `json:"attempts"`
}

// PhonemeResponse shows how a word is scored
type PhonemeResponse struct {
	Word     string     `json:"word"`
	Phonemes []string   `json:"phonemes"`
	Variants [][]string `json:"variants"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func newAttemptResponse(a *entities.Attempt) AttemptResponse {
	return AttemptResponse{
		EvaluationMessage: domain.NewAttemptMessage(a),
		Language:          a.Language,
		CreatedAt:         a.CreatedAt,
	}
}
