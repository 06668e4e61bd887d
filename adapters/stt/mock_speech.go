package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
)

// MockSpeechToText answers every request with a fixed transcript.
// Useful for local runs without cloud credentials.
type MockSpeechToText struct {
	transcript string
	logger     *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(transcript string, logger *zap.Logger) repositories.SpeechToText {
	return &MockSpeechToText{
		transcript: transcript,
		logger:     logger,
	}
}

// Name implements repositories.SpeechToText
func (s *MockSpeechToText) Name() string {
	return "mock"
}

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.logger.Info("Processing speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding))

	if len(audioData) == 0 || s.transcript == "" {
		return "", fmt.Errorf("mock: %w", entities.ErrUnintelligible)
	}
	return s.transcript, nil
}
