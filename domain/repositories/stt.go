package repositories

import "context"

// SpeechToText abstracts speech recognition services.
// Implementations return an error wrapping entities.ErrUnintelligible when the
// audio was received but no words could be recognized.
type SpeechToText interface {
	// TranscribeAudio converts a WAV container to text
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
	// Name identifies the backend in logs and metrics
	Name() string
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}
