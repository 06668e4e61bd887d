// Package transcribe turns a canonical WAV container into a tagged TranscriptionResult.
package transcribe

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
)

// Transcriber wraps a speech recognition capability.
// Each call makes exactly one request; failures are reported, never retried.
type Transcriber struct {
	stt      repositories.SpeechToText
	language string
	logger   *zap.Logger
}

// NewTranscriber creates a transcriber with a default recognition language
func NewTranscriber(stt repositories.SpeechToText, language string, logger *zap.Logger) *Transcriber {
	return &Transcriber{
		stt:      stt,
		language: language,
		logger:   logger,
	}
}

// Provider names the backing recognition service
func (t *Transcriber) Provider() string {
	return t.stt.Name()
}

// Language used when a request does not name one
func (t *Transcriber) Language() string {
	return t.language
}

// Transcribe sends the container to the recognizer. Recognized text is returned verbatim.
// language overrides the default when not empty.
func (t *Transcriber) Transcribe(ctx context.Context, wav []byte, clip entities.AudioClip, language string) entities.TranscriptionResult {
	if language == "" {
		language = t.language
	}

	config := repositories.AudioConfig{
		SampleRate: clip.SampleRate,
		Encoding:   "LINEAR16",
		Language:   language,
	}

	text, err := t.stt.TranscribeAudio(ctx, wav, config)
	switch {
	case errors.Is(err, entities.ErrUnintelligible):
		t.logger.Info("Speech not recognized",
			zap.String("provider", t.stt.Name()),
			zap.Int("audioSize", len(wav)))
		return entities.Unintelligible()
	case err != nil:
		t.logger.Error("Speech recognition request failed",
			zap.String("provider", t.stt.Name()),
			zap.Error(err))
		return entities.ServiceFailure(err.Error())
	case strings.TrimSpace(text) == "":
		return entities.Unintelligible()
	}

	t.logger.Info("Transcription completed",
		zap.String("provider", t.stt.Name()),
		zap.String("text", text))
	return entities.Recognized(text)
}
