package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/lafal/domain/repositories"
)

// Provider names accepted by New
const (
	ProviderGoogle = "google"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Options selects and configures a speech recognition backend
type Options struct {
	Provider       string
	GeminiAPIKey   string
	GeminiModel    string
	MockTranscript string
}

// New builds the configured backend. The returned close function is never nil.
func New(ctx context.Context, opts Options, logger *zap.Logger) (repositories.SpeechToText, func() error, error) {
	noop := func() error { return nil }

	switch opts.Provider {
	case ProviderGoogle, "":
		g, err := NewGoogleSpeechToText(ctx, logger)
		if err != nil {
			return nil, noop, err
		}
		return g, g.Close, nil
	case ProviderGemini:
		g, err := NewGeminiSpeechToText(ctx, opts.GeminiAPIKey, opts.GeminiModel, logger)
		if err != nil {
			return nil, noop, err
		}
		return g, noop, nil
	case ProviderMock:
		return NewMockSpeechToText(opts.MockTranscript, logger), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown speech provider %q", opts.Provider)
	}
}
