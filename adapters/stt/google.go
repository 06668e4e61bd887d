package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"

	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
)

// recognizer is the subset of the Cloud Speech client used here
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client recognizer
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText connects to Cloud Speech using application default credentials
func NewGoogleSpeechToText(ctx context.Context, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleSpeechToText{client: client, logger: logger}, nil
}

// Name implements repositories.SpeechToText
func (g *GoogleSpeechToText) Name() string {
	return "google"
}

// TranscribeAudio sends the whole recording in a single synchronous Recognize call
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return "", err
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        encoding,
			SampleRateHertz: int32(config.SampleRate),
			LanguageCode:    config.Language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	}

	resp, err := g.client.Recognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("recognition connection failed: %w", err)
	}

	// Take the best alternative of every result
	var parts []string
	for _, result := range resp.GetResults() {
		if len(result.GetAlternatives()) == 0 {
			continue
		}
		if text := strings.TrimSpace(result.GetAlternatives()[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("google: %w", entities.ErrUnintelligible)
	}

	g.logger.Debug("Google recognition finished",
		zap.Int("results", len(resp.GetResults())),
		zap.Int("audioSize", len(audioData)))

	return strings.Join(parts, " "), nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "", "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
