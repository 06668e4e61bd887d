package stt

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"

	// answer the model gives when it cannot make out any words
	unintelligibleMarker = "[UNINTELLIGIBLE]"

	transcriptionPrompt = "Transcribe the spoken words in this recording exactly as pronounced, " +
		"in language %s. Do not correct grammar or pronunciation and do not add punctuation. " +
		"Reply with the transcript only. If no words can be understood, reply with " + unintelligibleMarker + "."
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiSpeechToText transcribes audio with a multimodal Gemini model
type GeminiSpeechToText struct {
	models contentGenerator
	model  string
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GeminiSpeechToText)(nil)

// NewGeminiSpeechToText creates a Gemini backed recognizer
func NewGeminiSpeechToText(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiSpeechToText, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiSpeechToText{
		models: client.Models,
		model:  model,
		logger: logger,
	}, nil
}

// Name implements repositories.SpeechToText
func (g *GeminiSpeechToText) Name() string {
	return "gemini"
}

// TranscribeAudio implements repositories.SpeechToText
func (g *GeminiSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	language := config.Language
	if language == "" {
		language = "en-US"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(fmt.Sprintf(transcriptionPrompt, language)),
			genai.NewPartFromBytes(audioData, "audio/wav"),
		}, genai.RoleUser),
	}
	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0)),
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("gemini transcription failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: %w", entities.ErrUnintelligible)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}

	transcript := strings.TrimSpace(text.String())
	if transcript == "" || strings.Contains(transcript, unintelligibleMarker) {
		return "", fmt.Errorf("gemini: %w", entities.ErrUnintelligible)
	}

	g.logger.Debug("Gemini transcription finished",
		zap.String("model", g.model),
		zap.Int("audioSize", len(audioData)))

	return transcript, nil
}
