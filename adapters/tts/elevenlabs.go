package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lafal/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM" // Rachel voice
	defaultChunkSize    = 4096
	defaultOutputFormat = "pcm_16000" // 16 kHz mono s16le, the canonical clip rate
	defaultModelID      = "eleven_multilingual_v2"
	defaultStability    = 0.75 // steadier delivery for model pronunciations
	defaultClarity      = 0.75
)

// ElevenLabsConfig holds configuration for the ElevenLabsTTS adapter.
// Only APIKey is required; OutputFormat must be one of the pcm_* formats.
type ElevenLabsConfig struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	LanguageCode string
	OutputFormat string
	ChunkSize    int
	Stability    float64
	Clarity      float64
	Timeout      time.Duration
}

// ElevenLabsTTS reads reference sentences aloud using the Eleven Labs streaming API
type ElevenLabsTTS struct {
	apiKey       string
	apiBaseURL   string
	voiceID      string
	modelID      string
	languageCode string
	outputFormat string
	sampleRate   int
	chunkSize    int
	stability    float64
	clarity      float64
	httpClient   *http.Client
	logger       *zap.Logger
}

// Ensure ElevenLabsTTS implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*ElevenLabsTTS)(nil)

// ElevenLabsVoiceSettings represents voice settings for Eleven Labs API
type ElevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// ElevenLabsRequest represents the request payload for Eleven Labs TTS API
type ElevenLabsRequest struct {
	Text                   string                  `json:"text"`
	ModelID                string                  `json:"model_id"`
	LanguageCode           string                  `json:"language_code,omitempty"`
	VoiceSettings          ElevenLabsVoiceSettings `json:"voice_settings"`
	ApplyTextNormalization string                  `json:"apply_text_normalization,omitempty"`
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}
	if config.Stability < 0 || config.Stability > 1 {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity < 0 || config.Clarity > 1 {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}
	if config.ChunkSize < 0 {
		return fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.OutputFormat != "" {
		if _, err := pcmSampleRate(config.OutputFormat); err != nil {
			return err
		}
	}
	return nil
}

// NewElevenLabsTTS creates a new Eleven Labs TTS instance
func NewElevenLabsTTS(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsTTS, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}

	e := &ElevenLabsTTS{
		apiKey:       config.APIKey,
		apiBaseURL:   orDefault(config.APIBaseURL, defaultAPIBaseURL),
		voiceID:      orDefault(config.VoiceID, defaultVoiceID),
		modelID:      orDefault(config.ModelID, defaultModelID),
		languageCode: config.LanguageCode,
		outputFormat: orDefault(config.OutputFormat, defaultOutputFormat),
		chunkSize:    config.ChunkSize,
		stability:    config.Stability,
		clarity:      config.Clarity,
		logger:       logger,
	}
	if e.chunkSize == 0 {
		e.chunkSize = defaultChunkSize
	}
	if e.stability == 0 {
		e.stability = defaultStability
	}
	if e.clarity == 0 {
		e.clarity = defaultClarity
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	e.httpClient = &http.Client{Timeout: timeout}

	// validated above
	e.sampleRate, _ = pcmSampleRate(e.outputFormat)

	logger.Info("Eleven Labs reference voice configured",
		zap.String("voiceID", e.voiceID),
		zap.String("modelID", e.modelID),
		zap.String("outputFormat", e.outputFormat))

	return e, nil
}

// SampleRate implements repositories.TextToSpeech
func (e *ElevenLabsTTS) SampleRate() int {
	return e.sampleRate
}

// ConvertTextToSpeech streams 16-bit mono PCM for text. The request is made
// before returning so API errors surface to the caller; the body is streamed
// on the returned channel.
func (e *ElevenLabsTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan repositories.AudioChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	request := ElevenLabsRequest{
		Text:                   text,
		ModelID:                e.modelID,
		LanguageCode:           e.languageCode,
		ApplyTextNormalization: "auto",
		VoiceSettings: ElevenLabsVoiceSettings{
			Stability:       e.stability,
			SimilarityBoost: e.clarity,
			UseSpeakerBoost: true,
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		e.apiBaseURL, e.voiceID, e.outputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/pcm")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("eleven labs API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(errorBody)))
	}

	audioChan := make(chan repositories.AudioChunk, 10)
	go e.stream(ctx, resp.Body, audioChan)
	return audioChan, nil
}

func (e *ElevenLabsTTS) stream(ctx context.Context, body io.ReadCloser, out chan<- repositories.AudioChunk) {
	defer close(out)
	defer body.Close()

	send := func(chunk repositories.AudioChunk) bool {
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			e.logger.Warn("Context cancelled while streaming audio data")
			return false
		}
	}

	buffer := make([]byte, e.chunkSize)
	totalBytes := 0
	for {
		n, err := body.Read(buffer)
		if n > 0 {
			totalBytes += n
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			if !send(repositories.AudioChunk{PCM: chunk}) {
				return
			}
		}
		if err == io.EOF {
			e.logger.Debug("Finished streaming reference audio", zap.Int("totalBytes", totalBytes))
			return
		}
		if err != nil {
			e.logger.Error("Error reading response body", zap.Int("totalBytes", totalBytes), zap.Error(err))
			send(repositories.AudioChunk{Err: fmt.Errorf("audio stream interrupted after %d bytes: %w", totalBytes, err)})
			return
		}
	}
}

// pcmSampleRate extracts the rate from an output format such as pcm_16000
func pcmSampleRate(format string) (int, error) {
	rate, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("output format must be pcm_<rate>, got %q", format)
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid sample rate in output format %q", format)
	}
	return n, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
