package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Speech recognition providers
const (
	ProviderGoogle = "google"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`

	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// Recognition
	STTProvider          string        `env:"STT_PROVIDER" envDefault:"google"`
	Language             string        `env:"SPEECH_LANGUAGE" envDefault:"en-US"`
	TranscriptionTimeout time.Duration `env:"TRANSCRIPTION_TIMEOUT" envDefault:"30s"`
	GeminiAPIKey         string        `env:"GEMINI_API_KEY"`
	GeminiModel          string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	MockTranscript       string        `env:"MOCK_TRANSCRIPT" envDefault:"this is india"`

	// Scoring
	CMUDictPath      string `env:"CMUDICT_PATH"`
	DefaultReference string `env:"DEFAULT_REFERENCE" envDefault:"This is India"`
	TempDir          string `env:"AUDIO_TEMP_DIR"`

	// Reference audio
	ElevenLabsAPIKey  string `env:"ELEVEN_LABS_API_KEY"`
	ElevenLabsVoiceID string `env:"ELEVEN_LABS_VOICE_ID"`
	ElevenLabsModelID string `env:"ELEVEN_LABS_MODEL_ID"`

	// History
	MongoURI         string        `env:"MONGODB_URI"`
	MongoDatabase    string        `env:"MONGODB_DATABASE" envDefault:"lafal"`
	HistoryRetention time.Duration `env:"HISTORY_RETENTION" envDefault:"720h"`
	PruneInterval    time.Duration `env:"PRUNE_INTERVAL" envDefault:"1h"`

	// Events
	NATSURL     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"lafal.evaluations"`

	// Tracing
	TraceExporter string `env:"TRACE_EXPORTER" envDefault:"none"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPInsecure  bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	Environment   string `env:"ENVIRONMENT" envDefault:"development"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	STTProvider string
	CMUDictPath string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.STTProvider != "" {
		cfg.STTProvider = overrides.STTProvider
	}
	if overrides.CMUDictPath != "" {
		cfg.CMUDictPath = overrides.CMUDictPath
	}

	return cfg, nil
}

// Validate checks combinations the struct tags cannot express
func (c *Config) Validate() error {
	var errs []error

	switch c.STTProvider {
	case ProviderGoogle, ProviderMock:
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when STT_PROVIDER=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("STT_PROVIDER must be one of google, gemini, mock; got %q", c.STTProvider))
	}

	if c.TranscriptionTimeout <= 0 {
		errs = append(errs, errors.New("TRANSCRIPTION_TIMEOUT must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.MongoURI != "" && c.HistoryRetention < 0 {
		errs = append(errs, errors.New("HISTORY_RETENTION cannot be negative"))
	}
	if !c.Development && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}

	return errors.Join(errs...)
}
