package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/satriahrh/lafal/adapters"
	"github.com/satriahrh/lafal/adapters/events"
	"github.com/satriahrh/lafal/adapters/mongo"
	"github.com/satriahrh/lafal/adapters/stt"
	"github.com/satriahrh/lafal/adapters/tts"
	"github.com/satriahrh/lafal/domain/repositories"
	"github.com/satriahrh/lafal/internal/api"
	"github.com/satriahrh/lafal/internal/auth"
	"github.com/satriahrh/lafal/internal/config"
	"github.com/satriahrh/lafal/internal/metrics"
	"github.com/satriahrh/lafal/internal/phoneme"
	"github.com/satriahrh/lafal/internal/retention"
	"github.com/satriahrh/lafal/internal/telemetry"
	"github.com/satriahrh/lafal/internal/transcribe"
	"github.com/satriahrh/lafal/internal/websocket"
	"github.com/satriahrh/lafal/usecase"
)

var version = "dev"

func main() {
	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.StringVar(&overrides.STTProvider, "stt", "", "speech provider (google, gemini, mock)")
	flag.StringVar(&overrides.CMUDictPath, "cmudict", "", "path to a cmudict file")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early, _ := zap.NewProduction()
		early.Fatal("failed to load config", zap.Error(err))
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel, cfg.Development)
	if err != nil {
		early, _ := zap.NewProduction()
		early.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	logger.Info("lafal starting", zap.String("version", version))

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  "lafal",
		Environment:  cfg.Environment,
		Exporter:     cfg.TraceExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Initialize adapters
	speechToText, closeSpeech, err := stt.New(ctx, stt.Options{
		Provider:       cfg.STTProvider,
		GeminiAPIKey:   cfg.GeminiAPIKey,
		GeminiModel:    cfg.GeminiModel,
		MockTranscript: cfg.MockTranscript,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize speech recognition", zap.Error(err))
	}
	defer closeSpeech()

	dictionary := phoneme.Default()
	if cfg.CMUDictPath != "" {
		if err := dictionary.LoadFile(cfg.CMUDictPath); err != nil {
			logger.Fatal("failed to load pronunciation dictionary", zap.Error(err))
		}
	}
	logger.Info("Pronunciation dictionary ready", zap.Int("words", dictionary.Len()))

	var attempts repositories.AttemptRepository
	if cfg.MongoURI != "" {
		client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			logger.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer client.Close(context.Background())

		repo := mongo.NewAttemptRepository(client.Database, logger)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("failed to create attempt indexes", zap.Error(err))
		}
		attempts = repo
	} else {
		logger.Info("MONGODB_URI not set, keeping history in memory")
		attempts = adapters.NewMemoryAttemptRepository()
	}

	var publisher repositories.EventPublisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		p, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Fatal("failed to connect to NATS", zap.Error(err))
		}
		publisher = p
	}
	defer publisher.Close()

	var textToSpeech repositories.TextToSpeech
	if cfg.ElevenLabsAPIKey != "" {
		e, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsAPIKey,
			VoiceID: cfg.ElevenLabsVoiceID,
			ModelID: cfg.ElevenLabsModelID,
		}, logger)
		if err != nil {
			logger.Fatal("failed to initialize text-to-speech", zap.Error(err))
		}
		textToSpeech = e
	}

	// Initialize usecase services
	transcriber := transcribe.NewTranscriber(speechToText, cfg.Language, logger)
	service := usecase.NewEvaluationService(
		transcriber,
		dictionary,
		attempts,
		publisher,
		textToSpeech,
		usecase.EvaluationServiceConfig{
			TempDir:              cfg.TempDir,
			TranscriptionTimeout: cfg.TranscriptionTimeout,
		},
		logger,
	)

	pruner := retention.NewPruner(attempts, cfg.HistoryRetention, cfg.PruneInterval, logger)
	pruner.Start()
	defer pruner.Stop()

	// Initialize WebSocket hub with evaluation service
	hub := websocket.NewHub(service, websocket.HubConfig{
		MaxCaptureBytes:   int(cfg.MaxUploadBytes),
		EvaluationTimeout: cfg.TranscriptionTimeout + 30*time.Second,
		AllowedOrigins:    cfg.CORSOrigins,
	}, logger)
	go hub.Run(ctx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Error("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.CORSOrigins}))
	e.Use(middleware.BodyLimit(bodyLimit(cfg.MaxUploadBytes)))
	e.Use(metrics.Middleware())

	// Initialize API routes
	api.InitRoutes(e, hub, service, auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL), api.RoutesConfig{
		MaxUploadBytes:   cfg.MaxUploadBytes,
		DefaultReference: cfg.DefaultReference,
		TokenTTL:         cfg.TokenTTL,
	}, logger)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info("Server started",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("sttProvider", speechToText.Name()),
		zap.Bool("referenceAudio", textToSpeech != nil))

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		logger.Info("Server is shutting down...")
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("failed to flush traces", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// bodyLimit bounds request bodies. JSON float samples cost several bytes per PCM sample,
// so the limit is a multiple of the recording size.
func bodyLimit(maxUpload int64) string {
	const jsonFactor, overheadKB = 6, 64
	return strconv.FormatInt(maxUpload*jsonFactor/1024+overheadKB, 10) + "K"
}
