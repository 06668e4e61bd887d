package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/satriahrh/lafal/domain"
	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
	"github.com/satriahrh/lafal/internal/audio"
	"github.com/satriahrh/lafal/internal/metrics"
	"github.com/satriahrh/lafal/internal/scoring"
	"github.com/satriahrh/lafal/internal/telemetry"
	"github.com/satriahrh/lafal/internal/transcribe"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	persistTimeout      = 5 * time.Second
)

// ErrTextToSpeechDisabled is returned by ReferenceAudio when no synthesizer is configured
var ErrTextToSpeechDisabled = errors.New("reference audio is not configured")

// EvaluationRequest is one recording to be scored against a reference sentence
type EvaluationRequest struct {
	LearnerID string
	Reference string
	Language  string
	Source    audio.Source
}

// EvaluationOutcome is what a finished evaluation produced.
// Result is nil when transcription did not succeed.
type EvaluationOutcome struct {
	AttemptID     string
	Transcription entities.TranscriptionResult
	Result        *entities.EvaluationResult
	AudioSeconds  float64
}

// Message renders the outcome for transports
func (o *EvaluationOutcome) Message(reference string) domain.EvaluationMessage {
	msg := domain.EvaluationMessage{
		AttemptID:     o.AttemptID,
		Reference:     reference,
		Transcription: o.Transcription.Text,
		AudioSeconds:  o.AudioSeconds,
		Words:         []domain.WordFeedbackMessage{},
	}
	if o.Result != nil {
		msg.Words = domain.NewWordFeedback(o.Result.Words)
		msg.Score = o.Result.Score
		msg.ScorePercent = o.Result.Percent()
	}
	return msg
}

// EvaluationServiceConfig holds the tunables of the pipeline
type EvaluationServiceConfig struct {
	TempDir              string
	TranscriptionTimeout time.Duration
}

// EvaluationService orchestrates the pronunciation evaluation flow
type EvaluationService struct {
	transcriber  *transcribe.Transcriber
	scorer       *scoring.Scorer
	dictionary   repositories.PhonemeDictionary
	attempts     repositories.AttemptRepository
	events       repositories.EventPublisher
	textToSpeech repositories.TextToSpeech
	config       EvaluationServiceConfig
	logger       *zap.Logger
}

// NewEvaluationService creates a new evaluation service. tts may be nil.
func NewEvaluationService(
	transcriber *transcribe.Transcriber,
	dictionary repositories.PhonemeDictionary,
	attempts repositories.AttemptRepository,
	events repositories.EventPublisher,
	tts repositories.TextToSpeech,
	config EvaluationServiceConfig,
	logger *zap.Logger,
) *EvaluationService {
	if config.TranscriptionTimeout <= 0 {
		config.TranscriptionTimeout = 30 * time.Second
	}
	return &EvaluationService{
		transcriber:  transcriber,
		scorer:       scoring.NewScorer(dictionary),
		dictionary:   dictionary,
		attempts:     attempts,
		events:       events,
		textToSpeech: tts,
		config:       config,
		logger:       logger,
	}
}

// Evaluate normalizes the recording, transcribes it and scores it against the reference.
// A transcription failure returns the outcome together with the matching error kind.
func (s *EvaluationService) Evaluate(ctx context.Context, req EvaluationRequest) (*EvaluationOutcome, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "evaluation.evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("learner.id", req.LearnerID),
		attribute.Int("reference.words", len(scoring.Tokenize(req.Reference))),
	)

	outcome, err := s.evaluate(ctx, req)
	code := "ok"
	if err != nil {
		code = entities.ErrorCode(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
	}
	metrics.EvaluationsTotal.WithLabelValues(code).Inc()
	return outcome, err
}

func (s *EvaluationService) evaluate(ctx context.Context, req EvaluationRequest) (*EvaluationOutcome, error) {
	_, normSpan := telemetry.Tracer().Start(ctx, "evaluation.normalize")
	clip, err := audio.Normalize(req.Source)
	normSpan.End()
	if err != nil {
		s.logger.Info("Rejected recording", zap.String("learnerID", req.LearnerID), zap.Error(err))
		return nil, err
	}
	metrics.AudioDuration.Observe(clip.Duration().Seconds())

	outcome := &EvaluationOutcome{AudioSeconds: clip.Duration().Seconds()}

	err = audio.WithStaged(s.config.TempDir, clip, func(h *audio.Handle) error {
		wav, err := h.ReadAll()
		if err != nil {
			return err
		}
		outcome.Transcription = s.transcribe(ctx, wav, h.Clip(), req.Language)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stage recording: %w", err)
	}
	if !outcome.Transcription.OK() {
		return outcome, outcome.Transcription.Err()
	}

	_, scoreSpan := telemetry.Tracer().Start(ctx, "evaluation.score")
	result := s.scorer.Evaluate(req.Reference, outcome.Transcription.Text)
	scoreSpan.SetAttributes(attribute.Float64("score", result.Score), attribute.Int("pairs", len(result.Words)))
	scoreSpan.End()
	outcome.Result = &result
	metrics.EvaluationScore.Observe(result.Score)

	s.logger.Info("Pronunciation evaluated",
		zap.String("learnerID", req.LearnerID),
		zap.String("transcription", outcome.Transcription.Text),
		zap.Float64("score", result.Score),
		zap.Int("pairs", len(result.Words)))

	if req.LearnerID != "" {
		language := req.Language
		if language == "" {
			language = s.transcriber.Language()
		}
		attempt := entities.NewAttempt(req.LearnerID, req.Reference, language, outcome.Transcription.Text, clip, result)
		outcome.AttemptID = s.record(ctx, attempt)
	}

	return outcome, nil
}

// transcribe outlives a disconnecting caller; only the timeout bounds it
func (s *EvaluationService) transcribe(ctx context.Context, wav []byte, clip entities.AudioClip, language string) entities.TranscriptionResult {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.TranscriptionTimeout)
	defer cancel()

	ctx, span := telemetry.Tracer().Start(ctx, "evaluation.transcribe")
	defer span.End()
	span.SetAttributes(attribute.String("provider", s.transcriber.Provider()))

	start := time.Now()
	result := s.transcriber.Transcribe(ctx, wav, clip, language)
	metrics.TranscriptionDuration.
		WithLabelValues(s.transcriber.Provider(), string(result.Status)).
		Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("status", string(result.Status)))
	return result
}

// record stores the attempt and publishes its event. Failures are logged only.
func (s *EvaluationService) record(ctx context.Context, attempt *entities.Attempt) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	id := ""
	if s.attempts != nil {
		if err := s.attempts.Create(ctx, attempt); err != nil {
			s.logger.Error("Failed to store attempt", zap.String("learnerID", attempt.LearnerID), zap.Error(err))
		} else {
			id = attempt.ID
		}
	}

	if s.events != nil {
		correct := 0
		for _, w := range attempt.Words {
			if w.Correct {
				correct++
			}
		}
		event := domain.EvaluationEvent{
			AttemptID:  attempt.ID,
			LearnerID:  attempt.LearnerID,
			Reference:  attempt.Reference,
			Transcript: attempt.Transcript,
			Language:   attempt.Language,
			Score:      attempt.Score,
			WordCount:  len(attempt.Words),
			Correct:    correct,
			Provider:   s.transcriber.Provider(),
			Timestamp:  attempt.CreatedAt,
		}
		if err := s.events.PublishEvaluation(ctx, event); err != nil {
			s.logger.Warn("Failed to publish evaluation event", zap.String("attemptID", attempt.ID), zap.Error(err))
		}
	}

	return id
}

// ReferenceAudio synthesizes the reference sentence and returns it as a WAV container
func (s *EvaluationService) ReferenceAudio(ctx context.Context, text string) ([]byte, error) {
	if s.textToSpeech == nil {
		return nil, ErrTextToSpeechDisabled
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("reference text is required")
	}

	ctx, span := telemetry.Tracer().Start(ctx, "evaluation.reference_audio")
	defer span.End()

	chunks, err := s.textToSpeech.ConvertTextToSpeech(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("text-to-speech failed: %w", err)
	}

	source := audio.FrameSource{
		SampleRate: s.textToSpeech.SampleRate(),
		BitDepth:   16,
		Channels:   1,
	}
	for chunk := range chunks {
		if chunk.Err != nil {
			span.RecordError(chunk.Err)
			return nil, fmt.Errorf("text-to-speech failed: %w", chunk.Err)
		}
		source.Frames = append(source.Frames, chunk.PCM)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clip, err := audio.Normalize(source)
	if err != nil {
		return nil, err
	}

	var wav []byte
	err = audio.WithStaged(s.config.TempDir, clip, func(h *audio.Handle) error {
		var err error
		wav, err = h.ReadAll()
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reference audio synthesized",
		zap.Int("audioSize", len(wav)),
		zap.Duration("duration", clip.Duration()))
	return wav, nil
}

// History lists a learner's most recent attempts
func (s *EvaluationService) History(ctx context.Context, learnerID string, limit int) ([]*entities.Attempt, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if s.attempts == nil {
		return []*entities.Attempt{}, nil
	}
	return s.attempts.ListByLearner(ctx, learnerID, limit)
}

// Attempt returns one stored attempt. Attempts of other learners are reported as not found.
func (s *EvaluationService) Attempt(ctx context.Context, learnerID, id string) (*entities.Attempt, error) {
	if s.attempts == nil {
		return nil, repositories.ErrAttemptNotFound
	}
	attempt, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if attempt.LearnerID != learnerID {
		return nil, repositories.ErrAttemptNotFound
	}
	return attempt, nil
}

// Lookup returns every known pronunciation of a word, first variant first
func (s *EvaluationService) Lookup(word string) []entities.PhonemeSequence {
	return s.dictionary.Lookup(strings.ToLower(strings.TrimSpace(word)))
}
