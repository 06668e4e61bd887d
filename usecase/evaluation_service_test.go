package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/lafal/adapters"
	"github.com/satriahrh/lafal/domain"
	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
	"github.com/satriahrh/lafal/internal/audio"
	"github.com/satriahrh/lafal/internal/phoneme"
	"github.com/satriahrh/lafal/internal/transcribe"
)

type stubSpeechToText struct {
	text string
	err  error

	mu     sync.Mutex
	calls  int
	ctxErr error
	audio  []byte
}

func (s *stubSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.ctxErr = ctx.Err()
	s.audio = audioData
	return s.text, s.err
}

func (s *stubSpeechToText) Name() string { return "stub" }

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.EvaluationEvent
	err    error
}

func (p *recordingPublisher) PublishEvaluation(ctx context.Context, event domain.EvaluationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type stubTextToSpeech struct {
	chunks    [][]byte
	err       error
	streamErr error
}

func (s *stubTextToSpeech) ConvertTextToSpeech(ctx context.Context, text string) (<-chan repositories.AudioChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan repositories.AudioChunk, len(s.chunks)+1)
	for _, c := range s.chunks {
		out <- repositories.AudioChunk{PCM: c}
	}
	if s.streamErr != nil {
		out <- repositories.AudioChunk{Err: s.streamErr}
	}
	close(out)
	return out, nil
}

func (s *stubTextToSpeech) SampleRate() int { return 16000 }

func tone() audio.FloatSource {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.25
	}
	return audio.FloatSource{Samples: samples, SampleRate: 16000}
}

func newTestService(t *testing.T, stt *stubSpeechToText, pub *recordingPublisher, tts repositories.TextToSpeech) (*EvaluationService, *adapters.MemoryAttemptRepository) {
	t.Helper()
	repo := adapters.NewMemoryAttemptRepository()
	logger := zaptest.NewLogger(t)
	svc := NewEvaluationService(
		transcribe.NewTranscriber(stt, "en-US", logger),
		phoneme.Default(),
		repo,
		pub,
		tts,
		EvaluationServiceConfig{TempDir: t.TempDir(), TranscriptionTimeout: time.Second},
		logger,
	)
	return svc, repo
}

func TestEvaluationService_Evaluate(t *testing.T) {
	stt := &stubSpeechToText{text: "This is India"}
	pub := &recordingPublisher{}
	svc, repo := newTestService(t, stt, pub, nil)

	outcome, err := svc.Evaluate(context.Background(), EvaluationRequest{
		LearnerID: "learner-1",
		Reference: "This is India",
		Source:    tone(),
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if outcome.Result == nil {
		t.Fatal("Expected an evaluation result")
	}
	if outcome.Result.Score != 1.0 {
		t.Errorf("Expected score 1.0, got %v", outcome.Result.Score)
	}
	want := []string{"Correct: this", "Correct: is", "Correct: india"}
	got := outcome.Result.Feedback()
	if len(got) != len(want) {
		t.Fatalf("Expected %d feedback lines, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected feedback %q, got %q", want[i], got[i])
		}
	}
	if outcome.AudioSeconds != 0.1 {
		t.Errorf("Expected 0.1 audio seconds, got %v", outcome.AudioSeconds)
	}
	if !bytes.HasPrefix(stt.audio, []byte("RIFF")) {
		t.Error("Expected recognizer to receive a WAV container")
	}

	if outcome.AttemptID == "" {
		t.Fatal("Expected attempt to be stored")
	}
	stored, err := repo.GetByID(context.Background(), outcome.AttemptID)
	if err != nil {
		t.Fatalf("Stored attempt not found: %v", err)
	}
	if stored.Language != "en-US" {
		t.Errorf("Expected default language en-US, got %s", stored.Language)
	}

	if len(pub.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(pub.events))
	}
	if pub.events[0].Correct != 3 || pub.events[0].WordCount != 3 {
		t.Errorf("Expected 3/3 correct words, got %d/%d", pub.events[0].Correct, pub.events[0].WordCount)
	}
	if pub.events[0].Provider != "stub" {
		t.Errorf("Expected provider stub, got %s", pub.events[0].Provider)
	}
}

func TestEvaluationService_EvaluatePartialMatch(t *testing.T) {
	stt := &stubSpeechToText{text: "this is indiana"}
	svc, _ := newTestService(t, stt, &recordingPublisher{}, nil)

	outcome, err := svc.Evaluate(context.Background(), EvaluationRequest{
		Reference: "this is india",
		Source:    tone(),
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	words := outcome.Result.Words
	if words[0].Ratio != 1 || words[1].Ratio != 1 {
		t.Errorf("Expected first two words to match, got %v and %v", words[0].Ratio, words[1].Ratio)
	}
	if words[2].Ratio >= 1 {
		t.Errorf("Expected india/indiana below 1.0, got %v", words[2].Ratio)
	}
	if outcome.AttemptID != "" {
		t.Error("Expected anonymous evaluation not to be stored")
	}
}

func TestEvaluationService_EvaluateFailures(t *testing.T) {
	tests := []struct {
		name     string
		stt      *stubSpeechToText
		source   audio.Source
		wantCode string
		wantCall bool
	}{
		{
			name:     "empty audio never reaches recognizer",
			stt:      &stubSpeechToText{text: "hello"},
			source:   audio.FloatSource{SampleRate: 16000},
			wantCode: entities.CodeEmptyAudio,
		},
		{
			name:     "invalid container",
			stt:      &stubSpeechToText{text: "hello"},
			source:   audio.EncodedSource{Data: []byte("not a wav file at all")},
			wantCode: entities.CodeInvalidAudio,
		},
		{
			name:     "unintelligible",
			stt:      &stubSpeechToText{err: entities.ErrUnintelligible},
			source:   tone(),
			wantCode: entities.CodeUnintelligible,
			wantCall: true,
		},
		{
			name:     "service error",
			stt:      &stubSpeechToText{err: errors.New("quota exceeded")},
			source:   tone(),
			wantCode: entities.CodeServiceError,
			wantCall: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			svc, _ := newTestService(t, tt.stt, pub, nil)

			outcome, err := svc.Evaluate(context.Background(), EvaluationRequest{
				LearnerID: "learner-1",
				Reference: "hello",
				Source:    tt.source,
			})
			if err == nil {
				t.Fatal("Expected an error")
			}
			if code := entities.ErrorCode(err); code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, code)
			}
			if (tt.stt.calls == 1) != tt.wantCall {
				t.Errorf("Expected recognizer called=%v, got %d calls", tt.wantCall, tt.stt.calls)
			}
			if tt.wantCall && (outcome == nil || outcome.Result != nil) {
				t.Error("Expected outcome with transcription only")
			}
			if len(pub.events) != 0 {
				t.Error("Expected no event for a failed evaluation")
			}
			entries, err := os.ReadDir(svc.config.TempDir)
			if err != nil {
				t.Fatalf("ReadDir failed: %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("Expected staged audio to be removed, found %d files", len(entries))
			}
		})
	}
}

func TestEvaluationService_ServiceErrorMessage(t *testing.T) {
	stt := &stubSpeechToText{err: errors.New("quota exceeded")}
	svc, _ := newTestService(t, stt, &recordingPublisher{}, nil)

	_, err := svc.Evaluate(context.Background(), EvaluationRequest{Reference: "hi", Source: tone()})
	if got := entities.UserMessage(err); got != "Could not request results; quota exceeded" {
		t.Errorf("Unexpected message: %q", got)
	}
}

func TestEvaluationService_TranscriptionSurvivesCancel(t *testing.T) {
	stt := &stubSpeechToText{text: "hi"}
	svc, _ := newTestService(t, stt, &recordingPublisher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Evaluate(ctx, EvaluationRequest{Reference: "hi", Source: tone()}); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if stt.ctxErr != nil {
		t.Errorf("Expected recognizer context to be live, got %v", stt.ctxErr)
	}
}

func TestEvaluationService_PublishFailureIsNotFatal(t *testing.T) {
	stt := &stubSpeechToText{text: "hi"}
	pub := &recordingPublisher{err: errors.New("nats down")}
	svc, _ := newTestService(t, stt, pub, nil)

	outcome, err := svc.Evaluate(context.Background(), EvaluationRequest{
		LearnerID: "learner-1",
		Reference: "hi",
		Source:    tone(),
	})
	if err != nil {
		t.Fatalf("Expected publish failure to be ignored, got %v", err)
	}
	if outcome.AttemptID == "" {
		t.Error("Expected attempt to be stored")
	}
}

func TestEvaluationService_HistoryAndAttempt(t *testing.T) {
	stt := &stubSpeechToText{text: "hi"}
	svc, _ := newTestService(t, stt, &recordingPublisher{}, nil)
	ctx := context.Background()

	var lastID string
	for i := 0; i < 3; i++ {
		outcome, err := svc.Evaluate(ctx, EvaluationRequest{LearnerID: "learner-1", Reference: "hi", Source: tone()})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		lastID = outcome.AttemptID
	}

	history, err := svc.History(ctx, "learner-1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("Expected 3 attempts, got %d", len(history))
	}

	if _, err := svc.Attempt(ctx, "learner-1", lastID); err != nil {
		t.Errorf("Expected own attempt, got %v", err)
	}
	if _, err := svc.Attempt(ctx, "learner-2", lastID); !errors.Is(err, repositories.ErrAttemptNotFound) {
		t.Errorf("Expected ErrAttemptNotFound for another learner, got %v", err)
	}
}

func TestEvaluationService_ReferenceAudio(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		svc, _ := newTestService(t, &stubSpeechToText{}, &recordingPublisher{}, nil)
		if _, err := svc.ReferenceAudio(context.Background(), "hello"); !errors.Is(err, ErrTextToSpeechDisabled) {
			t.Errorf("Expected ErrTextToSpeechDisabled, got %v", err)
		}
	})

	t.Run("chunks become wav", func(t *testing.T) {
		tts := &stubTextToSpeech{chunks: [][]byte{{1, 0, 2}, {0, 3, 0}}}
		svc, _ := newTestService(t, &stubSpeechToText{}, &recordingPublisher{}, tts)

		wav, err := svc.ReferenceAudio(context.Background(), "hello")
		if err != nil {
			t.Fatalf("ReferenceAudio failed: %v", err)
		}
		samples, rate, err := audio.DecodeWAV(wav)
		if err != nil {
			t.Fatalf("DecodeWAV failed: %v", err)
		}
		if rate != 16000 {
			t.Errorf("Expected 16000 Hz, got %d", rate)
		}
		if len(samples) != 3 || samples[0] != 1 || samples[1] != 2 || samples[2] != 3 {
			t.Errorf("Unexpected samples %v", samples)
		}
	})

	t.Run("interrupted stream", func(t *testing.T) {
		tts := &stubTextToSpeech{chunks: [][]byte{{1, 0, 2, 0}}, streamErr: io.ErrUnexpectedEOF}
		svc, _ := newTestService(t, &stubSpeechToText{}, &recordingPublisher{}, tts)

		wav, err := svc.ReferenceAudio(context.Background(), "hello")
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("Expected ErrUnexpectedEOF, got %v", err)
		}
		if wav != nil {
			t.Errorf("Expected no audio for a truncated stream, got %d bytes", len(wav))
		}
	})

	t.Run("synthesis error", func(t *testing.T) {
		tts := &stubTextToSpeech{err: errors.New("401")}
		svc, _ := newTestService(t, &stubSpeechToText{}, &recordingPublisher{}, tts)
		if _, err := svc.ReferenceAudio(context.Background(), "hello"); err == nil {
			t.Error("Expected error")
		}
	})
}

func TestEvaluationService_Lookup(t *testing.T) {
	svc, _ := newTestService(t, &stubSpeechToText{}, &recordingPublisher{}, nil)
	variants := svc.Lookup(" India ")
	if len(variants) == 0 {
		t.Fatal("Expected india to be known")
	}
	if len(svc.Lookup("qzxv")) != 0 {
		t.Error("Expected unknown word to have no pronunciations")
	}
}
