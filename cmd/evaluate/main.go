// Command evaluate scores a WAV recording of a reference sentence from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lafal/adapters/stt"
	"github.com/satriahrh/lafal/adapters/tts"
	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
	"github.com/satriahrh/lafal/internal/audio"
	"github.com/satriahrh/lafal/internal/config"
	"github.com/satriahrh/lafal/internal/phoneme"
	"github.com/satriahrh/lafal/internal/transcribe"
	"github.com/satriahrh/lafal/usecase"
)

func main() {
	var (
		overrides      config.Overrides
		file           string
		reference      string
		language       string
		referenceAudio string
		verbose        bool
	)
	flag.StringVar(&file, "file", "", "WAV recording to evaluate")
	flag.StringVar(&reference, "reference", "", "reference sentence (default DEFAULT_REFERENCE)")
	flag.StringVar(&language, "language", "", "recognition language (default SPEECH_LANGUAGE)")
	flag.StringVar(&referenceAudio, "reference-audio", "", "write the synthesized reference sentence to this WAV path")
	flag.StringVar(&overrides.STTProvider, "stt", "", "speech provider (google, gemini, mock)")
	flag.StringVar(&overrides.CMUDictPath, "cmudict", "", "path to a cmudict file")
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.BoolVar(&verbose, "v", false, "log pipeline details to stderr")
	flag.Parse()

	if file == "" && referenceAudio == "" {
		fmt.Fprintln(os.Stderr, "Please upload an audio file first.")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		fatal(err)
	}
	if reference == "" {
		reference = cfg.DefaultReference
	}

	logger := zap.NewNop()
	if verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			fatal(err)
		}
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dictionary := phoneme.Default()
	if cfg.CMUDictPath != "" {
		if err := dictionary.LoadFile(cfg.CMUDictPath); err != nil {
			fatal(err)
		}
	}

	speechToText, closeSpeech, err := stt.New(ctx, stt.Options{
		Provider:       cfg.STTProvider,
		GeminiAPIKey:   cfg.GeminiAPIKey,
		GeminiModel:    cfg.GeminiModel,
		MockTranscript: cfg.MockTranscript,
	}, logger)
	if err != nil {
		fatal(err)
	}
	defer closeSpeech()

	var textToSpeech repositories.TextToSpeech
	if referenceAudio != "" {
		e, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsAPIKey,
			VoiceID: cfg.ElevenLabsVoiceID,
			ModelID: cfg.ElevenLabsModelID,
		}, logger)
		if err != nil {
			fatal(err)
		}
		textToSpeech = e
	}

	service := usecase.NewEvaluationService(
		transcribe.NewTranscriber(speechToText, cfg.Language, logger),
		dictionary,
		nil,
		nil,
		textToSpeech,
		usecase.EvaluationServiceConfig{
			TempDir:              cfg.TempDir,
			TranscriptionTimeout: cfg.TranscriptionTimeout,
		},
		logger,
	)

	if referenceAudio != "" {
		wav, err := service.ReferenceAudio(ctx, reference)
		if err != nil {
			fatal(err)
		}
		if err := os.WriteFile(referenceAudio, wav, 0o644); err != nil {
			fatal(err)
		}
		fmt.Printf("Reference audio written to %s\n", referenceAudio)
	}

	if file == "" {
		return
	}

	data, err := os.ReadFile(file)
	if err != nil {
		fatal(err)
	}

	outcome, err := service.Evaluate(ctx, usecase.EvaluationRequest{
		Reference: reference,
		Language:  language,
		Source:    audio.EncodedSource{Data: data},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, entities.UserMessage(err))
		os.Exit(1)
	}

	fmt.Printf("Transcribed Text: %s\n", outcome.Transcription.Text)
	for _, line := range outcome.Result.Feedback() {
		fmt.Println(line)
	}
	fmt.Printf("Overall Pronunciation Score: %s\n", outcome.Result.Percent())
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
