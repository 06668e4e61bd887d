package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyAudio is returned when a capture contains no samples
	ErrEmptyAudio = errors.New("no audio data recorded")

	// ErrUnintelligible is returned when speech was heard but could not be understood
	ErrUnintelligible = errors.New("speech could not be understood")
)

// ServiceError wraps a failure reported by the recognition backend
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("Could not request results; %s", e.Message)
}

// Error codes shared by the HTTP and websocket transports
const (
	CodeEmptyAudio     = "empty_audio"
	CodeUnintelligible = "unintelligible"
	CodeServiceError   = "service_error"
	CodeInvalidAudio   = "invalid_audio"
	CodeInternal       = "internal_error"
)

// ErrorCode maps an evaluation failure to a stable machine-readable code
func ErrorCode(err error) string {
	var svcErr *ServiceError
	switch {
	case errors.Is(err, ErrEmptyAudio):
		return CodeEmptyAudio
	case errors.Is(err, ErrUnintelligible):
		return CodeUnintelligible
	case errors.As(err, &svcErr):
		return CodeServiceError
	case errors.Is(err, ErrInvalidAudio):
		return CodeInvalidAudio
	default:
		return CodeInternal
	}
}

// ErrInvalidAudio is the parent of every normalization failure other than an empty capture
var ErrInvalidAudio = errors.New("invalid audio")

// UserMessage returns the text shown to a learner for an evaluation failure
func UserMessage(err error) string {
	var svcErr *ServiceError
	switch {
	case errors.Is(err, ErrEmptyAudio):
		return "No audio data recorded. Please record or upload audio first."
	case errors.Is(err, ErrUnintelligible):
		return "Speech recognition could not understand the audio."
	case errors.As(err, &svcErr):
		return svcErr.Error()
	case errors.Is(err, ErrInvalidAudio):
		return "The audio could not be read. Please upload a PCM WAV file."
	default:
		return "Something went wrong while evaluating your pronunciation."
	}
}
