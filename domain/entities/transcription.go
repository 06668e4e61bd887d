package entities

// TranscriptionStatus tags the variant held by a TranscriptionResult
type TranscriptionStatus string

const (
	TranscriptionRecognized     TranscriptionStatus = "recognized"
	TranscriptionUnintelligible TranscriptionStatus = "unintelligible"
	TranscriptionServiceError   TranscriptionStatus = "service_error"
)

// TranscriptionResult is the outcome of one recognition call.
// Text is set only for TranscriptionRecognized, Message only for TranscriptionServiceError.
type TranscriptionResult struct {
	Status  TranscriptionStatus `json:"status"`
	Text    string              `json:"text,omitempty"`
	Message string              `json:"message,omitempty"`
}

func Recognized(text string) TranscriptionResult {
	return TranscriptionResult{Status: TranscriptionRecognized, Text: text}
}

func Unintelligible() TranscriptionResult {
	return TranscriptionResult{Status: TranscriptionUnintelligible}
}

func ServiceFailure(message string) TranscriptionResult {
	return TranscriptionResult{Status: TranscriptionServiceError, Message: message}
}

// OK reports whether the result carries recognized text
func (t TranscriptionResult) OK() bool {
	return t.Status == TranscriptionRecognized
}

// Err converts a failed result into its error kind, nil when recognized
func (t TranscriptionResult) Err() error {
	switch t.Status {
	case TranscriptionRecognized:
		return nil
	case TranscriptionUnintelligible:
		return ErrUnintelligible
	default:
		return &ServiceError{Message: t.Message}
	}
}
