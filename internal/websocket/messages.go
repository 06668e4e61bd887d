package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/lafal/domain"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeEvaluationStart   MessageType = "evaluation_start"
	MessageTypeEvaluationEnd     MessageType = "evaluation_end"
	MessageTypeEvaluationCancel  MessageType = "evaluation_cancel"
	MessageTypeEvaluationStarted MessageType = "evaluation_started"
	MessageTypeEvaluationResult  MessageType = "evaluation_result"
	MessageTypePing              MessageType = "ping"
	MessageTypePong              MessageType = "pong"
	MessageTypeError             MessageType = "error"
)

// Error codes specific to the capture protocol. Evaluation failures use the entities codes.
const (
	ErrorCodeInvalidMessage       = "invalid_message"
	ErrorCodeNoActiveCapture      = "no_active_capture"
	ErrorCodeEvaluationInProgress = "evaluation_in_progress"
	ErrorCodeCaptureTooLarge      = "capture_too_large"
)

const (
	minSampleRate = 8000
	maxSampleRate = 48000
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// EvaluationStartMessage opens a capture. PCM frames follow as binary messages.
type EvaluationStartMessage struct {
	BaseMessage
	Reference  string `json:"reference"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Language   string `json:"language,omitempty"`
}

// ControlMessage carries no payload: evaluation_end and evaluation_cancel
type ControlMessage struct {
	BaseMessage
}

// EvaluationStartedMessage acknowledges an opened capture
type EvaluationStartedMessage struct {
	BaseMessage
	CaptureID string `json:"capture_id"`
}

// EvaluationResultMessage carries the scored capture
type EvaluationResultMessage struct {
	BaseMessage
	CaptureID string                   `json:"capture_id"`
	Result    domain.EvaluationMessage `json:"result"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code      string `json:"error_code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	CaptureID string `json:"capture_id,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	// First parse as base message to get type
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeEvaluationStart:
		var msg EvaluationStartMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid evaluation start message: %w", err)
		}
		if err := v.validateEvaluationStart(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeEvaluationEnd, MessageTypeEvaluationCancel:
		return &ControlMessage{BaseMessage: base}, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateEvaluationStart fills defaults for the optional format fields and checks the rest
func (v *MessageValidator) validateEvaluationStart(msg *EvaluationStartMessage) error {
	msg.Reference = strings.TrimSpace(msg.Reference)
	if msg.Reference == "" {
		return fmt.Errorf("reference is required")
	}
	if msg.SampleRate < minSampleRate || msg.SampleRate > maxSampleRate {
		return fmt.Errorf("sample_rate must be between %d and %d", minSampleRate, maxSampleRate)
	}
	if msg.BitDepth == 0 {
		msg.BitDepth = 16
	}
	if msg.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16")
	}
	if msg.Channels == 0 {
		msg.Channels = 1
	}
	if msg.Channels < 1 || msg.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2")
	}
	return nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateEvaluationStartedMessage acknowledges a capture
func CreateEvaluationStartedMessage(captureID string) *EvaluationStartedMessage {
	return &EvaluationStartedMessage{
		BaseMessage: newBase(MessageTypeEvaluationStarted),
		CaptureID:   captureID,
	}
}

// CreateEvaluationResultMessage wraps a finished evaluation
func CreateEvaluationResultMessage(captureID string, result domain.EvaluationMessage) *EvaluationResultMessage {
	return &EvaluationResultMessage{
		BaseMessage: newBase(MessageTypeEvaluationResult),
		CaptureID:   captureID,
		Result:      result,
	}
}
