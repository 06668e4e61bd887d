package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/internal/audio"
	"github.com/satriahrh/lafal/usecase"
)

type stubEvaluator struct {
	mu       sync.Mutex
	requests []usecase.EvaluationRequest
	block    chan struct{}
	err      error
}

func (s *stubEvaluator) Evaluate(ctx context.Context, req usecase.EvaluationRequest) (*usecase.EvaluationOutcome, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	result := entities.EvaluationResult{
		Words: []entities.WordScore{{Index: 0, Spoken: "hi", Expected: "hi", Ratio: 1, Correct: true}},
		Score: 1,
	}
	return &usecase.EvaluationOutcome{
		AttemptID:     "attempt-1",
		Transcription: entities.Recognized("hi"),
		Result:        &result,
		AudioSeconds:  0.5,
	}, nil
}

func (s *stubEvaluator) last() usecase.EvaluationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func setupTestHub(t *testing.T, evaluator Evaluator, config HubConfig) (*Hub, *websocket.Conn) {
	t.Helper()
	logger := zap.NewNop() // No-op logger for tests

	hub := NewHub(evaluator, config, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocket(hub, c, "learner-1", logger)
	})
	server := httptest.NewServer(e)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		server.Close()
		cancel()
	})
	return hub, conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Invalid JSON %s: %v", data, err)
	}
	return msg
}

func start(reference string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "evaluation_start",
		"reference":   reference,
		"sample_rate": 16000,
		"language":    "en-GB",
	}
}

func TestHub_EvaluationFlow(t *testing.T) {
	evaluator := &stubEvaluator{}
	_, conn := setupTestHub(t, evaluator, HubConfig{})

	sendJSON(t, conn, start("hi"))
	started := readMessage(t, conn)
	if started["type"] != "evaluation_started" {
		t.Fatalf("Expected evaluation_started, got %v", started)
	}
	captureID := started["capture_id"]

	frames := [][]byte{{1, 0}, {2, 0, 3}, {0}}
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
	}
	sendJSON(t, conn, map[string]string{"type": "evaluation_end"})

	result := readMessage(t, conn)
	if result["type"] != "evaluation_result" {
		t.Fatalf("Expected evaluation_result, got %v", result)
	}
	if result["capture_id"] != captureID {
		t.Errorf("Expected capture %v, got %v", captureID, result["capture_id"])
	}
	inner := result["result"].(map[string]interface{})
	if inner["score_percent"] != "100.00%" {
		t.Errorf("Expected 100.00%%, got %v", inner["score_percent"])
	}
	if inner["reference"] != "hi" {
		t.Errorf("Expected reference hi, got %v", inner["reference"])
	}

	req := evaluator.last()
	if req.LearnerID != "learner-1" || req.Language != "en-GB" {
		t.Errorf("Unexpected request %+v", req)
	}
	src, ok := req.Source.(audio.FrameSource)
	if !ok {
		t.Fatalf("Expected FrameSource, got %T", req.Source)
	}
	if len(src.Frames) != 3 || src.Frames[1][2] != 3 {
		t.Errorf("Expected frames in arrival order, got %v", src.Frames)
	}
	if src.SampleRate != 16000 || src.BitDepth != 16 || src.Channels != 1 {
		t.Errorf("Unexpected format %d Hz %d-bit %d ch", src.SampleRate, src.BitDepth, src.Channels)
	}
}

func TestHub_EvaluationError(t *testing.T) {
	evaluator := &stubEvaluator{err: entities.ErrEmptyAudio}
	_, conn := setupTestHub(t, evaluator, HubConfig{})

	sendJSON(t, conn, start("hi"))
	readMessage(t, conn)
	sendJSON(t, conn, map[string]string{"type": "evaluation_end"})

	msg := readMessage(t, conn)
	if msg["type"] != "error" || msg["error_code"] != entities.CodeEmptyAudio {
		t.Errorf("Expected empty_audio error, got %v", msg)
	}
	if msg["message"] != entities.UserMessage(entities.ErrEmptyAudio) {
		t.Errorf("Unexpected message %v", msg["message"])
	}
}

func TestHub_NoActiveCapture(t *testing.T) {
	_, conn := setupTestHub(t, &stubEvaluator{}, HubConfig{})

	sendJSON(t, conn, map[string]string{"type": "evaluation_end"})
	if msg := readMessage(t, conn); msg["error_code"] != ErrorCodeNoActiveCapture {
		t.Errorf("Expected no_active_capture, got %v", msg)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0, 0}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if msg := readMessage(t, conn); msg["error_code"] != ErrorCodeNoActiveCapture {
		t.Errorf("Expected no_active_capture for stray frame, got %v", msg)
	}
}

func TestHub_CancelDiscardsCapture(t *testing.T) {
	_, conn := setupTestHub(t, &stubEvaluator{}, HubConfig{})

	sendJSON(t, conn, start("hi"))
	readMessage(t, conn)
	sendJSON(t, conn, map[string]string{"type": "evaluation_cancel"})
	sendJSON(t, conn, map[string]string{"type": "evaluation_end"})

	if msg := readMessage(t, conn); msg["error_code"] != ErrorCodeNoActiveCapture {
		t.Errorf("Expected no_active_capture after cancel, got %v", msg)
	}
}

func TestHub_OneEvaluationInFlight(t *testing.T) {
	evaluator := &stubEvaluator{block: make(chan struct{})}
	_, conn := setupTestHub(t, evaluator, HubConfig{})

	sendJSON(t, conn, start("hi"))
	readMessage(t, conn)
	sendJSON(t, conn, map[string]string{"type": "evaluation_end"})

	sendJSON(t, conn, start("again"))
	if msg := readMessage(t, conn); msg["type"] != "evaluation_started" {
		t.Fatalf("Expected second capture to start, got %v", msg)
	}
	sendJSON(t, conn, map[string]string{"type": "evaluation_end"})
	if msg := readMessage(t, conn); msg["error_code"] != ErrorCodeEvaluationInProgress {
		t.Fatalf("Expected evaluation_in_progress, got %v", msg)
	}

	close(evaluator.block)
	if msg := readMessage(t, conn); msg["type"] != "evaluation_result" {
		t.Errorf("Expected first result after release, got %v", msg)
	}

	// the second capture was kept and can now be submitted
	sendJSON(t, conn, map[string]string{"type": "evaluation_end"})
	msg := readMessage(t, conn)
	if msg["type"] != "evaluation_result" {
		t.Errorf("Expected second result, got %v", msg)
	}
}

func TestHub_CaptureTooLarge(t *testing.T) {
	_, conn := setupTestHub(t, &stubEvaluator{}, HubConfig{MaxCaptureBytes: 4})

	sendJSON(t, conn, start("hi"))
	readMessage(t, conn)
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if msg := readMessage(t, conn); msg["error_code"] != ErrorCodeCaptureTooLarge {
		t.Errorf("Expected capture_too_large, got %v", msg)
	}

	// the rest of the oversized recording is dropped without further errors
	for i := 0; i < 3; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2}); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
	}
	sendJSON(t, conn, map[string]string{"type": "evaluation_end"})
	sendJSON(t, conn, map[string]string{"type": "ping", "data": "after"})
	if msg := readMessage(t, conn); msg["type"] != "pong" || msg["data"] != "after" {
		t.Errorf("Expected pong after discarded frames, got %v", msg)
	}

	// frames outside any capture are still reported
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if msg := readMessage(t, conn); msg["error_code"] != ErrorCodeNoActiveCapture {
		t.Errorf("Expected no_active_capture, got %v", msg)
	}
}

func TestHub_PingAndInvalid(t *testing.T) {
	_, conn := setupTestHub(t, &stubEvaluator{}, HubConfig{})

	sendJSON(t, conn, map[string]string{"type": "ping", "data": "42"})
	if msg := readMessage(t, conn); msg["type"] != "pong" || msg["data"] != "42" {
		t.Errorf("Expected pong 42, got %v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{broken")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if msg := readMessage(t, conn); msg["error_code"] != ErrorCodeInvalidMessage {
		t.Errorf("Expected invalid_message, got %v", msg)
	}
}

func TestHub_RegistersClients(t *testing.T) {
	hub, conn := setupTestHub(t, &stubEvaluator{}, HubConfig{})

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("Expected 1 client, got %d", hub.ClientCount())
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("Expected client to unregister, got %d", hub.ClientCount())
	}
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub(&stubEvaluator{}, HubConfig{AllowedOrigins: []string{"https://app.example"}}, zap.NewNop())

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := hub.checkOrigin(req); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
