package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/internal/audio"
	"github.com/satriahrh/lafal/internal/metrics"
	"github.com/satriahrh/lafal/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB per PCM frame

	defaultMaxCaptureBytes   = 10 << 20
	defaultEvaluationTimeout = 90 * time.Second
)

// Evaluator scores a finished capture
type Evaluator interface {
	Evaluate(ctx context.Context, req usecase.EvaluationRequest) (*usecase.EvaluationOutcome, error)
}

// HubConfig bounds what a single connection may do
type HubConfig struct {
	MaxCaptureBytes   int
	EvaluationTimeout time.Duration
	AllowedOrigins    []string
}

// Hub maintains the set of active capture connections.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	evaluator Evaluator
	validator *MessageValidator
	config    HubConfig
	upgrader  websocket.Upgrader

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(evaluator Evaluator, config HubConfig, logger *zap.Logger) *Hub {
	if config.MaxCaptureBytes <= 0 {
		config.MaxCaptureBytes = defaultMaxCaptureBytes
	}
	if config.EvaluationTimeout <= 0 {
		config.EvaluationTimeout = defaultEvaluationTimeout
	}

	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		evaluator:  evaluator,
		validator:  NewMessageValidator(),
		config:     config,
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Run starts the hub's main loop. It returns when ctx is done, closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			metrics.WebsocketSessions.Inc()
			h.logger.Info("Client registered",
				zap.String("connectionID", client.id),
				zap.String("learnerID", client.learnerID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.closeSend()
				metrics.WebsocketSessions.Dec()
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("connectionID", client.id))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				client.closeSend()
				metrics.WebsocketSessions.Dec()
			}
			h.mu.Unlock()
			return
		}
	}
}

// ClientCount returns the number of registered connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// capture is the audio collected between evaluation_start and evaluation_end
type capture struct {
	id     string
	start  EvaluationStartMessage
	frames [][]byte
	size   int
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send   chan WriteData
	sendMu sync.Mutex
	closed bool

	id        string
	learnerID string

	logger *zap.Logger

	mutex      sync.Mutex
	capture    *capture
	evaluating bool
	// ID of a capture dropped for size; its remaining frames and end are ignored
	discarded string
}

// HandleWebSocket upgrades an authenticated request into a capture connection
func HandleWebSocket(hub *Hub, c echo.Context, learnerID string, logger *zap.Logger) error {
	conn, err := hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	id := uuid.NewString()
	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		id:        id,
		learnerID: learnerID,
		logger:    logger.With(zap.String("connectionID", id), zap.String("learnerID", learnerID)),
	}

	select {
	case client.hub.register <- client:
	case <-hub.done:
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeSend closes the outbound channel once; later sends are dropped
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Send buffer full, dropping message")
	}
}

func (c *Client) sendError(code, message, captureID string) {
	msg := CreateErrorMessage(code, message, "")
	msg.CaptureID = captureID
	c.sendJSON(msg)
}

// processMessage processes control messages from the learner
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendError(ErrorCodeInvalidMessage, err.Error(), "")
		return
	}

	switch m := msg.(type) {
	case *EvaluationStartMessage:
		c.handleEvaluationStart(m)
	case *ControlMessage:
		if m.Type == MessageTypeEvaluationEnd {
			c.handleEvaluationEnd()
		} else {
			c.handleEvaluationCancel()
		}
	case *PingMessage:
		c.sendJSON(CreatePongMessage(m.Data))
	}
}

// processBinaryAudioChunk appends one PCM frame to the open capture
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.capture == nil {
		if c.discarded != "" {
			return
		}
		c.sendError(ErrorCodeNoActiveCapture, "Send evaluation_start before audio frames.", "")
		return
	}

	if c.capture.size+len(data) > c.hub.config.MaxCaptureBytes {
		id := c.capture.id
		c.capture = nil
		c.discarded = id
		c.logger.Warn("Capture exceeded size limit, discarded",
			zap.String("captureID", id),
			zap.Int("limit", c.hub.config.MaxCaptureBytes))
		c.sendError(ErrorCodeCaptureTooLarge, "The recording is too long.", id)
		return
	}

	frame := make([]byte, len(data))
	copy(frame, data)
	c.capture.frames = append(c.capture.frames, frame)
	c.capture.size += len(frame)
}

// handleEvaluationStart opens a new capture, replacing any unfinished one
func (c *Client) handleEvaluationStart(msg *EvaluationStartMessage) {
	c.mutex.Lock()
	if c.capture != nil {
		c.logger.Info("Discarding unfinished capture", zap.String("captureID", c.capture.id))
	}
	c.capture = &capture{id: uuid.NewString(), start: *msg}
	c.discarded = ""
	id := c.capture.id
	c.mutex.Unlock()

	c.logger.Info("Capture started",
		zap.String("captureID", id),
		zap.Int("sampleRate", msg.SampleRate),
		zap.Int("channels", msg.Channels))
	c.sendJSON(CreateEvaluationStartedMessage(id))
}

// handleEvaluationEnd hands the capture to the evaluator. One evaluation runs at a time.
func (c *Client) handleEvaluationEnd() {
	c.mutex.Lock()
	if c.capture == nil {
		discarded := c.discarded
		c.discarded = ""
		c.mutex.Unlock()
		if discarded == "" {
			c.sendError(ErrorCodeNoActiveCapture, "No recording in progress.", "")
		}
		return
	}
	if c.evaluating {
		id := c.capture.id
		c.mutex.Unlock()
		c.sendError(ErrorCodeEvaluationInProgress, "The previous recording is still being evaluated.", id)
		return
	}
	capt := c.capture
	c.capture = nil
	c.evaluating = true
	c.mutex.Unlock()

	go c.evaluate(capt)
}

func (c *Client) handleEvaluationCancel() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.discarded = ""
	if c.capture != nil {
		c.logger.Info("Capture cancelled", zap.String("captureID", c.capture.id))
		c.capture = nil
	}
}

func (c *Client) evaluate(capt *capture) {
	ctx, cancel := context.WithTimeout(context.Background(), c.hub.config.EvaluationTimeout)
	defer cancel()

	req := usecase.EvaluationRequest{
		LearnerID: c.learnerID,
		Reference: capt.start.Reference,
		Language:  capt.start.Language,
		Source: audio.FrameSource{
			Frames:     capt.frames,
			SampleRate: capt.start.SampleRate,
			BitDepth:   capt.start.BitDepth,
			Channels:   capt.start.Channels,
		},
	}

	outcome, err := c.hub.evaluator.Evaluate(ctx, req)

	// cleared before replying so the learner may submit again on receipt
	c.mutex.Lock()
	c.evaluating = false
	c.mutex.Unlock()

	if err != nil {
		c.logger.Info("Capture evaluation failed",
			zap.String("captureID", capt.id),
			zap.String("code", entities.ErrorCode(err)),
			zap.Error(err))
		c.sendError(entities.ErrorCode(err), entities.UserMessage(err), capt.id)
		return
	}

	c.logger.Info("Capture evaluated",
		zap.String("captureID", capt.id),
		zap.Int("frames", len(capt.frames)),
		zap.Int("bytes", capt.size))
	c.sendJSON(CreateEvaluationResultMessage(capt.id, outcome.Message(capt.start.Reference)))
}
