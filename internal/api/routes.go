package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
	"github.com/satriahrh/lafal/internal/audio"
	"github.com/satriahrh/lafal/internal/auth"
	"github.com/satriahrh/lafal/internal/websocket"
	"github.com/satriahrh/lafal/usecase"
)

const learnerKey = "learner_id"

// EvaluationService is what the HTTP surface needs from the use case
type EvaluationService interface {
	Evaluate(ctx context.Context, req usecase.EvaluationRequest) (*usecase.EvaluationOutcome, error)
	ReferenceAudio(ctx context.Context, text string) ([]byte, error)
	History(ctx context.Context, learnerID string, limit int) ([]*entities.Attempt, error)
	Attempt(ctx context.Context, learnerID, id string) (*entities.Attempt, error)
	Lookup(word string) []entities.PhonemeSequence
}

// RoutesConfig holds request limits and defaults
type RoutesConfig struct {
	MaxUploadBytes   int64
	DefaultReference string
	TokenTTL         time.Duration
}

type handler struct {
	service EvaluationService
	issuer  *auth.Issuer
	config  RoutesConfig
	logger  *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, service EvaluationService, issuer *auth.Issuer, config RoutesConfig, logger *zap.Logger) {
	h := &handler{service: service, issuer: issuer, config: config, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "lafal",
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/learners/token", h.learnerToken)
	v1.GET("/phonemes/:word", h.phonemes)
	v1.GET("/references/audio", h.referenceAudio)

	learner := v1.Group("", h.requireLearner(false))
	learner.POST("/evaluations", h.evaluateUpload)
	learner.POST("/evaluations/samples", h.evaluateSamples)
	learner.GET("/evaluations", h.history)
	learner.GET("/evaluations/:id", h.attempt)

	// Browsers cannot set headers on a websocket handshake
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(hub, c, c.Get(learnerKey).(string), logger)
	}, h.requireLearner(true))
}

// requireLearner validates the learner token and stores the learner ID on the context
func (h *handler) requireLearner(allowQuery bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.BearerToken(c.Request().Header.Get("Authorization"))
			if token == "" && allowQuery {
				token = c.QueryParam("access_token")
			}
			if token == "" {
				h.logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header",
				})
			}

			claims, err := h.issuer.ValidateToken(token)
			if err != nil {
				h.logger.Warn("Request rejected: invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			c.Set(learnerKey, claims.LearnerID)
			return next(c)
		}
	}
}

func (h *handler) learnerToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	// Tokens for an existing learner are only renewed for the holder of a valid token
	requested := strings.TrimSpace(req.LearnerID)
	if bearer := auth.BearerToken(c.Request().Header.Get("Authorization")); bearer != "" {
		claims, err := h.issuer.ValidateToken(bearer)
		if err != nil {
			h.logger.Warn("Token renewal rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired JWT token",
			})
		}
		if requested != "" && requested != claims.LearnerID {
			return forbiddenLearner(c)
		}
		requested = claims.LearnerID
	} else if requested != "" {
		h.logger.Warn("Token request rejected: learner_id without token", zap.String("learnerID", requested))
		return forbiddenLearner(c)
	}

	token, learnerID, err := h.issuer.GenerateLearnerToken(requested)
	if err != nil {
		h.logger.Error("Failed to generate learner token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	ttl := h.config.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	h.logger.Info("Learner token issued", zap.String("learnerID", learnerID))
	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(ttl),
		LearnerID: learnerID,
	})
}

// evaluateUpload scores an uploaded WAV file against the reference form field
func (h *handler) evaluateUpload(c echo.Context) error {
	reference := strings.TrimSpace(c.FormValue("reference"))
	if reference == "" {
		return missingReference(c)
	}

	file, err := c.FormFile("audio")
	if err != nil {
		return h.respondEvaluationError(c, entities.ErrEmptyAudio)
	}
	if h.config.MaxUploadBytes > 0 && file.Size > h.config.MaxUploadBytes {
		return tooLarge(c)
	}

	src, err := file.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", zap.Error(err))
		return h.respondEvaluationError(c, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		h.logger.Error("Failed to read upload", zap.Error(err))
		return h.respondEvaluationError(c, err)
	}

	return h.evaluate(c, usecase.EvaluationRequest{
		LearnerID: c.Get(learnerKey).(string),
		Reference: reference,
		Language:  c.FormValue("language"),
		Source:    audio.EncodedSource{Data: data},
	})
}

// evaluateSamples scores a float sample block
func (h *handler) evaluateSamples(c echo.Context) error {
	var req SamplesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" {
		return missingReference(c)
	}
	if req.SampleRate <= 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "sample_rate must be positive",
		})
	}
	if h.config.MaxUploadBytes > 0 && int64(len(req.Samples))*2 > h.config.MaxUploadBytes {
		return tooLarge(c)
	}

	return h.evaluate(c, usecase.EvaluationRequest{
		LearnerID: c.Get(learnerKey).(string),
		Reference: req.Reference,
		Language:  req.Language,
		Source:    audio.FloatSource{Samples: req.Samples, SampleRate: req.SampleRate},
	})
}

func (h *handler) evaluate(c echo.Context, req usecase.EvaluationRequest) error {
	outcome, err := h.service.Evaluate(c.Request().Context(), req)
	if err != nil {
		return h.respondEvaluationError(c, err)
	}

	return c.JSON(http.StatusOK, EvaluationResponse{
		EvaluationMessage: outcome.Message(req.Reference),
		Feedback:          outcome.Result.Feedback(),
	})
}

func (h *handler) respondEvaluationError(c echo.Context, err error) error {
	code := entities.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case entities.CodeEmptyAudio, entities.CodeInvalidAudio:
		status = http.StatusBadRequest
	case entities.CodeUnintelligible:
		status = http.StatusUnprocessableEntity
	case entities.CodeServiceError:
		status = http.StatusBadGateway
	default:
		h.logger.Error("Evaluation failed", zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{
		Error:   code,
		Message: entities.UserMessage(err),
	})
}

func (h *handler) history(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	attempts, err := h.service.History(c.Request().Context(), c.Get(learnerKey).(string), limit)
	if err != nil {
		h.logger.Error("Failed to list attempts", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   entities.CodeInternal,
			Message: "Failed to load history",
		})
	}

	resp := HistoryResponse{Attempts: make([]AttemptResponse, 0, len(attempts))}
	for _, a := range attempts {
		resp.Attempts = append(resp.Attempts, newAttemptResponse(a))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handler) attempt(c echo.Context) error {
	a, err := h.service.Attempt(c.Request().Context(), c.Get(learnerKey).(string), c.Param("id"))
	if errors.Is(err, repositories.ErrAttemptNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Attempt not found",
		})
	}
	if err != nil {
		h.logger.Error("Failed to load attempt", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   entities.CodeInternal,
			Message: "Failed to load attempt",
		})
	}
	return c.JSON(http.StatusOK, newAttemptResponse(a))
}

func (h *handler) phonemes(c echo.Context) error {
	word := strings.ToLower(c.Param("word"))
	variants := h.service.Lookup(word)
	if len(variants) == 0 {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "unknown_word",
			Message: "The word is not in the pronunciation dictionary",
		})
	}

	resp := PhonemeResponse{Word: word, Phonemes: variants[0]}
	for _, v := range variants {
		resp.Variants = append(resp.Variants, v)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handler) referenceAudio(c echo.Context) error {
	text := strings.TrimSpace(c.QueryParam("text"))
	if text == "" {
		text = h.config.DefaultReference
	}

	wav, err := h.service.ReferenceAudio(c.Request().Context(), text)
	if errors.Is(err, usecase.ErrTextToSpeechDisabled) {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "tts_disabled",
			Message: "Reference audio is not configured",
		})
	}
	if err != nil {
		h.logger.Error("Failed to synthesize reference audio", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   entities.CodeServiceError,
			Message: "Failed to synthesize reference audio",
		})
	}
	return c.Blob(http.StatusOK, "audio/wav", wav)
}

func missingReference(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "missing_fields",
		Message: "Reference sentence is required",
	})
}

func forbiddenLearner(c echo.Context) error {
	return c.JSON(http.StatusForbidden, ErrorResponse{
		Error:   "learner_forbidden",
		Message: "A valid token for this learner is required",
	})
}

func tooLarge(c echo.Context) error {
	return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
		Error:   "audio_too_large",
		Message: "The recording is too large",
	})
}
