package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleLearner = "learner"

	// used when the service runs in development without JWT_SECRET
	developmentSecret = "lafal-development-secret"
)

var ErrInvalidToken = errors.New("invalid token")

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	LearnerID string `json:"learner_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and validates learner tokens
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. An empty secret falls back to a fixed development key.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if secret == "" {
		secret = developmentSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateLearnerToken generates a JWT token for a learner.
// An empty learnerID gets a fresh random one.
func (i *Issuer) GenerateLearnerToken(learnerID string) (string, string, error) {
	learnerID = strings.TrimSpace(learnerID)
	if learnerID == "" {
		learnerID = uuid.NewString()
	}

	now := i.now()
	claims := &JWTClaims{
		LearnerID: learnerID,
		Role:      RoleLearner,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   learnerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return signed, learnerID, nil
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != RoleLearner || claims.LearnerID == "" {
		return nil, fmt.Errorf("%w: not a learner token", ErrInvalidToken)
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
