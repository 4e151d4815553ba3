package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongSession = errors.New("token issued for another session")
)

// RoleBroadcaster is the only role a token can carry; viewers are anonymous.
const RoleBroadcaster = "broadcaster"

// Claims binds a token to one session code.
type Claims struct {
	SessionCode string `json:"session_code"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService issues and validates broadcaster tokens.
type JWTService struct {
	secret      []byte
	expireHours int
	now         func() time.Time
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	if expireHours <= 0 {
		expireHours = 12
	}
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
		now:         time.Now,
	}
}

// Generate creates a broadcaster token for the session.
func (s *JWTService) Generate(sessionCode string) (string, error) {
	now := s.now()
	claims := Claims{
		SessionCode: sessionCode,
		Role:        RoleBroadcaster,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionCode,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Role != RoleBroadcaster {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateFor checks the token and that it belongs to sessionCode.
func (s *JWTService) ValidateFor(tokenString, sessionCode string) (*Claims, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.SessionCode != sessionCode {
		return nil, ErrWrongSession
	}
	return claims, nil
}
