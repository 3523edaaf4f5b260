package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/academia/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired and ErrTokenInvalid are distinct so callers can tell a
	// stale session apart from a forged or garbled one.
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")

	ErrJWTNotConfigured = errors.New("jwt signing secret not configured")
)

var (
	jwtSecret          []byte
	jwtExpirationHours = 24
)

// sessionTokenType discriminates full session tokens from the reduced-trust
// pending tokens in mfa_token.go; both are signed with the same secret, so
// each validator must insist on its own type.
const sessionTokenType = "session"

type Claims struct {
	UserID    uuid.UUID       `json:"userID"`
	Email     string          `json:"email"`
	Role      models.UserRole `json:"role"`
	TokenType string          `json:"tokenType"`
	jwt.RegisteredClaims
}

// ConfigureJWT installs the process-wide signing secret. There is no default:
// startup must fail when the secret is absent.
func ConfigureJWT(secret string, expirationHours int) error {
	if secret == "" {
		return ErrJWTNotConfigured
	}
	jwtSecret = []byte(secret)
	if expirationHours > 0 {
		jwtExpirationHours = expirationHours
	}
	return nil
}

func GenerateToken(id uuid.UUID, email string, role models.UserRole) (string, error) {
	if jwtSecret == nil {
		return "", ErrJWTNotConfigured
	}

	expiresAt := time.Now().Add(time.Duration(jwtExpirationHours) * time.Hour)
	claims := Claims{
		UserID:    id,
		Email:     email,
		Role:      role,
		TokenType: sessionTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   id.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateToken(tokenString string) (*Claims, error) {
	if jwtSecret == nil {
		return nil, ErrJWTNotConfigured
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.TokenType != sessionTokenType {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
