package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/vasiliy-maslov/livestockmart/internal/config"
)

const issuer = "livestockmart"

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is what a session token asserts about its bearer.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

const RoleAdmin = "admin"

type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 session tokens.
type Manager struct {
	secret       []byte
	ttl          time.Duration
	secureCookie bool
	now          func() time.Time
}

func NewManager(cfg config.AuthConfig) *Manager {
	return &Manager{
		secret:       []byte(cfg.JWTSecret),
		ttl:          cfg.TokenTTL,
		secureCookie: cfg.CookieSecure,
		now:          time.Now,
	}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) Issue(id Identity) (string, error) {
	now := m.now()
	claims := Claims{
		UserID: id.UserID.String(),
		Email:  id.Email,
		Name:   id.Name,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return token, nil
}

func (m *Manager) Parse(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, err := uuid.FromString(claims.UserID)
	if err != nil || userID == uuid.Nil {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID: userID,
		Email:  claims.Email,
		Name:   claims.Name,
		Role:   claims.Role,
	}, nil
}
