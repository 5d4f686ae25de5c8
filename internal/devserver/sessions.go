package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/your-username/ehr-console/internal/auth"
)

const refreshTTL = 7 * 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidRefresh     = errors.New("refresh token is invalid or already used")
	ErrInvalidToken       = errors.New("access token is invalid or expired")
)

type refreshSession struct {
	user      auth.User
	expiresAt time.Time
}

// Sessions issues access tokens and single-use refresh tokens for one operator
type Sessions struct {
	secret       []byte
	accessTTL    time.Duration
	operator     auth.User
	passwordHash []byte

	mu      sync.Mutex
	refresh map[string]refreshSession
	now     func() time.Time
}

func NewSessions(secret, email, password string, accessTTL time.Duration) (*Sessions, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash operator password: %w", err)
	}
	if accessTTL <= 0 {
		accessTTL = 2 * time.Minute
	}
	return &Sessions{
		secret:       []byte(secret),
		accessTTL:    accessTTL,
		passwordHash: hash,
		operator: auth.User{
			ID:        uuid.NewString(),
			Email:     email,
			Firstname: "Dev",
			Lastname:  "Operator",
			Roles:     []string{"admin"},
		},
		refresh: make(map[string]refreshSession),
		now:     time.Now,
	}, nil
}

// Login checks the operator credentials and opens a session
func (s *Sessions) Login(email, password string) (*auth.AuthResponse, error) {
	if !strings.EqualFold(email, s.operator.Email) {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(s.operator)
}

// Rotate consumes refreshToken and issues a new pair. A token is accepted once.
func (s *Sessions) Rotate(refreshToken string) (*auth.AuthResponse, error) {
	s.mu.Lock()
	session, ok := s.refresh[refreshToken]
	delete(s.refresh, refreshToken)
	s.mu.Unlock()

	if !ok || s.now().After(session.expiresAt) {
		return nil, ErrInvalidRefresh
	}
	return s.issue(session.user)
}

// Verify validates an access token and returns its claims
func (s *Sessions) Verify(token string) (*auth.Claims, error) {
	claims := &auth.Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Sessions) issue(user auth.User) (*auth.AuthResponse, error) {
	now := s.now()
	claims := auth.Claims{
		Email: user.Email,
		Roles: user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	refreshToken := hex.EncodeToString(b)

	s.mu.Lock()
	s.refresh[refreshToken] = refreshSession{user: user, expiresAt: now.Add(refreshTTL)}
	s.mu.Unlock()

	return &auth.AuthResponse{User: user, Token: token, RefreshToken: refreshToken}, nil
}

// bearerToken extracts the token from an Authorization header
func bearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
