package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/config"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims extends JWT standard claims with the session the token is bound to.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string     `json:"session_id"`
	UserID    int        `json:"user_id"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
}

// Identity returns the caller identity carried by the claims.
func (c *Claims) Identity() Identity {
	return Identity{
		UserID:    c.UserID,
		Email:     c.Email,
		Role:      c.Role,
		SessionID: c.SessionID,
	}
}

// UserFinder looks up accounts for login.
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token   string
	Session *model.Session
	User    *model.User
}

// AuthService handles credential checks and token issuance. Every issued
// token embeds the id of a GENERAL session created at login.
type AuthService struct {
	cfg      *config.Config
	users    UserFinder
	registry *SessionRegistry
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, users UserFinder, registry *SessionRegistry) *AuthService {
	return &AuthService{cfg: cfg, users: users, registry: registry}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login verifies email + password, opens a GENERAL session for the device
// and returns a token bound to it.
func (s *AuthService) Login(ctx context.Context, email, password, deviceID, ipAddress string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := s.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}

	sessionID, err := s.registry.CreateSession(ctx, user.ID, model.SessionContextGeneral, deviceID, ipAddress)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	sess, err := s.registry.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	token, err := s.GenerateToken(user, sessionID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Token: token, Session: sess, User: user}, nil
}

// GenerateToken signs a JWT for user bound to sessionID.
func (s *AuthService) GenerateToken(user *model.User, sessionID string) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		SessionID: sessionID,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
