package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/rs/zerolog"
)

// Request-time session check errors. The first three are authentication
// failures, the last an authorization failure.
var (
	ErrNoSession           = errors.New("no active session found")
	ErrSessionExpired      = errors.New("session expired or invalid")
	ErrIPMismatch          = errors.New("concurrent session detected from different IP")
	ErrExamContextRequired = errors.New("this action requires an active exam session")
)

// Identity is the caller identity carried by a verified credential.
type Identity struct {
	UserID    int
	Email     string
	Role      model.Role
	SessionID string
}

// AccessValidator resolves a credential's session on every authenticated
// request, pins EXAM sessions to their bound IP and sends the heartbeat.
type AccessValidator struct {
	registry *SessionRegistry
	log      zerolog.Logger
}

// NewAccessValidator creates a new AccessValidator.
func NewAccessValidator(registry *SessionRegistry, log zerolog.Logger) *AccessValidator {
	return &AccessValidator{
		registry: registry,
		log:      log.With().Str("component", "access_validator").Logger(),
	}
}

// Validate returns the caller's refreshed session. IP pinning applies only
// to EXAM context.
func (v *AccessValidator) Validate(ctx context.Context, id Identity, requestIP string) (*model.Session, error) {
	if id.SessionID == "" {
		return nil, ErrNoSession
	}

	sess, err := v.registry.GetSession(ctx, id.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	// A credential may only ride its own user's session.
	if sess.UserID != id.UserID {
		v.log.Warn().
			Str("session_id", sess.ID).
			Int("session_user_id", sess.UserID).
			Int("token_user_id", id.UserID).
			Msg("Credential user does not own session")
		return nil, ErrSessionExpired
	}

	if sess.IsExam() && sess.IPAddress != requestIP {
		v.log.Warn().
			Str("session_id", sess.ID).
			Int("user_id", sess.UserID).
			Str("bound_ip", sess.IPAddress).
			Str("request_ip", requestIP).
			Msg("Exam session used from a different IP")
		return nil, ErrIPMismatch
	}

	refreshed, err := v.registry.RefreshSession(ctx, sess.ID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	return refreshed, nil
}

// ExamGate checks that a caller's session is currently in EXAM context. It
// never mutates session state.
type ExamGate struct {
	registry *SessionRegistry
}

// NewExamGate creates a new ExamGate.
func NewExamGate(registry *SessionRegistry) *ExamGate {
	return &ExamGate{registry: registry}
}

// Check returns ErrExamContextRequired unless sessionID names a live EXAM session.
func (g *ExamGate) Check(ctx context.Context, sessionID string) error {
	sess, err := g.registry.GetSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return ErrExamContextRequired
	}
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if !sess.IsExam() {
		return ErrExamContextRequired
	}
	return nil
}
