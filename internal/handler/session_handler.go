package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/middleware"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/response"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const revocationHistoryLimit = 50

// RevocationLister reads the revocation audit trail.
type RevocationLister interface {
	ListByUser(ctx context.Context, userID, limit int) ([]model.SessionRevocation, error)
}

// SessionHandler exposes the caller's own sessions.
type SessionHandler struct {
	registry    *service.SessionRegistry
	revocations RevocationLister
	log         zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(registry *service.SessionRegistry, revocations RevocationLister, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		registry:    registry,
		revocations: revocations,
		log:         log.With().Str("component", "session_handler").Logger(),
	}
}

// Current godoc
// GET /api/v1/sessions/current
func (h *SessionHandler) Current(c *gin.Context) {
	sess := middleware.GetSession(c)
	if sess == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrNoActiveSession)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// UpgradeToExam godoc
// POST /api/v1/sessions/current/exam
// Promotes the caller's session to EXAM context and pins it to the request IP.
// Any other EXAM session the user holds is revoked.
func (h *SessionHandler) UpgradeToExam(c *gin.Context) {
	sess := middleware.GetSession(c)
	if sess == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrNoActiveSession)
		return
	}

	upgraded, err := h.registry.UpgradeToExamSession(c.Request.Context(), sess.ID, c.ClientIP())
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Fail(c, http.StatusUnauthorized, response.ErrSessionExpired)
			return
		}
		h.log.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to upgrade session")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": upgraded})
}

// ProctorVerify godoc
// POST /api/v1/sessions/current/proctor-verify
func (h *SessionHandler) ProctorVerify(c *gin.Context) {
	sess := middleware.GetSession(c)
	if sess == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrNoActiveSession)
		return
	}

	ctx := c.Request.Context()
	if err := h.registry.MarkProctorVerified(ctx, sess.ID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Fail(c, http.StatusUnauthorized, response.ErrSessionExpired)
			return
		}
		h.log.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to mark proctor verification")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	updated, err := h.registry.GetSession(ctx, sess.ID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionExpired)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": updated})
}

// List godoc
// GET /api/v1/sessions
// Lists the caller's live sessions across devices.
func (h *SessionHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessions, err := h.registry.ListUserSessions(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Int("user_id", claims.UserID).Msg("Failed to list sessions")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"sessions":   sessions,
		"current_id": claims.SessionID,
	})
}

// Revoke godoc
// DELETE /api/v1/sessions/:session_id
// Revokes one of the caller's sessions. Sessions of other users look missing.
func (h *SessionHandler) Revoke(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID := c.Param("session_id")
	if _, err := uuid.Parse(sessionID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ctx := c.Request.Context()
	target, err := h.registry.GetSession(ctx, sessionID)
	if errors.Is(err, service.ErrSessionNotFound) || (err == nil && target.UserID != claims.UserID) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if err := h.registry.InvalidateSession(ctx, sessionID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to revoke session")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": sessionID})
}

// Revocations godoc
// GET /api/v1/sessions/revocations
// Returns the caller's most recent session revocations.
func (h *SessionHandler) Revocations(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	history, err := h.revocations.ListByUser(c.Request.Context(), claims.UserID, revocationHistoryLimit)
	if err != nil {
		h.log.Error().Err(err).Int("user_id", claims.UserID).Msg("Failed to list revocations")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if history == nil {
		history = []model.SessionRevocation{}
	}

	response.Success(c, http.StatusOK, gin.H{"revocations": history})
}
