package middleware

import (
	"errors"
	"net/http"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/response"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/service"
	"github.com/gin-gonic/gin"
)

// RequireActiveSession resolves the token's session, enforces IP pinning for
// EXAM sessions and refreshes the heartbeat. Must run after RequireJWT.
func RequireActiveSession(validator *service.AccessValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		sess, err := validator.Validate(c.Request.Context(), claims.Identity(), c.ClientIP())
		if err != nil {
			switch {
			case errors.Is(err, service.ErrNoSession):
				response.AbortFail(c, http.StatusUnauthorized, response.ErrNoActiveSession)
			case errors.Is(err, service.ErrSessionExpired):
				response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionExpired)
			case errors.Is(err, service.ErrIPMismatch):
				response.AbortFail(c, http.StatusUnauthorized, response.ErrConcurrentSession)
			default:
				response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			}
			return
		}

		c.Set(ContextKeySession, sess)
		c.Next()
	}
}

// RequireExamSession admits only callers whose session is in EXAM context.
// Must run after RequireActiveSession.
func RequireExamSession(gate *service.ExamGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if err := gate.Check(c.Request.Context(), claims.SessionID); err != nil {
			if errors.Is(err, service.ErrExamContextRequired) {
				response.AbortFail(c, http.StatusForbidden, response.ErrExamSessionRequired)
				return
			}
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}

		c.Next()
	}
}
