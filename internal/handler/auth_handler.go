package handler

import (
	"errors"
	"net/http"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/middleware"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/response"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/service"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	registry    *service.SessionRegistry
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, registry *service.SessionRegistry, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		registry:    registry,
		log:         log.With().Str("component", "auth_handler").Logger(),
	}
}

// Login godoc
// POST /api/v1/auth/login
// Validates email + password, opens a GENERAL session for the device and returns a JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password, req.DeviceID, c.ClientIP())
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		h.log.Error().Err(err).Str("email", req.Email).Msg("Login failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":   result.Token,
		"session": result.Session,
		"user":    result.User,
	})
}

// Logout godoc
// POST /api/v1/auth/logout
// Revokes every session of the caller, on every device.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	revoked, err := h.registry.InvalidateAllUserSessions(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Int("user_id", claims.UserID).Msg("Logout cleanup incomplete")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": revoked})
}
