package handler

import (
	"errors"
	"net/http"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/middleware"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/repository"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/response"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/service"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ExamHandler handles exam attempt endpoints.
type ExamHandler struct {
	attemptService *service.ExamAttemptService
	log            zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(attemptService *service.ExamAttemptService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "exam_handler").Logger(),
	}
}

// StartAttempt godoc
// POST /api/v1/exam/attempts
// Opens an attempt for a lesson. Only reachable under an EXAM session.
func (h *ExamHandler) StartAttempt(c *gin.Context) {
	sess := middleware.GetSession(c)
	if sess == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrNoActiveSession)
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.StartAttempt(c.Request.Context(), sess.UserID, req.LessonID, sess.ID)
	if err != nil {
		if errors.Is(err, repository.ErrAttemptInProgress) {
			response.Fail(c, http.StatusConflict, response.ErrAttemptInProgress)
			return
		}
		h.log.Error().Err(err).Int("user_id", sess.UserID).Int("lesson_id", req.LessonID).Msg("Failed to start attempt")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": attempt})
}

// ListAttempts godoc
// GET /api/v1/exam/attempts
func (h *ExamHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempts, err := h.attemptService.ListAttempts(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Int("user_id", claims.UserID).Msg("Failed to list attempts")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}
