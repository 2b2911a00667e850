package service

import (
	"context"
	"fmt"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
)

// AttemptRepository is the persistence the attempt service needs.
type AttemptRepository interface {
	Create(ctx context.Context, a *model.ExamAttempt) error
	ListByUser(ctx context.Context, userID int) ([]model.ExamAttempt, error)
}

// ExamAttemptService starts and lists exam attempts. Grading lives with the
// proctoring collaborator; this service only opens attempts under an EXAM session.
type ExamAttemptService struct {
	attempts AttemptRepository
}

// NewExamAttemptService creates a new ExamAttemptService.
func NewExamAttemptService(attempts AttemptRepository) *ExamAttemptService {
	return &ExamAttemptService{attempts: attempts}
}

// StartAttempt opens a STARTED attempt for lessonID under sessionID.
// Returns repository.ErrAttemptInProgress if one is already open for the lesson.
func (s *ExamAttemptService) StartAttempt(ctx context.Context, userID, lessonID int, sessionID string) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{
		UserID:    userID,
		LessonID:  lessonID,
		SessionID: sessionID,
	}
	if err := s.attempts.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	return a, nil
}

// ListAttempts returns the user's attempts, newest first.
func (s *ExamAttemptService) ListAttempts(ctx context.Context, userID int) ([]model.ExamAttempt, error) {
	attempts, err := s.attempts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if attempts == nil {
		attempts = []model.ExamAttempt{}
	}
	return attempts, nil
}
