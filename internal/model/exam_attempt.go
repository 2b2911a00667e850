package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states.
type AttemptStatus string

const (
	AttemptStatusStarted       AttemptStatus = "STARTED"
	AttemptStatusSubmitted     AttemptStatus = "SUBMITTED"
	AttemptStatusAutoSubmitted AttemptStatus = "AUTO_SUBMITTED"
)

// ExamAttempt is a user's attempt at a lesson exam.
type ExamAttempt struct {
	ID        uuid.UUID     `json:"id"`
	UserID    int           `json:"user_id"`
	LessonID  int           `json:"lesson_id"`
	SessionID string        `json:"session_id"`
	Status    AttemptStatus `json:"status"`
	Score     float64       `json:"score"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
}

// StartAttemptRequest is the payload for starting an exam attempt.
type StartAttemptRequest struct {
	LessonID int `json:"lesson_id" binding:"required,min=1"`
}
