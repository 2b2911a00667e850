package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Exam attempt errors.
var (
	ErrAttemptNotFound   = errors.New("exam attempt not found")
	ErrAttemptInProgress = errors.New("an attempt for this lesson is already in progress")
)

const attemptColumns = `id, user_id, lesson_id, session_id, status, score, start_time, end_time`

// ExamAttemptRepository handles exam attempt data access.
type ExamAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewExamAttemptRepository creates a new ExamAttemptRepository.
func NewExamAttemptRepository(pool *pgxpool.Pool) *ExamAttemptRepository {
	return &ExamAttemptRepository{pool: pool}
}

// Create inserts a STARTED attempt. A partial unique index allows only one
// STARTED attempt per user and lesson.
func (r *ExamAttemptRepository) Create(ctx context.Context, a *model.ExamAttempt) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (user_id, lesson_id, session_id, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, lesson_id) WHERE status = 'STARTED' DO NOTHING
		 RETURNING id, score, start_time`,
		a.UserID, a.LessonID, a.SessionID, model.AttemptStatusStarted,
	).Scan(&a.ID, &a.Score, &a.StartTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAttemptInProgress
	}
	if err != nil {
		return err
	}
	a.Status = model.AttemptStatusStarted
	return nil
}

// LatestStarted returns the user's STARTED attempt, preferring one begun
// under sessionID and otherwise the most recently started.
func (r *ExamAttemptRepository) LatestStarted(ctx context.Context, userID int, sessionID string) (*model.ExamAttempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE user_id = $1 AND status = $2
		 ORDER BY (session_id = $3) DESC, start_time DESC
		 LIMIT 1`, userID, model.AttemptStatusStarted, sessionID,
	)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	return a, err
}

// AutoSubmit moves a STARTED attempt to AUTO_SUBMITTED. It reports false
// when the attempt was no longer STARTED, which makes repeated calls no-ops.
func (r *ExamAttemptRepository) AutoSubmit(ctx context.Context, id uuid.UUID, endTime time.Time, score float64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $1, end_time = $2, score = $3
		 WHERE id = $4 AND status = $5`,
		model.AttemptStatusAutoSubmitted, endTime, score, id, model.AttemptStatusStarted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser retrieves all attempts for a user, newest first.
func (r *ExamAttemptRepository) ListByUser(ctx context.Context, userID int) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE user_id = $1
		 ORDER BY start_time DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func scanAttempt(row pgx.Row) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	err := row.Scan(&a.ID, &a.UserID, &a.LessonID, &a.SessionID, &a.Status, &a.Score, &a.StartTime, &a.EndTime)
	if err != nil {
		return nil, err
	}
	return a, nil
}
