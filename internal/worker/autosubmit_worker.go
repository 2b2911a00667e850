package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/event"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultAutoSubmitTimeout bounds one call into the attempt store.
const DefaultAutoSubmitTimeout = 5 * time.Second

// AttemptStore is the slice of the exam attempt store the coordinator needs.
type AttemptStore interface {
	LatestStarted(ctx context.Context, userID int, sessionID string) (*model.ExamAttempt, error)
	AutoSubmit(ctx context.Context, id uuid.UUID, endTime time.Time, score float64) (bool, error)
}

// ScorePolicy decides the score an attempt is frozen with when it is auto-submitted.
type ScorePolicy func(a *model.ExamAttempt) float64

// ZeroScore discards any partial progress.
func ZeroScore(*model.ExamAttempt) float64 { return 0 }

// PartialScore keeps the best-known partial score recorded on the attempt.
func PartialScore(a *model.ExamAttempt) float64 { return a.Score }

// ScorePolicyByName maps the AUTO_SUBMIT_SCORE_POLICY setting to a policy.
func ScorePolicyByName(name string) (ScorePolicy, error) {
	switch name {
	case "", "zero":
		return ZeroScore, nil
	case "partial":
		return PartialScore, nil
	default:
		return nil, fmt.Errorf("unknown auto-submit score policy %q", name)
	}
}

// AutoSubmitCoordinator force-finishes a user's in-progress attempt when
// their EXAM session is revoked.
type AutoSubmitCoordinator struct {
	attempts AttemptStore
	score    ScorePolicy
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewAutoSubmitCoordinator creates a coordinator. A non-positive timeout uses DefaultAutoSubmitTimeout.
func NewAutoSubmitCoordinator(attempts AttemptStore, score ScorePolicy, timeout time.Duration, log zerolog.Logger) *AutoSubmitCoordinator {
	if timeout <= 0 {
		timeout = DefaultAutoSubmitTimeout
	}
	if score == nil {
		score = ZeroScore
	}
	return &AutoSubmitCoordinator{
		attempts: attempts,
		score:    score,
		timeout:  timeout,
		now:      time.Now,
		log:      log.With().Str("component", "auto_submit").Logger(),
	}
}

// Register subscribes the coordinator to the bus.
func (c *AutoSubmitCoordinator) Register(bus *event.Bus) {
	bus.Subscribe("auto_submit", c.Handle)
	c.log.Info().Dur("timeout", c.timeout).Msg("AutoSubmitCoordinator registered")
}

// Handle is the bus handler. Only exam_revoked events are acted on; running
// it twice for one event finds nothing STARTED the second time. An attempt
// started under the revoked session wins over a newer one from another device.
func (c *AutoSubmitCoordinator) Handle(ctx context.Context, ev event.Event) error {
	if ev.Kind != event.KindExamRevoked {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userID := ev.Session.UserID
	attempt, err := c.attempts.LatestStarted(ctx, userID, ev.Session.ID)
	if errors.Is(err, repository.ErrAttemptNotFound) {
		c.log.Debug().Int("user_id", userID).Msg("No in-progress attempt to auto-submit")
		return nil
	}
	if err != nil {
		return fmt.Errorf("find started attempt for user %d: %w", userID, err)
	}

	score := c.score(attempt)
	changed, err := c.attempts.AutoSubmit(ctx, attempt.ID, c.now(), score)
	if err != nil {
		return fmt.Errorf("auto-submit attempt %s: %w", attempt.ID, err)
	}
	if !changed {
		c.log.Debug().Str("attempt_id", attempt.ID.String()).Msg("Attempt already finalized")
		return nil
	}

	c.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("user_id", userID).
		Int("lesson_id", attempt.LessonID).
		Str("revoked_session_id", ev.Session.ID).
		Float64("score", score).
		Msg("Exam attempt auto-submitted")

	return nil
}
