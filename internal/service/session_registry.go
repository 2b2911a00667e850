package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/config"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/event"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registry errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidContext  = errors.New("invalid session context")
)

// SessionPolicy holds the context-specific time-to-live re-applied on every touch.
type SessionPolicy struct {
	GeneralTTL time.Duration
	ExamTTL    time.Duration
}

// DefaultSessionPolicy returns 24h for GENERAL and 2h for EXAM sessions.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{GeneralTTL: 24 * time.Hour, ExamTTL: 2 * time.Hour}
}

// TTL returns the lifetime for a session in context c.
func (p SessionPolicy) TTL(c model.SessionContext) time.Duration {
	if c == model.SessionContextExam {
		return p.ExamTTL
	}
	return p.GeneralTTL
}

// indexTTL outlives any session the index can reference.
func (p SessionPolicy) indexTTL() time.Duration {
	return max(p.GeneralTTL, p.ExamTTL)
}

// SessionRegistry owns session records, the per-user session index and the
// per-user exam pointer. Every mutation runs under the owning user's lock so
// that the exam pointer swap is atomic with respect to other requests of the
// same user.
type SessionRegistry struct {
	store  store.ExpiringStore
	bus    event.Publisher
	policy SessionPolicy
	now    store.Clock
	locks  *keyedMutex
	log    zerolog.Logger
}

// RegistryOption configures a SessionRegistry.
type RegistryOption func(*SessionRegistry)

// WithRegistryClock overrides the time source for CreatedAt/LastActive.
func WithRegistryClock(now store.Clock) RegistryOption {
	return func(r *SessionRegistry) {
		r.now = now
	}
}

// NewSessionRegistry creates a SessionRegistry on top of st, publishing lifecycle events to bus.
func NewSessionRegistry(st store.ExpiringStore, bus event.Publisher, policy SessionPolicy, log zerolog.Logger, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		store:  st,
		bus:    bus,
		policy: policy,
		now:    time.Now,
		locks:  newKeyedMutex(),
		log:    log.With().Str("component", "session_registry").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateSession allocates a new session for userID. Creating an EXAM session
// first revokes the user's previous EXAM session, if any.
func (r *SessionRegistry) CreateSession(ctx context.Context, userID int, sessCtx model.SessionContext, deviceID, ipAddress string) (string, error) {
	if !sessCtx.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidContext, sessCtx)
	}

	unlock := r.locks.Lock(userID)
	defer unlock()

	now := r.now()
	sess := &model.Session{
		ID:         uuid.New().String(),
		UserID:     userID,
		DeviceID:   deviceID,
		Context:    sessCtx,
		IPAddress:  ipAddress,
		CreatedAt:  now,
		LastActive: now,
	}

	if sess.IsExam() {
		if err := r.releaseExamPointer(ctx, userID, ""); err != nil {
			return "", err
		}
	}

	if err := r.save(ctx, sess); err != nil {
		return "", err
	}
	if err := r.store.AddToSet(ctx, config.CacheKey.UserSessionsKey(userID), sess.ID, r.policy.indexTTL()); err != nil {
		return "", fmt.Errorf("index session: %w", err)
	}

	r.log.Info().
		Str("session_id", sess.ID).
		Int("user_id", userID).
		Str("device_id", deviceID).
		Str("context", string(sessCtx)).
		Msg("Session created")

	return sess.ID, nil
}

// GetSession returns the live session or ErrSessionNotFound.
func (r *SessionRegistry) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	return r.load(ctx, sessionID)
}

// ValidateSession reports whether the session exists and has not expired.
func (r *SessionRegistry) ValidateSession(ctx context.Context, sessionID string) bool {
	_, err := r.load(ctx, sessionID)
	return err == nil
}

// RefreshSession is the heartbeat: it stamps LastActive, resets the TTL to
// the session's current context value and returns the refreshed record.
func (r *SessionRegistry) RefreshSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var refreshed *model.Session
	err := r.mutate(ctx, sessionID, func(sess *model.Session) error {
		sess.LastActive = r.now()
		if err := r.save(ctx, sess); err != nil {
			return err
		}
		if err := r.store.AddToSet(ctx, config.CacheKey.UserSessionsKey(sess.UserID), sess.ID, r.policy.indexTTL()); err != nil {
			return fmt.Errorf("refresh index: %w", err)
		}
		refreshed = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

// InvalidateSession deletes the session, drops it from the user's index and
// publishes a revoked (or exam_revoked) event carrying the deleted record.
func (r *SessionRegistry) InvalidateSession(ctx context.Context, sessionID string) error {
	sess, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}

	unlock := r.locks.Lock(sess.UserID)
	defer unlock()

	return r.invalidateLocked(ctx, sessionID)
}

// UpgradeToExamSession promotes the session in place to EXAM context,
// revoking any other EXAM session the user holds. A non-empty ipAddress
// re-binds the session to the upgrading request's address.
func (r *SessionRegistry) UpgradeToExamSession(ctx context.Context, sessionID, ipAddress string) (*model.Session, error) {
	var upgraded *model.Session
	err := r.mutate(ctx, sessionID, func(sess *model.Session) error {
		if err := r.releaseExamPointer(ctx, sess.UserID, sess.ID); err != nil {
			return err
		}

		sess.Context = model.SessionContextExam
		sess.LastActive = r.now()
		if ipAddress != "" {
			sess.IPAddress = ipAddress
		}

		if err := r.save(ctx, sess); err != nil {
			return err
		}
		upgraded = sess
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("session_id", upgraded.ID).
		Int("user_id", upgraded.UserID).
		Str("ip", upgraded.IPAddress).
		Msg("Session upgraded to exam context")

	return upgraded, nil
}

// MarkProctorVerified sets the proctor verification flag. The record is
// re-written with its context TTL, and so is the exam pointer.
func (r *SessionRegistry) MarkProctorVerified(ctx context.Context, sessionID string) error {
	return r.mutate(ctx, sessionID, func(sess *model.Session) error {
		sess.ProctorVerified = true
		return r.save(ctx, sess)
	})
}

// InvalidateAllUserSessions revokes every session in the user's index and
// returns how many were live.
func (r *SessionRegistry) InvalidateAllUserSessions(ctx context.Context, userID int) (int, error) {
	unlock := r.locks.Lock(userID)
	defer unlock()

	indexKey := config.CacheKey.UserSessionsKey(userID)
	ids, err := r.store.ListSet(ctx, indexKey)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	revoked := 0
	var errs []error
	for _, id := range ids {
		err := r.invalidateLocked(ctx, id)
		switch {
		case err == nil:
			revoked++
		case errors.Is(err, ErrSessionNotFound):
			// Expired since it was indexed.
		default:
			errs = append(errs, err)
		}
	}

	if err := r.store.Delete(ctx, indexKey); err != nil {
		errs = append(errs, fmt.Errorf("delete index: %w", err))
	}
	if err := r.store.Delete(ctx, config.CacheKey.UserExamSessionKey(userID)); err != nil {
		errs = append(errs, fmt.Errorf("delete exam pointer: %w", err))
	}

	r.log.Info().Int("user_id", userID).Int("revoked", revoked).Msg("All user sessions invalidated")

	return revoked, errors.Join(errs...)
}

// ListUserSessions returns the user's live sessions.
func (r *SessionRegistry) ListUserSessions(ctx context.Context, userID int) ([]model.Session, error) {
	ids, err := r.store.ListSet(ctx, config.CacheKey.UserSessionsKey(userID))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]model.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := r.load(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

// ExamSessionID returns the id the user's exam pointer names, or "" if none.
func (r *SessionRegistry) ExamSessionID(ctx context.Context, userID int) (string, error) {
	raw, err := r.store.Get(ctx, config.CacheKey.UserExamSessionKey(userID))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read exam pointer: %w", err)
	}
	return string(raw), nil
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

// mutate loads the session, takes its owner's lock and hands a fresh copy,
// re-read under the lock, to fn.
func (r *SessionRegistry) mutate(ctx context.Context, sessionID string, fn func(*model.Session) error) error {
	sess, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}

	unlock := r.locks.Lock(sess.UserID)
	defer unlock()

	sess, err = r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	return fn(sess)
}

// invalidateLocked must run under the session owner's lock.
func (r *SessionRegistry) invalidateLocked(ctx context.Context, sessionID string) error {
	sess, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := r.store.Delete(ctx, config.CacheKey.SessionKey(sessionID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	// The record is gone: revocation is committed. Index cleanup failures are
	// reported but do not stop the event.
	var errs []error
	if err := r.store.RemoveFromSet(ctx, config.CacheKey.UserSessionsKey(sess.UserID), sessionID); err != nil {
		errs = append(errs, fmt.Errorf("unindex session: %w", err))
	}

	kind := event.KindRevoked
	if sess.IsExam() {
		kind = event.KindExamRevoked
		pointer, err := r.ExamSessionID(ctx, sess.UserID)
		if err != nil {
			errs = append(errs, err)
		} else if pointer == sessionID {
			if err := r.store.Delete(ctx, config.CacheKey.UserExamSessionKey(sess.UserID)); err != nil {
				errs = append(errs, fmt.Errorf("clear exam pointer: %w", err))
			}
		}
	}

	r.bus.Publish(ctx, kind, *sess)

	r.log.Info().
		Str("session_id", sessionID).
		Int("user_id", sess.UserID).
		Str("kind", string(kind)).
		Msg("Session invalidated")

	return errors.Join(errs...)
}

// releaseExamPointer revokes whatever EXAM session the user's pointer names
// unless it is keep. A pointer to an already expired session is just cleared.
// Caller holds the user's lock.
func (r *SessionRegistry) releaseExamPointer(ctx context.Context, userID int, keep string) error {
	current, err := r.ExamSessionID(ctx, userID)
	if err != nil {
		return err
	}
	if current == "" || current == keep {
		return nil
	}

	err = r.invalidateLocked(ctx, current)
	if errors.Is(err, ErrSessionNotFound) {
		if err := r.store.Delete(ctx, config.CacheKey.UserExamSessionKey(userID)); err != nil {
			return fmt.Errorf("clear stale exam pointer: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke previous exam session: %w", err)
	}

	r.log.Warn().
		Int("user_id", userID).
		Str("revoked_session_id", current).
		Msg("Previous exam session superseded")

	return nil
}

func (r *SessionRegistry) installExamPointer(ctx context.Context, sess *model.Session) error {
	key := config.CacheKey.UserExamSessionKey(sess.UserID)
	if err := r.store.Set(ctx, key, []byte(sess.ID), r.policy.ExamTTL); err != nil {
		return fmt.Errorf("install exam pointer: %w", err)
	}
	return nil
}

// save writes the record with its context TTL. An EXAM record re-installs the
// exam pointer on every write so the pointer never expires before the session.
// Caller holds the user's lock.
func (r *SessionRegistry) save(ctx context.Context, sess *model.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.store.Set(ctx, config.CacheKey.SessionKey(sess.ID), raw, r.policy.TTL(sess.Context)); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if sess.IsExam() {
		return r.installExamPointer(ctx, sess)
	}
	return nil
}

func (r *SessionRegistry) load(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	raw, err := r.store.Get(ctx, config.CacheKey.SessionKey(sessionID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}
