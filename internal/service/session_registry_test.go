package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/config"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/event"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type published struct {
	kind    event.Kind
	session model.Session
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, kind event.Kind, session model.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{kind: kind, session: session})
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

type registryFixture struct {
	registry *SessionRegistry
	store    *store.MemoryStore
	events   *recordingPublisher
	clock    *fakeClock
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	clock := newFakeClock()
	st := store.NewMemoryStore(store.WithClock(clock.Now))
	events := &recordingPublisher{}
	registry := NewSessionRegistry(st, events, DefaultSessionPolicy(), zerolog.Nop(), WithRegistryClock(clock.Now))
	return &registryFixture{registry: registry, store: st, events: events, clock: clock}
}

func TestCreateSession(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	id, err := f.registry.CreateSession(ctx, 7, model.SessionContextGeneral, "laptop", "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, err := f.registry.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 7, sess.UserID)
	require.Equal(t, "laptop", sess.DeviceID)
	require.Equal(t, model.SessionContextGeneral, sess.Context)
	require.Equal(t, "10.0.0.1", sess.IPAddress)
	require.False(t, sess.ProctorVerified)
	require.Equal(t, f.clock.Now(), sess.CreatedAt)
	require.Equal(t, f.clock.Now(), sess.LastActive)

	require.True(t, f.registry.ValidateSession(ctx, id))

	pointer, err := f.registry.ExamSessionID(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, pointer)
	require.Empty(t, f.events.all())
}

func TestCreateSessionRejectsInvalidContext(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.registry.CreateSession(context.Background(), 7, model.SessionContext("KIOSK"), "laptop", "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidContext)
}

func TestGeneralSessionsCoexistAcrossDevices(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	a, err := f.registry.CreateSession(ctx, 7, model.SessionContextGeneral, "laptop", "10.0.0.1")
	require.NoError(t, err)
	b, err := f.registry.CreateSession(ctx, 7, model.SessionContextGeneral, "phone", "10.0.0.2")
	require.NoError(t, err)

	require.True(t, f.registry.ValidateSession(ctx, a))
	require.True(t, f.registry.ValidateSession(ctx, b))

	sessions, err := f.registry.ListUserSessions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestCreateExamSessionSupersedesPrevious(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	first, err := f.registry.CreateSession(ctx, 7, model.SessionContextExam, "laptop", "10.0.0.1")
	require.NoError(t, err)
	second, err := f.registry.CreateSession(ctx, 7, model.SessionContextExam, "tablet", "10.0.0.9")
	require.NoError(t, err)

	require.False(t, f.registry.ValidateSession(ctx, first))
	require.True(t, f.registry.ValidateSession(ctx, second))

	pointer, err := f.registry.ExamSessionID(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, second, pointer)

	events := f.events.all()
	require.Len(t, events, 1)
	require.Equal(t, event.KindExamRevoked, events[0].kind)
	require.Equal(t, first, events[0].session.ID)
	require.Equal(t, "laptop", events[0].session.DeviceID)
}

func TestCreateExamSessionClearsStalePointer(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	first, err := f.registry.CreateSession(ctx, 7, model.SessionContextExam, "laptop", "10.0.0.1")
	require.NoError(t, err)
	// Record vanished while the pointer survived.
	require.NoError(t, f.store.Delete(ctx, config.CacheKey.SessionKey(first)))

	second, err := f.registry.CreateSession(ctx, 7, model.SessionContextExam, "tablet", "10.0.0.9")
	require.NoError(t, err)

	pointer, err := f.registry.ExamSessionID(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, second, pointer)
	require.Empty(t, f.events.all())
}

func TestUpgradeToExamSession(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	laptop, err := f.registry.CreateSession(ctx, 7, model.SessionContextGeneral, "laptop", "10.0.0.1")
	require.NoError(t, err)
	phone, err := f.registry.CreateSession(ctx, 7, model.SessionContextGeneral, "phone", "10.0.0.2")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	upgraded, err := f.registry.UpgradeToExamSession(ctx, laptop, "10.0.0.50")
	require.NoError(t, err)
	require.Equal(t, laptop, upgraded.ID)
	require.Equal(t, model.SessionContextExam, upgraded.Context)
	require.Equal(t, "10.0.0.50", upgraded.IPAddress)
	require.Equal(t, f.clock.Now(), upgraded.LastActive)

	pointer, err := f.registry.ExamSessionID(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, laptop, pointer)
	require.Empty(t, f.events.all())

	// The phone stays usable as a GENERAL session.
	require.True(t, f.registry.ValidateSession(ctx, phone))

	// Upgrading the phone takes the exam away from the laptop.
	_, err = f.registry.UpgradeToExamSession(ctx, phone, "")
	require.NoError(t, err)
	require.False(t, f.registry.ValidateSession(ctx, laptop))

	phoneSess, err := f.registry.GetSession(ctx, phone)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.2", phoneSess.IPAddress)

	events := f.events.all()
	require.Len(t, events, 1)
	require.Equal(t, event.KindExamRevoked, events[0].kind)
	require.Equal(t, laptop, events[0].session.ID)
}

func TestUpgradeCurrentExamSessionIsNoop(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	id, err := f.registry.CreateSession(ctx, 7, model.SessionContextGeneral, "laptop", "10.0.0.1")
	require.NoError(t, err)

	_, err = f.registry.UpgradeToExamSession(ctx, id, "10.0.0.1")
	require.NoError(t, err)
	_, err = f.registry.UpgradeToExamSession(ctx, id, "10.0.0.1")
	require.NoError(t, err)

	require.True(t, f.registry.ValidateSession(ctx, id))
	require.Empty(t, f.events.all())
}

func TestUpgradeMissingSession(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.registry.UpgradeToExamSession(context.Background(), "nope", "10.0.0.1")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConcurrentUpgradesLeaveOneExamSession(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	const devices = 16
	ids := make([]string, devices)
	for i := range ids {
		id, err := f.registry.CreateSession(ctx, 7, model.SessionContextGeneral, "device", "10.0.0.1")
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	errs := make([]error, devices)
	for i, id := range ids {
		wg.Go(func() {
			_, errs[i] = f.registry.UpgradeToExamSession(ctx, id, "10.0.0.1")
		})
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	live, err := f.registry.ListUserSessions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, model.SessionContextExam, live[0].Context)

	pointer, err := f.registry.ExamSessionID(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, live[0].ID, pointer)

	events := f.events.all()
	require.Len(t, events, devices-1)
	for _, ev := range events {
		require.Equal(t, event.KindExamRevoked, ev.kind)
		require.NotEqual(t, pointer, ev.session.ID)
	}
	require.Zero(t, f.registry.locks.size())
}

func TestInvalidateSession(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	general, err := f.registry.CreateSession(ctx, 7, model.SessionContextGeneral, "phone", "10.0.0.2")
	require.NoError(t, err)
	exam, err := f.registry.CreateSession(ctx, 7, model.SessionContextExam, "laptop", "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, f.registry.InvalidateSession(ctx, general))
	require.NoError(t, f.registry.InvalidateSession(ctx, exam))

	require.False(t, f.registry.ValidateSession(ctx, general))
	require.False(t, f.registry.ValidateSession(ctx, exam))

	pointer, err := f.registry.ExamSessionID(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, pointer)

	events := f.events.all()
	require.Len(t, events, 2)
	require.Equal(t, event.KindRevoked, events[0].kind)
	require.Equal(t, general, events[0].session.ID)
	require.Equal(t, event.KindExamRevoked, events[1].kind)
	require.Equal(t, exam, events[1].session.ID)
	require.Equal(t, 7, events[1].session.UserID)

	// A second invalidation is reported and publishes nothing.
	require.ErrorIs(t, f.registry.InvalidateSession(ctx, exam), ErrSessionNotFound)
	require.Len(t, f.events.all(), 2)
}

func TestRefreshDoesNotResurrectInvalidatedSession(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	id, err := f.registry.CreateSession(ctx, 7, model.SessionContextExam, "laptop", "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, f.registry.InvalidateSession(ctx, id))

	_, err = f.registry.RefreshSession(ctx, id)
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.False(t, f.registry.ValidateSession(ctx, id))
}

func TestHeartbeatKeepsExamSessionAlive(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	id, err := f.registry.CreateSession(ctx, 7, model.SessionContextExam, "laptop", "10.0.0.1")
	require.NoError(t, err)

	for range 3 {
		f.clock.Advance(time.Hour + 59*time.Minute)
		refreshed, err := f.registry.RefreshSession(ctx, id)
		require.NoError(t, err)
		require.Equal(t, f.clock.Now(), refreshed.LastActive)
	}

	sess, err := f.registry.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, f.clock.Now(), sess.LastActive)

	pointer, err := f.registry.ExamSessionID(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, id, pointer)
}

func TestExamSessionExpiresAfterSilence(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	exam, err := f.registry.CreateSession(ctx, 7, model.SessionContextExam, "laptop", "10.0.0.1")
	require.NoError(t, err)
	general, err := f.registry.CreateSession(ctx, 7, model.SessionContextGeneral, "phone", "10.0.0.2")
	require.NoError(t, err)

	f.clock.Advance(2*time.Hour + time.Second)

	require.False(t, f.registry.ValidateSession(ctx, exam))
	require.True(t, f.registry.ValidateSession(ctx, general))
	require.Positive(t, f.store.Sweep(ctx))

	pointer, err := f.registry.ExamSessionID(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, pointer)

	live, err := f.registry.ListUserSessions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, general, live[0].ID)

	// Expiry is silent.
	require.Empty(t, f.events.all())
}

func TestGeneralSessionExpiresAfterADay(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	id, err := f.registry.CreateSession(ctx, 7, model.SessionContextGeneral, "phone", "10.0.0.2")
	require.NoError(t, err)

	f.clock.Advance(23 * time.Hour)
	require.True(t, f.registry.ValidateSession(ctx, id))
	f.clock.Advance(time.Hour)
	require.False(t, f.registry.ValidateSession(ctx, id))
}

func TestInvalidateAllUserSessions(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	for _, device := range []string{"laptop", "phone"} {
		_, err := f.registry.CreateSession(ctx, 7, model.SessionContextGeneral, device, "10.0.0.1")
		require.NoError(t, err)
	}
	_, err := f.registry.CreateSession(ctx, 7, model.SessionContextExam, "tablet", "10.0.0.3")
	require.NoError(t, err)
	other, err := f.registry.CreateSession(ctx, 8, model.SessionContextGeneral, "laptop", "10.0.0.4")
	require.NoError(t, err)

	revoked, err := f.registry.InvalidateAllUserSessions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 3, revoked)

	live, err := f.registry.ListUserSessions(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, live)

	pointer, err := f.registry.ExamSessionID(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, pointer)

	require.True(t, f.registry.ValidateSession(ctx, other))

	kinds := map[event.Kind]int{}
	for _, ev := range f.events.all() {
		require.Equal(t, 7, ev.session.UserID)
		kinds[ev.kind]++
	}
	require.Equal(t, map[event.Kind]int{event.KindRevoked: 2, event.KindExamRevoked: 1}, kinds)
}

func TestInvalidateAllUserSessionsWithNone(t *testing.T) {
	f := newRegistryFixture(t)

	revoked, err := f.registry.InvalidateAllUserSessions(context.Background(), 99)
	require.NoError(t, err)
	require.Zero(t, revoked)
	require.Empty(t, f.events.all())
}

func TestMarkProctorVerified(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	id, err := f.registry.CreateSession(ctx, 7, model.SessionContextExam, "laptop", "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, f.registry.MarkProctorVerified(ctx, id))

	sess, err := f.registry.GetSession(ctx, id)
	require.NoError(t, err)
	require.True(t, sess.ProctorVerified)
	require.Equal(t, model.SessionContextExam, sess.Context)

	require.ErrorIs(t, f.registry.MarkProctorVerified(ctx, "missing"), ErrSessionNotFound)
}

func TestProctorVerificationKeepsExamPointerAlive(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	first, err := f.registry.CreateSession(ctx, 7, model.SessionContextExam, "laptop", "10.0.0.1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.registry.MarkProctorVerified(ctx, first))

	// Past the original pointer deadline, within the re-written record's.
	f.clock.Advance(time.Hour + time.Second)
	require.True(t, f.registry.ValidateSession(ctx, first))
	pointer, err := f.registry.ExamSessionID(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, first, pointer)

	second, err := f.registry.CreateSession(ctx, 7, model.SessionContextExam, "tablet", "10.0.0.9")
	require.NoError(t, err)

	require.False(t, f.registry.ValidateSession(ctx, first))
	live, err := f.registry.ListUserSessions(ctx, 7)
	require.NoError(t, err)
	exams := 0
	for _, sess := range live {
		if sess.IsExam() {
			exams++
			require.Equal(t, second, sess.ID)
		}
	}
	require.Equal(t, 1, exams)

	events := f.events.all()
	require.Len(t, events, 1)
	require.Equal(t, event.KindExamRevoked, events[0].kind)
	require.Equal(t, first, events[0].session.ID)
	require.True(t, events[0].session.ProctorVerified)
}

func TestLocksAreReleased(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	id, err := f.registry.CreateSession(ctx, 7, model.SessionContextGeneral, "laptop", "10.0.0.1")
	require.NoError(t, err)
	_, err = f.registry.RefreshSession(ctx, id)
	require.NoError(t, err)
	_, err = f.registry.UpgradeToExamSession(ctx, id, "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, f.registry.InvalidateSession(ctx, id))

	require.Zero(t, f.registry.locks.size())
}
