// Package event carries session lifecycle events from the registry to any
// interested subscriber without coupling the two.
package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind names a lifecycle event.
type Kind string

const (
	// KindRevoked fires when a GENERAL session is invalidated.
	KindRevoked Kind = "revoked"
	// KindExamRevoked fires when an EXAM session is invalidated.
	KindExamRevoked Kind = "exam_revoked"
)

// Event carries the full record of the session that was just removed.
type Event struct {
	ID      string        `json:"id"`
	Kind    Kind          `json:"kind"`
	Session model.Session `json:"session"`
	At      time.Time     `json:"at"`
}

// Handler reacts to an event. Returned errors are logged, never propagated
// to the publisher.
type Handler func(ctx context.Context, ev Event) error

// Publisher is the side of the bus the session registry depends on.
type Publisher interface {
	Publish(ctx context.Context, kind Kind, session model.Session)
}

type subscriber struct {
	name    string
	handler Handler
}

// Bus is an in-process publish/subscribe channel. Every handler runs on its
// own goroutine, so a slow or failing subscriber never blocks Publish.
type Bus struct {
	mu   sync.RWMutex
	subs []subscriber
	wg   sync.WaitGroup
	log  zerolog.Logger
}

// NewBus creates an empty Bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log: log.With().Str("component", "event_bus").Logger(),
	}
}

var _ Publisher = (*Bus)(nil)

// Subscribe registers handler under name (used in logs).
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscriber{name: name, handler: handler})
}

// Publish delivers an event to every subscriber asynchronously and returns
// immediately. Handlers receive a context detached from the caller's
// cancellation since the triggering request may already be finished.
func (b *Bus) Publish(ctx context.Context, kind Kind, session model.Session) {
	ev := Event{
		ID:      uuid.New().String(),
		Kind:    kind,
		Session: session,
		At:      time.Now(),
	}

	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	hctx := context.WithoutCancel(ctx)
	for _, sub := range subs {
		b.wg.Add(1)
		go b.deliver(hctx, sub, ev)
	}
}

// Wait blocks until every in-flight delivery has returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}

func (b *Bus) deliver(ctx context.Context, sub subscriber, ev Event) {
	defer b.wg.Done()

	evLog := b.log.With().
		Str("subscriber", sub.name).
		Str("event_id", ev.ID).
		Str("kind", string(ev.Kind)).
		Str("session_id", ev.Session.ID).
		Int("user_id", ev.Session.UserID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			evLog.Error().Str("panic", fmt.Sprint(r)).Msg("Event handler panicked")
		}
	}()

	if err := sub.handler(ctx, ev); err != nil {
		evLog.Error().Err(err).Msg("Event handler failed")
		return
	}
	evLog.Debug().Msg("Event delivered")
}
