package worker

import (
	"context"
	"time"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/event"
	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/rs/zerolog"
)

const (
	AuditBatchSize    = 50
	AuditBatchTimeout = 2 * time.Second
	auditQueueSize    = 1024
)

// RevocationSink stores audit rows.
type RevocationSink interface {
	InsertBatch(ctx context.Context, batch []model.SessionRevocation) error
	Insert(ctx context.Context, rv model.SessionRevocation) error
}

// AuditWorker records every revocation published on the bus. Events are
// queued by Handle and written in batches by Start.
type AuditWorker struct {
	sink  RevocationSink
	queue chan model.SessionRevocation
	log   zerolog.Logger
}

func NewAuditWorker(sink RevocationSink, log zerolog.Logger) *AuditWorker {
	return &AuditWorker{
		sink:  sink,
		queue: make(chan model.SessionRevocation, auditQueueSize),
		log:   log.With().Str("component", "audit_worker").Logger(),
	}
}

// Register subscribes the worker to the bus.
func (w *AuditWorker) Register(bus *event.Bus) {
	bus.Subscribe("revocation_audit", w.Handle)
}

// Handle queues ev without blocking. A full queue drops the row.
func (w *AuditWorker) Handle(_ context.Context, ev event.Event) error {
	rv := model.SessionRevocation{
		EventID:   ev.ID,
		Kind:      string(ev.Kind),
		SessionID: ev.Session.ID,
		UserID:    ev.Session.UserID,
		DeviceID:  ev.Session.DeviceID,
		Context:   ev.Session.Context,
		IPAddress: ev.Session.IPAddress,
		RevokedAt: ev.At,
	}
	select {
	case w.queue <- rv:
	default:
		w.log.Warn().Str("session_id", rv.SessionID).Msg("Audit queue full, dropping revocation")
	}
	return nil
}

// Start drains the queue until ctx is cancelled, then flushes what is left.
func (w *AuditWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AuditWorker started")

	ticker := time.NewTicker(AuditBatchTimeout)
	defer ticker.Stop()

	buffer := make([]model.SessionRevocation, 0, AuditBatchSize)
	for {
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return

		case rv := <-w.queue:
			buffer = append(buffer, rv)
			if len(buffer) >= AuditBatchSize {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
			}

		case <-ticker.C:
			if len(buffer) > 0 {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
			}
		}
	}
}

// flushSafe tries a bulk insert first, then row by row.
func (w *AuditWorker) flushSafe(ctx context.Context, batch []model.SessionRevocation) {
	err := w.sink.InsertBatch(ctx, batch)
	if err == nil {
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	for _, rv := range batch {
		if err := w.sink.Insert(ctx, rv); err != nil {
			w.log.Error().Err(err).
				Str("session_id", rv.SessionID).
				Int("user_id", rv.UserID).
				Msg("Dropping revocation audit row")
		}
	}
}

func (w *AuditWorker) shutdown(buffer []model.SessionRevocation) {
	w.log.Info().Msg("AuditWorker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

drain:
	for {
		select {
		case rv := <-w.queue:
			buffer = append(buffer, rv)
		default:
			break drain
		}
	}
	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
