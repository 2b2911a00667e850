package repository

import (
	"context"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RevocationRepository persists the session revocation audit trail.
type RevocationRepository struct {
	pool *pgxpool.Pool
}

// NewRevocationRepository creates a new RevocationRepository.
func NewRevocationRepository(pool *pgxpool.Pool) *RevocationRepository {
	return &RevocationRepository{pool: pool}
}

// InsertBatch bulk-loads rows with COPY. One bad row fails the whole batch.
func (r *RevocationRepository) InsertBatch(ctx context.Context, batch []model.SessionRevocation) error {
	rows := make([][]any, 0, len(batch))
	for _, rv := range batch {
		rows = append(rows, []any{
			rv.EventID, rv.Kind, rv.SessionID, rv.UserID, rv.DeviceID, string(rv.Context), rv.IPAddress, rv.RevokedAt,
		})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"session_revocations"},
		[]string{"event_id", "kind", "session_id", "user_id", "device_id", "context", "ip_address", "revoked_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single row. Replayed events are ignored.
func (r *RevocationRepository) Insert(ctx context.Context, rv model.SessionRevocation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_revocations
		   (event_id, kind, session_id, user_id, device_id, context, ip_address, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (event_id) DO NOTHING`,
		rv.EventID, rv.Kind, rv.SessionID, rv.UserID, rv.DeviceID, string(rv.Context), rv.IPAddress, rv.RevokedAt,
	)
	return err
}

// ListByUser returns the user's most recent revocations.
func (r *RevocationRepository) ListByUser(ctx context.Context, userID, limit int) ([]model.SessionRevocation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT event_id, kind, session_id, user_id, device_id, context, ip_address, revoked_at
		 FROM session_revocations
		 WHERE user_id = $1
		 ORDER BY revoked_at DESC
		 LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SessionRevocation
	for rows.Next() {
		var rv model.SessionRevocation
		if err := rows.Scan(&rv.EventID, &rv.Kind, &rv.SessionID, &rv.UserID, &rv.DeviceID, &rv.Context, &rv.IPAddress, &rv.RevokedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}
