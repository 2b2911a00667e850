//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/model"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/test?sslmode=disable", host, port.Port())

	m, err := migrate.New("file://../../migrations", dsn)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	_, _ = m.Close()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestRepositories(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	users := NewUserRepository(pool)
	attempts := NewExamAttemptRepository(pool)

	u := &model.User{Email: "Ana@Example.com", Name: "Ana", PasswordHash: "hash", Role: model.RoleStudent}
	require.NoError(t, users.Create(ctx, u))
	require.NotZero(t, u.ID)

	t.Run("UserLookup", func(t *testing.T) {
		got, err := users.GetByEmail(ctx, "ana@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
		require.Equal(t, model.RoleStudent, got.Role)

		_, err = users.GetByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, ErrUserNotFound)

		byID, err := users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "Ana", byID.Name)
	})

	t.Run("AttemptLifecycle", func(t *testing.T) {
		_, err := attempts.LatestStarted(ctx, u.ID, "s1")
		require.ErrorIs(t, err, ErrAttemptNotFound)

		a := &model.ExamAttempt{UserID: u.ID, LessonID: 1, SessionID: "s1"}
		require.NoError(t, attempts.Create(ctx, a))
		require.Equal(t, model.AttemptStatusStarted, a.Status)

		dup := &model.ExamAttempt{UserID: u.ID, LessonID: 1, SessionID: "s1"}
		require.ErrorIs(t, attempts.Create(ctx, dup), ErrAttemptInProgress)

		latest, err := attempts.LatestStarted(ctx, u.ID, "s1")
		require.NoError(t, err)
		require.Equal(t, a.ID, latest.ID)

		end := time.Now().UTC().Truncate(time.Microsecond)
		changed, err := attempts.AutoSubmit(ctx, a.ID, end, 0)
		require.NoError(t, err)
		require.True(t, changed)

		changed, err = attempts.AutoSubmit(ctx, a.ID, end.Add(time.Minute), 50)
		require.NoError(t, err)
		require.False(t, changed)

		list, err := attempts.ListByUser(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, model.AttemptStatusAutoSubmitted, list[0].Status)
		require.NotNil(t, list[0].EndTime)
		require.True(t, end.Equal(*list[0].EndTime))
		require.Zero(t, list[0].Score)

		// The lesson can be attempted again once the previous try is closed.
		again := &model.ExamAttempt{UserID: u.ID, LessonID: 1, SessionID: "s2"}
		require.NoError(t, attempts.Create(ctx, again))

		newer := &model.ExamAttempt{UserID: u.ID, LessonID: 2, SessionID: "s3"}
		require.NoError(t, attempts.Create(ctx, newer))

		bySession, err := attempts.LatestStarted(ctx, u.ID, "s2")
		require.NoError(t, err)
		require.Equal(t, again.ID, bySession.ID)

		fallback, err := attempts.LatestStarted(ctx, u.ID, "gone")
		require.NoError(t, err)
		require.Equal(t, newer.ID, fallback.ID)
	})

	t.Run("RevocationAudit", func(t *testing.T) {
		revocations := NewRevocationRepository(pool)
		at := time.Now().UTC().Truncate(time.Microsecond)

		batch := []model.SessionRevocation{
			{EventID: "e1", Kind: "revoked", SessionID: "s1", UserID: u.ID, Context: model.SessionContextGeneral, RevokedAt: at},
			{EventID: "e2", Kind: "exam_revoked", SessionID: "s2", UserID: u.ID, Context: model.SessionContextExam, IPAddress: "10.0.0.1", RevokedAt: at.Add(time.Second)},
		}
		require.NoError(t, revocations.InsertBatch(ctx, batch))

		// Replays through the single-row path are ignored.
		require.NoError(t, revocations.Insert(ctx, batch[0]))
		require.Error(t, revocations.InsertBatch(ctx, batch[:1]))

		got, err := revocations.ListByUser(ctx, u.ID, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "e2", got[0].EventID)
		require.Equal(t, model.SessionContextExam, got[0].Context)
	})
}
