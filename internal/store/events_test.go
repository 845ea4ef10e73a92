package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusevents/internal/domain"
)

var t0 = time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

func newSQLite(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := NewSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrations are idempotent")
	return db
}

func event(id string, approval domain.ApprovalState, state domain.State) domain.Event {
	return domain.Event{
		ID:            id,
		Title:         "Event " + id,
		ApprovalState: approval,
		State:         state,
		Windows:       domain.Windows{StartsAt: t0, EndsAt: t0.Add(time.Hour)},
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}
}

func TestEventRepositoryRoundTrip(t *testing.T) {
	repo := NewEventRepository(newSQLite(t))
	ctx := context.Background()

	_, err := repo.Get(ctx, "e1")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	evt := event("e1", domain.ApprovalApproved, domain.InitialState())
	evt.Shape.Agenda = []domain.AgendaSlot{{Name: "a", StartsAt: t0, EndsAt: t0.Add(time.Minute)}}
	evt.MarkFired(domain.TriggerRegistrationOpen, t0)
	require.NoError(t, repo.Save(ctx, &evt))

	evt.State = domain.State{Status: domain.StatusOngoing, SubStatus: domain.SubInProgress}
	require.NoError(t, repo.Save(ctx, &evt))

	got, err := repo.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, evt.State, got.State)
	assert.Equal(t, "Event e1", got.Title)
	assert.True(t, got.HasFired(domain.TriggerRegistrationOpen))
	assert.Len(t, got.Shape.Agenda, 1)
	assert.True(t, got.Windows.EndsAt.Equal(evt.Windows.EndsAt))

	require.NoError(t, repo.Delete(ctx, "e1"))
	assert.ErrorIs(t, repo.Delete(ctx, "e1"), domain.ErrEventNotFound)
	assert.Error(t, repo.Save(ctx, &domain.Event{}))
}

func TestListSchedulable(t *testing.T) {
	ctx := context.Background()
	sqlRepo := NewEventRepository(newSQLite(t))
	repos := map[string]domain.EventRepository{
		"sqlite": sqlRepo,
		"memory": NewMemoryEvents(),
	}
	seed := []domain.Event{
		event("a", domain.ApprovalApproved, domain.InitialState()),
		event("b", domain.ApprovalPending, domain.InitialState()),
		event("c", domain.ApprovalApproved, domain.State{Status: domain.StatusCancelled}),
		event("d", domain.ApprovalApproved, domain.State{Status: domain.StatusCompleted, SubStatus: domain.SubCertificateClosed}),
		event("e", domain.ApprovalApproved, domain.State{Status: domain.StatusCompleted, SubStatus: domain.SubCertificateOpen}),
		event("f", domain.ApprovalDeclined, domain.InitialState()),
	}
	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			for _, evt := range seed {
				require.NoError(t, repo.Save(ctx, &evt))
			}
			got, err := repo.ListSchedulable(ctx)
			require.NoError(t, err)
			var ids []string
			for _, evt := range got {
				ids = append(ids, evt.ID)
			}
			assert.Equal(t, []string{"a", "e"}, ids)
		})
	}
}

func TestSaveRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	repos := map[string]domain.EventRepository{
		"sqlite": NewEventRepository(newSQLite(t)),
		"memory": NewMemoryEvents(),
	}
	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			evt := event("e1", domain.ApprovalApproved, domain.InitialState())
			require.NoError(t, repo.Save(ctx, &evt))
			assert.Equal(t, int64(1), evt.Version)

			dup := event("e1", domain.ApprovalPending, domain.InitialState())
			assert.ErrorIs(t, repo.Save(ctx, &dup), domain.ErrConflict, "a second insert must not overwrite")

			tick, err := repo.Get(ctx, "e1")
			require.NoError(t, err)
			decline, err := repo.Get(ctx, "e1")
			require.NoError(t, err)

			decline.ApprovalState = domain.ApprovalDeclined
			require.NoError(t, repo.Save(ctx, &decline))

			tick.State = domain.State{Status: domain.StatusOngoing, SubStatus: domain.SubInProgress}
			assert.ErrorIs(t, repo.Save(ctx, &tick), domain.ErrConflict)
			assert.Equal(t, int64(1), tick.Version, "a rejected save leaves the version alone")

			got, err := repo.Get(ctx, "e1")
			require.NoError(t, err)
			assert.Equal(t, domain.ApprovalDeclined, got.ApprovalState)
			assert.Equal(t, domain.InitialState(), got.State)

			require.NoError(t, repo.Delete(ctx, "e1"))
			assert.ErrorIs(t, repo.Save(ctx, &got), domain.ErrEventNotFound, "a deleted event is not resurrected")
		})
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: Postgres}
	lite := &DB{Dialect: SQLite}
	q := "SELECT 1 WHERE a = $1 AND b = $2"
	assert.Equal(t, q, pg.Rebind(q))
	assert.Equal(t, "SELECT 1 WHERE a = ?1 AND b = ?2", lite.Rebind(q))
}

func TestTimeFormat(t *testing.T) {
	local := time.Date(2026, 10, 1, 10, 0, 0, 123, time.FixedZone("CEST", 2*3600))
	s := FormatTime(local)
	assert.Equal(t, "2026-10-01T08:00:00.000000123Z", s)
	back, err := ParseTime(s)
	require.NoError(t, err)
	assert.True(t, back.Equal(local))

	zero, err := ParseTime("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	assert.Error(t, err)
}
