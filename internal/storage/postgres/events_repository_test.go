package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/penmaen-hall/server/internal/domain/events"
	"github.com/stretchr/testify/require"
)

func tod(value string) *events.TimeOfDay {
	t, err := events.ParseTimeOfDay(value)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestEventRepositoryListOrdersByDate(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := NewEventRepository(pool)

	require.NoError(t, repo.Insert(ctx, events.Fields{Title: "Art Class", Date: events.MustParseDate("2026-06-01"), Type: "Class"}))
	require.NoError(t, repo.Insert(ctx, events.Fields{Title: "Quiz Night", Date: events.MustParseDate("2026-05-01")}))
	require.NoError(t, repo.Insert(ctx, events.Fields{Title: "Coffee Morning", Date: events.MustParseDate("2026-05-01"), StartTime: tod("10:00")}))
	require.NoError(t, repo.Insert(ctx, events.Fields{Title: "Yoga", Date: events.MustParseDate("2026-05-01"), StartTime: tod("09:00")}))

	items, err := repo.ListByDate(ctx)
	require.NoError(t, err)

	var titles []string
	for _, e := range items {
		titles = append(titles, e.Title)
		_, err := ulid.ParseStrict(e.ID)
		require.NoError(t, err, "ids are ULIDs")
		require.False(t, e.CreatedAt.IsZero())
	}
	require.Equal(t, []string{"Yoga", "Coffee Morning", "Quiz Night", "Art Class"}, titles)
}

func TestEventRepositoryListTiesByCreation(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := NewEventRepository(pool)

	require.NoError(t, repo.Insert(ctx, events.Fields{Title: "Second", Date: events.MustParseDate("2026-05-01")}))
	require.NoError(t, repo.Insert(ctx, events.Fields{Title: "First", Date: events.MustParseDate("2026-05-01")}))
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	setEventCreatedAt(t, pool, "First", base)
	setEventCreatedAt(t, pool, "Second", base.Add(time.Minute))

	items, err := repo.ListByDate(ctx)
	require.NoError(t, err)
	require.Equal(t, "First", items[0].Title)
	require.Equal(t, "Second", items[1].Title)
}

func TestEventRepositoryEmptyListIsNotNil(t *testing.T) {
	pool, _ := setupPostgres(t)
	items, err := NewEventRepository(pool).ListByDate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, items)
	require.Empty(t, items)
}

func TestEventRepositoryRoundTripsOptionalFields(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := NewEventRepository(pool)

	fields := events.Fields{
		Title:       "Harvest Supper",
		Description: "Bring a dish to share",
		Date:        events.MustParseDate("2026-09-20"),
		StartTime:   tod("18:30"),
		EndTime:     tod("21:45:30"),
		Location:    "Village Hall",
		Type:        "Fundraiser",
	}
	require.NoError(t, repo.Insert(ctx, fields))

	items, err := repo.ListByDate(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, fields, items[0].Fields())
}

func TestEventRepositoryUpdate(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := NewEventRepository(pool)

	require.NoError(t, repo.Insert(ctx, events.Fields{
		Title:     "Coffee Morning",
		Date:      events.MustParseDate("2026-05-01"),
		StartTime: tod("10:00"),
		EndTime:   tod("12:00"),
		Location:  "Village Hall",
	}))
	items, err := repo.ListByDate(ctx)
	require.NoError(t, err)
	id, createdAt := items[0].ID, items[0].CreatedAt

	title := "Coffee & Cake Morning"
	empty := ""
	newDate := events.MustParseDate("2026-05-08")
	require.NoError(t, repo.Update(ctx, id, events.Patch{
		Title:          &title,
		Date:           &newDate,
		ClearStartTime: true,
		Location:       &empty,
	}))

	items, err = repo.ListByDate(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	got := items[0]
	require.Equal(t, id, got.ID)
	require.Equal(t, title, got.Title)
	require.Equal(t, newDate, got.Date)
	require.Nil(t, got.StartTime)
	require.Equal(t, tod("12:00"), got.EndTime)
	require.Empty(t, got.Location)
	require.Equal(t, createdAt, got.CreatedAt)
}

func TestEventRepositoryMissingRows(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := NewEventRepository(pool)

	title := "Renamed"
	require.ErrorIs(t, repo.Update(ctx, "idX", events.Patch{Title: &title}), events.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, "idX"), events.ErrNotFound)
}

func TestEventRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := NewEventRepository(pool)

	require.NoError(t, repo.Insert(ctx, events.Fields{Title: "Film Night", Date: events.MustParseDate("2026-05-03")}))
	items, err := repo.ListByDate(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, items[0].ID))
	items, err = repo.ListByDate(ctx)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestEventRepositoryBehindSynchronizer(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := NewEventRepository(pool)

	syncer := events.NewSynchronizer(repo)
	defer syncer.Close()
	require.NoError(t, syncer.Create(ctx, events.Fields{Title: "Coffee Morning", Date: events.MustParseDate("2026-05-01")}))
	require.NoError(t, syncer.Create(ctx, events.Fields{Title: "Art Class", Date: events.MustParseDate("2026-04-01")}))

	fromStore, err := repo.ListByDate(ctx)
	require.NoError(t, err)
	require.Equal(t, fromStore, syncer.List().Events)
}
