package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_ListWaitingMissingCategory(t *testing.T) {
	db := newTestDB(t)
	waiting, err := NewQueryService(db).ListWaiting(context.Background(), org, "nope")
	require.NoError(t, err)
	assert.NotNil(t, waiting)
	assert.Empty(t, waiting)
}

func TestQuery_FindPosition(t *testing.T) {
	db := newTestDB(t)
	seedCategory(t, db, org, "general", 5)
	engine := NewEngine(db)
	queries := NewQueryService(db)
	ctx := context.Background()

	_, err := engine.Issue(ctx, org, "general", "Alice")
	require.NoError(t, err)
	bob, err := engine.Issue(ctx, org, "general", "Bob")
	require.NoError(t, err)

	for _, ident := range []string{bob.ID, "Bob", bob.ShortCode} {
		res, err := queries.FindPosition(ctx, org, "general", ident)
		require.NoError(t, err, ident)
		assert.Equal(t, 2, res.Position)
		assert.Equal(t, bob.ID, res.Ticket.ID)
	}

	_, err = queries.FindPosition(ctx, org, "general", "Nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	// called tickets are no longer in line
	_, err = engine.CallNext(ctx, org, "general")
	require.NoError(t, err)
	_, err = queries.FindPosition(ctx, org, "general", "Alice")
	assert.ErrorIs(t, err, ErrNotFound)

	res, err := queries.FindPosition(ctx, org, "general", "Bob")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Position)
}

func TestQuery_FindPositionPrefersHeadOnDuplicateNames(t *testing.T) {
	db := newTestDB(t)
	seedCategory(t, db, org, "general", 5)
	engine := NewEngine(db)
	ctx := context.Background()

	first, err := engine.Issue(ctx, org, "general", "Maria")
	require.NoError(t, err)
	_, err = engine.Issue(ctx, org, "general", "Maria")
	require.NoError(t, err)

	res, err := NewQueryService(db).FindPosition(ctx, org, "general", "Maria")
	require.NoError(t, err)
	assert.Equal(t, first.ID, res.Ticket.ID)
	assert.Equal(t, 1, res.Position)
}

func TestQuery_GlobalFind(t *testing.T) {
	db := newTestDB(t)
	seedCategory(t, db, org, "general", 5)
	seedCategory(t, db, "org-2", "cashier", 5)
	engine := NewEngine(db)
	queries := NewQueryService(db)
	ctx := context.Background()

	_, err := engine.Issue(ctx, "org-2", "cashier", "First")
	require.NoError(t, err)
	_, err = engine.Issue(ctx, "org-2", "cashier", "Second")
	require.NoError(t, err)
	target, err := engine.Issue(ctx, "org-2", "cashier", "Third")
	require.NoError(t, err)
	_, err = engine.Issue(ctx, org, "general", "Elsewhere")
	require.NoError(t, err)

	res, err := queries.GlobalFind(ctx, target.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "org-2", res.OrganizationID)
	assert.Equal(t, "cashier", res.CategoryID)
	assert.Equal(t, target.ID, res.Ticket.ID)
	assert.Nil(t, res.Current)

	waiting, err := queries.ListWaiting(ctx, "org-2", "cashier")
	require.NoError(t, err)
	for _, w := range waiting {
		if w.ID == target.ID {
			assert.Equal(t, w.Position, res.Position)
		}
	}

	called, err := engine.CallNext(ctx, "org-2", "cashier")
	require.NoError(t, err)

	res, err = queries.GlobalFind(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Position)
	require.NotNil(t, res.Current)
	assert.Equal(t, called.ID, res.Current.ID)

	_, err = queries.GlobalFind(ctx, "ZZZZZZ-not-a-code")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuery_Stats(t *testing.T) {
	db := newTestDB(t)
	seedCategory(t, db, org, "general", 7)

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newClock(start)
	engine := NewEngine(db, WithClock(clock.Now))
	queries := NewQueryService(db, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := engine.Issue(ctx, org, "general", "x")
		require.NoError(t, err)
	}
	_, err := engine.CallNext(ctx, org, "general")
	require.NoError(t, err)

	stats, err := queries.Stats(ctx, org, "general")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.WaitingCount)
	assert.Equal(t, int64(1), stats.ServedTodayCount)
	assert.Equal(t, int64(21), stats.ETAMinutes)

	waiting, err := queries.ListWaiting(ctx, org, "general")
	require.NoError(t, err)
	assert.Equal(t, int64(len(waiting)), stats.WaitingCount)

	// next day: yesterday's dispatch no longer counts
	clock.Advance(24 * time.Hour)
	_, err = engine.CallNext(ctx, org, "general")
	require.NoError(t, err)

	stats, err = queries.Stats(ctx, org, "general")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.WaitingCount)
	assert.Equal(t, int64(1), stats.ServedTodayCount)
	assert.Equal(t, int64(14), stats.ETAMinutes)
}

func TestQuery_StatsMissingCategory(t *testing.T) {
	db := newTestDB(t)
	stats, err := NewQueryService(db).Stats(context.Background(), org, "missing")
	require.NoError(t, err)
	assert.Equal(t, Stats{}, *stats)
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("BOT", -4*3600)
	// 02:00 UTC on the 11th is still the 10th in UTC-4
	at := time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC), StartOfDay(at, loc))
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), StartOfDay(at, time.UTC))
}
