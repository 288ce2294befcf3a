package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"turn-service/internal/model"
	"turn-service/pkg/config"
	"turn-service/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.InitDB(&config.DBConfig{
		Driver:   config.DriverSQLite,
		Path:     fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func seedCategory(t *testing.T, db *gorm.DB, orgID, categoryID string, minutes int) *model.Category {
	t.Helper()
	c := &model.Category{
		ID:               categoryID,
		OrganizationID:   orgID,
		Name:             categoryID,
		EstimatedMinutes: minutes,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

// fixedClock returns a clock that can be moved forward in tests.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(at time.Time) *fixedClock {
	return &fixedClock{now: at}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder collects delivered events
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func positions(tickets []model.Ticket) []int {
	out := make([]int, len(tickets))
	for i, t := range tickets {
		out[i] = t.Position
	}
	return out
}

func names(tickets []model.Ticket) []string {
	out := make([]string, len(tickets))
	for i, t := range tickets {
		out[i] = t.DisplayName
	}
	return out
}

func dense(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
