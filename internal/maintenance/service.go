package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"
	"turn-service/internal/model"
	"turn-service/internal/queue"
	"turn-service/pkg/logger"
	"turn-service/prometheus"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SweepResult counts rows removed by a retention sweep
type SweepResult struct {
	TicketsDeleted   int64 `json:"tickets_deleted"`
	SnapshotsDeleted int64 `json:"snapshots_deleted"`
}

// RepairResult counts queues visited and queues whose positions changed
type RepairResult struct {
	QueuesScanned   int `json:"queues_scanned"`
	CategoriesFixed int `json:"categories_fixed"`
}

// Service runs retention, repair and reporting tasks outside the dispatch path.
type Service struct {
	db       *gorm.DB
	store    queue.Store
	now      func() time.Time
	location *time.Location
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the time zone that delimits "today"
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewService creates a maintenance service on db
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:       db,
		now:      func() time.Time { return time.Now().UTC() },
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep deletes called tickets not updated within retentionDays and
// current-serving snapshots older than the same horizon. Waiting tickets are
// never touched. Both deletions run independently; the counts of whatever
// succeeded are returned along with any errors.
func (s *Service) Sweep(ctx context.Context, retentionDays int) (SweepResult, error) {
	var result SweepResult
	if retentionDays < 0 {
		return result, fmt.Errorf("retention days must not be negative, got %d", retentionDays)
	}

	defer prometheus.TrackDBOperation("sweep")(time.Now())
	log := logger.FromContext(ctx)
	db := s.db.WithContext(ctx)
	horizon := s.now().AddDate(0, 0, -retentionDays)

	var errs error
	res := db.Where("status = ? AND updated_at < ?", model.StatusCalled, horizon).Delete(&model.Ticket{})
	if res.Error != nil {
		errs = multierr.Append(errs, fmt.Errorf("sweep tickets: %w", res.Error))
	} else {
		result.TicketsDeleted = res.RowsAffected
	}

	res = db.Where("created_at < ?", horizon).Delete(&model.CurrentServing{})
	if res.Error != nil {
		errs = multierr.Append(errs, fmt.Errorf("sweep snapshots: %w", res.Error))
	} else {
		result.SnapshotsDeleted = res.RowsAffected
	}

	prometheus.RecordMaintenanceRows("sweep_tickets", result.TicketsDeleted)
	prometheus.RecordMaintenanceRows("sweep_snapshots", result.SnapshotsDeleted)

	fields := []zap.Field{
		zap.Int("retention_days", retentionDays),
		zap.Time("horizon", horizon),
		zap.Int64("tickets_deleted", result.TicketsDeleted),
		zap.Int64("snapshots_deleted", result.SnapshotsDeleted),
	}
	if errs != nil {
		log.Error("Sweep finished with errors", append(fields, zap.Error(errs))...)
	} else {
		log.Info("Sweep finished", fields...)
	}
	return result, errs
}

type queueKey struct {
	OrganizationID string
	CategoryID     string
}

// Repair rewrites the waiting positions of every queue as 1..N ordered by
// creation time, sequence number breaking ties. Each queue is repaired in
// its own transaction under the category lock, so it cannot interleave with
// a dispatch on the same queue.
func (s *Service) Repair(ctx context.Context) (RepairResult, error) {
	var result RepairResult
	defer prometheus.TrackDBOperation("repair")(time.Now())
	log := logger.FromContext(ctx)
	db := s.db.WithContext(ctx)

	var keys []queueKey
	err := db.Model(&model.Ticket{}).
		Distinct("organization_id", "category_id").
		Where("status = ?", model.StatusWaiting).
		Scan(&keys).Error
	if err != nil {
		return result, fmt.Errorf("list queues: %w", err)
	}

	var errs error
	for _, key := range keys {
		changed, err := s.repairQueue(db, key)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("repair %s/%s: %w", key.OrganizationID, key.CategoryID, err))
			continue
		}
		result.QueuesScanned++
		if changed > 0 {
			result.CategoriesFixed++
			prometheus.RecordMaintenanceRows("repair_positions", int64(changed))
			log.Warn("Repaired queue positions",
				zap.String("organization_id", key.OrganizationID),
				zap.String("category_id", key.CategoryID),
				zap.Int("tickets_moved", changed))
		}
	}

	log.Info("Repair finished",
		zap.Int("queues_scanned", result.QueuesScanned),
		zap.Int("categories_fixed", result.CategoriesFixed))
	return result, errs
}

func (s *Service) repairQueue(db *gorm.DB, key queueKey) (int, error) {
	changed := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		// orphaned tickets have no category row to lock; repair them anyway
		if _, err := s.store.LockCategory(tx, key.OrganizationID, key.CategoryID); err != nil && !errors.Is(err, queue.ErrNotFound) {
			return err
		}

		var tickets []model.Ticket
		err := tx.Where("organization_id = ? AND category_id = ? AND status = ?",
			key.OrganizationID, key.CategoryID, model.StatusWaiting).
			Order("created_at ASC, sequence_number ASC").
			Find(&tickets).Error
		if err != nil {
			return err
		}

		for i, t := range tickets {
			want := i + 1
			if t.Position == want {
				continue
			}
			err := tx.Model(&model.Ticket{}).Where("id = ?", t.ID).UpdateColumn("position", want).Error
			if err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}
