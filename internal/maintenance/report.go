package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
	"turn-service/internal/model"
	"turn-service/internal/queue"
	"turn-service/pkg/logger"
	"turn-service/prometheus"

	"go.uber.org/zap"
)

// ProblemKind names one class of integrity violation
type ProblemKind string

const (
	ProblemOrphanOrganization ProblemKind = "orphan_organization"
	ProblemOrphanTicket       ProblemKind = "orphan_ticket"
	ProblemDuplicatePosition  ProblemKind = "duplicate_position"
)

// Problem describes the rows found for one kind of violation
type Problem struct {
	Kind    ProblemKind `json:"kind"`
	Count   int         `json:"count"`
	Details interface{} `json:"details"`
}

// IntegrityReport is the read-only result of IntegrityCheck
type IntegrityReport struct {
	OK       bool      `json:"ok"`
	Problems []Problem `json:"problems"`
}

// OrphanOrganization is an organization whose owner has no user row
type OrphanOrganization struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OwnerEmail string `json:"owner_email"`
}

// OrphanTicket is a ticket whose category no longer exists
type OrphanTicket struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	OrganizationID string `json:"organization_id"`
	CategoryID     string `json:"category_id"`
}

// DuplicatePosition is a position held by more than one waiting ticket
type DuplicatePosition struct {
	OrganizationID string `json:"organization_id"`
	CategoryID     string `json:"category_id"`
	Position       int    `json:"position"`
	Duplicates     int    `json:"duplicates"`
}

// IntegrityCheck looks for orphan organizations, orphan tickets and
// duplicate waiting positions. It never writes.
func (s *Service) IntegrityCheck(ctx context.Context) (*IntegrityReport, error) {
	defer prometheus.TrackDBOperation("integrity_check")(time.Now())
	db := s.db.WithContext(ctx)
	report := &IntegrityReport{OK: true, Problems: []Problem{}}

	var orgs []OrphanOrganization
	err := db.Table("organizations AS o").
		Select("o.id, o.name, o.owner_email").
		Joins("LEFT JOIN users u ON u.email = o.owner_email").
		Where("u.id IS NULL").
		Scan(&orgs).Error
	if err != nil {
		return nil, fmt.Errorf("check organizations: %w", err)
	}
	report.add(ProblemOrphanOrganization, len(orgs), orgs)

	var tickets []OrphanTicket
	err = db.Table("tickets AS t").
		Select("t.id, t.display_name, t.organization_id, t.category_id").
		Joins("LEFT JOIN categories c ON c.id = t.category_id AND c.organization_id = t.organization_id").
		Where("c.id IS NULL").
		Scan(&tickets).Error
	if err != nil {
		return nil, fmt.Errorf("check tickets: %w", err)
	}
	report.add(ProblemOrphanTicket, len(tickets), tickets)

	var dups []DuplicatePosition
	err = db.Model(&model.Ticket{}).
		Select("organization_id, category_id, position, COUNT(*) AS duplicates").
		Where("status = ?", model.StatusWaiting).
		Group("organization_id, category_id, position").
		Having("COUNT(*) > 1").
		Scan(&dups).Error
	if err != nil {
		return nil, fmt.Errorf("check positions: %w", err)
	}
	report.add(ProblemDuplicatePosition, len(dups), dups)

	log := logger.FromContext(ctx)
	if report.OK {
		log.Info("Integrity check passed")
	} else {
		log.Warn("Integrity check found problems", zap.Int("kinds", len(report.Problems)))
	}
	return report, nil
}

func (r *IntegrityReport) add(kind ProblemKind, count int, details interface{}) {
	if count == 0 {
		return
	}
	r.OK = false
	r.Problems = append(r.Problems, Problem{Kind: kind, Count: count, Details: details})
}

// OrganizationActivity is the organization with the most tickets today
type OrganizationActivity struct {
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	TicketsToday   int64  `json:"tickets_today"`
}

// Overview summarises the whole system
type Overview struct {
	Organizations  int64                 `json:"organizations"`
	Categories     int64                 `json:"categories"`
	WaitingTickets int64                 `json:"waiting_tickets"`
	ServedToday    int64                 `json:"served_today"`
	ServedLastWeek int64                 `json:"served_last_week"`
	MostActive     *OrganizationActivity `json:"most_active,omitempty"`
}

// Overview counts organizations, categories and tickets across all tenants.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	defer prometheus.TrackDBOperation("overview")(time.Now())
	db := s.db.WithContext(ctx)
	today := queue.StartOfDay(s.now(), s.location)
	weekAgo := today.AddDate(0, 0, -7)

	var ov Overview
	counts := []struct {
		dst   *int64
		model interface{}
		where string
		args  []interface{}
	}{
		{&ov.Organizations, &model.Organization{}, "", nil},
		{&ov.Categories, &model.Category{}, "", nil},
		{&ov.WaitingTickets, &model.Ticket{}, "status = ?", []interface{}{model.StatusWaiting}},
		{&ov.ServedToday, &model.Ticket{}, "status = ? AND called_at >= ?", []interface{}{model.StatusCalled, today}},
		{&ov.ServedLastWeek, &model.Ticket{}, "status = ? AND called_at >= ?", []interface{}{model.StatusCalled, weekAgo}},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, c.args...)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("overview: %w", err)
		}
	}

	var active OrganizationActivity
	res := db.Table("tickets AS t").
		Select("t.organization_id, COALESCE(o.name, '') AS name, COUNT(*) AS tickets_today").
		Joins("LEFT JOIN organizations o ON o.id = t.organization_id").
		Where("t.created_at >= ?", today).
		Group("t.organization_id, o.name").
		Order("tickets_today DESC").
		Limit(1).
		Scan(&active)
	if res.Error != nil {
		return nil, fmt.Errorf("overview: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		ov.MostActive = &active
	}
	return &ov, nil
}

// Backup is the JSON document written by Export
type Backup struct {
	Timestamp      time.Time              `json:"timestamp"`
	Organizations  []model.Organization   `json:"organizations"`
	Categories     []model.Category       `json:"categories"`
	Tickets        []model.Ticket         `json:"tickets"`
	CurrentServing []model.CurrentServing `json:"current_serving"`
}

// Export writes every table to w as one indented JSON document and
// returns what was written.
func (s *Service) Export(ctx context.Context, w io.Writer) (*Backup, error) {
	defer prometheus.TrackDBOperation("export")(time.Now())
	db := s.db.WithContext(ctx)

	backup := &Backup{
		Timestamp:      s.now(),
		Organizations:  []model.Organization{},
		Categories:     []model.Category{},
		Tickets:        []model.Ticket{},
		CurrentServing: []model.CurrentServing{},
	}
	if err := db.Order("id").Find(&backup.Organizations).Error; err != nil {
		return nil, fmt.Errorf("export organizations: %w", err)
	}
	if err := db.Order("organization_id, id").Find(&backup.Categories).Error; err != nil {
		return nil, fmt.Errorf("export categories: %w", err)
	}
	if err := db.Order("organization_id, category_id, sequence_number").Find(&backup.Tickets).Error; err != nil {
		return nil, fmt.Errorf("export tickets: %w", err)
	}
	if err := db.Order("id").Find(&backup.CurrentServing).Error; err != nil {
		return nil, fmt.Errorf("export current serving: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(backup); err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}

	logger.FromContext(ctx).Info("Backup exported",
		zap.Int("organizations", len(backup.Organizations)),
		zap.Int("categories", len(backup.Categories)),
		zap.Int("tickets", len(backup.Tickets)))
	return backup, nil
}
