package maintenance

import (
	"context"
	"fmt"
	"sort"
	"time"
	"turn-service/internal/model"
	"turn-service/internal/queue"
	"turn-service/prometheus"

	"gorm.io/gorm"
)

// OrganizationReport is one row of the per-organization activity report
type OrganizationReport struct {
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	OwnerEmail     string `json:"owner_email"`
	Categories     int64  `json:"categories"`
	ActiveTickets  int64  `json:"active_tickets"`
	CalledToday    int64  `json:"called_today"`
	CalledLastWeek int64  `json:"called_last_week"`
}

// DayCount is the ticket tally of one calendar day
type DayCount struct {
	Date      string `json:"date"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Pending   int64  `json:"pending"`
}

type orgCount struct {
	OrganizationID string
	N              int64
}

// Activity reports every organization with its category count, waiting
// tickets and tickets called today and over the last seven days. Busiest
// organizations come first.
func (s *Service) Activity(ctx context.Context) ([]OrganizationReport, error) {
	defer prometheus.TrackDBOperation("activity")(time.Now())
	db := s.db.WithContext(ctx)
	today := queue.StartOfDay(s.now(), s.location)
	weekAgo := today.AddDate(0, 0, -7)

	var orgs []model.Organization
	if err := db.Order("id").Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("activity: %w", err)
	}

	categories, err := countByOrg(db.Model(&model.Category{}))
	if err != nil {
		return nil, fmt.Errorf("activity: %w", err)
	}
	active, err := countByOrg(db.Model(&model.Ticket{}).Where("status = ?", model.StatusWaiting))
	if err != nil {
		return nil, fmt.Errorf("activity: %w", err)
	}
	calledToday, err := countByOrg(db.Model(&model.Ticket{}).
		Where("status = ? AND called_at >= ?", model.StatusCalled, today))
	if err != nil {
		return nil, fmt.Errorf("activity: %w", err)
	}
	calledWeek, err := countByOrg(db.Model(&model.Ticket{}).
		Where("status = ? AND called_at >= ?", model.StatusCalled, weekAgo))
	if err != nil {
		return nil, fmt.Errorf("activity: %w", err)
	}

	reports := make([]OrganizationReport, 0, len(orgs))
	for _, o := range orgs {
		reports = append(reports, OrganizationReport{
			OrganizationID: o.ID,
			Name:           o.Name,
			OwnerEmail:     o.OwnerEmail,
			Categories:     categories[o.ID],
			ActiveTickets:  active[o.ID],
			CalledToday:    calledToday[o.ID],
			CalledLastWeek: calledWeek[o.ID],
		})
	}
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		if a.CalledToday != b.CalledToday {
			return a.CalledToday > b.CalledToday
		}
		return a.CalledLastWeek > b.CalledLastWeek
	})
	return reports, nil
}

// countByOrg counts the rows of q per organization_id
func countByOrg(q *gorm.DB) (map[string]int64, error) {
	var rows []orgCount
	err := q.Select("organization_id, COUNT(*) AS n").
		Group("organization_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.OrganizationID] = r.N
	}
	return counts, nil
}

// TicketsByDay tallies the organization's tickets per creation day over
// the last days days, today included, newest day first. Days without
// tickets are left out.
func (s *Service) TicketsByDay(ctx context.Context, orgID string, days int) ([]DayCount, error) {
	if days < 1 {
		return nil, fmt.Errorf("tickets by day: days must be at least 1, got %d", days)
	}
	defer prometheus.TrackDBOperation("tickets_by_day")(time.Now())
	start := queue.StartOfDay(s.now(), s.location).AddDate(0, 0, -(days - 1))

	var tickets []model.Ticket
	err := s.db.WithContext(ctx).
		Select("status", "created_at").
		Where("organization_id = ? AND created_at >= ?", orgID, start).
		Find(&tickets).Error
	if err != nil {
		return nil, fmt.Errorf("tickets by day: %w", err)
	}

	byDate := make(map[string]*DayCount)
	for _, t := range tickets {
		date := t.CreatedAt.In(s.location).Format(time.DateOnly)
		dc, ok := byDate[date]
		if !ok {
			dc = &DayCount{Date: date}
			byDate[date] = dc
		}
		dc.Total++
		switch t.Status {
		case model.StatusCalled:
			dc.Completed++
		case model.StatusWaiting:
			dc.Pending++
		}
	}

	out := make([]DayCount, 0, len(byDate))
	for _, dc := range byDate {
		out = append(out, *dc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}
