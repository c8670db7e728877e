package prospect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"prospect-portal/internal/guidance"
	"prospect-portal/internal/models"
	"prospect-portal/internal/pricing"
)

// Filter selects the dashboard bucket
type Filter string

const (
	FilterActive   Filter = "active"
	FilterArchived Filter = "archived"
	FilterAll      Filter = "all"
)

// ParseFilter defaults to the active bucket
func ParseFilter(raw string) Filter {
	switch Filter(strings.ToLower(raw)) {
	case FilterArchived:
		return FilterArchived
	case FilterAll:
		return FilterAll
	default:
		return FilterActive
	}
}

// Card is the list view of a prospect. The price delta is measured against
// the previous entry.
type Card struct {
	ID           string           `json:"id"`
	Nickname     string           `json:"nickname"`
	Location     string           `json:"location,omitempty"`
	Status       models.Status    `json:"status"`
	CurrentPrice *float64         `json:"current_price,omitempty"`
	PriceDelta   *float64         `json:"price_delta,omitempty"`
	PriceTrend   pricing.Trend    `json:"price_trend,omitempty"`
	Domains      []string         `json:"domains"`
	NextVisit    *time.Time       `json:"next_visit,omitempty"`
	LastVisit    *time.Time       `json:"last_visit,omitempty"`
	Guidance     *guidance.Result `json:"guidance,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Dashboard is the prospect list with bucket counts
type Dashboard struct {
	Filter        Filter `json:"filter"`
	ActiveCount   int    `json:"active_count"`
	ArchivedCount int    `json:"archived_count"`
	Cards         []Card `json:"cards"`
}

// NewCard summarizes p as of now
func NewCard(p models.Prospect, now time.Time) Card {
	c := Card{
		ID:        p.ID,
		Nickname:  p.Nickname,
		Location:  p.Location,
		Status:    p.Status,
		Domains:   []string{},
		Guidance:  guidance.Compute(p),
		UpdatedAt: p.UpdatedAt,
	}
	if current, ok := pricing.CurrentPrice(p.PriceHistory); ok {
		delta, _ := pricing.DeltaVsPrevious(p.PriceHistory)
		c.CurrentPrice = &current
		c.PriceDelta = &delta
		c.PriceTrend = pricing.TrendOf(delta)
	}
	seen := map[string]bool{}
	for _, l := range p.Links {
		if !seen[l.Domain] {
			seen[l.Domain] = true
			c.Domains = append(c.Domains, l.Domain)
		}
	}
	c.NextVisit = NextVisit(p.Visits, now)
	c.LastVisit = LastVisit(p.Visits, now)
	return c
}

// NextVisit is the soonest visit after now
func NextVisit(visits []models.Visit, now time.Time) *time.Time {
	var next *time.Time
	for i := range visits {
		d := visits[i].Date
		if d.After(now) && (next == nil || d.Before(*next)) {
			next = &d
		}
	}
	return next
}

// LastVisit is the most recent visit at or before now
func LastVisit(visits []models.Visit, now time.Time) *time.Time {
	var last *time.Time
	for i := range visits {
		d := visits[i].Date
		if !d.After(now) && (last == nil || d.After(*last)) {
			last = &d
		}
	}
	return last
}

// Dashboard lists prospects in the requested bucket. Archived covers
// Archived and Withdrawn.
func (s *Service) Dashboard(ctx context.Context, filter Filter) (*Dashboard, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	d := &Dashboard{Filter: filter, Cards: []Card{}}
	for _, p := range list {
		closed := p.IsClosed()
		if closed {
			d.ArchivedCount++
		} else {
			d.ActiveCount++
		}
		if filter == FilterAll || (filter == FilterArchived) == closed {
			d.Cards = append(d.Cards, NewCard(p, now))
		}
	}
	return d, nil
}

// CompareRow is one column of the side-by-side comparison
type CompareRow struct {
	ID           string                `json:"id"`
	Nickname     string                `json:"nickname"`
	Location     string                `json:"location,omitempty"`
	Status       models.Status         `json:"status"`
	CurrentPrice *float64              `json:"current_price,omitempty"`
	Details      models.PropertyDetail `json:"details"`
	Pros         []string              `json:"pros"`
	Cons         []string              `json:"cons"`
	VisitCount   int                   `json:"visit_count"`
	NextVisit    *time.Time            `json:"next_visit,omitempty"`
}

// Compare builds comparison rows for every prospect not Archived or
// Withdrawn
func (s *Service) Compare(ctx context.Context) ([]CompareRow, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rows := []CompareRow{}
	for _, p := range list {
		if p.IsClosed() {
			continue
		}
		row := CompareRow{
			ID:         p.ID,
			Nickname:   p.Nickname,
			Location:   p.Location,
			Status:     p.Status,
			Details:    p.Details,
			Pros:       traitTexts(p.Pros()),
			Cons:       traitTexts(p.Cons()),
			VisitCount: len(p.Visits),
			NextVisit:  NextVisit(p.Visits, now),
		}
		if current, ok := pricing.CurrentPrice(p.PriceHistory); ok {
			row.CurrentPrice = &current
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func traitTexts(traits []models.Trait) []string {
	out := make([]string, 0, len(traits))
	for _, t := range traits {
		out = append(out, t.Text)
	}
	return out
}

// Quick actions offered on dashboard cards
const (
	ActionShortlist = "shortlist"
	ActionArchive   = "archive"
	ActionRestore   = "restore"
)

var quickActionStatus = map[string]models.Status{
	ActionShortlist: models.StatusInteresting,
	ActionArchive:   models.StatusArchived,
	ActionRestore:   models.StatusUnderReview,
}

// QuickAction applies a one-click status change from the dashboard
func (s *Service) QuickAction(ctx context.Context, id, action string) (*models.Prospect, error) {
	status, ok := quickActionStatus[strings.ToLower(strings.TrimSpace(action))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	return s.SetStatus(ctx, id, status)
}
