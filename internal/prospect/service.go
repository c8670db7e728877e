// Package prospect implements every prospect mutation as read aggregate,
// change a copy, save the whole aggregate.
package prospect

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"prospect-portal/internal/guidance"
	"prospect-portal/internal/listing"
	"prospect-portal/internal/models"
	"prospect-portal/internal/pricing"
	"prospect-portal/internal/visit"
)

// Service is the application layer over a Repository. Concurrent mutations
// of the same prospect are not coordinated: the later Save wins.
type Service struct {
	repo    Repository
	clock   Clock
	ids     IDGenerator
	loc     *time.Location
	index   Indexer
	changes ChangeRecorder
	logger  *zap.Logger
}

// Option configures a Service
type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

func WithIDGenerator(g IDGenerator) Option { return func(s *Service) { s.ids = g } }

// WithIndexer keeps a search index updated after every save
func WithIndexer(i Indexer) Option { return func(s *Service) { s.index = i } }

// WithChangeRecorder logs every price history change
func WithChangeRecorder(r ChangeRecorder) Option { return func(s *Service) { s.changes = r } }

// WithLocation sets the time zone that decides what "today" is
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService creates a service with the system clock and UUIDs unless
// overridden
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:   repo,
		clock:  SystemClock{},
		ids:    UUIDGenerator{},
		loc:    time.UTC,
		logger: logger.With(zap.String("component", "prospect")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the service clock
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Today is the current calendar date in the service time zone, as midnight UTC
func (s *Service) Today() time.Time {
	y, m, d := s.clock.Now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Create adds a prospect in Under Review with an optional first link and
// first price effective today
func (s *Service) Create(ctx context.Context, in models.CreateProspect) (*models.Prospect, error) {
	nickname := strings.TrimSpace(in.Nickname)
	if nickname == "" {
		return nil, ErrInvalidNickname
	}

	now := s.clock.Now()
	p := models.Prospect{
		ID:        s.ids.NewID(),
		Nickname:  nickname,
		Location:  strings.TrimSpace(in.Location),
		Note:      in.InitialNote,
		Status:    models.StatusUnderReview,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.Normalize()

	if link := listing.NormalizeURL(in.InitialLink); link != "" {
		p.Links = append(p.Links, s.newLink(link, now))
	}
	if in.InitialPrice != nil && *in.InitialPrice != 0 {
		if err := pricing.Validate(*in.InitialPrice, s.Today()); err != nil {
			return nil, err
		}
		p.PriceHistory = pricing.Reconcile(p.PriceHistory, *in.InitialPrice, s.Today(), now, s.ids.NewID)
	}

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save prospect: %w", err)
	}
	s.logger.Info("prospect created", zap.String("id", p.ID), zap.String("nickname", p.Nickname))
	s.reindex(ctx, p)
	if len(p.PriceHistory) > 0 {
		s.recordChange(ctx, p.ID, models.PriceSourceManual, nil, p.PriceHistory)
	}
	return &p, nil
}

// Get loads one prospect
func (s *Service) Get(ctx context.Context, id string) (*models.Prospect, error) {
	p, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

// List returns every prospect, newest first
func (s *Service) List(ctx context.Context) ([]models.Prospect, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Normalize()
	}
	return list, nil
}

// Delete removes a prospect and everything it owns
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("prospect deleted", zap.String("id", id))
	if s.index != nil {
		if err := s.index.RemoveProspect(ctx, id); err != nil {
			s.logger.Warn("failed to remove prospect from index", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// Update replaces the stored aggregate with p. The identity and creation
// time of the stored prospect are kept; the price history is re-sorted.
func (s *Service) Update(ctx context.Context, p models.Prospect) (*models.Prospect, error) {
	if strings.TrimSpace(p.Nickname) == "" {
		return nil, ErrInvalidNickname
	}
	if !p.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, p.Status)
	}
	if err := validateHistory(p.PriceHistory); err != nil {
		return nil, err
	}
	return s.mutate(ctx, p.ID, func(current *models.Prospect) error {
		next := p.Clone()
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		pricing.SortHistory(next.PriceHistory)
		sortVisits(next.Visits)
		*current = next
		return nil
	})
}

// validateHistory rejects a replacement history the reconciler could not
// have produced: a bad amount or date, or two entries on one calendar day
func validateHistory(history []models.PriceEntry) error {
	seen := make(map[string]struct{}, len(history))
	for _, e := range history {
		if err := pricing.Validate(e.Value, e.EffectiveAt); err != nil {
			return err
		}
		day := pricing.DayKey(e.EffectiveAt)
		if _, ok := seen[day]; ok {
			return fmt.Errorf("%w: two entries on %s", pricing.ErrInvalidPriceEntry, day)
		}
		seen[day] = struct{}{}
	}
	return nil
}

// UpdateHeader edits nickname and location
func (s *Service) UpdateHeader(ctx context.Context, id, nickname, location string) (*models.Prospect, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, ErrInvalidNickname
	}
	return s.mutate(ctx, id, func(p *models.Prospect) error {
		p.Nickname = nickname
		p.Location = strings.TrimSpace(location)
		return nil
	})
}

// UpdateNote replaces the free-text note
func (s *Service) UpdateNote(ctx context.Context, id, note string) (*models.Prospect, error) {
	return s.mutate(ctx, id, func(p *models.Prospect) error {
		p.Note = note
		return nil
	})
}

// SetStatus assigns any known status
func (s *Service) SetStatus(ctx context.Context, id string, status models.Status) (*models.Prospect, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.mutate(ctx, id, func(p *models.Prospect) error {
		p.Status = status
		return nil
	})
}

// AddPrice records a price from the price form. Both the amount and the
// YYYY-MM-DD date are required; a price on an existing date corrects it.
func (s *Service) AddPrice(ctx context.Context, id string, amount *float64, date string) (*models.Prospect, error) {
	if amount == nil {
		return nil, fmt.Errorf("%w: amount is required", pricing.ErrInvalidPriceEntry)
	}
	day, err := pricing.ParseDate(date)
	if err != nil {
		return nil, err
	}
	p, _, err := s.RecordPrice(ctx, id, *amount, day, models.PriceSourceManual)
	return p, err
}

// HasPriceOn reports whether a price submitted for the YYYY-MM-DD date
// would correct an existing entry rather than add one
func (s *Service) HasPriceOn(ctx context.Context, id, date string) (bool, error) {
	day, err := pricing.ParseDate(date)
	if err != nil {
		return false, err
	}
	p, err := s.repo.Load(ctx, id)
	if err != nil {
		return false, err
	}
	return pricing.HasEntryOn(p.PriceHistory, day), nil
}

// RecordPrice reconciles a price into the history. The boolean reports
// whether the history changed at all.
func (s *Service) RecordPrice(ctx context.Context, id string, amount float64, date time.Time, source string) (*models.Prospect, bool, error) {
	if err := pricing.Validate(amount, date); err != nil {
		return nil, false, err
	}

	var before []models.PriceEntry
	changed := false
	p, err := s.mutate(ctx, id, func(p *models.Prospect) error {
		before = slices.Clone(p.PriceHistory)
		p.PriceHistory = pricing.Reconcile(p.PriceHistory, amount, date, s.clock.Now(), s.ids.NewID)
		changed = !slices.Equal(before, p.PriceHistory)
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		s.logger.Info("price recorded",
			zap.String("id", id),
			zap.Float64("amount", amount),
			zap.String("date", pricing.DayKey(date)),
			zap.String("source", source))
		s.recordChange(ctx, id, source, before, p.PriceHistory)
	}
	return p, changed, nil
}

// AddLink stores a normalized listing URL with its domain
func (s *Service) AddLink(ctx context.Context, id, rawURL string) (*models.Prospect, error) {
	link := listing.NormalizeURL(rawURL)
	if link == "" {
		return nil, ErrInvalidLink
	}
	return s.mutate(ctx, id, func(p *models.Prospect) error {
		p.Links = append(p.Links, s.newLink(link, s.clock.Now()))
		return nil
	})
}

// DeleteLink removes a link; unknown link IDs are ignored
func (s *Service) DeleteLink(ctx context.Context, id, linkID string) (*models.Prospect, error) {
	return s.mutate(ctx, id, func(p *models.Prospect) error {
		p.Links = slices.DeleteFunc(p.Links, func(l models.ListingLink) bool { return l.ID == linkID })
		return nil
	})
}

// AddTrait records a pro or con
func (s *Service) AddTrait(ctx context.Context, id, text string, sentiment models.Sentiment) (*models.Prospect, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidTrait
	}
	if !sentiment.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSentiment, sentiment)
	}
	return s.mutate(ctx, id, func(p *models.Prospect) error {
		p.Traits = append(p.Traits, models.Trait{
			ID:        s.ids.NewID(),
			Label:     text,
			Text:      text,
			Sentiment: sentiment,
			CreatedAt: s.clock.Now(),
		})
		return nil
	})
}

// DeleteTrait removes a trait; unknown trait IDs are ignored
func (s *Service) DeleteTrait(ctx context.Context, id, traitID string) (*models.Prospect, error) {
	return s.mutate(ctx, id, func(p *models.Prospect) error {
		p.Traits = slices.DeleteFunc(p.Traits, func(t models.Trait) bool { return t.ID == traitID })
		return nil
	})
}

// UpdateDetails replaces the property details
func (s *Service) UpdateDetails(ctx context.Context, id string, details models.PropertyDetail) (*models.Prospect, error) {
	return s.mutate(ctx, id, func(p *models.Prospect) error {
		now := s.clock.Now()
		next := details.Clone()
		next.CreatedAt = p.Details.CreatedAt
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
		next.UpdatedAt = now
		p.Details = next
		return nil
	})
}

// SaveVisit inserts or replaces a visit by ID. Visits stay sorted newest
// first.
func (s *Service) SaveVisit(ctx context.Context, id string, v models.Visit) (*models.Prospect, error) {
	if v.Date.IsZero() {
		return nil, fmt.Errorf("%w: visit date is required", visit.ErrInvalidVisitTime)
	}
	return s.mutate(ctx, id, func(p *models.Prospect) error {
		if v.ID == "" {
			v.ID = s.ids.NewID()
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = s.clock.Now()
		}
		if v.Observations == nil {
			v.Observations = []models.Observation{}
		}
		idx := slices.IndexFunc(p.Visits, func(existing models.Visit) bool { return existing.ID == v.ID })
		if idx >= 0 {
			v.CreatedAt = p.Visits[idx].CreatedAt
			p.Visits[idx] = v
		} else {
			p.Visits = append(p.Visits, v)
		}
		sortVisits(p.Visits)
		return nil
	})
}

// RecordWizardVisit builds a visit from wizard answers (or a bare schedule)
// and saves it
func (s *Service) RecordWizardVisit(ctx context.Context, id string, in visit.Input) (*models.Prospect, error) {
	v, err := visit.Build(s.ids.NewID(), in, s.clock.Now(), s.loc)
	if err != nil {
		return nil, err
	}
	return s.SaveVisit(ctx, id, v)
}

// DeleteVisit removes a visit; unknown visit IDs are ignored
func (s *Service) DeleteVisit(ctx context.Context, id, visitID string) (*models.Prospect, error) {
	return s.mutate(ctx, id, func(p *models.Prospect) error {
		p.Visits = slices.DeleteFunc(p.Visits, func(v models.Visit) bool { return v.ID == visitID })
		return nil
	})
}

// Guidance computes the next suggested action for a prospect
func (s *Service) Guidance(ctx context.Context, id string) (*guidance.Result, error) {
	p, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Normalize()
	return guidance.Compute(p), nil
}

// ApplyGuidance recomputes the suggestion and, when it is a mutation,
// applies and saves it. Navigation and modal suggestions are returned
// unapplied for the caller to follow.
func (s *Service) ApplyGuidance(ctx context.Context, id string) (*models.Prospect, *guidance.Result, bool, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, false, err
	}
	res := guidance.Compute(*current)
	if _, ok := guidance.Apply(*current, res); !ok {
		return current, res, false, nil
	}

	p, err := s.mutate(ctx, id, func(p *models.Prospect) error {
		if next, ok := guidance.Apply(*p, res); ok {
			*p = next
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	s.logger.Info("guidance applied", zap.String("id", id), zap.String("rule", res.RuleID))
	return p, res, true, nil
}

// CheckDuplicateLink returns the first prospect holding link, or nil. Stored
// links match verbatim or after both sides are normalized.
func (s *Service) CheckDuplicateLink(ctx context.Context, link string) (*models.Prospect, error) {
	raw := strings.TrimSpace(link)
	if raw == "" {
		return nil, nil
	}
	normalized := listing.NormalizeURL(raw)
	return s.findFirst(ctx, func(p *models.Prospect) bool {
		return slices.ContainsFunc(p.Links, func(l models.ListingLink) bool {
			return l.URL == raw || listing.NormalizeURL(l.URL) == normalized
		})
	})
}

// CheckDuplicateNickname returns the first prospect with the same nickname
// ignoring case and surrounding spaces, or nil
func (s *Service) CheckDuplicateNickname(ctx context.Context, nickname string) (*models.Prospect, error) {
	if strings.TrimSpace(nickname) == "" {
		return nil, nil
	}
	return s.findFirst(ctx, func(p *models.Prospect) bool {
		return models.SameNickname(p.Nickname, nickname)
	})
}

func (s *Service) findFirst(ctx context.Context, match func(p *models.Prospect) bool) (*models.Prospect, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if match(&list[i]) {
			return &list[i], nil
		}
	}
	return nil, nil
}

// mutate is the read, change copy, save cycle shared by every operation
func (s *Service) mutate(ctx context.Context, id string, fn func(p *models.Prospect) error) (*models.Prospect, error) {
	current, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.Normalize()
	next.UpdatedAt = s.clock.Now()

	if err := s.repo.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save prospect %s: %w", id, err)
	}
	s.reindex(ctx, next)
	return &next, nil
}

func (s *Service) newLink(url string, now time.Time) models.ListingLink {
	return models.ListingLink{
		ID:        s.ids.NewID(),
		URL:       url,
		Domain:    listing.ExtractDomain(url),
		CreatedAt: now,
	}
}

func (s *Service) reindex(ctx context.Context, p models.Prospect) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexProspect(ctx, p); err != nil {
		s.logger.Warn("failed to index prospect", zap.String("id", p.ID), zap.Error(err))
	}
}

func (s *Service) recordChange(ctx context.Context, id, source string, before, after []models.PriceEntry) {
	if s.changes == nil {
		return
	}
	if err := s.changes.RecordPriceChange(ctx, id, source, before, after); err != nil {
		s.logger.Warn("failed to record price change", zap.String("id", id), zap.Error(err))
	}
}

// sortVisits orders visits newest first
func sortVisits(visits []models.Visit) {
	slices.SortStableFunc(visits, func(a, b models.Visit) int {
		return b.Date.Compare(a.Date)
	})
}
