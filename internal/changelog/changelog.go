// Package changelog keeps a log of current-price movements next to the
// price histories themselves.
package changelog

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"prospect-portal/internal/models"
	"prospect-portal/internal/pricing"
)

// Service writes and reads price change rows
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new change log service
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     db,
		logger: logger.With(zap.String("component", "changelog")),
		now:    time.Now,
	}
}

// DetectChange compares the current price before and after a history
// update. It returns nil when the current price did not move, e.g. when an
// older entry was corrected.
func DetectChange(prospectID, source string, before, after []models.PriceEntry, detectedAt time.Time) *models.PriceChange {
	newValue, ok := pricing.CurrentPrice(after)
	if !ok {
		return nil
	}
	change := &models.PriceChange{
		ProspectID:  prospectID,
		Source:      source,
		NewValue:    newValue,
		EffectiveAt: after[len(after)-1].EffectiveAt,
		DetectedAt:  detectedAt,
	}

	if oldValue, had := pricing.CurrentPrice(before); had {
		if oldValue == newValue {
			return nil
		}
		magnitude := newValue - oldValue
		change.OldValue = &oldValue
		change.ChangeMagnitude = &magnitude
	}
	return change
}

// RecordPriceChange stores a change row when the current price moved
func (s *Service) RecordPriceChange(ctx context.Context, prospectID, source string, before, after []models.PriceEntry) error {
	change := DetectChange(prospectID, source, before, after, s.now().UTC())
	if change == nil {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(change).Error; err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("prospect_id", prospectID),
		zap.String("source", source),
		zap.Float64("new_value", change.NewValue),
	}
	if change.ChangeMagnitude != nil {
		fields = append(fields, zap.Float64("magnitude", *change.ChangeMagnitude))
	}
	s.logger.Info("price change recorded", fields...)
	return nil
}

// GetRecentChanges returns the latest changes across all prospects
func (s *Service) GetRecentChanges(ctx context.Context, limit int) ([]models.PriceChange, error) {
	var changes []models.PriceChange
	query := s.db.WithContext(ctx).Order("detected_at DESC").Order("id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}

// GetProspectChanges returns the changes of one prospect, newest first
func (s *Service) GetProspectChanges(ctx context.Context, prospectID string, limit int) ([]models.PriceChange, error) {
	var changes []models.PriceChange
	query := s.db.WithContext(ctx).
		Where("prospect_id = ?", prospectID).
		Order("detected_at DESC").
		Order("id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}
