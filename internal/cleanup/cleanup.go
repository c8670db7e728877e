package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"prospect-portal/internal/database"
	"prospect-portal/internal/models"
)

// Remover drops deleted prospects from a secondary store such as the search
// index
type Remover interface {
	RemoveProspect(ctx context.Context, id string) error
}

// Service handles physical deletion of prospects closed long ago
type Service struct {
	db      *gorm.DB
	remover Remover
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new cleanup service. remover may be nil.
func NewService(db *gorm.DB, remover Remover, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      db,
		remover: remover,
		logger:  logger.With(zap.String("component", "cleanup")),
		now:     time.Now,
	}
}

// Config holds configuration for cleanup operations
type Config struct {
	RetentionDays    int  `yaml:"retention_days"`     // Days a closed prospect is kept untouched before deletion
	MaxDeletionCount int  `yaml:"max_deletion_count"` // Safety limit per run
	DryRun           bool `yaml:"dry_run"`            // Only log what would be deleted
	DeleteFromSearch bool `yaml:"delete_from_search"` // Also remove from the search index
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		RetentionDays:    180,
		MaxDeletionCount: 1000,
		DryRun:           false,
		DeleteFromSearch: true,
	}
}

// Result holds the result of a cleanup operation
type Result struct {
	TargetCount      int       `json:"target_count"`
	DeletedCount     int       `json:"deleted_count"`
	ErrorCount       int       `json:"error_count"`
	DryRun           bool      `json:"dry_run"`
	ExecutedAt       time.Time `json:"executed_at"`
	DeletedProspects []string  `json:"deleted_prospects"`
	Errors           []string  `json:"errors,omitempty"`
}

// FindExpired returns Archived or Withdrawn prospects not updated within
// retentionDays
func (s *Service) FindExpired(ctx context.Context, retentionDays int) ([]models.Prospect, error) {
	var prospects []models.Prospect
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	err := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]models.Status{models.StatusArchived, models.StatusWithdrawn},
			cutoff,
		).
		Order("updated_at ASC").
		Find(&prospects).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired prospects: %w", err)
	}

	s.logger.Info("expired prospects found",
		zap.Int("count", len(prospects)),
		zap.String("cutoff", cutoff.Format("2006-01-02")))
	return prospects, nil
}

// PhysicallyDelete removes expired prospects one transaction at a time,
// leaving a delete log row for each
func (s *Service) PhysicallyDelete(ctx context.Context, cfg Config) (*Result, error) {
	result := &Result{
		DryRun:           cfg.DryRun,
		ExecutedAt:       s.now().UTC(),
		DeletedProspects: []string{},
	}

	expired, err := s.FindExpired(ctx, cfg.RetentionDays)
	if err != nil {
		return nil, err
	}
	result.TargetCount = len(expired)
	if result.TargetCount == 0 {
		return result, nil
	}

	if cfg.MaxDeletionCount > 0 && result.TargetCount > cfg.MaxDeletionCount {
		return nil, fmt.Errorf("safety check failed: %d prospects exceed max deletion limit of %d",
			result.TargetCount, cfg.MaxDeletionCount)
	}

	s.logger.Info("starting cleanup",
		zap.Int("targets", result.TargetCount),
		zap.Int("retention_days", cfg.RetentionDays),
		zap.Bool("dry_run", cfg.DryRun))

	for _, p := range expired {
		if cfg.DryRun {
			s.logger.Info("[DRY-RUN] would delete prospect",
				zap.String("id", p.ID),
				zap.String("nickname", p.Nickname),
				zap.Time("updated_at", p.UpdatedAt))
			result.DeletedProspects = append(result.DeletedProspects, p.ID)
			result.DeletedCount++
			continue
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			entry := models.DeleteLog{
				ProspectID: p.ID,
				Nickname:   p.Nickname,
				Status:     p.Status,
				ClosedAt:   p.UpdatedAt,
				DeletedAt:  s.now().UTC(),
				Reason:     models.DeleteReasonExpired,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("delete log: %w", err)
			}
			return database.DeleteProspectTx(tx, p.ID)
		})
		if err != nil {
			msg := fmt.Sprintf("failed to delete prospect %s: %v", p.ID, err)
			s.logger.Error("cleanup failed", zap.String("id", p.ID), zap.Error(err))
			result.Errors = append(result.Errors, msg)
			result.ErrorCount++
			continue
		}

		if cfg.DeleteFromSearch && s.remover != nil {
			if err := s.remover.RemoveProspect(ctx, p.ID); err != nil {
				s.logger.Warn("failed to remove prospect from search", zap.String("id", p.ID), zap.Error(err))
			}
		}

		s.logger.Info("physically deleted prospect", zap.String("id", p.ID), zap.String("nickname", p.Nickname))
		result.DeletedProspects = append(result.DeletedProspects, p.ID)
		result.DeletedCount++
	}

	s.logger.Info("cleanup completed",
		zap.Int("deleted", result.DeletedCount),
		zap.Int("targets", result.TargetCount),
		zap.Int("errors", result.ErrorCount),
		zap.Bool("dry_run", cfg.DryRun))
	return result, nil
}

// Stats summarizes the delete log and what is pending deletion
type Stats struct {
	TotalDeleted      int64            `json:"total_deleted"`
	ByReason          map[string]int64 `json:"by_reason"`
	DeletedLast30Days int64            `json:"deleted_last_30_days"`
	CurrentlyClosed   int64            `json:"currently_closed"`
	ExpiredPending    int              `json:"expired_pending"`
}

// GetDeleteStats returns statistics about deleted prospects
func (s *Service) GetDeleteStats(ctx context.Context, retentionDays int) (*Stats, error) {
	db := s.db.WithContext(ctx)
	stats := &Stats{ByReason: map[string]int64{}}

	if err := db.Model(&models.DeleteLog{}).Count(&stats.TotalDeleted).Error; err != nil {
		return nil, err
	}

	var reasonCounts []struct {
		Reason string
		Count  int64
	}
	if err := db.Model(&models.DeleteLog{}).
		Select("reason, count(*) as count").
		Group("reason").
		Scan(&reasonCounts).Error; err != nil {
		return nil, err
	}
	for _, rc := range reasonCounts {
		stats.ByReason[rc.Reason] = rc.Count
	}

	thirtyDaysAgo := s.now().UTC().AddDate(0, 0, -30)
	if err := db.Model(&models.DeleteLog{}).
		Where("deleted_at >= ?", thirtyDaysAgo).
		Count(&stats.DeletedLast30Days).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.Prospect{}).
		Where("status IN ?", []models.Status{models.StatusArchived, models.StatusWithdrawn}).
		Count(&stats.CurrentlyClosed).Error; err != nil {
		return nil, err
	}

	expired, err := s.FindExpired(ctx, retentionDays)
	if err != nil {
		return nil, err
	}
	stats.ExpiredPending = len(expired)

	return stats, nil
}

// GetRecentDeleteLogs returns recent delete log entries
func (s *Service) GetRecentDeleteLogs(ctx context.Context, limit int) ([]models.DeleteLog, error) {
	var logs []models.DeleteLog
	err := s.db.WithContext(ctx).Order("deleted_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
