package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"prospect-portal/internal/models"
)

// GormDB stores prospect aggregates across one table per entity
type GormDB struct {
	db *gorm.DB
}

// NewGormDB opens a MySQL connection
func NewGormDB(host, port, user, password, dbname string, logLevel logger.LogLevel) (*GormDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		user, password, host, port, dbname)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return &GormDB{db: db}, nil
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.Prospect{},
		&models.PriceEntry{},
		&models.ListingLink{},
		&models.Trait{},
		&models.Visit{},
		&models.PriceChange{},
		&models.DeleteLog{},
	)
}

// withChildren preloads every owned collection in display order
func withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("PriceHistory", func(db *gorm.DB) *gorm.DB { return db.Order("effective_at ASC") }).
		Preload("Links", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Traits", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Visits", func(db *gorm.DB) *gorm.DB { return db.Order("date DESC") })
}

func (gdb *GormDB) Load(ctx context.Context, id string) (models.Prospect, error) {
	var p models.Prospect
	err := withChildren(gdb.db.WithContext(ctx)).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Prospect{}, models.ErrNotFound
	}
	if err != nil {
		return models.Prospect{}, err
	}
	p.Normalize()
	return p, nil
}

// List returns all prospects, newest first
func (gdb *GormDB) List(ctx context.Context) ([]models.Prospect, error) {
	var prospects []models.Prospect
	if err := withChildren(gdb.db.WithContext(ctx)).Order("created_at DESC").Find(&prospects).Error; err != nil {
		return nil, err
	}
	for i := range prospects {
		prospects[i].Normalize()
	}
	return prospects, nil
}

// Save upserts the prospect row and replaces every child row in one
// transaction
func (gdb *GormDB) Save(ctx context.Context, p models.Prospect) error {
	return gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := p.Clone()
		if err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&row).Error; err != nil {
			return err
		}

		for i := range row.PriceHistory {
			row.PriceHistory[i].ProspectID = p.ID
		}
		for i := range row.Links {
			row.Links[i].ProspectID = p.ID
		}
		for i := range row.Traits {
			row.Traits[i].ProspectID = p.ID
		}
		for i := range row.Visits {
			row.Visits[i].ProspectID = p.ID
		}

		if err := replaceChildren(tx, p.ID, row.PriceHistory); err != nil {
			return fmt.Errorf("price history: %w", err)
		}
		if err := replaceChildren(tx, p.ID, row.Links); err != nil {
			return fmt.Errorf("links: %w", err)
		}
		if err := replaceChildren(tx, p.ID, row.Traits); err != nil {
			return fmt.Errorf("traits: %w", err)
		}
		if err := replaceChildren(tx, p.ID, row.Visits); err != nil {
			return fmt.Errorf("visits: %w", err)
		}
		return nil
	})
}

// replaceChildren deletes the stored rows of one collection and inserts the
// given ones
func replaceChildren[T any](tx *gorm.DB, prospectID string, rows []T) error {
	var zero T
	if err := tx.Where("prospect_id = ?", prospectID).Delete(&zero).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

// Delete removes the prospect and its children
func (gdb *GormDB) Delete(ctx context.Context, id string) error {
	return gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteProspect(tx, id)
	})
}

// deleteProspect runs inside a caller-owned transaction
func deleteProspect(tx *gorm.DB, id string) error {
	for _, child := range []any{&models.PriceEntry{}, &models.ListingLink{}, &models.Trait{}, &models.Visit{}} {
		if err := tx.Where("prospect_id = ?", id).Delete(child).Error; err != nil {
			return err
		}
	}
	result := tx.Where("id = ?", id).Delete(&models.Prospect{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteProspectTx deletes a prospect inside an existing transaction
func DeleteProspectTx(tx *gorm.DB, id string) error {
	return deleteProspect(tx, id)
}
