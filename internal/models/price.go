package models

import "time"

// PriceEntry is one asking-price observation. Only the UTC calendar date of
// EffectiveAt is significant; a prospect holds at most one entry per date.
type PriceEntry struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProspectID  string    `gorm:"type:varchar(36);not null;index:idx_price_prospect_date" json:"-"`
	Value       float64   `gorm:"type:decimal(14,2);not null" json:"value"`
	EffectiveAt time.Time `gorm:"not null;index:idx_price_prospect_date,priority:2" json:"effective_at"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime:false" json:"created_at"`
}

// TableName specifies the table name
func (PriceEntry) TableName() string {
	return "price_entries"
}

// PriceChange records a movement of the current price, kept as a log next to
// the price history itself
type PriceChange struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProspectID      string    `gorm:"type:varchar(36);not null;index" json:"prospect_id"`
	Source          string    `gorm:"type:varchar(20);not null" json:"source"`
	OldValue        *float64  `gorm:"type:decimal(14,2)" json:"old_value,omitempty"`
	NewValue        float64   `gorm:"type:decimal(14,2);not null" json:"new_value"`
	ChangeMagnitude *float64  `gorm:"type:decimal(14,2)" json:"change_magnitude,omitempty"`
	EffectiveAt     time.Time `gorm:"not null" json:"effective_at"`
	DetectedAt      time.Time `gorm:"not null;index" json:"detected_at"`
}

// TableName specifies the table name
func (PriceChange) TableName() string {
	return "price_changes"
}

// Price change sources
const (
	PriceSourceManual  = "manual"
	PriceSourceWatcher = "watcher"
)
