package models

import "time"

// DeleteLog represents a record of physically deleted prospects
type DeleteLog struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProspectID string    `gorm:"type:varchar(36);not null;index" json:"prospect_id"`
	Nickname   string    `gorm:"type:varchar(255)" json:"nickname"`
	Status     Status    `gorm:"type:varchar(32)" json:"status"`
	ClosedAt   time.Time `json:"closed_at"`
	DeletedAt  time.Time `gorm:"not null;index" json:"deleted_at"`
	Reason     string    `gorm:"type:varchar(50);not null" json:"reason"`
}

// TableName specifies the table name
func (DeleteLog) TableName() string {
	return "delete_logs"
}

// DeleteReason constants
const (
	DeleteReasonExpired = "expired_retention"
	DeleteReasonManual  = "manual_deletion"
)
