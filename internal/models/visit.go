package models

import "time"

// Visit is a scheduled or recorded viewing of the home
type Visit struct {
	ID           string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProspectID   string        `gorm:"type:varchar(36);not null;index" json:"-"`
	Date         time.Time     `gorm:"not null;index" json:"date"`
	GeneralNote  string        `gorm:"type:text" json:"general_note,omitempty"`
	Notes        VisitNotes    `gorm:"embedded;embeddedPrefix:notes_" json:"notes"`
	Observations []Observation `gorm:"type:text;serializer:json" json:"observations"`
	CreatedAt    time.Time     `gorm:"not null;autoCreateTime:false" json:"created_at"`
}

// TableName specifies the table name
func (Visit) TableName() string {
	return "visits"
}

// VisitNotes has one free-text block per observation category
type VisitNotes struct {
	Environment string `gorm:"type:text" json:"environment,omitempty"`
	Building    string `gorm:"type:text" json:"building,omitempty"`
	Unit        string `gorm:"type:text" json:"unit,omitempty"`
	Amenities   string `gorm:"type:text" json:"amenities,omitempty"`
}

// IsEmpty is true for a visit that was only scheduled
func (n VisitNotes) IsEmpty() bool {
	return n.Environment == "" && n.Building == "" && n.Unit == "" && n.Amenities == ""
}

// Observation types
const (
	ObservationFreeText = "FreeText"
	ObservationChoice   = "Choice"
	ObservationRating   = "Rating"
)

// Observation is an extensible labelled answer attached to a visit
type Observation struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Type      string    `json:"type"`
	Value     any       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}
