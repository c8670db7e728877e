package models

import "time"

// ListingLink is a URL of a public listing for the prospect
type ListingLink struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProspectID string    `gorm:"type:varchar(36);not null;index" json:"-"`
	URL        string    `gorm:"type:text;not null" json:"url"`
	Domain     string    `gorm:"type:varchar(255)" json:"domain"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime:false" json:"created_at"`
}

// TableName specifies the table name
func (ListingLink) TableName() string {
	return "listing_links"
}

// Sentiment splits traits into pros and cons
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
)

// Valid reports whether s is Positive or Negative
func (s Sentiment) Valid() bool {
	return s == SentimentPositive || s == SentimentNegative
}

// Trait is a single pro or con
type Trait struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProspectID string    `gorm:"type:varchar(36);not null;index" json:"-"`
	Label      string    `gorm:"type:text" json:"label"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	Sentiment  Sentiment `gorm:"type:varchar(10);not null" json:"sentiment"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime:false" json:"created_at"`
}

// TableName specifies the table name
func (Trait) TableName() string {
	return "traits"
}

// PropertyDetail holds the optional physical facts about the home
type PropertyDetail struct {
	Rooms     *int     `gorm:"type:int" json:"rooms,omitempty"`
	Bathrooms *int     `gorm:"type:int" json:"bathrooms,omitempty"`
	GrossArea *float64 `gorm:"type:decimal(10,2)" json:"gross_area,omitempty"`
	NetArea   *float64 `gorm:"type:decimal(10,2)" json:"net_area,omitempty"`
	Floor     string   `gorm:"type:varchar(50)" json:"floor,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// IsMissing reports whether none of rooms, bathrooms, gross area and floor
// is filled in. Net area is not part of the check. Zero counts as absent.
func (d PropertyDetail) IsMissing() bool {
	return !intSet(d.Rooms) && !intSet(d.Bathrooms) && !floatSet(d.GrossArea) && d.Floor == ""
}

// Clone copies the pointer fields
func (d PropertyDetail) Clone() PropertyDetail {
	out := d
	if d.Rooms != nil {
		v := *d.Rooms
		out.Rooms = &v
	}
	if d.Bathrooms != nil {
		v := *d.Bathrooms
		out.Bathrooms = &v
	}
	if d.GrossArea != nil {
		v := *d.GrossArea
		out.GrossArea = &v
	}
	if d.NetArea != nil {
		v := *d.NetArea
		out.NetArea = &v
	}
	return out
}

func intSet(v *int) bool {
	return v != nil && *v != 0
}

func floatSet(v *float64) bool {
	return v != nil && *v != 0
}
