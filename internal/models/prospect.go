package models

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by repositories when no prospect has the given ID
var ErrNotFound = errors.New("prospect not found")

// Prospect is a candidate home tracked by the user. It is always read and
// written as a whole; sub-entities have no storage lifecycle of their own.
type Prospect struct {
	ID       string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Nickname string `gorm:"type:varchar(255);not null" json:"nickname"`
	Location string `gorm:"type:text" json:"location,omitempty"`
	Note     string `gorm:"type:text" json:"note,omitempty"`
	Status   Status `gorm:"type:varchar(32);not null;index" json:"status"`

	PriceHistory []PriceEntry  `gorm:"foreignKey:ProspectID" json:"price_history"`
	Links        []ListingLink `gorm:"foreignKey:ProspectID" json:"links"`
	Traits       []Trait       `gorm:"foreignKey:ProspectID" json:"traits"`
	Visits       []Visit       `gorm:"foreignKey:ProspectID" json:"visits"`

	Details PropertyDetail `gorm:"embedded;embeddedPrefix:detail_" json:"details"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime:false;index:idx_prospects_created_at,sort:desc" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

// TableName specifies the table name
func (Prospect) TableName() string {
	return "prospects"
}

// Normalize replaces nil collections with empty ones so the aggregate always
// serializes with [] rather than null.
func (p *Prospect) Normalize() {
	if p.PriceHistory == nil {
		p.PriceHistory = []PriceEntry{}
	}
	if p.Links == nil {
		p.Links = []ListingLink{}
	}
	if p.Traits == nil {
		p.Traits = []Trait{}
	}
	if p.Visits == nil {
		p.Visits = []Visit{}
	}
	for i := range p.Visits {
		if p.Visits[i].Observations == nil {
			p.Visits[i].Observations = []Observation{}
		}
	}
}

// Clone returns a deep copy whose collections can be mutated without
// touching the receiver.
func (p Prospect) Clone() Prospect {
	out := p
	out.PriceHistory = append([]PriceEntry(nil), p.PriceHistory...)
	out.Links = append([]ListingLink(nil), p.Links...)
	out.Traits = append([]Trait(nil), p.Traits...)
	out.Visits = make([]Visit, len(p.Visits))
	for i, v := range p.Visits {
		v.Observations = append([]Observation(nil), v.Observations...)
		out.Visits[i] = v
	}
	out.Details = p.Details.Clone()
	out.Normalize()
	return out
}

// IsClosed reports whether the prospect sits in the archived bucket
func (p *Prospect) IsClosed() bool {
	return p.Status.IsClosed()
}

// Pros returns the positive traits in insertion order
func (p *Prospect) Pros() []Trait {
	return p.traitsWith(SentimentPositive)
}

// Cons returns the negative traits in insertion order
func (p *Prospect) Cons() []Trait {
	return p.traitsWith(SentimentNegative)
}

func (p *Prospect) traitsWith(s Sentiment) []Trait {
	out := []Trait{}
	for _, t := range p.Traits {
		if t.Sentiment == s {
			out = append(out, t)
		}
	}
	return out
}

// CreateProspect carries the fields accepted when a prospect is first added
type CreateProspect struct {
	Nickname     string   `json:"nickname" binding:"required"`
	Location     string   `json:"location"`
	InitialPrice *float64 `json:"initial_price"`
	InitialLink  string   `json:"initial_link"`
	InitialNote  string   `json:"initial_note"`
}

// SameNickname compares nicknames the way duplicate detection does
func SameNickname(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
