package models

// Status is the lifecycle stage of a prospect. Any status may be assigned
// from any other; there is no transition graph.
type Status string

const (
	StatusUnderReview     Status = "Under Review"
	StatusVisited         Status = "Visited"
	StatusInteresting     Status = "Interesting"
	StatusDecisionPending Status = "Decision Pending"
	StatusOfferPrep       Status = "Offer Prep"
	StatusOfferSubmitted  Status = "Offer Submitted"
	StatusOfferDeclined   Status = "Offer Declined"
	StatusWithdrawn       Status = "Withdrawn"
	StatusArchived        Status = "Archived"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []Status{
	StatusUnderReview,
	StatusVisited,
	StatusInteresting,
	StatusDecisionPending,
	StatusOfferPrep,
	StatusOfferSubmitted,
	StatusOfferDeclined,
	StatusWithdrawn,
	StatusArchived,
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsClosed is true for the statuses listed under the archived filter
func (s Status) IsClosed() bool {
	return s == StatusArchived || s == StatusWithdrawn
}

// ParseStatus converts a raw string to a Status
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	return s, s.Valid()
}
