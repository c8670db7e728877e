package prospect

import (
	"errors"

	"prospect-portal/internal/models"
	"prospect-portal/internal/pricing"
	"prospect-portal/internal/visit"
)

var (
	ErrNotFound         = models.ErrNotFound
	ErrInvalidNickname  = errors.New("nickname is required")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidSentiment = errors.New("sentiment must be Positive or Negative")
	ErrInvalidTrait     = errors.New("trait text is required")
	ErrInvalidLink      = errors.New("link url is required")
	ErrInvalidAction    = errors.New("unknown quick action")
)

// IsValidation reports whether err was caused by bad input
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidNickname,
		ErrInvalidStatus,
		ErrInvalidSentiment,
		ErrInvalidTrait,
		ErrInvalidLink,
		ErrInvalidAction,
		pricing.ErrInvalidPriceEntry,
		pricing.ErrInvalidDate,
		visit.ErrInvalidVisitTime,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
