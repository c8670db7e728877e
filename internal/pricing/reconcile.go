// Package pricing keeps a prospect's price history: one entry per calendar
// day, sorted by effective date, plus the values derived from it.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"prospect-portal/internal/models"
)

// DateLayout is the calendar date format accepted from forms
const DateLayout = "2006-01-02"

var (
	ErrInvalidPriceEntry = errors.New("invalid price entry")
	ErrInvalidDate       = errors.New("invalid date")
)

// ParseDate parses a YYYY-MM-DD string to midnight UTC
func ParseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrInvalidDate)
	}
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return d, nil
}

// Validate rejects amounts and dates the reconciler must never see
func Validate(amount float64, date time.Time) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return fmt.Errorf("%w: amount %v", ErrInvalidPriceEntry, amount)
	}
	if date.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidDate)
	}
	return nil
}

// DayKey is the UTC calendar date of t, used for one-entry-per-day matching
func DayKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Reconcile inserts or corrects the price for date and returns the new
// history sorted ascending by effective date.
//
// An entry already on the same calendar date has its value replaced and
// keeps its ID and CreatedAt. Otherwise a new entry is appended at midnight
// UTC with ID from newID and CreatedAt now. history itself is not modified
// and no entry is ever removed.
func Reconcile(history []models.PriceEntry, amount float64, date time.Time, now time.Time, newID func() string) []models.PriceEntry {
	out := slices.Clone(history)
	key := DayKey(date)

	idx := slices.IndexFunc(out, func(e models.PriceEntry) bool {
		return DayKey(e.EffectiveAt) == key
	})

	if idx >= 0 {
		out[idx].Value = amount
	} else {
		d := date.UTC()
		out = append(out, models.PriceEntry{
			ID:          newID(),
			Value:       amount,
			EffectiveAt: time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
			CreatedAt:   now,
		})
	}

	SortHistory(out)
	return out
}

// SortHistory orders entries ascending by effective date, keeping the
// relative order of equal timestamps
func SortHistory(history []models.PriceEntry) {
	slices.SortStableFunc(history, func(a, b models.PriceEntry) int {
		return a.EffectiveAt.Compare(b.EffectiveAt)
	})
}

// HasEntryOn reports whether a submission for date would be a correction
func HasEntryOn(history []models.PriceEntry, date time.Time) bool {
	key := DayKey(date)
	for _, e := range history {
		if DayKey(e.EffectiveAt) == key {
			return true
		}
	}
	return false
}
