package pricing

import "prospect-portal/internal/models"

// Trend is the direction of a price delta
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// TrendOf classifies a delta
func TrendOf(delta float64) Trend {
	switch {
	case delta > 0:
		return TrendUp
	case delta < 0:
		return TrendDown
	default:
		return TrendFlat
	}
}

// CurrentPrice is the value of the chronologically last entry. The boolean is
// false for an empty history; callers render that as absent, not zero.
func CurrentPrice(history []models.PriceEntry) (float64, bool) {
	if len(history) == 0 {
		return 0, false
	}
	return history[len(history)-1].Value, true
}

// InitialPrice is the value of the chronologically first entry
func InitialPrice(history []models.PriceEntry) (float64, bool) {
	if len(history) == 0 {
		return 0, false
	}
	return history[0].Value, true
}

// DeltaVsPrevious is the card/list delta: current minus the second-to-last
// entry, or zero when there is only one entry.
func DeltaVsPrevious(history []models.PriceEntry) (float64, bool) {
	current, ok := CurrentPrice(history)
	if !ok {
		return 0, false
	}
	if len(history) < 2 {
		return 0, true
	}
	return current - history[len(history)-2].Value, true
}

// DeltaVsInitial is the header delta: current minus the first entry
func DeltaVsInitial(history []models.PriceEntry) (float64, bool) {
	current, ok := CurrentPrice(history)
	if !ok {
		return 0, false
	}
	initial, _ := InitialPrice(history)
	return current - initial, true
}

// Summary bundles the derived values for API responses
type Summary struct {
	Current         *float64 `json:"current,omitempty"`
	DeltaVsPrevious *float64 `json:"delta_vs_previous,omitempty"`
	DeltaVsInitial  *float64 `json:"delta_vs_initial,omitempty"`
	PreviousTrend   Trend    `json:"previous_trend,omitempty"`
	InitialTrend    Trend    `json:"initial_trend,omitempty"`
	Entries         int      `json:"entries"`
}

// Summarize computes every derived value of history
func Summarize(history []models.PriceEntry) Summary {
	s := Summary{Entries: len(history)}
	current, ok := CurrentPrice(history)
	if !ok {
		return s
	}
	prev, _ := DeltaVsPrevious(history)
	initial, _ := DeltaVsInitial(history)
	s.Current = &current
	s.DeltaVsPrevious = &prev
	s.DeltaVsInitial = &initial
	s.PreviousTrend = TrendOf(prev)
	s.InitialTrend = TrendOf(initial)
	return s
}
