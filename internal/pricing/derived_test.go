package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospect-portal/internal/models"
)

func TestDerivedValuesEmptyHistory(t *testing.T) {
	_, ok := CurrentPrice(nil)
	assert.False(t, ok)
	_, ok = DeltaVsPrevious(nil)
	assert.False(t, ok)
	_, ok = DeltaVsInitial(nil)
	assert.False(t, ok)

	s := Summarize([]models.PriceEntry{})
	assert.Nil(t, s.Current)
	assert.Nil(t, s.DeltaVsPrevious)
	assert.Nil(t, s.DeltaVsInitial)
	assert.Equal(t, 0, s.Entries)
}

func TestDerivedValuesSingleEntry(t *testing.T) {
	history := []models.PriceEntry{entry(t, "a", 300000, "2024-01-01")}

	s := Summarize(history)
	require.NotNil(t, s.Current)
	assert.Equal(t, 300000.0, *s.Current)
	assert.Equal(t, 0.0, *s.DeltaVsPrevious)
	assert.Equal(t, 0.0, *s.DeltaVsInitial)
	assert.Equal(t, TrendFlat, s.PreviousTrend)
}

func TestDropFromThreeHundredThousand(t *testing.T) {
	history := []models.PriceEntry{entry(t, "a", 300000, "2024-01-01")}

	got := Reconcile(history, 280000, day(t, "2024-02-01"), fixedNow, sequentialIDs())

	require.Len(t, got, 2)
	assert.Equal(t, 300000.0, got[0].Value)
	assert.Equal(t, "2024-01-01", DayKey(got[0].EffectiveAt))
	assert.Equal(t, 280000.0, got[1].Value)
	assert.Equal(t, "2024-02-01", DayKey(got[1].EffectiveAt))

	current, _ := CurrentPrice(got)
	prev, _ := DeltaVsPrevious(got)
	initial, _ := DeltaVsInitial(got)
	assert.Equal(t, 280000.0, current)
	assert.Equal(t, -20000.0, prev)
	assert.Equal(t, -20000.0, initial)
	assert.Equal(t, TrendDown, TrendOf(prev))
}

func TestDeltaBaselinesDiffer(t *testing.T) {
	history := []models.PriceEntry{
		entry(t, "a", 300000, "2024-01-01"),
		entry(t, "b", 280000, "2024-02-01"),
		entry(t, "c", 290000, "2024-03-01"),
	}

	prev, _ := DeltaVsPrevious(history)
	initial, _ := DeltaVsInitial(history)

	assert.Equal(t, 10000.0, prev)
	assert.Equal(t, -10000.0, initial)
	assert.Equal(t, TrendUp, TrendOf(prev))
	assert.Equal(t, TrendDown, TrendOf(initial))
}
