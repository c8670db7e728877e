package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyDetailIsMissing(t *testing.T) {
	two := 2
	zero := 0
	area := 75.5

	assert.True(t, PropertyDetail{}.IsMissing())
	assert.True(t, PropertyDetail{Rooms: &zero}.IsMissing())
	assert.True(t, PropertyDetail{NetArea: &area}.IsMissing())
	assert.False(t, PropertyDetail{Rooms: &two}.IsMissing())
	assert.False(t, PropertyDetail{Bathrooms: &two}.IsMissing())
	assert.False(t, PropertyDetail{GrossArea: &area}.IsMissing())
	assert.False(t, PropertyDetail{Floor: "ground"}.IsMissing())
}

func TestProspectCloneIsDeep(t *testing.T) {
	rooms := 3
	p := Prospect{
		ID:           "p1",
		PriceHistory: []PriceEntry{{ID: "e1", Value: 100}},
		Visits:       []Visit{{ID: "v1", Observations: []Observation{{ID: "o1", Value: "quiet"}}}},
		Details:      PropertyDetail{Rooms: &rooms},
	}

	c := p.Clone()
	c.PriceHistory[0].Value = 1
	c.Visits[0].Observations[0].Value = "loud"
	*c.Details.Rooms = 9

	assert.Equal(t, 100.0, p.PriceHistory[0].Value)
	assert.Equal(t, "quiet", p.Visits[0].Observations[0].Value)
	assert.Equal(t, 3, *p.Details.Rooms)
	assert.NotNil(t, c.Links)
	assert.NotNil(t, c.Traits)
}

func TestProspectNormalizeSerializesEmptyCollections(t *testing.T) {
	p := Prospect{ID: "p1", Visits: []Visit{{ID: "v1", Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}}
	p.Normalize()

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, []any{}, out["price_history"])
	assert.Equal(t, []any{}, out["links"])
	assert.Equal(t, []any{}, out["traits"])
	visits := out["visits"].([]any)
	assert.Equal(t, []any{}, visits[0].(map[string]any)["observations"])
}

func TestProsAndCons(t *testing.T) {
	p := Prospect{Traits: []Trait{
		{ID: "1", Text: "Balcony", Sentiment: SentimentPositive},
		{ID: "2", Text: "Noisy", Sentiment: SentimentNegative},
		{ID: "3", Text: "Metro", Sentiment: SentimentPositive},
	}}

	pros := p.Pros()
	cons := p.Cons()

	require.Len(t, pros, 2)
	assert.Equal(t, "Balcony", pros[0].Text)
	assert.Equal(t, "Metro", pros[1].Text)
	require.Len(t, cons, 1)
	assert.Equal(t, "Noisy", cons[0].Text)
	assert.Empty(t, (&Prospect{}).Cons())
}

func TestStatus(t *testing.T) {
	s, ok := ParseStatus("Decision Pending")
	assert.True(t, ok)
	assert.Equal(t, StatusDecisionPending, s)

	_, ok = ParseStatus("DecisionPending")
	assert.False(t, ok)

	assert.True(t, StatusArchived.IsClosed())
	assert.True(t, StatusWithdrawn.IsClosed())
	assert.False(t, StatusOfferDeclined.IsClosed())
}

func TestSameNickname(t *testing.T) {
	assert.True(t, SameNickname("  Sunny Flat ", "sunny flat"))
	assert.False(t, SameNickname("Sunny Flat", "Sunny Flat 2"))
}

func TestSentimentValid(t *testing.T) {
	assert.True(t, SentimentPositive.Valid())
	assert.True(t, SentimentNegative.Valid())
	assert.False(t, Sentiment("Neutral").Valid())
}
