// Package visit turns visit wizard answers into the four note categories
// stored on a visit.
package visit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"prospect-portal/internal/models"
)

// Categories
const (
	CategoryEnvironment = "environment"
	CategoryBuilding    = "building"
	CategoryUnit        = "unit"
	CategoryAmenities   = "amenities"
)

// Answer kinds
const (
	KindText    = "text"
	KindBoolean = "boolean"
)

// DefaultTime is the time of day suggested when scheduling
const DefaultTime = "10:00"

var ErrInvalidVisitTime = errors.New("invalid visit date or time")

// Question is one step of the wizard
type Question struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Text     string `json:"text"`
	Kind     string `json:"kind"`
}

// Questions is the wizard in display order
var Questions = []Question{
	{ID: "env_vibe", Category: CategoryEnvironment, Text: "How is the neighborhood vibe and noise level?", Kind: KindText},
	{ID: "bld_condition", Category: CategoryBuilding, Text: "Describe the condition of the building exterior.", Kind: KindText},
	{ID: "bld_elevator", Category: CategoryBuilding, Text: "Is there an elevator?", Kind: KindBoolean},
	{ID: "unit_condition", Category: CategoryUnit, Text: "What is the condition of floors and walls?", Kind: KindText},
	{ID: "unit_light", Category: CategoryUnit, Text: "Is there plenty of natural light?", Kind: KindBoolean},
	{ID: "amenities_parking", Category: CategoryAmenities, Text: "Is there a garage or dedicated parking?", Kind: KindBoolean},
	{ID: "amenities_other", Category: CategoryAmenities, Text: "List any other key amenities (Storage, AC, etc).", Kind: KindText},
}

// AssembleNotes renders the answers as "Question: answer" lines grouped by
// category. Unanswered and empty answers are skipped.
func AssembleNotes(answers map[string]any) models.VisitNotes {
	blocks := map[string]*strings.Builder{}
	for _, q := range Questions {
		text, ok := answerText(answers[q.ID])
		if !ok {
			continue
		}
		b, found := blocks[q.Category]
		if !found {
			b = &strings.Builder{}
			blocks[q.Category] = b
		}
		fmt.Fprintf(b, "%s: %s\n", q.Text, text)
	}

	get := func(category string) string {
		if b, ok := blocks[category]; ok {
			return strings.TrimSpace(b.String())
		}
		return ""
	}
	return models.VisitNotes{
		Environment: get(CategoryEnvironment),
		Building:    get(CategoryBuilding),
		Unit:        get(CategoryUnit),
		Amenities:   get(CategoryAmenities),
	}
}

func answerText(v any) (string, bool) {
	switch a := v.(type) {
	case nil:
		return "", false
	case bool:
		if a {
			return "Yes", true
		}
		return "No", true
	case string:
		if a == "" {
			return "", false
		}
		return a, true
	default:
		return fmt.Sprint(a), true
	}
}

// VisitTime combines a YYYY-MM-DD date and an HH:MM time in loc. An empty
// time means DefaultTime.
func VisitTime(date, clock string, loc *time.Location) (time.Time, error) {
	if clock == "" {
		clock = DefaultTime
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q %q", ErrInvalidVisitTime, date, clock)
	}
	return t, nil
}

// Input is what the wizard submits
type Input struct {
	Date        string         `json:"date" binding:"required"`
	Time        string         `json:"time"`
	GeneralNote string         `json:"general_note"`
	Answers     map[string]any `json:"answers"`
}

// Build creates a visit from wizard input. Without answers the visit is a
// scheduled one and its notes stay empty.
func Build(id string, in Input, now time.Time, loc *time.Location) (models.Visit, error) {
	date, err := VisitTime(in.Date, in.Time, loc)
	if err != nil {
		return models.Visit{}, err
	}
	return models.Visit{
		ID:           id,
		Date:         date,
		GeneralNote:  in.GeneralNote,
		Notes:        AssembleNotes(in.Answers),
		Observations: []models.Observation{},
		CreatedAt:    now,
	}, nil
}
