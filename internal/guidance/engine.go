// Package guidance picks the single "next best action" to suggest for a
// prospect from a fixed, prioritized rule set.
package guidance

import (
	"fmt"
	"slices"

	"prospect-portal/internal/models"
)

// Rule IDs
const (
	RuleMissingDetails  = "missing_details"
	RuleScheduleVisit   = "schedule_visit"
	RuleAddTraits       = "add_traits"
	RuleDecisionPending = "decision_pending"
)

// Severity of the banner
const (
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// WarningPriority is the priority from which a suggestion renders as a warning
const WarningPriority = 100

// ActionSpec describes the button of a rule. Effect is resolved against the
// prospect so navigation targets can point inside it.
type ActionSpec struct {
	Label  string
	Effect func(p models.Prospect) Effect
}

// Rule is one entry of the rule set. Higher priority wins.
type Rule struct {
	ID       string
	Priority int
	Check    func(p models.Prospect) bool
	Message  string
	Action   *ActionSpec
}

// Action is a resolved rule action
type Action struct {
	Label  string `json:"label"`
	Effect Effect `json:"effect"`
}

// Result is the suggestion shown for a prospect
type Result struct {
	RuleID   string  `json:"rule_id"`
	Priority int     `json:"priority"`
	Message  string  `json:"message"`
	Severity string  `json:"severity"`
	Action   *Action `json:"action,omitempty"`
}

// Engine evaluates an immutable, priority-ordered rule list
type Engine struct {
	rules []Rule
}

// NewEngine orders rules by priority, keeping the given order for ties
func NewEngine(rules ...Rule) *Engine {
	sorted := slices.Clone(rules)
	slices.SortStableFunc(sorted, func(a, b Rule) int {
		return b.Priority - a.Priority
	})
	return &Engine{rules: sorted}
}

// Rules returns the rules in evaluation order
func (e *Engine) Rules() []Rule {
	return slices.Clone(e.rules)
}

// Compute returns the highest-priority rule whose check passes, or nil
func (e *Engine) Compute(p models.Prospect) *Result {
	for _, r := range e.rules {
		if !r.Check(p) {
			continue
		}
		res := &Result{
			RuleID:   r.ID,
			Priority: r.Priority,
			Message:  r.Message,
			Severity: SeverityInfo,
		}
		if r.Priority >= WarningPriority {
			res.Severity = SeverityWarning
		}
		if r.Action != nil {
			res.Action = &Action{Label: r.Action.Label, Effect: r.Action.Effect(p)}
		}
		return res
	}
	return nil
}

var defaultEngine = NewEngine(DefaultRules()...)

// Default is the engine with the canonical rule set
func Default() *Engine {
	return defaultEngine
}

// Compute runs the canonical rule set
func Compute(p models.Prospect) *Result {
	return defaultEngine.Compute(p)
}

// DefaultRules builds the canonical rule set
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       RuleMissingDetails,
			Priority: 100,
			Check: func(p models.Prospect) bool {
				return p.Details.IsMissing()
			},
			Message: "You're still missing a few details about the property.",
			Action: &ActionSpec{
				Label: "Add them now",
				Effect: func(models.Prospect) Effect {
					return OpenModal{Modal: ModalPropertyDetails}
				},
			},
		},
		{
			ID:       RuleScheduleVisit,
			Priority: 50,
			Check: func(p models.Prospect) bool {
				return p.Status == models.StatusUnderReview && len(p.Visits) == 0
			},
			Message: "Next: Schedule a Visit",
			Action: &ActionSpec{
				Label: "Do it now",
				Effect: func(p models.Prospect) Effect {
					return Navigate{Target: fmt.Sprintf("/prospect/%s/visit/new?type=schedule", p.ID)}
				},
			},
		},
		{
			ID:       RuleAddTraits,
			Priority: 40,
			Check: func(p models.Prospect) bool {
				return p.Status == models.StatusVisited && len(p.Traits) == 0
			},
			Message: "Next: Add Pros and Cons",
			Action: &ActionSpec{
				Label: "Do it now",
				Effect: func(p models.Prospect) Effect {
					return Navigate{Target: fmt.Sprintf("/prospect/%s#evaluation", p.ID)}
				},
			},
		},
		{
			ID:       RuleDecisionPending,
			Priority: 30,
			Check: func(p models.Prospect) bool {
				return p.Status == models.StatusInteresting
			},
			Message: "Next: Move to Decision Pending",
			Action: &ActionSpec{
				Label: "Do it now",
				Effect: func(models.Prospect) Effect {
					return Mutate{Status: models.StatusDecisionPending}
				},
			},
		},
	}
}

// Apply executes a Mutate effect on a copy of p. The boolean is false when
// the result carries no mutation; navigation and modals belong to the caller.
func Apply(p models.Prospect, res *Result) (models.Prospect, bool) {
	if res == nil || res.Action == nil {
		return p, false
	}
	m, ok := res.Action.Effect.(Mutate)
	if !ok {
		return p, false
	}
	out := p.Clone()
	m.ApplyTo(&out)
	return out, true
}
