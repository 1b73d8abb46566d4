package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/powerlens/powerlens/internal/domain"
)

// EliminationRealization is the fraction of a component's savings that must
// show up in total power for the savings to count as eliminated.
const EliminationRealization = 0.8

// Attribution is one component's share of above-baseline system power.
type Attribution struct {
	ComponentDelta float64 `json:"component_delta_mw"`
	TotalDelta     float64 `json:"total_delta_mw"`
	Ratio          float64 `json:"ratio"`
}

// AttributionRatio returns componentDelta / totalDelta. A total that does not
// rise above baseline leaves nothing to attribute.
func AttributionRatio(componentDelta, totalDelta float64) (float64, error) {
	if totalDelta <= 0 {
		return 0, fmt.Errorf("total delta %.1f mW: %w", totalDelta, domain.ErrNoSystemDelta)
	}
	return componentDelta / totalDelta, nil
}

// Attribute computes deltas over the baselines and their ratio.
func Attribute(component, total, componentBase, totalBase float64) (Attribution, error) {
	a := Attribution{
		ComponentDelta: component - componentBase,
		TotalDelta:     total - totalBase,
	}
	ratio, err := AttributionRatio(a.ComponentDelta, a.TotalDelta)
	if err != nil {
		return a, err
	}
	a.Ratio = ratio
	return a, nil
}

// Verdict is the outcome of a before/after attribution comparison.
type Verdict int

const (
	VerdictNoEffect   Verdict = iota // component power did not move
	VerdictEliminated                // total dropped by (nearly) the component's savings
	VerdictPartial                   // total dropped, but by less than the savings
	VerdictRelocated                 // component dropped, total flat: load moved elsewhere
	VerdictRegressed                 // component draws more than before
)

// String returns the verdict label.
func (v Verdict) String() string {
	switch v {
	case VerdictNoEffect:
		return "no_effect"
	case VerdictEliminated:
		return "eliminated"
	case VerdictPartial:
		return "partial"
	case VerdictRelocated:
		return "relocated"
	case VerdictRegressed:
		return "regressed"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the verdict as its label.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// Comparison is the before/after evaluation of an intervention.
type Comparison struct {
	Before        Attribution `json:"before"`
	After         Attribution `json:"after"`
	ComponentDrop float64     `json:"component_drop_mw"`
	TotalDrop     float64     `json:"total_drop_mw"`
	Realization   float64     `json:"realization"`
	Verdict       Verdict     `json:"verdict"`
}

// CompareAttribution decides whether a drop in the component's delta was
// real system-wide savings or load displaced to another component.
// tolerance is the noise floor in mW below which a change counts as none.
func CompareAttribution(before, after Attribution, tolerance float64) Comparison {
	if tolerance < 0 {
		tolerance = -tolerance
	}
	c := Comparison{
		Before:        before,
		After:         after,
		ComponentDrop: before.ComponentDelta - after.ComponentDelta,
		TotalDrop:     before.TotalDelta - after.TotalDelta,
	}

	switch {
	case c.ComponentDrop < -tolerance:
		c.Verdict = VerdictRegressed
		return c
	case c.ComponentDrop <= tolerance:
		c.Verdict = VerdictNoEffect
		return c
	}

	c.Realization = c.TotalDrop / c.ComponentDrop
	switch {
	case c.TotalDrop <= tolerance:
		c.Verdict = VerdictRelocated
	case c.Realization >= EliminationRealization:
		c.Verdict = VerdictEliminated
	default:
		c.Verdict = VerdictPartial
	}
	return c
}
