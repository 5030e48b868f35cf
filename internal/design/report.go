package design

import (
	"sort"
	"time"

	"satnet/internal/solver"
)

// Plan statuses reported by the runner.
const (
	PlanCompleted = "completed"  // both stages produced results
	PlanNoResults = "no_results" // a stage terminated without an accepted solution
	PlanFailed    = "failed"     // build or input error
)

// Plan is the persisted outcome of one design run over a scenario.
type Plan struct {
	ID         string             `json:"id"`
	ScenarioID string             `json:"scenarioId"`
	Status     string             `json:"status"`
	Params     map[string]float64 `json:"params,omitempty"`
	Stage1     *Report            `json:"stage1,omitempty"`
	Stage2     *Report            `json:"stage2,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// Report is the JSON projection of one stage's results: tuple-keyed maps
// flattened into sorted rows.
type Report struct {
	Status         string             `json:"status"`
	Objective      float64            `json:"objective"`
	Metrics        *Metrics           `json:"metrics,omitempty"`
	TierSelections []TierSelectionRow `json:"tierSelections,omitempty"`
	Operating      []OperatingRow     `json:"operating,omitempty"`
	Assignments    []AssignmentRow    `json:"assignments,omitempty"`
	DirectService  []DirectRow        `json:"directService,omitempty"`
}

type TierSelectionRow struct {
	Satellite string  `json:"satellite"`
	Tier      string  `json:"tier"`
	Value     float64 `json:"value"`
}

type OperatingRow struct {
	Satellite string  `json:"satellite"`
	Tier      string  `json:"tier"`
	Period    int     `json:"period"`
	Value     float64 `json:"value"`
}

type AssignmentRow struct {
	Satellite string  `json:"satellite"`
	Pixel     string  `json:"pixel"`
	Period    int     `json:"period"`
	Value     float64 `json:"value"`
}

type DirectRow struct {
	Pixel  string  `json:"pixel"`
	Period int     `json:"period"`
	Value  float64 `json:"value"`
}

// Report converts solved results into their JSON projection. Rows come out
// in a fixed sort order so identical runs serialize identically.
func (r *Results) Report(status solver.Status) *Report {
	rep := &Report{
		Status:    status.String(),
		Objective: r.Metrics.CostTotal,
	}
	m := r.Metrics
	rep.Metrics = &m

	for key, val := range r.Assignments.Y {
		rep.TierSelections = append(rep.TierSelections, TierSelectionRow{Satellite: key.Satellite, Tier: key.Tier, Value: val})
	}
	sort.Slice(rep.TierSelections, func(i, j int) bool {
		a, b := rep.TierSelections[i], rep.TierSelections[j]
		if a.Satellite != b.Satellite {
			return a.Satellite < b.Satellite
		}
		return a.Tier < b.Tier
	})

	for key, val := range r.Assignments.X {
		rep.Operating = append(rep.Operating, OperatingRow{Satellite: key.Satellite, Tier: key.Tier, Period: key.Period, Value: val})
	}
	sort.Slice(rep.Operating, func(i, j int) bool {
		a, b := rep.Operating[i], rep.Operating[j]
		if a.Satellite != b.Satellite {
			return a.Satellite < b.Satellite
		}
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		return a.Period < b.Period
	})

	for key, val := range r.Assignments.Z {
		rep.Assignments = append(rep.Assignments, AssignmentRow{Satellite: key.Satellite, Pixel: key.Pixel, Period: key.Period, Value: val})
	}
	sort.Slice(rep.Assignments, func(i, j int) bool {
		a, b := rep.Assignments[i], rep.Assignments[j]
		if a.Satellite != b.Satellite {
			return a.Satellite < b.Satellite
		}
		if a.Pixel != b.Pixel {
			return a.Pixel < b.Pixel
		}
		return a.Period < b.Period
	})

	for key, val := range r.Assignments.W {
		rep.DirectService = append(rep.DirectService, DirectRow{Pixel: key.Pixel, Period: key.Period, Value: val})
	}
	sort.Slice(rep.DirectService, func(i, j int) bool {
		a, b := rep.DirectService[i], rep.DirectService[j]
		if a.Pixel != b.Pixel {
			return a.Pixel < b.Pixel
		}
		return a.Period < b.Period
	})

	return rep
}
