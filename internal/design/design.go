// Package design builds and solves the two-echelon network design models:
// a first-stage MILP that jointly decides satellite capacity tiers and
// operational assignment, and a second-stage MILP that re-optimizes
// operations with the tier selection frozen.
package design

import (
	"fmt"
	"strings"

	"satnet/internal/model"
	"satnet/internal/solver"
)

// State tracks a model through its lifecycle. Build is destructive: it
// resets the solver session and regenerates every variable and constraint.
type State int

const (
	StateCreated State = iota
	StateBuilt
	StateOptimized
	StateResultsExtracted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateOptimized:
		return "optimized"
	case StateResultsExtracted:
		return "results_extracted"
	case StateFailed:
		return "failed"
	default:
		return "created"
	}
}

// Inputs is the data contract shared by both stages: entities plus the
// precomputed fleet-requirement and service-cost tables.
type Inputs struct {
	Satellites []*model.Satellite
	Pixels     []*model.Pixel
	Fleet      model.FleetTables
	Costs      model.CostTables
}

// Model is the common build/optimize/results contract implemented by the
// Stage1 and Stage2 variants.
type Model interface {
	Build(in Inputs) error
	Optimize() solver.Status
	Results() (*Results, bool)
	SetParams(params map[string]float64) error
	State() State
	Describe() string
}

// Assignments holds the strictly-positive decision variable values of a
// solved model, keyed by index tuple.
type Assignments struct {
	Y map[model.SatTier]float64
	X map[model.SatTierPeriod]float64
	Z map[model.SatPixelPeriod]float64
	W map[model.PixelPeriod]float64
}

// Metrics holds solver diagnostics, the four objective cost components and
// constraint slacks grouped by constraint-family name prefix.
type Metrics struct {
	Model                    solver.Diagnostics            `json:"model"`
	CostAllocationSatellites float64                       `json:"costAllocationSatellites"`
	CostOperatingSatellites  float64                       `json:"costOperatingSatellites"`
	CostServedFromSatellite  float64                       `json:"costServedFromSatellite"`
	CostServedFromDC         float64                       `json:"costServedFromDc"`
	CostTotal                float64                       `json:"costTotal"`
	Constraints              map[string]map[string]float64 `json:"constraints"`
}

// Results bundles assignments and metrics extracted after an accepted solve.
type Results struct {
	Assignments Assignments
	Metrics     Metrics
}

var (
	_ Model = (*Stage1)(nil)
	_ Model = (*Stage2)(nil)
)

// positive filtering threshold for binary variable values
const posEps = 1e-6

// Constraint family names. The family is the name prefix before '['.
const (
	famTierExclusivity  = "tier_exclusivity"
	famOperateSelected  = "operate_selected"
	famAssignOperating  = "assign_operating"
	famCapacity         = "capacity"
	famCoverage         = "coverage"
)

func constrName(family string, parts ...any) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = fmt.Sprint(p)
	}
	return family + "[" + strings.Join(strs, ",") + "]"
}

// groupSlacks buckets raw solver slacks by constraint-family prefix.
func groupSlacks(slacks map[string]float64) map[string]map[string]float64 {
	out := map[string]map[string]float64{}
	for name, s := range slacks {
		fam := name
		if i := strings.IndexByte(name, '['); i >= 0 {
			fam = name[:i]
		}
		if out[fam] == nil {
			out[fam] = map[string]float64{}
		}
		out[fam][name] = s
	}
	return out
}

// satelliteCost looks up a satellite-service cost entry, failing fast on a
// missing index tuple.
func satelliteCost(costs model.CostTables, key model.SatPixelPeriod) (float64, error) {
	c, ok := costs.Satellite[key]
	if !ok {
		return 0, fmt.Errorf("satellite service cost missing for (%s,%s,%d)", key.Satellite, key.Pixel, key.Period)
	}
	return c.Total, nil
}

// dcCost looks up a DC-service cost entry, failing fast on a missing tuple.
func dcCost(costs model.CostTables, key model.PixelPeriod) (float64, error) {
	c, ok := costs.DC[key]
	if !ok {
		return 0, fmt.Errorf("dc service cost missing for (%s,%d)", key.Pixel, key.Period)
	}
	return c.Total, nil
}

// fleetRequired looks up the small-vehicle fleet requirement used by the
// capacity constraints, failing fast on a missing tuple.
func fleetRequired(fleet model.FleetTables, key model.SatPixelPeriod) (float64, error) {
	est, ok := fleet.Satellite[key]
	if !ok {
		return 0, fmt.Errorf("fleet requirement missing for (%s,%s,%d)", key.Satellite, key.Pixel, key.Period)
	}
	return est.FleetSize, nil
}

// operatingCost reads a tier's per-period operating cost, failing fast when
// the period is out of range for the entity record.
func operatingCost(s *model.Satellite, tier string, t int) (float64, error) {
	op, ok := s.CostOperation[tier]
	if !ok || t >= len(op) {
		return 0, fmt.Errorf("operating cost missing for satellite %s tier %s period %d", s.ID, tier, t)
	}
	return op[t], nil
}
