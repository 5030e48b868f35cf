package design

import (
	"fmt"

	"go.uber.org/zap"

	"satnet/internal/model"
	"satnet/internal/solver"
)

// Stage2 re-optimizes operations with the tier selection frozen to a Stage1
// solution. Operating and assignment variables are generated only for
// satellite-tiers with a positive frozen Y: satellites left out of the
// selection contribute no variables and no constraints at all.
type Stage2 struct {
	name    string
	periods int
	mdl     solver.Model
	log     *zap.SugaredLogger

	state  State
	status solver.Status

	fixedY map[model.SatTier]float64

	varX map[model.SatTierPeriod]solver.Var
	varZ map[model.SatPixelPeriod]solver.Var
	varW map[model.PixelPeriod]solver.Var

	// allocation cost is fully determined by the frozen Y, so it is carried
	// as a numeric constant rather than a solver expression
	costAllocation float64
	costOperating  solver.LinExpr
	costSatellite  solver.LinExpr
	costDC         solver.LinExpr
}

func NewStage2(name string, periods int, fixedY map[model.SatTier]float64, mdl solver.Model, log *zap.SugaredLogger) *Stage2 {
	return &Stage2{name: name, periods: periods, fixedY: fixedY, mdl: mdl, log: log, state: StateCreated}
}

func (s *Stage2) State() State { return s.state }

func (s *Stage2) Describe() string {
	return fmt.Sprintf("%s: state=%s status=%s vars=%d constrs=%d",
		s.name, s.state, s.status, s.mdl.NumVars(), s.mdl.NumConstrs())
}

func (s *Stage2) SetParams(params map[string]float64) error {
	return s.mdl.SetParams(params)
}

// openTiers returns the positive frozen tiers of one satellite, in tier order.
func (s *Stage2) openTiers(sat *model.Satellite) []string {
	var open []string
	for _, q := range sat.Tiers() {
		if s.fixedY[model.SatTier{Satellite: sat.ID, Tier: q}] > posEps {
			open = append(open, q)
		}
	}
	return open
}

func (s *Stage2) Build(in Inputs) error {
	if err := s.checkFixedY(in); err != nil {
		return err
	}
	s.mdl.Reset()
	s.state = StateCreated
	s.status = solver.StatusUnset
	s.varX = map[model.SatTierPeriod]solver.Var{}
	s.varZ = map[model.SatPixelPeriod]solver.Var{}
	s.varW = map[model.PixelPeriod]solver.Var{}
	s.costAllocation = 0
	s.costOperating = solver.LinExpr{}
	s.costSatellite = solver.LinExpr{}
	s.costDC = solver.LinExpr{}

	s.addVariables(in)
	if err := s.addObjective(in); err != nil {
		return err
	}
	if err := s.addConstraints(in); err != nil {
		return err
	}
	if err := s.mdl.Update(); err != nil {
		return err
	}
	s.state = StateBuilt
	s.log.Infow("stage2 model built",
		"model", s.name, "vars", s.mdl.NumVars(), "constrs", s.mdl.NumConstrs())
	return nil
}

// checkFixedY rejects a frozen selection that violates tier exclusivity,
// which would make the reduced model meaningless.
func (s *Stage2) checkFixedY(in Inputs) error {
	for _, sat := range in.Satellites {
		sum := 0.0
		for _, q := range sat.Tiers() {
			sum += s.fixedY[model.SatTier{Satellite: sat.ID, Tier: q}]
		}
		if sum > 1+posEps {
			return fmt.Errorf("fixed tier selection for satellite %s sums to %v, exceeds 1", sat.ID, sum)
		}
	}
	return nil
}

func (s *Stage2) addVariables(in Inputs) {
	for _, sat := range in.Satellites {
		open := s.openTiers(sat)
		for _, q := range open {
			for t := 0; t < s.periods; t++ {
				s.varX[model.SatTierPeriod{Satellite: sat.ID, Tier: q, Period: t}] =
					s.mdl.AddVar(solver.Binary, fmt.Sprintf("X[%s,%s,%d]", sat.ID, q, t))
			}
		}
		if len(open) == 0 {
			continue
		}
		for _, px := range in.Pixels {
			for t := 0; t < s.periods; t++ {
				s.varZ[model.SatPixelPeriod{Satellite: sat.ID, Pixel: px.ID, Period: t}] =
					s.mdl.AddVar(solver.Binary, fmt.Sprintf("Z[%s,%s,%d]", sat.ID, px.ID, t))
			}
		}
	}
	for _, px := range in.Pixels {
		for t := 0; t < s.periods; t++ {
			s.varW[model.PixelPeriod{Pixel: px.ID, Period: t}] =
				s.mdl.AddVar(solver.Binary, fmt.Sprintf("W[%s,%d]", px.ID, t))
		}
	}
}

func (s *Stage2) addObjective(in Inputs) error {
	for _, sat := range in.Satellites {
		open := s.openTiers(sat)
		for _, q := range open {
			s.costAllocation += s.fixedY[model.SatTier{Satellite: sat.ID, Tier: q}] * sat.CostFixed[q]
			for t := 0; t < s.periods; t++ {
				op, err := operatingCost(sat, q, t)
				if err != nil {
					return err
				}
				s.costOperating.AddTerm(s.varX[model.SatTierPeriod{Satellite: sat.ID, Tier: q, Period: t}], op)
			}
		}
		if len(open) == 0 {
			continue
		}
		for _, px := range in.Pixels {
			for t := 0; t < s.periods; t++ {
				key := model.SatPixelPeriod{Satellite: sat.ID, Pixel: px.ID, Period: t}
				c, err := satelliteCost(in.Costs, key)
				if err != nil {
					return err
				}
				s.costSatellite.AddTerm(s.varZ[key], c)
			}
		}
	}
	for _, px := range in.Pixels {
		for t := 0; t < s.periods; t++ {
			key := model.PixelPeriod{Pixel: px.ID, Period: t}
			c, err := dcCost(in.Costs, key)
			if err != nil {
				return err
			}
			s.costDC.AddTerm(s.varW[key], c)
		}
	}

	var total solver.LinExpr
	total.AddConst(s.costAllocation)
	total.Add(s.costOperating)
	total.Add(s.costSatellite)
	total.Add(s.costDC)
	s.mdl.SetObjective(total, solver.Minimize)
	return nil
}

func (s *Stage2) addConstraints(in Inputs) error {
	// operating bounded by the frozen selection value
	for _, sat := range in.Satellites {
		for _, q := range s.openTiers(sat) {
			yVal := s.fixedY[model.SatTier{Satellite: sat.ID, Tier: q}]
			for t := 0; t < s.periods; t++ {
				var expr solver.LinExpr
				expr.AddTerm(s.varX[model.SatTierPeriod{Satellite: sat.ID, Tier: q, Period: t}], 1)
				s.mdl.AddConstr(constrName(famOperateSelected, sat.ID, q, t), expr, solver.LessEqual, yVal)
			}
		}
	}

	// assigning a pixel requires an operating tier that period
	for _, sat := range in.Satellites {
		open := s.openTiers(sat)
		if len(open) == 0 {
			continue
		}
		for _, px := range in.Pixels {
			for t := 0; t < s.periods; t++ {
				var expr solver.LinExpr
				expr.AddTerm(s.varZ[model.SatPixelPeriod{Satellite: sat.ID, Pixel: px.ID, Period: t}], 1)
				for _, q := range open {
					expr.AddTerm(s.varX[model.SatTierPeriod{Satellite: sat.ID, Tier: q, Period: t}], -1)
				}
				s.mdl.AddConstr(constrName(famAssignOperating, sat.ID, px.ID, t), expr, solver.LessEqual, 0)
			}
		}
	}

	// capacity against the frozen selection
	for _, sat := range in.Satellites {
		open := s.openTiers(sat)
		if len(open) == 0 {
			continue
		}
		capAvail := 0.0
		for _, q := range open {
			capAvail += s.fixedY[model.SatTier{Satellite: sat.ID, Tier: q}] * sat.Capacity[q]
		}
		for t := 0; t < s.periods; t++ {
			var expr solver.LinExpr
			for _, px := range in.Pixels {
				key := model.SatPixelPeriod{Satellite: sat.ID, Pixel: px.ID, Period: t}
				fleet, err := fleetRequired(in.Fleet, key)
				if err != nil {
					return err
				}
				expr.AddTerm(s.varZ[key], fleet)
			}
			s.mdl.AddConstr(constrName(famCapacity, sat.ID, t), expr, solver.LessEqual, capAvail)
		}
	}

	// every pixel-period served exactly once
	for _, px := range in.Pixels {
		for t := 0; t < s.periods; t++ {
			var expr solver.LinExpr
			for _, sat := range in.Satellites {
				if v, ok := s.varZ[model.SatPixelPeriod{Satellite: sat.ID, Pixel: px.ID, Period: t}]; ok {
					expr.AddTerm(v, 1)
				}
			}
			expr.AddTerm(s.varW[model.PixelPeriod{Pixel: px.ID, Period: t}], 1)
			s.mdl.AddConstr(constrName(famCoverage, px.ID, t), expr, solver.Equal, 1)
		}
	}
	return nil
}

func (s *Stage2) Optimize() solver.Status {
	if s.state != StateBuilt {
		s.log.Errorw("optimize called before build", "model", s.name, "state", s.state.String())
		s.status = solver.StatusError
		s.state = StateFailed
		return s.status
	}
	s.status = s.mdl.Optimize()
	if s.status.Accepted() {
		s.state = StateOptimized
	} else {
		s.state = StateFailed
	}
	s.log.Infow("stage2 solve finished",
		"model", s.name, "status", s.status.String(), "objective", s.mdl.ObjValue())
	return s.status
}

// Results extracts the solution. Y echoes the frozen selection; the
// allocation cost metric is the stored constant, not a solver expression.
func (s *Stage2) Results() (*Results, bool) {
	if s.state != StateOptimized || !s.status.Accepted() {
		return nil, false
	}
	res := &Results{
		Assignments: Assignments{
			Y: map[model.SatTier]float64{},
			X: map[model.SatTierPeriod]float64{},
			Z: map[model.SatPixelPeriod]float64{},
			W: map[model.PixelPeriod]float64{},
		},
	}
	for key, val := range s.fixedY {
		if val > posEps {
			res.Assignments.Y[key] = val
		}
	}
	for key, v := range s.varX {
		if val := s.mdl.Value(v); val > posEps {
			res.Assignments.X[key] = val
		}
	}
	for key, v := range s.varZ {
		if val := s.mdl.Value(v); val > posEps {
			res.Assignments.Z[key] = val
		}
	}
	for key, v := range s.varW {
		if val := s.mdl.Value(v); val > posEps {
			res.Assignments.W[key] = val
		}
	}
	res.Metrics = Metrics{
		Model:                    s.mdl.Diagnostics(),
		CostAllocationSatellites: s.costAllocation,
		CostOperatingSatellites:  s.mdl.ExprValue(s.costOperating),
		CostServedFromSatellite:  s.mdl.ExprValue(s.costSatellite),
		CostServedFromDC:         s.mdl.ExprValue(s.costDC),
		CostTotal:                s.mdl.ObjValue(),
		Constraints:              groupSlacks(s.mdl.Slacks()),
	}
	s.state = StateResultsExtracted
	return res, true
}
