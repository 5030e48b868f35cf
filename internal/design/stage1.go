package design

import (
	"fmt"

	"go.uber.org/zap"

	"satnet/internal/model"
	"satnet/internal/solver"
)

// Stage1 is the full design MILP: tier selection (Y), per-period operating
// decisions (X), pixel-to-satellite assignment (Z) and DC-direct service (W)
// are decided jointly, minimizing allocation + operating + service cost.
type Stage1 struct {
	name    string
	periods int
	mdl     solver.Model
	log     *zap.SugaredLogger

	state  State
	status solver.Status

	varY map[model.SatTier]solver.Var
	varX map[model.SatTierPeriod]solver.Var
	varZ map[model.SatPixelPeriod]solver.Var
	varW map[model.PixelPeriod]solver.Var

	costAllocation solver.LinExpr
	costOperating  solver.LinExpr
	costSatellite  solver.LinExpr
	costDC         solver.LinExpr
}

func NewStage1(name string, periods int, mdl solver.Model, log *zap.SugaredLogger) *Stage1 {
	return &Stage1{name: name, periods: periods, mdl: mdl, log: log, state: StateCreated}
}

func (s *Stage1) State() State { return s.state }

func (s *Stage1) Describe() string {
	return fmt.Sprintf("%s: state=%s status=%s vars=%d constrs=%d",
		s.name, s.state, s.status, s.mdl.NumVars(), s.mdl.NumConstrs())
}

func (s *Stage1) SetParams(params map[string]float64) error {
	return s.mdl.SetParams(params)
}

// Build regenerates the model from scratch: any prior variables, constraints
// and solution are discarded first.
func (s *Stage1) Build(in Inputs) error {
	s.mdl.Reset()
	s.state = StateCreated
	s.status = solver.StatusUnset
	s.varY = map[model.SatTier]solver.Var{}
	s.varX = map[model.SatTierPeriod]solver.Var{}
	s.varZ = map[model.SatPixelPeriod]solver.Var{}
	s.varW = map[model.PixelPeriod]solver.Var{}
	s.costAllocation = solver.LinExpr{}
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
	s.log.Infow("stage1 model built",
		"model", s.name, "vars", s.mdl.NumVars(), "constrs", s.mdl.NumConstrs())
	return nil
}

func (s *Stage1) addVariables(in Inputs) {
	for _, sat := range in.Satellites {
		for _, q := range sat.Tiers() {
			s.varY[model.SatTier{Satellite: sat.ID, Tier: q}] =
				s.mdl.AddVar(solver.Binary, fmt.Sprintf("Y[%s,%s]", sat.ID, q))
			for t := 0; t < s.periods; t++ {
				s.varX[model.SatTierPeriod{Satellite: sat.ID, Tier: q, Period: t}] =
					s.mdl.AddVar(solver.Binary, fmt.Sprintf("X[%s,%s,%d]", sat.ID, q, t))
			}
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

func (s *Stage1) addObjective(in Inputs) error {
	for _, sat := range in.Satellites {
		for _, q := range sat.Tiers() {
			s.costAllocation.AddTerm(s.varY[model.SatTier{Satellite: sat.ID, Tier: q}], sat.CostFixed[q])
			for t := 0; t < s.periods; t++ {
				op, err := operatingCost(sat, q, t)
				if err != nil {
					return err
				}
				s.costOperating.AddTerm(s.varX[model.SatTierPeriod{Satellite: sat.ID, Tier: q, Period: t}], op)
			}
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
	total.Add(s.costAllocation)
	total.Add(s.costOperating)
	total.Add(s.costSatellite)
	total.Add(s.costDC)
	s.mdl.SetObjective(total, solver.Minimize)
	return nil
}

func (s *Stage1) addConstraints(in Inputs) error {
	// at most one tier selected per satellite
	for _, sat := range in.Satellites {
		var expr solver.LinExpr
		for _, q := range sat.Tiers() {
			expr.AddTerm(s.varY[model.SatTier{Satellite: sat.ID, Tier: q}], 1)
		}
		s.mdl.AddConstr(constrName(famTierExclusivity, sat.ID), expr, solver.LessEqual, 1)
	}

	// operating a tier requires having selected it
	for _, sat := range in.Satellites {
		for _, q := range sat.Tiers() {
			y := s.varY[model.SatTier{Satellite: sat.ID, Tier: q}]
			for t := 0; t < s.periods; t++ {
				var expr solver.LinExpr
				expr.AddTerm(s.varX[model.SatTierPeriod{Satellite: sat.ID, Tier: q, Period: t}], 1)
				expr.AddTerm(y, -1)
				s.mdl.AddConstr(constrName(famOperateSelected, sat.ID, q, t), expr, solver.LessEqual, 0)
			}
		}
	}

	// assigning a pixel requires the satellite to operate some tier that period
	for _, sat := range in.Satellites {
		for _, px := range in.Pixels {
			for t := 0; t < s.periods; t++ {
				var expr solver.LinExpr
				expr.AddTerm(s.varZ[model.SatPixelPeriod{Satellite: sat.ID, Pixel: px.ID, Period: t}], 1)
				for _, q := range sat.Tiers() {
					expr.AddTerm(s.varX[model.SatTierPeriod{Satellite: sat.ID, Tier: q, Period: t}], -1)
				}
				s.mdl.AddConstr(constrName(famAssignOperating, sat.ID, px.ID, t), expr, solver.LessEqual, 0)
			}
		}
	}

	// assigned fleet requirement within selected tier capacity
	for _, sat := range in.Satellites {
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
			for _, q := range sat.Tiers() {
				expr.AddTerm(s.varY[model.SatTier{Satellite: sat.ID, Tier: q}], -sat.Capacity[q])
			}
			s.mdl.AddConstr(constrName(famCapacity, sat.ID, t), expr, solver.LessEqual, 0)
		}
	}

	// every pixel-period served exactly once, by a satellite or the DC
	for _, px := range in.Pixels {
		for t := 0; t < s.periods; t++ {
			var expr solver.LinExpr
			for _, sat := range in.Satellites {
				expr.AddTerm(s.varZ[model.SatPixelPeriod{Satellite: sat.ID, Pixel: px.ID, Period: t}], 1)
			}
			expr.AddTerm(s.varW[model.PixelPeriod{Pixel: px.ID, Period: t}], 1)
			s.mdl.AddConstr(constrName(famCoverage, px.ID, t), expr, solver.Equal, 1)
		}
	}
	return nil
}

func (s *Stage1) Optimize() solver.Status {
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
	s.log.Infow("stage1 solve finished",
		"model", s.name, "status", s.status.String(), "objective", s.mdl.ObjValue())
	return s.status
}

// Results extracts the solution. Only strictly positive variable values are
// reported. The second return is false when no accepted solution exists.
func (s *Stage1) Results() (*Results, bool) {
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
	for key, v := range s.varY {
		if val := s.mdl.Value(v); val > posEps {
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
		CostAllocationSatellites: s.mdl.ExprValue(s.costAllocation),
		CostOperatingSatellites:  s.mdl.ExprValue(s.costOperating),
		CostServedFromSatellite:  s.mdl.ExprValue(s.costSatellite),
		CostServedFromDC:         s.mdl.ExprValue(s.costDC),
		CostTotal:                s.mdl.ObjValue(),
		Constraints:              groupSlacks(s.mdl.Slacks()),
	}
	s.state = StateResultsExtracted
	return res, true
}
