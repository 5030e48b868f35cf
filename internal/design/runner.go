package design

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"satnet/internal/ca"
	"satnet/internal/model"
	"satnet/internal/solver"
)

// Runner executes the full design pipeline over one scenario: fleet
// estimation, the Stage1 MILP, then the Stage2 re-optimization with the tier
// selection frozen. A stage that terminates without an accepted solution is
// not an error; the plan records it and carries no results for that stage.
type Runner struct {
	Log *zap.SugaredLogger

	// NewModel supplies solver sessions; nil means the bundled engine.
	NewModel func(name string) solver.Model

	// Emit, when set, receives progress events keyed by plan id.
	Emit func(planID, event string, data map[string]any)

	// Observe, when set, receives per-stage solve timings.
	Observe func(stage, status string, seconds float64)
}

func (r *Runner) newModel(name string) solver.Model {
	if r.NewModel != nil {
		return r.NewModel(name)
	}
	return solver.New(name, r.Log)
}

func (r *Runner) emit(planID, event string, data map[string]any) {
	if r.Emit != nil {
		r.Emit(planID, event, data)
	}
}

func (r *Runner) observe(stage, status string, seconds float64) {
	if r.Observe != nil {
		r.Observe(stage, status, seconds)
	}
}

// Run executes the pipeline. An empty id gets a generated one; callers that
// stream progress pass the id they handed out. It returns an error only for
// input-contract violations (invalid scenario, missing table entries, bad
// parameters); solver outcomes are reported through the plan status.
func (r *Runner) Run(id string, sc *model.Scenario, params map[string]float64) (*Plan, error) {
	sc.Normalize()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	plan := &Plan{
		ID:         id,
		ScenarioID: sc.ID,
		Status:     PlanNoResults,
		Params:     params,
		CreatedAt:  time.Now().UTC(),
	}
	r.Log.Infow("design run starting", "plan", plan.ID, "scenario", sc.ID,
		"satellites", len(sc.Satellites), "pixels", len(sc.Pixels), "periods", sc.Periods)

	est := ca.NewEstimator(sc.SatelliteByID(), sc.Periods,
		sc.Vehicles[model.VehicleSmall], sc.Vehicles[model.VehicleLarge], r.Log)
	fleet, err := est.Tables(sc.PixelByID(), sc.SatelliteDistances(), sc.DCDistances())
	if err != nil {
		return nil, err
	}
	r.emit(plan.ID, "estimation.completed", map[string]any{
		"satelliteEntries": len(fleet.Satellite),
		"dcEntries":        len(fleet.DC),
	})

	in := Inputs{
		Satellites: sc.Satellites,
		Pixels:     sc.Pixels,
		Fleet:      fleet,
		Costs:      sc.Costs(),
	}

	s1 := NewStage1("stage1-"+plan.ID, sc.Periods, r.newModel("stage1-"+plan.ID), r.Log)
	if err := s1.SetParams(params); err != nil {
		return nil, err
	}
	if err := s1.Build(in); err != nil {
		return nil, err
	}
	r.emit(plan.ID, "stage1.built", map[string]any{"describe": s1.Describe()})

	start := time.Now()
	st1 := s1.Optimize()
	r.observe("stage1", st1.String(), time.Since(start).Seconds())
	r.emit(plan.ID, "stage1.optimized", map[string]any{"status": st1.String()})

	res1, ok := s1.Results()
	if !ok {
		plan.Stage1 = &Report{Status: st1.String()}
		r.Log.Warnw("stage1 produced no results", "plan", plan.ID, "status", st1.String())
		return plan, nil
	}
	plan.Stage1 = res1.Report(st1)

	s2 := NewStage2("stage2-"+plan.ID, sc.Periods, res1.Assignments.Y, r.newModel("stage2-"+plan.ID), r.Log)
	if err := s2.SetParams(params); err != nil {
		return nil, err
	}
	if err := s2.Build(in); err != nil {
		return nil, err
	}
	r.emit(plan.ID, "stage2.built", map[string]any{"describe": s2.Describe()})

	start = time.Now()
	st2 := s2.Optimize()
	r.observe("stage2", st2.String(), time.Since(start).Seconds())
	r.emit(plan.ID, "stage2.optimized", map[string]any{"status": st2.String()})

	res2, ok := s2.Results()
	if !ok {
		plan.Stage2 = &Report{Status: st2.String()}
		r.Log.Warnw("stage2 produced no results", "plan", plan.ID, "status", st2.String())
		return plan, nil
	}
	plan.Stage2 = res2.Report(st2)
	plan.Status = PlanCompleted

	r.Log.Infow("design run finished", "plan", plan.ID,
		"stage1Objective", plan.Stage1.Objective, "stage2Objective", plan.Stage2.Objective)
	return plan, nil
}
