package design

import (
	"math"
	"testing"

	"go.uber.org/zap"

	"satnet/internal/model"
	"satnet/internal/solver"
)

func testLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

// twoTierInputs is the canonical single-satellite fixture: tier A (capacity
// 10, opening 100) and tier B (capacity 20, opening 150) serving one pixel
// over one period.
func twoTierInputs(fleetReq, satCost, dcCost float64) Inputs {
	sat := &model.Satellite{
		ID:            "s1",
		CostFixed:     map[string]float64{"A": 100, "B": 150},
		CostOperation: map[string][]float64{"A": {5}, "B": {6}},
		Capacity:      map[string]float64{"A": 10, "B": 20},
	}
	px := &model.Pixel{ID: "k1"}
	return Inputs{
		Satellites: []*model.Satellite{sat},
		Pixels:     []*model.Pixel{px},
		Fleet: model.FleetTables{
			Satellite: map[model.SatPixelPeriod]model.FleetEstimate{
				{Satellite: "s1", Pixel: "k1", Period: 0}: {FleetSize: fleetReq},
			},
			DC: map[model.PixelPeriod]model.FleetEstimate{
				{Pixel: "k1", Period: 0}: {FleetSize: 1},
			},
		},
		Costs: model.CostTables{
			Satellite: map[model.SatPixelPeriod]model.ServiceCost{
				{Satellite: "s1", Pixel: "k1", Period: 0}: {Total: satCost},
			},
			DC: map[model.PixelPeriod]model.ServiceCost{
				{Pixel: "k1", Period: 0}: {Total: dcCost},
			},
		},
	}
}

// twoPixelInputs adds a second pixel to the fixture so both draw on the
// same tier capacity of s1, with per-pixel fleet requirements.
func twoPixelInputs(load1, load2, satCost, dcCost float64) Inputs {
	in := twoTierInputs(load1, satCost, dcCost)
	in.Pixels = append(in.Pixels, &model.Pixel{ID: "k2"})
	in.Fleet.Satellite[model.SatPixelPeriod{Satellite: "s1", Pixel: "k2", Period: 0}] = model.FleetEstimate{FleetSize: load2}
	in.Fleet.DC[model.PixelPeriod{Pixel: "k2", Period: 0}] = model.FleetEstimate{FleetSize: 1}
	in.Costs.Satellite[model.SatPixelPeriod{Satellite: "s1", Pixel: "k2", Period: 0}] = model.ServiceCost{Total: satCost}
	in.Costs.DC[model.PixelPeriod{Pixel: "k2", Period: 0}] = model.ServiceCost{Total: dcCost}
	return in
}

func solveStage1(t *testing.T, in Inputs) (*Stage1, *Results) {
	t.Helper()
	s := NewStage1("t", 1, solver.New("t", testLogger()), testLogger())
	if err := s.Build(in); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if st := s.Optimize(); !st.Accepted() {
		t.Fatalf("Optimize: %v", st)
	}
	res, ok := s.Results()
	if !ok {
		t.Fatal("Results not available after accepted solve")
	}
	return s, res
}

func TestStage1SelectsSmallTier(t *testing.T) {
	_, res := solveStage1(t, twoTierInputs(8, 10, 1000))

	if got := res.Assignments.Y[model.SatTier{Satellite: "s1", Tier: "A"}]; got != 1 {
		t.Fatalf("expected tier A selected, Y=%v", res.Assignments.Y)
	}
	if _, ok := res.Assignments.Y[model.SatTier{Satellite: "s1", Tier: "B"}]; ok {
		t.Fatal("tier B must not appear in results")
	}
	if len(res.Assignments.W) != 0 {
		t.Fatalf("no DC-direct service expected, got %v", res.Assignments.W)
	}
	if got := res.Metrics.CostTotal; math.Abs(got-115) > 1e-9 {
		t.Fatalf("total cost: got %v want 115", got)
	}
	if res.Metrics.CostAllocationSatellites != 100 || res.Metrics.CostOperatingSatellites != 5 ||
		res.Metrics.CostServedFromSatellite != 10 || res.Metrics.CostServedFromDC != 0 {
		t.Fatalf("cost components wrong: %+v", res.Metrics)
	}
}

func TestStage1SharedCapacitySmallTier(t *testing.T) {
	// combined load 5+3 fits tier A, so both pixels share one capacity row
	_, res := solveStage1(t, twoPixelInputs(5, 3, 10, 1000))

	if got := res.Assignments.Y[model.SatTier{Satellite: "s1", Tier: "A"}]; got != 1 {
		t.Fatalf("expected tier A selected, Y=%v", res.Assignments.Y)
	}
	for _, px := range []string{"k1", "k2"} {
		if got := res.Assignments.Z[model.SatPixelPeriod{Satellite: "s1", Pixel: px, Period: 0}]; got != 1 {
			t.Fatalf("pixel %s not assigned to satellite, Z=%v", px, res.Assignments.Z)
		}
	}
	if len(res.Assignments.W) != 0 {
		t.Fatalf("no DC-direct service expected, got %v", res.Assignments.W)
	}
	if got := res.Metrics.CostTotal; math.Abs(got-125) > 1e-9 {
		t.Fatalf("total cost: got %v want 125", got)
	}
}

func TestStage1SharedCapacityForcesUpgrade(t *testing.T) {
	// each load fits tier A alone, but 7+8 only fits tier B together
	_, res := solveStage1(t, twoPixelInputs(7, 8, 10, 1000))

	if got := res.Assignments.Y[model.SatTier{Satellite: "s1", Tier: "B"}]; got != 1 {
		t.Fatalf("expected tier B selected, Y=%v", res.Assignments.Y)
	}
	if _, ok := res.Assignments.Y[model.SatTier{Satellite: "s1", Tier: "A"}]; ok {
		t.Fatal("tier A must not appear in results")
	}
	for _, px := range []string{"k1", "k2"} {
		if got := res.Assignments.Z[model.SatPixelPeriod{Satellite: "s1", Pixel: px, Period: 0}]; got != 1 {
			t.Fatalf("pixel %s not assigned to satellite, Z=%v", px, res.Assignments.Z)
		}
	}
	if got := res.Metrics.CostTotal; math.Abs(got-176) > 1e-9 {
		t.Fatalf("total cost: got %v want 176", got)
	}
}

func TestStage1UpgradesTierWhenLoadExceedsCapacity(t *testing.T) {
	_, res := solveStage1(t, twoTierInputs(15, 10, 1000))

	if got := res.Assignments.Y[model.SatTier{Satellite: "s1", Tier: "B"}]; got != 1 {
		t.Fatalf("expected tier B selected, Y=%v", res.Assignments.Y)
	}
	if got := res.Metrics.CostTotal; math.Abs(got-166) > 1e-9 {
		t.Fatalf("total cost: got %v want 166", got)
	}
}

func TestStage1PrefersDirectService(t *testing.T) {
	_, res := solveStage1(t, twoTierInputs(8, 10, 1))

	if len(res.Assignments.Y) != 0 || len(res.Assignments.X) != 0 || len(res.Assignments.Z) != 0 {
		t.Fatalf("expected no satellite activity, got %+v", res.Assignments)
	}
	if got := res.Assignments.W[model.PixelPeriod{Pixel: "k1", Period: 0}]; got != 1 {
		t.Fatalf("expected DC-direct service, W=%v", res.Assignments.W)
	}
	if res.Metrics.CostServedFromDC != 1 || res.Metrics.CostTotal != 1 {
		t.Fatalf("cost components wrong: %+v", res.Metrics)
	}
}

func TestStage1SolutionInvariants(t *testing.T) {
	in := twoTierInputs(8, 10, 1000)
	_, res := solveStage1(t, in)

	// every assignment is backed by an operating tier that period
	for key := range res.Assignments.Z {
		backed := false
		for xk := range res.Assignments.X {
			if xk.Satellite == key.Satellite && xk.Period == key.Period {
				backed = true
			}
		}
		if !backed {
			t.Fatalf("assignment %v has no operating tier", key)
		}
	}
	// every operating tier is selected
	for xk := range res.Assignments.X {
		if _, ok := res.Assignments.Y[model.SatTier{Satellite: xk.Satellite, Tier: xk.Tier}]; !ok {
			t.Fatalf("operating %v without selection", xk)
		}
	}
	// assigned load within selected capacity
	for _, sat := range in.Satellites {
		load := 0.0
		for zk, v := range res.Assignments.Z {
			if zk.Satellite == sat.ID {
				load += v * in.Fleet.Satellite[zk].FleetSize
			}
		}
		capAvail := 0.0
		for yk, v := range res.Assignments.Y {
			if yk.Satellite == sat.ID {
				capAvail += v * sat.Capacity[yk.Tier]
			}
		}
		if load > capAvail+1e-9 {
			t.Fatalf("satellite %s overloaded: load=%v cap=%v", sat.ID, load, capAvail)
		}
	}
	// each pixel-period served exactly once
	for _, px := range in.Pixels {
		served := res.Assignments.W[model.PixelPeriod{Pixel: px.ID, Period: 0}]
		for zk, v := range res.Assignments.Z {
			if zk.Pixel == px.ID && zk.Period == 0 {
				served += v
			}
		}
		if math.Abs(served-1) > 1e-9 {
			t.Fatalf("pixel %s served %v times", px.ID, served)
		}
	}
}

func TestStage1SlacksGroupedByFamily(t *testing.T) {
	_, res := solveStage1(t, twoTierInputs(8, 10, 1000))

	for _, fam := range []string{famTierExclusivity, famOperateSelected, famAssignOperating, famCapacity, famCoverage} {
		if _, ok := res.Metrics.Constraints[fam]; !ok {
			t.Fatalf("constraint family %q missing from metrics", fam)
		}
	}
	for name, s := range res.Metrics.Constraints[famCoverage] {
		if math.Abs(s) > 1e-9 {
			t.Fatalf("coverage row %s has nonzero slack %v", name, s)
		}
	}
}

func TestStage1BuildMissingCost(t *testing.T) {
	in := twoTierInputs(8, 10, 1000)
	delete(in.Costs.DC, model.PixelPeriod{Pixel: "k1", Period: 0})
	s := NewStage1("t", 1, solver.New("t", testLogger()), testLogger())
	if err := s.Build(in); err == nil {
		t.Fatal("expected error for missing dc cost entry")
	}
	if s.State() == StateBuilt {
		t.Fatal("model must not reach built state after failed build")
	}
}

func TestStage1OptimizeBeforeBuild(t *testing.T) {
	s := NewStage1("t", 1, solver.New("t", testLogger()), testLogger())
	if st := s.Optimize(); st != solver.StatusError {
		t.Fatalf("status: %v, want error", st)
	}
	if _, ok := s.Results(); ok {
		t.Fatal("results must not be extractable")
	}
}

func TestStage1RebuildResets(t *testing.T) {
	s := NewStage1("t", 1, solver.New("t", testLogger()), testLogger())
	in := twoTierInputs(8, 10, 1000)
	if err := s.Build(in); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	vars := s.mdl.NumVars()
	if err := s.Build(in); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if s.mdl.NumVars() != vars {
		t.Fatalf("rebuild changed model size: %d vs %d", s.mdl.NumVars(), vars)
	}
	if st := s.Optimize(); !st.Accepted() {
		t.Fatalf("solve after rebuild: %v", st)
	}
}
