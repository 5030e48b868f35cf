package design

import (
	"math"
	"testing"

	"satnet/internal/model"
	"satnet/internal/solver"
)

func solveStage2(t *testing.T, in Inputs, fixedY map[model.SatTier]float64) (*Stage2, *Results) {
	t.Helper()
	s := NewStage2("t2", 1, fixedY, solver.New("t2", testLogger()), testLogger())
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

func TestStage2FrozenSelection(t *testing.T) {
	in := twoTierInputs(8, 10, 1000)
	fixedY := map[model.SatTier]float64{{Satellite: "s1", Tier: "A"}: 1}
	s, res := solveStage2(t, in, fixedY)

	// X only for the frozen tier, Z for the open satellite, W for the pixel
	if got := s.mdl.NumVars(); got != 3 {
		t.Fatalf("variable count: got %d want 3", got)
	}
	if got := res.Assignments.Y[model.SatTier{Satellite: "s1", Tier: "A"}]; got != 1 {
		t.Fatalf("frozen selection not echoed: %v", res.Assignments.Y)
	}
	if got := res.Assignments.Z[model.SatPixelPeriod{Satellite: "s1", Pixel: "k1", Period: 0}]; got != 1 {
		t.Fatalf("expected satellite assignment, Z=%v", res.Assignments.Z)
	}
	if res.Metrics.CostAllocationSatellites != 100 {
		t.Fatalf("allocation constant: got %v want 100", res.Metrics.CostAllocationSatellites)
	}
	if got := res.Metrics.CostTotal; math.Abs(got-115) > 1e-9 {
		t.Fatalf("total cost: got %v want 115", got)
	}
}

func TestStage2PrunesClosedSatellites(t *testing.T) {
	in := twoTierInputs(8, 10, 1000)
	s, res := solveStage2(t, in, map[model.SatTier]float64{})

	// nothing open: only the DC-direct variables and coverage rows exist
	if got := s.mdl.NumVars(); got != 1 {
		t.Fatalf("variable count: got %d want 1", got)
	}
	if got := s.mdl.NumConstrs(); got != 1 {
		t.Fatalf("constraint count: got %d want 1", got)
	}
	if got := res.Assignments.W[model.PixelPeriod{Pixel: "k1", Period: 0}]; got != 1 {
		t.Fatalf("expected forced DC-direct service, W=%v", res.Assignments.W)
	}
	if res.Metrics.CostAllocationSatellites != 0 {
		t.Fatalf("allocation constant: got %v want 0", res.Metrics.CostAllocationSatellites)
	}
}

func TestStage2MatchesStage1Objective(t *testing.T) {
	in := twoTierInputs(8, 10, 1000)
	_, res1 := solveStage1(t, in)
	_, res2 := solveStage2(t, in, res1.Assignments.Y)

	if math.Abs(res1.Metrics.CostTotal-res2.Metrics.CostTotal) > 1e-9 {
		t.Fatalf("objectives differ: stage1=%v stage2=%v", res1.Metrics.CostTotal, res2.Metrics.CostTotal)
	}
}

func TestStage2RejectsConflictingSelection(t *testing.T) {
	in := twoTierInputs(8, 10, 1000)
	fixedY := map[model.SatTier]float64{
		{Satellite: "s1", Tier: "A"}: 1,
		{Satellite: "s1", Tier: "B"}: 1,
	}
	s := NewStage2("t2", 1, fixedY, solver.New("t2", testLogger()), testLogger())
	if err := s.Build(in); err == nil {
		t.Fatal("expected error for selection violating tier exclusivity")
	}
}

func TestStage2SharedCapacityPartialService(t *testing.T) {
	// frozen tier A (capacity 10) cannot carry both loads 7 and 8, so
	// exactly one pixel stays on the satellite and the other falls back
	in := twoPixelInputs(7, 8, 10, 1000)
	fixedY := map[model.SatTier]float64{{Satellite: "s1", Tier: "A"}: 1}
	_, res := solveStage2(t, in, fixedY)

	if len(res.Assignments.Z) != 1 || len(res.Assignments.W) != 1 {
		t.Fatalf("expected one satellite assignment and one fallback, Z=%v W=%v",
			res.Assignments.Z, res.Assignments.W)
	}
	if got := res.Metrics.CostTotal; math.Abs(got-1115) > 1e-9 {
		t.Fatalf("total cost: got %v want 1115", got)
	}
}

func TestStage2CapacityStillBinds(t *testing.T) {
	// freezing tier A (capacity 10) with a load of 15 forces DC fallback
	in := twoTierInputs(15, 10, 1000)
	fixedY := map[model.SatTier]float64{{Satellite: "s1", Tier: "A"}: 1}
	_, res := solveStage2(t, in, fixedY)

	if len(res.Assignments.Z) != 0 {
		t.Fatalf("assignment should exceed frozen capacity, Z=%v", res.Assignments.Z)
	}
	if got := res.Assignments.W[model.PixelPeriod{Pixel: "k1", Period: 0}]; got != 1 {
		t.Fatalf("expected DC fallback, W=%v", res.Assignments.W)
	}
	// the opening cost of the frozen tier is paid regardless
	if res.Metrics.CostAllocationSatellites != 100 {
		t.Fatalf("allocation constant: got %v want 100", res.Metrics.CostAllocationSatellites)
	}
}
