package design

import (
	"math"
	"testing"

	"satnet/internal/model"
)

func runnerVehicle(typ string) *model.Vehicle {
	return &model.Vehicle{
		ID: "v-" + typ, Type: typ,
		Capacity:        50,
		TimeService:     0.05,
		TimeFixed:       0.1,
		TimeDispatch:    0.5,
		TimeLoad:        0.01,
		SpeedLineHaul:   40,
		MaxTimeServices: 8,
		K:               1.0,
	}
}

func runnerScenario() *model.Scenario {
	return &model.Scenario{
		ID:      "sc1",
		Periods: 1,
		Satellites: []*model.Satellite{{
			ID:             "s1",
			DistanceFromDC: 12,
			CostFixed:      map[string]float64{"A": 100, "B": 150},
			CostOperation:  map[string][]float64{"A": {5}, "B": {6}},
			Capacity:       map[string]float64{"A": 10, "B": 20},
		}},
		Pixels: []*model.Pixel{{
			ID:             "k1",
			AreaKm:         4,
			DemandByPeriod: []float64{200},
			AvgDrop:        []float64{2},
			AvgStop:        []float64{100},
			SpeedIntraStop: map[string]float64{model.VehicleSmall: 10, model.VehicleLarge: 15},
		}},
		Vehicles: map[string]*model.Vehicle{
			model.VehicleSmall: runnerVehicle(model.VehicleSmall),
			model.VehicleLarge: runnerVehicle(model.VehicleLarge),
		},
		DistancesSatellite: []model.SatPixelDistance{{Satellite: "s1", Pixel: "k1", Km: 5}},
		DistancesDC:        []model.PixelDistance{{Pixel: "k1", Km: 20}},
		CostSatellite:      []model.SatServiceCost{{Satellite: "s1", Pixel: "k1", Period: 0, Total: 10}},
		CostDC:             []model.DCServiceCost{{Pixel: "k1", Period: 0, Total: 1000}},
	}
}

func TestRunnerCompletesPlan(t *testing.T) {
	var events []string
	var stages []string
	r := &Runner{
		Log: testLogger(),
		Emit: func(planID, event string, data map[string]any) {
			events = append(events, event)
		},
		Observe: func(stage, status string, seconds float64) {
			stages = append(stages, stage+":"+status)
		},
	}
	plan, err := r.Run("", runnerScenario(), map[string]float64{"TimeLimit": 30})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if plan.Status != PlanCompleted {
		t.Fatalf("plan status: got %s want %s", plan.Status, PlanCompleted)
	}
	if plan.ID == "" || plan.ScenarioID != "sc1" {
		t.Fatalf("plan identity wrong: %+v", plan)
	}
	if plan.Stage1 == nil || plan.Stage2 == nil {
		t.Fatal("both stage reports expected")
	}
	if len(plan.Stage1.TierSelections) != 1 || plan.Stage1.TierSelections[0].Tier != "A" {
		t.Fatalf("stage1 tier selection: %+v", plan.Stage1.TierSelections)
	}
	if got := plan.Stage2.TierSelections; len(got) != 1 || got[0].Tier != "A" {
		t.Fatalf("stage2 must echo the frozen selection: %+v", got)
	}
	if plan.Stage2.Objective > plan.Stage1.Objective+1e-9 {
		t.Fatalf("stage2 objective worse than stage1: %v > %v", plan.Stage2.Objective, plan.Stage1.Objective)
	}

	want := []string{"estimation.completed", "stage1.built", "stage1.optimized", "stage2.built", "stage2.optimized"}
	if len(events) != len(want) {
		t.Fatalf("events: got %v want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: got %s want %s", i, events[i], want[i])
		}
	}
	if len(stages) != 2 || stages[0] != "stage1:optimal" || stages[1] != "stage2:optimal" {
		t.Fatalf("observed stages: %v", stages)
	}
}

func TestRunnerDeterministic(t *testing.T) {
	r := &Runner{Log: testLogger()}
	p1, err := r.Run("", runnerScenario(), nil)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	p2, err := r.Run("", runnerScenario(), nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if math.Abs(p1.Stage1.Objective-p2.Stage1.Objective) > 1e-12 {
		t.Fatalf("stage1 objectives differ: %v vs %v", p1.Stage1.Objective, p2.Stage1.Objective)
	}
	if len(p1.Stage1.Assignments) != len(p2.Stage1.Assignments) {
		t.Fatal("assignment rows differ between identical runs")
	}
	if p1.ID == p2.ID {
		t.Fatal("plans must get distinct ids")
	}
}

func TestRunnerRejectsInvalidScenario(t *testing.T) {
	sc := runnerScenario()
	delete(sc.Vehicles, model.VehicleLarge)
	r := &Runner{Log: testLogger()}
	if _, err := r.Run("", sc, nil); err == nil {
		t.Fatal("expected validation error for missing vehicle profile")
	}
}

func TestRunnerRejectsUnknownParam(t *testing.T) {
	r := &Runner{Log: testLogger()}
	if _, err := r.Run("", runnerScenario(), map[string]float64{"Presolve": 1}); err == nil {
		t.Fatal("expected error for unrecognized solver parameter")
	}
}
