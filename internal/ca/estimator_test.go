package ca

import (
	"math"
	"testing"

	"go.uber.org/zap"

	"satnet/internal/model"
)

func testVehicle(typ string) *model.Vehicle {
	return &model.Vehicle{
		ID: "v1", Type: typ,
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

func testPixel() *model.Pixel {
	return &model.Pixel{
		ID:             "k1",
		AreaKm:         4,
		DemandByPeriod: []float64{200},
		AvgDrop:        []float64{2},
		AvgStop:        []float64{100},
		SpeedIntraStop: map[string]float64{model.VehicleSmall: 10, model.VehicleLarge: 15},
		K:              0.57,
	}
}

func newTestEstimator(sats map[string]*model.Satellite) *Estimator {
	return NewEstimator(sats, 1, testVehicle(model.VehicleSmall), testVehicle(model.VehicleLarge), zap.NewNop().Sugar())
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
		t.Fatalf("%s: got %v want %v", name, got, want)
	}
}

func TestEstimateFormulas(t *testing.T) {
	e := newTestEstimator(nil)
	px := testPixel()
	v := testVehicle(model.VehicleSmall)
	est := e.Estimate(px, v, 0, 10)

	effCap := 50.0 / 2.0
	timeServices := 0.1 + 0.05*2
	timeIntra := (1.0 * 0.57) / (10 * math.Sqrt(2.0/4.0))
	tour := effCap * (timeServices + timeIntra)
	dispatch := 0.5 + effCap*2*0.01
	lineHaul := 2 * (10.0 * 1.0 / 40.0)
	beta := 8.0 / (tour + dispatch + lineHaul)
	fleet := 100.0 / (beta * effCap)

	approx(t, "effectiveCapacity", est.EffectiveCapacity, effCap)
	approx(t, "avgTourTime", est.AvgTourTime, tour)
	approx(t, "avgTimeDispatch", est.AvgTimeDispatch, dispatch)
	approx(t, "avgTimeLineHaul", est.AvgTimeLineHaul, lineHaul)
	approx(t, "fullyLoadedTours", est.FullyLoadedTours, beta)
	approx(t, "avgTime", est.AvgTime, tour+dispatch+lineHaul)
	approx(t, "fleetSize", est.FleetSize, fleet)
	approx(t, "demandServed", est.DemandServed, 200)
}

func TestEstimateZeroActivityPeriod(t *testing.T) {
	e := newTestEstimator(nil)
	v := testVehicle(model.VehicleSmall)
	cases := []struct {
		name   string
		mutate func(*model.Pixel)
	}{
		{"zero drop", func(p *model.Pixel) { p.AvgDrop[0] = 0 }},
		{"negative stop", func(p *model.Pixel) { p.AvgStop[0] = -1 }},
		{"zero demand", func(p *model.Pixel) { p.DemandByPeriod[0] = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			px := testPixel()
			tc.mutate(px)
			est := e.Estimate(px, v, 0, 10)
			if est.FleetSize != 0 || est.AvgTourTime != 0 || est.FullyLoadedTours != 0 ||
				est.EffectiveCapacity != 0 || est.AvgDrop != 0 || est.AvgStopDensity != 0 ||
				est.AvgTime != 0 || est.AvgTimeDispatch != 0 || est.AvgTimeLineHaul != 0 {
				t.Fatalf("expected all-zero estimate, got %+v", est)
			}
			if est.DemandServed != px.DemandByPeriod[0] {
				t.Fatalf("demandServed: got %v want %v", est.DemandServed, px.DemandByPeriod[0])
			}
		})
	}
}

func TestEstimateFleetGrowsWithStops(t *testing.T) {
	e := newTestEstimator(nil)
	v := testVehicle(model.VehicleSmall)
	prev := 0.0
	for i, stops := range []float64{50, 100, 200, 400} {
		px := testPixel()
		px.AvgStop[0] = stops
		est := e.Estimate(px, v, 0, 10)
		if est.FleetSize <= prev {
			t.Fatalf("fleet size not strictly increasing at step %d: %v <= %v", i, est.FleetSize, prev)
		}
		prev = est.FleetSize
	}
}

func TestBatchTables(t *testing.T) {
	sats := map[string]*model.Satellite{
		"s1": {ID: "s1"},
		"s2": {ID: "s2"},
	}
	e := NewEstimator(sats, 2, testVehicle(model.VehicleSmall), testVehicle(model.VehicleLarge), zap.NewNop().Sugar())
	px := testPixel()
	px.DemandByPeriod = []float64{200, 0}
	px.AvgDrop = []float64{2, 2}
	px.AvgStop = []float64{100, 100}
	pixels := map[string]*model.Pixel{"k1": px}
	satDist := map[model.SatPixel]float64{
		{Satellite: "s1", Pixel: "k1"}: 5,
		{Satellite: "s2", Pixel: "k1"}: 8,
	}
	dcDist := map[string]float64{"k1": 20}

	tables, err := e.Tables(pixels, satDist, dcDist)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(tables.Satellite) != 4 { // 2 sats x 1 pixel x 2 periods
		t.Fatalf("satellite table: got %d entries", len(tables.Satellite))
	}
	if len(tables.DC) != 2 {
		t.Fatalf("dc table: got %d entries", len(tables.DC))
	}
	// period 1 has zero demand: estimates must be zero-activity
	if got := tables.Satellite[model.SatPixelPeriod{Satellite: "s1", Pixel: "k1", Period: 1}]; got.FleetSize != 0 {
		t.Fatalf("expected zero fleet in zero-demand period, got %v", got.FleetSize)
	}
	// closer satellite needs no more vehicles than the farther one
	near := tables.Satellite[model.SatPixelPeriod{Satellite: "s1", Pixel: "k1", Period: 0}]
	far := tables.Satellite[model.SatPixelPeriod{Satellite: "s2", Pixel: "k1", Period: 0}]
	if near.FleetSize > far.FleetSize {
		t.Fatalf("fleet size should not decrease with line-haul distance: near=%v far=%v", near.FleetSize, far.FleetSize)
	}
}

func TestBatchMissingDistance(t *testing.T) {
	sats := map[string]*model.Satellite{"s1": {ID: "s1"}}
	e := newTestEstimator(sats)
	pixels := map[string]*model.Pixel{"k1": testPixel()}
	if _, err := e.FromSatellites(pixels, map[model.SatPixel]float64{}); err == nil {
		t.Fatal("expected error for missing satellite line-haul distance")
	}
	if _, err := e.FromDC(pixels, map[string]float64{}); err == nil {
		t.Fatal("expected error for missing dc line-haul distance")
	}
}
