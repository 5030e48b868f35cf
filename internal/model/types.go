package model

import (
	"fmt"
	"sort"
	"time"
)

// Vehicle profile types. Small vehicles run satellite-to-pixel delivery
// tours, large vehicles run DC-to-pixel tours.
const (
	VehicleSmall = "small"
	VehicleLarge = "large"
)

// Defaults carried over from the reference cost calibration.
const (
	DefaultPixelK       = 0.57
	DefaultCostSourcing = 0.335 / 2
)

type Location struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Satellite is a candidate intermediate facility. Capacity, fixed cost and
// per-period operating cost are all indexed by capacity tier; at most one
// tier may be selected per satellite in any feasible design.
type Satellite struct {
	ID             string               `json:"id"`
	Location       Location             `json:"location"`
	DistanceFromDC float64              `json:"distanceFromDc"`
	DurationFromDC float64              `json:"durationFromDc,omitempty"`
	CostFixed      map[string]float64   `json:"costFixed"`     // tier -> opening cost
	CostOperation  map[string][]float64 `json:"costOperation"` // tier -> cost per period
	Capacity       map[string]float64   `json:"capacity"`      // tier -> capacity units
	CostSourcing   float64              `json:"costSourcing,omitempty"`
}

// Tiers returns the satellite's tier ids in sorted order so that model
// construction iterates deterministically.
func (s *Satellite) Tiers() []string {
	tiers := make([]string, 0, len(s.Capacity))
	for q := range s.Capacity {
		tiers = append(tiers, q)
	}
	sort.Strings(tiers)
	return tiers
}

// Pixel is a geographically aggregated demand cell. DemandByPeriod is
// attached by the scenario overlay after the base entity is loaded. A period
// with non-positive avg drop, avg stop or demand is a zero-activity period.
type Pixel struct {
	ID                string             `json:"id"`
	Location          Location           `json:"location"`
	AreaKm            float64            `json:"areaKm"`
	CustomersByPeriod []float64          `json:"customersByPeriod,omitempty"`
	DemandByPeriod    []float64          `json:"demandByPeriod"`
	AvgDrop           []float64          `json:"avgDrop"`        // avg parcels per stop, per period
	AvgStop           []float64          `json:"avgStop"`        // avg stops, per period
	SpeedIntraStop    map[string]float64 `json:"speedIntraStop"` // vehicle type -> km/h
	K                 float64            `json:"k,omitempty"`
}

// Vehicle is a delivery vehicle profile used by the continuous-approximation
// fleet estimator. Times are hours, speeds km/h, distances km.
type Vehicle struct {
	ID              string  `json:"id"`
	Type            string  `json:"type"`
	Capacity        float64 `json:"capacity"`
	CostFixed       float64 `json:"costFixed"`
	TimeService     float64 `json:"timeService"`
	TimeFixed       float64 `json:"timeFixed"`
	TimeDispatch    float64 `json:"timeDispatch"`
	TimeLoad        float64 `json:"timeLoad"`
	SpeedLineHaul   float64 `json:"speedLineHaul"`
	MaxTimeServices float64 `json:"maxTimeServices"` // duty-cycle cap (Tmax)
	K               float64 `json:"k"`
}

// Index tuples used as map keys across the estimator, the design models and
// result extraction. Comparable structs, not pointer graphs.

type SatTier struct {
	Satellite string `json:"satellite"`
	Tier      string `json:"tier"`
}

type SatTierPeriod struct {
	Satellite string `json:"satellite"`
	Tier      string `json:"tier"`
	Period    int    `json:"period"`
}

type SatPixel struct {
	Satellite string `json:"satellite"`
	Pixel     string `json:"pixel"`
}

type SatPixelPeriod struct {
	Satellite string `json:"satellite"`
	Pixel     string `json:"pixel"`
	Period    int    `json:"period"`
}

type PixelPeriod struct {
	Pixel  string `json:"pixel"`
	Period int    `json:"period"`
}

// FleetEstimate is the output of the continuous-approximation formulas for
// one (pixel, vehicle, period, line-haul distance) combination.
type FleetEstimate struct {
	FleetSize         float64 `json:"fleetSize"`
	AvgTourTime       float64 `json:"avgTourTime"`
	FullyLoadedTours  float64 `json:"fullyLoadedTours"`
	EffectiveCapacity float64 `json:"effectiveCapacity"`
	DemandServed      float64 `json:"demandServed"`
	AvgDrop           float64 `json:"avgDrop"`
	AvgStopDensity    float64 `json:"avgStopDensity"`
	AvgTime           float64 `json:"avgTime"`
	AvgTimeDispatch   float64 `json:"avgTimeDispatch"`
	AvgTimeLineHaul   float64 `json:"avgTimeLineHaul"`
}

// ServiceCost is one entry of the precomputed transportation cost tables.
type ServiceCost struct {
	Total float64 `json:"total"`
}

// CostTables holds the per-assignment service costs consumed by the design
// models: satellite-to-pixel and DC-to-pixel, both per period.
type CostTables struct {
	Satellite map[SatPixelPeriod]ServiceCost
	DC        map[PixelPeriod]ServiceCost
}

// FleetTables holds the estimator output keyed the way each constraint
// family consumes it: small-vehicle estimates per (satellite, pixel, period)
// and large-vehicle estimates per (pixel, period).
type FleetTables struct {
	Satellite map[SatPixelPeriod]FleetEstimate
	DC        map[PixelPeriod]FleetEstimate
}

// Scenario is the JSON-friendly input bundle registered through the API:
// entities plus the precomputed distance and cost tables produced by the
// upstream data pipeline. Tables arrive as row slices and are converted to
// tuple-keyed maps before model construction.
type Scenario struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name,omitempty"`
	Periods            int                 `json:"periods"`
	Satellites         []*Satellite        `json:"satellites"`
	Pixels             []*Pixel            `json:"pixels"`
	Vehicles           map[string]*Vehicle `json:"vehicles"` // keyed by type
	DistancesSatellite []SatPixelDistance  `json:"distancesSatellite"`
	DistancesDC        []PixelDistance     `json:"distancesDc"`
	CostSatellite      []SatServiceCost    `json:"costSatellite"`
	CostDC             []DCServiceCost     `json:"costDc"`
	CreatedAt          time.Time           `json:"createdAt,omitempty"`
}

type SatPixelDistance struct {
	Satellite string  `json:"satellite"`
	Pixel     string  `json:"pixel"`
	Km        float64 `json:"km"`
}

type PixelDistance struct {
	Pixel string  `json:"pixel"`
	Km    float64 `json:"km"`
}

type SatServiceCost struct {
	Satellite string  `json:"satellite"`
	Pixel     string  `json:"pixel"`
	Period    int     `json:"period"`
	Total     float64 `json:"total"`
}

type DCServiceCost struct {
	Pixel  string  `json:"pixel"`
	Period int     `json:"period"`
	Total  float64 `json:"total"`
}

// SatelliteDistances converts the satellite line-haul rows to a keyed map.
func (sc *Scenario) SatelliteDistances() map[SatPixel]float64 {
	out := make(map[SatPixel]float64, len(sc.DistancesSatellite))
	for _, d := range sc.DistancesSatellite {
		out[SatPixel{Satellite: d.Satellite, Pixel: d.Pixel}] = d.Km
	}
	return out
}

// DCDistances converts the DC line-haul rows to a keyed map.
func (sc *Scenario) DCDistances() map[string]float64 {
	out := make(map[string]float64, len(sc.DistancesDC))
	for _, d := range sc.DistancesDC {
		out[d.Pixel] = d.Km
	}
	return out
}

// Costs converts the cost rows to the tuple-keyed tables the design models
// consume.
func (sc *Scenario) Costs() CostTables {
	ct := CostTables{
		Satellite: make(map[SatPixelPeriod]ServiceCost, len(sc.CostSatellite)),
		DC:        make(map[PixelPeriod]ServiceCost, len(sc.CostDC)),
	}
	for _, c := range sc.CostSatellite {
		ct.Satellite[SatPixelPeriod{Satellite: c.Satellite, Pixel: c.Pixel, Period: c.Period}] = ServiceCost{Total: c.Total}
	}
	for _, c := range sc.CostDC {
		ct.DC[PixelPeriod{Pixel: c.Pixel, Period: c.Period}] = ServiceCost{Total: c.Total}
	}
	return ct
}

// SatelliteByID returns the satellite map keyed by id.
func (sc *Scenario) SatelliteByID() map[string]*Satellite {
	out := make(map[string]*Satellite, len(sc.Satellites))
	for _, s := range sc.Satellites {
		out[s.ID] = s
	}
	return out
}

// PixelByID returns the pixel map keyed by id.
func (sc *Scenario) PixelByID() map[string]*Pixel {
	out := make(map[string]*Pixel, len(sc.Pixels))
	for _, p := range sc.Pixels {
		out[p.ID] = p
	}
	return out
}

// Normalize fills entity defaults the upstream pipeline may omit.
func (sc *Scenario) Normalize() {
	for _, p := range sc.Pixels {
		if p.K == 0 {
			p.K = DefaultPixelK
		}
	}
	for _, s := range sc.Satellites {
		if s.CostSourcing == 0 {
			s.CostSourcing = DefaultCostSourcing
		}
	}
}

// Validate checks the scenario is internally consistent: period-indexed
// slices match Periods, both vehicle profiles exist, and the distance and
// cost tables cover the full cross product the models will index.
func (sc *Scenario) Validate() error {
	if sc.Periods <= 0 {
		return fmt.Errorf("periods must be >= 1")
	}
	if len(sc.Satellites) == 0 {
		return fmt.Errorf("at least one satellite required")
	}
	if len(sc.Pixels) == 0 {
		return fmt.Errorf("at least one pixel required")
	}
	for _, typ := range []string{VehicleSmall, VehicleLarge} {
		v, ok := sc.Vehicles[typ]
		if !ok || v == nil {
			return fmt.Errorf("vehicle profile %q missing", typ)
		}
		if v.Capacity <= 0 {
			return fmt.Errorf("vehicle %q: capacity must be > 0", typ)
		}
		if v.SpeedLineHaul <= 0 {
			return fmt.Errorf("vehicle %q: speedLineHaul must be > 0", typ)
		}
	}
	for _, s := range sc.Satellites {
		if len(s.Capacity) == 0 {
			return fmt.Errorf("satellite %s: no capacity tiers", s.ID)
		}
		for q := range s.Capacity {
			if _, ok := s.CostFixed[q]; !ok {
				return fmt.Errorf("satellite %s: tier %s missing fixed cost", s.ID, q)
			}
			op, ok := s.CostOperation[q]
			if !ok {
				return fmt.Errorf("satellite %s: tier %s missing operating costs", s.ID, q)
			}
			if len(op) != sc.Periods {
				return fmt.Errorf("satellite %s: tier %s has %d operating costs, want %d", s.ID, q, len(op), sc.Periods)
			}
		}
	}
	for _, p := range sc.Pixels {
		if p.AreaKm <= 0 {
			return fmt.Errorf("pixel %s: areaKm must be > 0", p.ID)
		}
		if len(p.DemandByPeriod) != sc.Periods || len(p.AvgDrop) != sc.Periods || len(p.AvgStop) != sc.Periods {
			return fmt.Errorf("pixel %s: demand/avgDrop/avgStop must each have %d periods", p.ID, sc.Periods)
		}
		for _, typ := range []string{VehicleSmall, VehicleLarge} {
			if p.SpeedIntraStop[typ] <= 0 {
				return fmt.Errorf("pixel %s: speedIntraStop[%s] must be > 0", p.ID, typ)
			}
		}
	}
	dists := sc.SatelliteDistances()
	dcDists := sc.DCDistances()
	costs := sc.Costs()
	for _, s := range sc.Satellites {
		for _, p := range sc.Pixels {
			if _, ok := dists[SatPixel{Satellite: s.ID, Pixel: p.ID}]; !ok {
				return fmt.Errorf("line-haul distance missing for satellite %s -> pixel %s", s.ID, p.ID)
			}
			for t := 0; t < sc.Periods; t++ {
				if _, ok := costs.Satellite[SatPixelPeriod{Satellite: s.ID, Pixel: p.ID, Period: t}]; !ok {
					return fmt.Errorf("satellite service cost missing for (%s,%s,%d)", s.ID, p.ID, t)
				}
			}
		}
	}
	for _, p := range sc.Pixels {
		if _, ok := dcDists[p.ID]; !ok {
			return fmt.Errorf("line-haul distance missing for dc -> pixel %s", p.ID)
		}
		for t := 0; t < sc.Periods; t++ {
			if _, ok := costs.DC[PixelPeriod{Pixel: p.ID, Period: t}]; !ok {
				return fmt.Errorf("dc service cost missing for (%s,%d)", p.ID, t)
			}
		}
	}
	return nil
}
