// Package ca implements the continuous-approximation fleet sizing formulas.
// They convert aggregate pixel demand statistics into expected vehicle fleet
// and tour-time requirements without solving detailed routing.
package ca

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"satnet/internal/model"
)

// Estimator computes average fleet sizes for the satellite echelon (small
// vehicles) and the DC echelon (large vehicles). It is pure and
// deterministic aside from diagnostic logging.
type Estimator struct {
	satellites map[string]*model.Satellite
	periods    int
	small      *model.Vehicle
	large      *model.Vehicle
	log        *zap.SugaredLogger
}

func NewEstimator(satellites map[string]*model.Satellite, periods int, small, large *model.Vehicle, log *zap.SugaredLogger) *Estimator {
	return &Estimator{satellites: satellites, periods: periods, small: small, large: large, log: log}
}

// Estimate applies the CA formulas for one pixel, vehicle profile, period
// and line-haul distance. Zero-activity periods (non-positive drop, stop or
// demand) return an all-zero estimate with only the demand reported, which
// keeps division-by-zero and NaN out of the downstream cost tables.
func (e *Estimator) Estimate(px *model.Pixel, v *model.Vehicle, t int, lineHaulKm float64) model.FleetEstimate {
	if px.AvgDrop[t] <= 0 || px.AvgStop[t] <= 0 || px.DemandByPeriod[t] <= 0 {
		return model.FleetEstimate{DemandServed: px.DemandByPeriod[t]}
	}

	// stops a fully loaded vehicle can serve
	effectiveCapacity := v.Capacity / px.AvgDrop[t]

	timeServices := v.TimeFixed + v.TimeService*px.AvgDrop[t]

	// local travel between consecutive stops, from stop density
	timeIntraStop := (v.K * px.K) / (px.SpeedIntraStop[v.Type] * math.Sqrt(px.AvgDrop[t]/px.AreaKm))

	avgTourTime := effectiveCapacity * (timeServices + timeIntraStop)

	timeDispatch := v.TimeDispatch + effectiveCapacity*px.AvgDrop[t]*v.TimeLoad

	timeLineHaul := 2 * (lineHaulKm * v.K / v.SpeedLineHaul)

	// fully loaded tours one vehicle fits into its duty cycle
	beta := v.MaxTimeServices / (avgTourTime + timeDispatch + timeLineHaul)

	fleet := 0.0
	if den := beta * effectiveCapacity; den > 0 {
		fleet = px.AvgStop[t] / den
	}

	return model.FleetEstimate{
		FleetSize:         fleet,
		AvgTourTime:       avgTourTime,
		FullyLoadedTours:  beta,
		EffectiveCapacity: effectiveCapacity,
		DemandServed:      px.DemandByPeriod[t],
		AvgDrop:           px.AvgDrop[t],
		AvgStopDensity:    px.AvgStop[t],
		AvgTime:           avgTourTime + timeDispatch + timeLineHaul,
		AvgTimeDispatch:   timeDispatch,
		AvgTimeLineHaul:   timeLineHaul,
	}
}

// FromSatellites estimates small-vehicle fleet sizes over the full
// (satellite, pixel, period) cross product, using the satellite-to-pixel
// line-haul distances.
func (e *Estimator) FromSatellites(pixels map[string]*model.Pixel, distances map[model.SatPixel]float64) (map[model.SatPixelPeriod]model.FleetEstimate, error) {
	e.log.Infow("fleet size estimation from satellites running", "satellites", len(e.satellites), "pixels", len(pixels), "periods", e.periods)
	out := make(map[model.SatPixelPeriod]model.FleetEstimate, len(e.satellites)*len(pixels)*e.periods)
	sizes := make([]float64, 0, len(out))
	for t := 0; t < e.periods; t++ {
		for sid := range e.satellites {
			for _, px := range pixels {
				d, ok := distances[model.SatPixel{Satellite: sid, Pixel: px.ID}]
				if !ok {
					return nil, fmt.Errorf("line-haul distance missing for (%s,%s)", sid, px.ID)
				}
				est := e.Estimate(px, e.small, t, d)
				out[model.SatPixelPeriod{Satellite: sid, Pixel: px.ID, Period: t}] = est
				sizes = append(sizes, est.FleetSize)
			}
		}
	}
	e.log.Infow("fleet size estimation from satellites done", "entries", len(out), "meanFleetSize", stat.Mean(sizes, nil))
	return out, nil
}

// FromDC estimates large-vehicle fleet sizes over the (pixel, period) cross
// product, using the DC-to-pixel line-haul distances.
func (e *Estimator) FromDC(pixels map[string]*model.Pixel, distances map[string]float64) (map[model.PixelPeriod]model.FleetEstimate, error) {
	e.log.Infow("fleet size estimation from dc running", "pixels", len(pixels), "periods", e.periods)
	out := make(map[model.PixelPeriod]model.FleetEstimate, len(pixels)*e.periods)
	sizes := make([]float64, 0, len(out))
	for t := 0; t < e.periods; t++ {
		for _, px := range pixels {
			d, ok := distances[px.ID]
			if !ok {
				return nil, fmt.Errorf("line-haul distance missing for dc -> %s", px.ID)
			}
			est := e.Estimate(px, e.large, t, d)
			out[model.PixelPeriod{Pixel: px.ID, Period: t}] = est
			sizes = append(sizes, est.FleetSize)
		}
	}
	e.log.Infow("fleet size estimation from dc done", "entries", len(out), "meanFleetSize", stat.Mean(sizes, nil))
	return out, nil
}

// Tables runs both batch estimations and bundles the result the way the
// design models consume it.
func (e *Estimator) Tables(pixels map[string]*model.Pixel, satDistances map[model.SatPixel]float64, dcDistances map[string]float64) (model.FleetTables, error) {
	sat, err := e.FromSatellites(pixels, satDistances)
	if err != nil {
		return model.FleetTables{}, err
	}
	dc, err := e.FromDC(pixels, dcDistances)
	if err != nil {
		return model.FleetTables{}, err
	}
	return model.FleetTables{Satellite: sat, DC: dc}, nil
}
