package api

import (
	"fmt"

	"satnet/internal/model"
)

// allowed pass-through solver parameters on plan requests
var allowedParams = map[string]struct{}{
	"TimeLimit": {},
	"MIPGap":    {},
	"Threads":   {},
}

func validateScenario(sc *model.Scenario) error {
	sc.Normalize()
	return sc.Validate()
}

func validateParams(params map[string]float64) error {
	for k, v := range params {
		if _, ok := allowedParams[k]; !ok {
			return fmt.Errorf("unknown solver parameter: %s (allowed: TimeLimit,MIPGap,Threads)", k)
		}
		switch k {
		case "TimeLimit":
			if v <= 0 {
				return fmt.Errorf("TimeLimit must be > 0")
			}
		case "MIPGap":
			if v < 0 || v >= 1 {
				return fmt.Errorf("MIPGap must be in [0,1)")
			}
		case "Threads":
			if v < 1 {
				return fmt.Errorf("Threads must be >= 1")
			}
		}
	}
	return nil
}

// mergeParams overlays request params on the configured defaults.
func mergeParams(defaults, req map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(defaults)+len(req))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range req {
		out[k] = v
	}
	return out
}
