package store

import (
	"context"
	"errors"

	"satnet/internal/design"
	"satnet/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Scenarios
	CreateScenario(ctx context.Context, sc *model.Scenario) error
	GetScenario(ctx context.Context, id string) (*model.Scenario, error)
	ListScenarios(ctx context.Context, cursor string, limit int) ([]*model.Scenario, string, error)

	// Plans
	SavePlan(ctx context.Context, plan *design.Plan) error
	GetPlan(ctx context.Context, id string) (*design.Plan, error)
	ListPlans(ctx context.Context, scenarioID, cursor string, limit int) ([]*design.Plan, string, error)

	// Plan metrics summaries for admin views
	ListPlanMetrics(ctx context.Context, scenarioID string) ([]map[string]any, error)
}

var ErrNotFound = errors.New("not found")

// planMetricsRow flattens one plan into the summary shape ListPlanMetrics
// returns. Shared by the memory and postgres implementations.
func planMetricsRow(p *design.Plan) map[string]any {
	row := map[string]any{
		"planId":     p.ID,
		"scenarioId": p.ScenarioID,
		"status":     p.Status,
		"createdAt":  p.CreatedAt,
	}
	if p.Stage1 != nil {
		row["stage1Status"] = p.Stage1.Status
		row["stage1Objective"] = p.Stage1.Objective
		if p.Stage1.Metrics != nil {
			row["stage1Nodes"] = p.Stage1.Metrics.Model.Nodes
		}
	}
	if p.Stage2 != nil {
		row["stage2Status"] = p.Stage2.Status
		row["stage2Objective"] = p.Stage2.Objective
		if p.Stage2.Metrics != nil {
			row["stage2Nodes"] = p.Stage2.Metrics.Model.Nodes
		}
	}
	return row
}
