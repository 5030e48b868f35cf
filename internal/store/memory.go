package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"satnet/internal/design"
	"satnet/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu          sync.Mutex
	scenarios   map[string]*model.Scenario
	scenarioIDs []string // insertion order, also the pagination order
	plans       map[string]*design.Plan
	planIDs     []string
}

func NewMemory() *Memory {
	return &Memory{
		scenarios: map[string]*model.Scenario{},
		plans:     map[string]*design.Plan{},
	}
}

func (m *Memory) CreateScenario(ctx context.Context, sc *model.Scenario) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	if _, exists := m.scenarios[sc.ID]; !exists {
		m.scenarioIDs = append(m.scenarioIDs, sc.ID)
	}
	m.scenarios[sc.ID] = sc
	return nil
}

func (m *Memory) GetScenario(ctx context.Context, id string) (*model.Scenario, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scenarios[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sc, nil
}

func (m *Memory) ListScenarios(ctx context.Context, cursor string, limit int) ([]*model.Scenario, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i, id := range m.scenarioIDs {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []*model.Scenario{}
	var last string
	for i := start; i < len(m.scenarioIDs) && len(out) < limit; i++ {
		out = append(out, m.scenarios[m.scenarioIDs[i]])
		last = m.scenarioIDs[i]
	}
	next := ""
	if len(out) == limit && start+len(out) < len(m.scenarioIDs) {
		next = last
	}
	return out, next, nil
}

func (m *Memory) SavePlan(ctx context.Context, plan *design.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	if _, exists := m.plans[plan.ID]; !exists {
		m.planIDs = append(m.planIDs, plan.ID)
	}
	m.plans[plan.ID] = plan
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, id string) (*design.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPlans(ctx context.Context, scenarioID, cursor string, limit int) ([]*design.Plan, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i, id := range m.planIDs {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []*design.Plan{}
	var last string
	for i := start; i < len(m.planIDs); i++ {
		p := m.plans[m.planIDs[i]]
		last = p.ID
		if scenarioID != "" && p.ScenarioID != scenarioID {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	next := ""
	if len(out) == limit && last != m.planIDs[len(m.planIDs)-1] {
		next = last
	}
	return out, next, nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, scenarioID string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.planIDs {
		p := m.plans[id]
		if scenarioID != "" && p.ScenarioID != scenarioID {
			continue
		}
		out = append(out, planMetricsRow(p))
	}
	return out, nil
}
