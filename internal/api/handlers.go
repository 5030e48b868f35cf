package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"satnet/internal/buildinfo"
	"satnet/internal/design"
	"satnet/internal/metrics"
	"satnet/internal/model"
	"satnet/internal/store"
)

// ScenariosHandler handles POST/GET /v1/scenarios
func (s *Server) ScenariosHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var sc model.Scenario
		if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateScenario(&sc); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid scenario", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.CreateScenario(r.Context(), &sc); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create scenario failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": sc.ID, "createdAt": sc.CreatedAt})
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListScenarios(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List scenarios failed", err.Error(), r.URL.Path)
			return
		}
		out := make([]map[string]any, 0, len(items))
		for _, sc := range items {
			out = append(out, map[string]any{
				"id":         sc.ID,
				"name":       sc.Name,
				"periods":    sc.Periods,
				"satellites": len(sc.Satellites),
				"pixels":     len(sc.Pixels),
				"createdAt":  sc.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ScenarioByIDHandler handles GET /v1/scenarios/{id}
func (s *Server) ScenarioByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/scenarios/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	sc, err := s.Store.GetScenario(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Scenario not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get scenario failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// PlanHandler handles POST /v1/plan
func (s *Server) PlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.planLimiter.Allow() {
		writeProblem(w, http.StatusTooManyRequests, "Rate limited", "too many plan requests", r.URL.Path)
		return
	}
	var req struct {
		ScenarioID string             `json:"scenarioId"`
		Params     map[string]float64 `json:"params"`
		Async      bool               `json:"async"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.ScenarioID == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid plan request", "scenarioId required", r.URL.Path)
		return
	}
	if err := validateParams(req.Params); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
		return
	}
	sc, err := s.Store.GetScenario(r.Context(), req.ScenarioID)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Scenario not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get scenario failed", err.Error(), r.URL.Path)
		return
	}
	params := mergeParams(s.Cfg.SolverParams(), req.Params)

	if req.Async {
		id := uuid.NewString()
		go s.runPlan(id, sc, params)
		writeJSON(w, http.StatusAccepted, map[string]any{"planId": id, "status": "running"})
		return
	}
	plan := s.runPlan("", sc, params)
	if plan.Status == design.PlanFailed {
		writeProblem(w, http.StatusUnprocessableEntity, "Plan failed",
			"design run failed; failure recorded as plan "+plan.ID, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// runPlan executes the design pipeline, persists the outcome and publishes
// the terminal event. Used inline for sync requests and as a goroutine body
// for async ones.
func (s *Server) runPlan(id string, sc *model.Scenario, params map[string]float64) *design.Plan {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	plan, err := s.Runner.Run(id, sc, params)
	if err != nil {
		// sync callers pass an empty id; assign one here so the failed
		// plan is persisted under an id the response can point at
		if id == "" {
			id = uuid.NewString()
		}
		s.Log.Errorw("design run failed", "plan", id, "scenario", sc.ID, "err", err)
		plan = &design.Plan{ID: id, ScenarioID: sc.ID, Status: design.PlanFailed, Params: params, CreatedAt: time.Now().UTC()}
	}
	metrics.PlanRuns.WithLabelValues(plan.Status).Inc()
	if plan.Stage1 != nil && plan.Stage1.Metrics != nil {
		metrics.SolveNodes.WithLabelValues("stage1").Observe(float64(plan.Stage1.Metrics.Model.Nodes))
	}
	if plan.Stage2 != nil && plan.Stage2.Metrics != nil {
		metrics.SolveNodes.WithLabelValues("stage2").Observe(float64(plan.Stage2.Metrics.Model.Nodes))
	}
	if err := s.Store.SavePlan(ctx, plan); err != nil {
		s.Log.Errorw("save plan failed", "plan", plan.ID, "err", err)
	}
	s.Broker.Publish(plan.ID, PlanEvent{Type: "plan.completed", Data: map[string]any{"planId": plan.ID, "status": plan.Status}})
	return plan
}

// PlansHandler handles GET /v1/plans
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	scenarioID := r.URL.Query().Get("scenarioId")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListPlans(r.Context(), scenarioID, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, p := range items {
		row := map[string]any{
			"id":         p.ID,
			"scenarioId": p.ScenarioID,
			"status":     p.Status,
			"createdAt":  p.CreatedAt,
		}
		if p.Stage1 != nil {
			row["stage1Status"] = p.Stage1.Status
		}
		if p.Stage2 != nil {
			row["stage2Status"] = p.Stage2.Status
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "nextCursor": next})
}

// PlanByIDHandler handles GET /v1/plans/{id} and /v1/plans/{id}/events/ws
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) == 3 && parts[1] == "events" && parts[2] == "ws" {
		s.planEventsWS(w, r, id)
		return
	}
	if len(parts) != 1 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	plan, err := s.Store.GetPlan(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Plan not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get plan failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// PlanMetricsHandler handles GET /v1/admin/plan-metrics
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rows, err := s.Store.ListPlanMetrics(r.Context(), r.URL.Query().Get("scenarioId"))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List plan metrics failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": rows})
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

// ReadyHandler handles GET /readyz; readiness means the store answers.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, _, err := s.Store.ListScenarios(ctx, "", 1); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
