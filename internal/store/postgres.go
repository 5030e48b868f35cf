package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"satnet/internal/design"
	"satnet/internal/model"
)

// Postgres persists scenarios and plans as JSONB documents.
//
// Schema:
//
//	CREATE TABLE scenarios (
//	    id         TEXT PRIMARY KEY,
//	    name       TEXT NOT NULL DEFAULT '',
//	    doc        JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE TABLE plans (
//	    id          TEXT PRIMARY KEY,
//	    scenario_id TEXT NOT NULL REFERENCES scenarios(id),
//	    status      TEXT NOT NULL,
//	    doc         JSONB NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) CreateScenario(ctx context.Context, sc *model.Scenario) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO scenarios (id, name, doc, created_at) VALUES ($1,$2,$3,$4)`,
		sc.ID, sc.Name, doc, sc.CreatedAt)
	return err
}

func (p *Postgres) GetScenario(ctx context.Context, id string) (*model.Scenario, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM scenarios WHERE id=$1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sc model.Scenario
	if err := json.Unmarshal(doc, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (p *Postgres) ListScenarios(ctx context.Context, cursor string, limit int) ([]*model.Scenario, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT doc FROM scenarios WHERE id > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT doc FROM scenarios ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []*model.Scenario{}
	var last string
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, "", err
		}
		var sc model.Scenario
		if err := json.Unmarshal(doc, &sc); err != nil {
			return nil, "", err
		}
		out = append(out, &sc)
		last = sc.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) SavePlan(ctx context.Context, plan *design.Plan) error {
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	doc, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO plans (id, scenario_id, status, doc, created_at) VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, doc=EXCLUDED.doc`,
		plan.ID, plan.ScenarioID, plan.Status, doc, plan.CreatedAt)
	return err
}

func (p *Postgres) GetPlan(ctx context.Context, id string) (*design.Plan, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM plans WHERE id=$1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var plan design.Plan
	if err := json.Unmarshal(doc, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (p *Postgres) ListPlans(ctx context.Context, scenarioID, cursor string, limit int) ([]*design.Plan, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	switch {
	case scenarioID != "" && cursor != "":
		rows, err = p.db.QueryContext(ctx,
			`SELECT doc FROM plans WHERE scenario_id=$1 AND id > $2 ORDER BY id LIMIT $3`, scenarioID, cursor, limit)
	case scenarioID != "":
		rows, err = p.db.QueryContext(ctx,
			`SELECT doc FROM plans WHERE scenario_id=$1 ORDER BY id LIMIT $2`, scenarioID, limit)
	case cursor != "":
		rows, err = p.db.QueryContext(ctx,
			`SELECT doc FROM plans WHERE id > $1 ORDER BY id LIMIT $2`, cursor, limit)
	default:
		rows, err = p.db.QueryContext(ctx,
			`SELECT doc FROM plans ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []*design.Plan{}
	var last string
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, "", err
		}
		var plan design.Plan
		if err := json.Unmarshal(doc, &plan); err != nil {
			return nil, "", err
		}
		out = append(out, &plan)
		last = plan.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) ListPlanMetrics(ctx context.Context, scenarioID string) ([]map[string]any, error) {
	var rows *sql.Rows
	var err error
	if scenarioID != "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT doc FROM plans WHERE scenario_id=$1 ORDER BY created_at`, scenarioID)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT doc FROM plans ORDER BY created_at`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var plan design.Plan
		if err := json.Unmarshal(doc, &plan); err != nil {
			return nil, err
		}
		out = append(out, planMetricsRow(&plan))
	}
	return out, rows.Err()
}
