package solver

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

type varDecl struct {
	name string
	vt   VarType
}

// constrDecl is a committed constraint row. Expression offsets are folded
// into rhs at commit time and terms are merged per variable.
type constrDecl struct {
	name  string
	terms []Term
	sense Sense
	rhs   float64
}

type objDecl struct {
	expr  LinExpr
	sense ObjSense
}

// bnb is a depth-first branch-and-bound engine over binary variables with
// constraint-interval pruning and objective bounding. It is exact on the
// models this repo builds (all-binary, bounded), single-threaded, and
// deterministic: branching follows declaration order. A binary feasible
// region is bounded, so StatusUnbounded is never produced here.
type bnb struct {
	name string
	log  *zap.SugaredLogger

	pendingVars []varDecl
	pendingCons []constrDecl
	pendingObj  *objDecl

	vars      []varDecl
	cons      []constrDecl
	objCoef   []float64
	objOffset float64
	objSense  ObjSense

	params map[string]float64

	status Status
	values []float64
	objVal float64
	diag   Diagnostics
}

func newBnB(name string, log *zap.SugaredLogger) *bnb {
	return &bnb{name: name, log: log, params: map[string]float64{}, status: StatusUnset}
}

func (b *bnb) Name() string { return b.name }

func (b *bnb) AddVar(vt VarType, name string) Var {
	id := Var(len(b.vars) + len(b.pendingVars))
	b.pendingVars = append(b.pendingVars, varDecl{name: name, vt: vt})
	return id
}

func (b *bnb) AddConstr(name string, expr LinExpr, sense Sense, rhs float64) {
	b.pendingCons = append(b.pendingCons, constrDecl{name: name, terms: expr.Terms, sense: sense, rhs: rhs - expr.Offset})
}

func (b *bnb) SetObjective(expr LinExpr, sense ObjSense) {
	b.pendingObj = &objDecl{expr: expr, sense: sense}
}

// Update commits pending registrations: variables first, then constraints
// (terms merged per variable, handles range-checked), then the objective as
// a dense coefficient vector.
func (b *bnb) Update() error {
	b.vars = append(b.vars, b.pendingVars...)
	b.pendingVars = nil
	n := len(b.vars)
	for _, c := range b.pendingCons {
		merged, err := mergeTerms(c.terms, n)
		if err != nil {
			return fmt.Errorf("constraint %s: %w", c.name, err)
		}
		c.terms = merged
		b.cons = append(b.cons, c)
	}
	b.pendingCons = nil
	if b.pendingObj != nil {
		coef := make([]float64, n)
		for _, tm := range b.pendingObj.expr.Terms {
			if int(tm.Var) < 0 || int(tm.Var) >= n {
				return fmt.Errorf("objective: variable handle %d out of range", tm.Var)
			}
			coef[tm.Var] += tm.Coef
		}
		b.objCoef = coef
		b.objOffset = b.pendingObj.expr.Offset
		b.objSense = b.pendingObj.sense
		b.pendingObj = nil
	}
	if len(b.objCoef) < n {
		grown := make([]float64, n)
		copy(grown, b.objCoef)
		b.objCoef = grown
	}
	return nil
}

func mergeTerms(terms []Term, n int) ([]Term, error) {
	byVar := map[Var]float64{}
	for _, tm := range terms {
		if int(tm.Var) < 0 || int(tm.Var) >= n {
			return nil, fmt.Errorf("variable handle %d out of range", tm.Var)
		}
		byVar[tm.Var] += tm.Coef
	}
	out := make([]Term, 0, len(byVar))
	for v, c := range byVar {
		if c != 0 {
			out = append(out, Term{Var: v, Coef: c})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Var < out[j].Var })
	return out, nil
}

func (b *bnb) Reset() {
	b.pendingVars = nil
	b.pendingCons = nil
	b.pendingObj = nil
	b.vars = nil
	b.cons = nil
	b.objCoef = nil
	b.objOffset = 0
	b.objSense = Minimize
	b.status = StatusUnset
	b.values = nil
	b.objVal = 0
	b.diag = Diagnostics{}
}

func (b *bnb) SetParam(name string, value float64) error {
	switch name {
	case ParamTimeLimit, ParamMIPGap, ParamThreads:
		b.params[name] = value
		return nil
	default:
		return fmt.Errorf("unknown solver parameter %q", name)
	}
}

func (b *bnb) SetParams(params map[string]float64) error {
	for k, v := range params {
		if err := b.SetParam(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (b *bnb) NumVars() int    { return len(b.vars) + len(b.pendingVars) }
func (b *bnb) NumConstrs() int { return len(b.cons) + len(b.pendingCons) }

type colRef struct {
	con  int
	coef float64
}

type search struct {
	n      int
	coefs  []float64 // minimization sense
	offset float64
	cons   []constrDecl
	cols   [][]colRef
	minAct []float64
	maxAct []float64

	assign    []float64
	fixedObj  float64
	sumNeg    float64
	incumbent []float64
	incObj    float64
	haveInc   bool

	relGap   float64
	deadline time.Time
	timedOut bool

	nodes     int64
	iters     int64
	solutions int
}

const feasEps = 1e-9

func (b *bnb) Optimize() Status {
	start := time.Now()
	if err := b.Update(); err != nil {
		b.log.Errorw("model commit failed", "model", b.name, "err", err)
		b.status = StatusError
		return b.status
	}
	for _, v := range b.vars {
		if v.vt != Binary {
			b.log.Errorw("unsupported variable type for bundled engine", "model", b.name, "var", v.name)
			b.status = StatusError
			return b.status
		}
	}
	if th, ok := b.params[ParamThreads]; ok && th > 1 {
		b.log.Debugw("Threads parameter accepted but bundled engine is single-threaded", "model", b.name)
	}

	n := len(b.vars)
	s := &search{
		n:      n,
		coefs:  append([]float64(nil), b.objCoef...),
		offset: b.objOffset,
		cons:   b.cons,
		assign: make([]float64, n),
		relGap: b.params[ParamMIPGap],
	}
	if b.objSense == Maximize {
		floats.Scale(-1, s.coefs)
		s.offset = -s.offset
	}
	if tl, ok := b.params[ParamTimeLimit]; ok && tl > 0 {
		s.deadline = start.Add(time.Duration(tl * float64(time.Second)))
	}
	s.cols = make([][]colRef, n)
	s.minAct = make([]float64, len(s.cons))
	s.maxAct = make([]float64, len(s.cons))
	rootDead := false
	for i, c := range s.cons {
		for _, tm := range c.terms {
			s.cols[tm.Var] = append(s.cols[tm.Var], colRef{con: i, coef: tm.Coef})
			s.minAct[i] += math.Min(0, tm.Coef)
			s.maxAct[i] += math.Max(0, tm.Coef)
		}
		if !conAlive(c.sense, s.minAct[i], s.maxAct[i], c.rhs) {
			rootDead = true
		}
	}
	for _, c := range s.coefs {
		s.sumNeg += math.Min(0, c)
	}

	if rootDead {
		b.status = StatusInfeasible
	} else {
		s.dfs(0)
		switch {
		case s.timedOut:
			b.status = StatusTimeLimit
		case s.haveInc:
			b.status = StatusOptimal
		default:
			b.status = StatusInfeasible
		}
	}

	b.diag = Diagnostics{
		Nodes:      s.nodes,
		Iterations: s.iters,
		Solutions:  s.solutions,
		Cuts:       zeroCuts(),
		RuntimeSec: time.Since(start).Seconds(),
	}
	if s.haveInc {
		b.values = append([]float64(nil), s.incumbent...)
		obj := floats.Dot(s.coefs, s.incumbent) + s.offset
		if b.objSense == Maximize {
			obj = -obj
		}
		b.objVal = obj
		if b.status == StatusOptimal {
			// with a nonzero MIPGap, pruning only guarantees the incumbent
			// is within the configured tolerance
			b.diag.Gap = s.relGap
		} else {
			// conservative gap against the root bound
			rootLB := s.offset + s.sumNegTotal()
			b.diag.Gap = (s.incObj - rootLB) / math.Max(1e-10, math.Abs(s.incObj))
		}
	} else {
		b.values = nil
		b.objVal = 0
		b.diag.Gap = math.Inf(1)
	}
	b.log.Infow("optimize finished", "model", b.name, "status", b.status.String(),
		"nodes", b.diag.Nodes, "solutions", b.diag.Solutions, "runtimeSec", b.diag.RuntimeSec)
	return b.status
}

func (s *search) sumNegTotal() float64 {
	total := 0.0
	for _, c := range s.coefs {
		total += math.Min(0, c)
	}
	return total
}

func zeroCuts() map[string]int {
	cuts := make(map[string]int, len(CutFamilies))
	for _, f := range CutFamilies {
		cuts[f] = 0
	}
	return cuts
}

func conAlive(sense Sense, minAct, maxAct, rhs float64) bool {
	switch sense {
	case LessEqual:
		return minAct <= rhs+feasEps
	case GreaterEqual:
		return maxAct >= rhs-feasEps
	default: // Equal
		return minAct <= rhs+feasEps && maxAct >= rhs-feasEps
	}
}

// fix assigns variable j and propagates activity intervals; it reports
// whether every touched constraint can still be satisfied.
func (s *search) fix(j int, v float64) bool {
	alive := true
	for _, ref := range s.cols[j] {
		s.minAct[ref.con] += ref.coef*v - math.Min(0, ref.coef)
		s.maxAct[ref.con] += ref.coef*v - math.Max(0, ref.coef)
		c := s.cons[ref.con]
		if !conAlive(c.sense, s.minAct[ref.con], s.maxAct[ref.con], c.rhs) {
			alive = false
		}
	}
	s.fixedObj += s.coefs[j] * v
	s.sumNeg -= math.Min(0, s.coefs[j])
	return alive
}

func (s *search) unfix(j int, v float64) {
	for _, ref := range s.cols[j] {
		s.minAct[ref.con] -= ref.coef*v - math.Min(0, ref.coef)
		s.maxAct[ref.con] -= ref.coef*v - math.Max(0, ref.coef)
	}
	s.fixedObj -= s.coefs[j] * v
	s.sumNeg += math.Min(0, s.coefs[j])
}

func (s *search) dfs(depth int) {
	if s.timedOut {
		return
	}
	s.nodes++
	if !s.deadline.IsZero() && s.nodes&1023 == 0 && time.Now().After(s.deadline) {
		s.timedOut = true
		return
	}
	lb := s.fixedObj + s.sumNeg + s.offset
	if s.haveInc {
		cutoff := s.incObj - math.Max(feasEps, s.relGap*math.Abs(s.incObj))
		if lb >= cutoff {
			return
		}
	}
	if depth == s.n {
		// interval propagation is exact at a full assignment, so this leaf
		// is feasible; objective has no unfixed part left
		obj := s.fixedObj + s.offset
		if !s.haveInc || obj < s.incObj {
			s.incumbent = append(s.incumbent[:0], s.assign...)
			s.incObj = obj
			s.haveInc = true
			s.solutions++
		}
		return
	}
	// branch on declaration order; try the cheaper value first
	order := [2]float64{0, 1}
	if s.coefs[depth] < 0 {
		order = [2]float64{1, 0}
	}
	for _, v := range order {
		s.iters++
		if s.fix(depth, v) {
			s.assign[depth] = v
			s.dfs(depth + 1)
		}
		s.unfix(depth, v)
		if s.timedOut {
			return
		}
	}
}

func (b *bnb) Value(v Var) float64 {
	if b.values == nil || int(v) < 0 || int(v) >= len(b.values) {
		return 0
	}
	return b.values[int(v)]
}

func (b *bnb) ExprValue(e LinExpr) float64 {
	total := e.Offset
	for _, tm := range e.Terms {
		total += tm.Coef * b.Value(tm.Var)
	}
	return total
}

func (b *bnb) ObjValue() float64 { return b.objVal }

// Slacks reports rhs minus activity for every committed constraint,
// regardless of sense.
func (b *bnb) Slacks() map[string]float64 {
	out := make(map[string]float64, len(b.cons))
	for _, c := range b.cons {
		activity := 0.0
		for _, tm := range c.terms {
			activity += tm.Coef * b.Value(tm.Var)
		}
		out[c.name] = c.rhs - activity
	}
	return out
}

func (b *bnb) Diagnostics() Diagnostics { return b.diag }
