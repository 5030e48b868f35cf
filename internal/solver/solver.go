// Package solver defines the MILP collaborator contract consumed by the
// network design models, plus a bundled pure-binary branch-and-bound engine.
// The contract is a batched builder: variable and constraint registrations
// accumulate until Update commits them in one pass, mirroring the
// accumulate-then-commit call pattern of commercial solver APIs.
package solver

import "go.uber.org/zap"

type VarType int

const (
	Binary VarType = iota
	Integer
	Continuous
)

type Sense int

const (
	LessEqual Sense = iota
	Equal
	GreaterEqual
)

type ObjSense int

const (
	Minimize ObjSense = iota
	Maximize
)

// Status is the solver termination status. Results may only be read when
// Accepted reports true.
type Status int

const (
	StatusUnset Status = iota
	StatusOptimal
	StatusTimeLimit
	StatusInfeasible
	StatusUnbounded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusTimeLimit:
		return "time_limit"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusError:
		return "error"
	default:
		return "unset"
	}
}

// Accepted reports whether a solution may be extracted under this status.
func (s Status) Accepted() bool {
	return s == StatusOptimal || s == StatusTimeLimit
}

// Var is an opaque variable handle issued by AddVar.
type Var int

// Term is one coefficient-variable pair of a linear expression.
type Term struct {
	Var  Var
	Coef float64
}

// LinExpr is a linear expression with a constant offset. The zero value is
// an empty expression.
type LinExpr struct {
	Terms  []Term
	Offset float64
}

func (e *LinExpr) AddTerm(v Var, coef float64) {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
}

func (e *LinExpr) AddConst(c float64) {
	e.Offset += c
}

// Add appends another expression in place.
func (e *LinExpr) Add(other LinExpr) {
	e.Terms = append(e.Terms, other.Terms...)
	e.Offset += other.Offset
}

// CutFamilies is the fixed set of cutting-plane counter names reported in
// Diagnostics. The bundled engine generates no cuts and reports zeros; an
// external engine fills them in.
var CutFamilies = []string{"clique", "cover", "flowcover", "gomory", "mir", "zerohalf"}

// Diagnostics is the fixed set of solve counters reported after Optimize.
type Diagnostics struct {
	Nodes      int64          `json:"nodes"`
	Iterations int64          `json:"iterations"`
	Solutions  int            `json:"solutions"`
	Cuts       map[string]int `json:"cuts"`
	Gap        float64        `json:"gap"`
	RuntimeSec float64        `json:"runtimeSec"`
}

// Recognized pass-through parameters.
const (
	ParamTimeLimit = "TimeLimit" // seconds
	ParamMIPGap    = "MIPGap"    // relative gap tolerance
	ParamThreads   = "Threads"   // accepted; the bundled engine is single-threaded
)

// Model is the collaborator contract the design layer programs against.
// Each instance owns an exclusive solver session; Optimize is blocking with
// no cancellation other than the TimeLimit parameter.
type Model interface {
	Name() string

	// Builder phase. Registrations accumulate until Update commits them.
	AddVar(vt VarType, name string) Var
	AddConstr(name string, expr LinExpr, sense Sense, rhs float64)
	SetObjective(expr LinExpr, sense ObjSense)
	Update() error

	// Reset discards all variables, constraints, objective and any prior
	// solution. Parameters survive.
	Reset()

	SetParam(name string, value float64) error
	SetParams(params map[string]float64) error

	Optimize() Status

	// Post-solve queries. Valid only when the last Optimize returned an
	// accepted status with at least one solution.
	Value(v Var) float64
	ExprValue(e LinExpr) float64
	ObjValue() float64
	Slacks() map[string]float64
	Diagnostics() Diagnostics

	NumVars() int
	NumConstrs() int
}

// New returns the bundled branch-and-bound engine as a Model.
func New(name string, log *zap.SugaredLogger) Model {
	return newBnB(name, log)
}
