package domain

// EdgeID is a stable integer index into State's edge arena.
type EdgeID int

// InvalidEdgeID marks the absence of an edge.
const InvalidEdgeID EdgeID = -1

// VisitMark is the cycle-detection state of an edge during RecomputeDirty:
// the standard 0/1/2 (unvisited/in-progress/done) states for detecting
// cycles during a DAG walk.
type VisitMark int

const (
	VisitNone VisitMark = iota
	VisitInStack
	VisitDone
)

// Edge is one invocation of a Rule: an ordered input list partitioned into
// [explicit | implicit | order-only] and an ordered output list partitioned
// into [explicit | implicit].
type Edge struct {
	Rule *Rule
	Pool *Pool
	Env  *BindingEnv // per-edge scope; parent is the declaring file scope

	Inputs  []NodeID
	Outputs []NodeID

	ImplicitDeps  int // count of Inputs that are implicit (after explicit)
	OrderOnlyDeps int // count of Inputs that are order-only (after implicit)
	ImplicitOuts  int // count of Outputs that are implicit (after explicit)

	OutputsReady bool
	DepsMissing  bool
	Mark         VisitMark

	// Id is this edge's own identity, set by State.AddEdge so the edge can
	// report its own index without a separate lookup.
	Id EdgeID
}

// IsPhony reports whether this edge uses the built-in phony rule.
func (e *Edge) IsPhony() bool {
	return e.Rule == nil || e.Rule.IsPhonyRule()
}

// ExplicitInputs returns the slice of inputs before the implicit/order-only ranges.
func (e *Edge) ExplicitInputs() []NodeID {
	n := len(e.Inputs) - e.ImplicitDeps - e.OrderOnlyDeps
	if n < 0 {
		n = 0
	}
	return e.Inputs[:n]
}

// ImplicitInputs returns the implicit (but not order-only) input range.
func (e *Edge) ImplicitInputs() []NodeID {
	start := len(e.Inputs) - e.ImplicitDeps - e.OrderOnlyDeps
	end := start + e.ImplicitDeps
	if start < 0 {
		start = 0
	}
	if end > len(e.Inputs) {
		end = len(e.Inputs)
	}
	return e.Inputs[start:end]
}

// OrderOnlyInputs returns the order-only input range, which gates *when*
// an edge may run but never contributes to dirtiness.
func (e *Edge) OrderOnlyInputs() []NodeID {
	start := len(e.Inputs) - e.OrderOnlyDeps
	if start < 0 {
		start = 0
	}
	return e.Inputs[start:]
}

// DirtyingInputs returns explicit+implicit inputs (everything but order-only).
func (e *Edge) DirtyingInputs() []NodeID {
	end := len(e.Inputs) - e.OrderOnlyDeps
	if end < 0 {
		end = 0
	}
	return e.Inputs[:end]
}

// ExplicitOutputs returns the explicit (non-implicit) output range.
func (e *Edge) ExplicitOutputs() []NodeID {
	n := len(e.Outputs) - e.ImplicitOuts
	if n < 0 {
		n = 0
	}
	return e.Outputs[:n]
}

// EvaluateCommand renders the rule's "command" binding against this edge's
// environment.
func (e *Edge) EvaluateCommand() string {
	return e.evaluateBinding("command")
}

// EvaluateBinding renders an arbitrary rule binding against this edge's
// environment, falling back to the empty string when unset.
func (e *Edge) EvaluateBinding(name string) string {
	return e.evaluateBinding(name)
}

func (e *Edge) evaluateBinding(name string) string {
	if e.Rule == nil {
		return ""
	}
	ev, ok := e.Rule.Bindings[name]
	if !ok {
		return ""
	}
	return ev.Evaluate(e.Env)
}

// Restat reports whether this edge's rule sets restat = true/1.
func (e *Edge) Restat() bool {
	return isTruthyBinding(e.evaluateBinding("restat"))
}

// Generator reports whether this edge's rule sets generator = true/1.
func (e *Edge) Generator() bool {
	return isTruthyBinding(e.evaluateBinding("generator"))
}

// DepsType returns the rule's deps binding ("gcc", "msvc", or "" for none).
func (e *Edge) DepsType() string {
	return e.evaluateBinding("deps")
}

func isTruthyBinding(v string) bool {
	return v == "1" || v == "true"
}
