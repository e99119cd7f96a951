// Package planner implements the want-state machine that decides which
// edges must run to produce a set of requested targets, and admits ready
// edges into pools without exceeding their depth.
package planner

import (
	"github.com/majak-build/majak/internal/core/domain"
)

// WantState is an edge's position in the plan's state machine.
type WantState int

const (
	// Nothing means the edge is reachable from a target but not itself
	// dirty (or produces an already-clean node); tracked only so a later
	// CleanNode/EdgeFinished pass can find it.
	Nothing WantState = iota
	// ToStart means the edge is dirty and queued to run once its inputs
	// are ready.
	ToStart
	// ToFinish means the edge has been admitted to ready/running and is
	// awaiting EdgeFinished.
	ToFinish
)

// Plan tracks want-state per edge, the ready queue, and per-pool admission,
// driven by a domain.Scanner's dirty-bit decisions.
type Plan struct {
	state   *domain.State
	scanner *domain.Scanner

	want  map[domain.EdgeID]WantState
	ready []domain.EdgeID // FIFO of edges admitted and runnable now

	commandEdges int // wanted edges that are not phony
	wantedEdges  int // count of want entries whose value is not Nothing
}

// New creates a Plan over state, using scanner to decide per-node dirtiness.
func New(state *domain.State, scanner *domain.Scanner) *Plan {
	return &Plan{
		state:   state,
		scanner: scanner,
		want:    make(map[domain.EdgeID]WantState),
	}
}

// WantedEdges returns the count of want entries whose value is not Nothing,
// satisfying the "Plan conservation" invariant when compared against the
// live want map.
func (p *Plan) WantedEdges() int {
	return p.wantedEdges
}

// CommandEdges returns the count of wanted, non-phony edges.
func (p *Plan) CommandEdges() int {
	return p.commandEdges
}

// AddTarget walks the DAG rooted at target, marking every reached edge and
// promoting dirty producers to ToStart.
func (p *Plan) AddTarget(target domain.NodeID) error {
	if err := p.scanner.RecomputeDirty(target); err != nil {
		return err
	}
	return p.addTargetEdge(target)
}

func (p *Plan) addTargetEdge(target domain.NodeID) error {
	node := p.state.Node(target)
	edgeID := node.InEdge
	if edgeID == domain.InvalidEdgeID {
		return nil // source file, no producing edge to plan
	}
	if _, seen := p.want[edgeID]; seen {
		return nil
	}
	p.want[edgeID] = Nothing

	edge := p.state.Edge(edgeID)
	for _, in := range edge.Inputs {
		if err := p.addTargetEdge(in); err != nil {
			return err
		}
	}

	if node.Dirty {
		p.promoteToStart(edgeID)
		if p.allInputsReady(edgeID) {
			p.ScheduleWork(edgeID)
		}
	}
	return nil
}

func (p *Plan) promoteToStart(id domain.EdgeID) {
	if p.want[id] != Nothing {
		return
	}
	p.want[id] = ToStart
	p.wantedEdges++
	if !p.state.Edge(id).IsPhony() {
		p.commandEdges++
	}
}

// allInputsReady reports whether every input of edge, order-only inputs
// included, is produced by an edge with OutputsReady set, or has no
// producer at all.
func (p *Plan) allInputsReady(id domain.EdgeID) bool {
	edge := p.state.Edge(id)
	for _, in := range edge.Inputs {
		n := p.state.Node(in)
		if n.InEdge == domain.InvalidEdgeID {
			continue
		}
		if !p.state.Edge(n.InEdge).OutputsReady {
			return false
		}
	}
	return true
}

// ScheduleWork transitions an edge ToStart -> ToFinish, idempotently, and
// either admits it to ready or delays it on its pool.
func (p *Plan) ScheduleWork(id domain.EdgeID) {
	if p.want[id] != ToStart {
		return // already scheduled, or not wanted: duplicated order-only deps are safe to ignore
	}
	p.want[id] = ToFinish

	edge := p.state.Edge(id)
	if edge.IsPhony() {
		// Phony edges are never runnable commands: their outputs are ready
		// the instant they are scheduled (Glossary "Phony edge").
		p.finishEdgeLocked(id, true)
		return
	}

	weight := 1
	if edge.Pool != nil && !edge.Pool.CanRunMore(weight) {
		edge.Pool.Delay(id)
		return
	}
	if edge.Pool != nil {
		edge.Pool.Acquire(weight)
	}
	p.ready = append(p.ready, id)
}

// PopReady removes and returns the next admitted, runnable edge. ok is
// false when nothing is ready right now.
func (p *Plan) PopReady() (domain.EdgeID, bool) {
	if len(p.ready) == 0 {
		return domain.InvalidEdgeID, false
	}
	id := p.ready[0]
	p.ready = p.ready[1:]
	return id, true
}

// HasReady reports whether an edge is admitted and waiting to be started.
func (p *Plan) HasReady() bool {
	return len(p.ready) > 0
}

// HasPendingWork reports whether any edge remains wanted but unfinished.
func (p *Plan) HasPendingWork() bool {
	return p.wantedEdges > 0
}

// EdgeFinished releases the edge's pool weight, drains any edges the
// release admits, marks its outputs ready, and cascades to consumers
//.
func (p *Plan) EdgeFinished(id domain.EdgeID, success bool) {
	edge := p.state.Edge(id)
	weight := 1
	if edge.Pool != nil {
		edge.Pool.Release(weight)
		for _, delayed := range edge.Pool.RetrieveReady(weight) {
			p.ready = append(p.ready, delayed)
		}
	}
	if !success {
		delete(p.want, id)
		p.wantedEdges--
		if !edge.IsPhony() {
			p.commandEdges--
		}
		return
	}
	p.finishEdgeLocked(id, true)
}

func (p *Plan) finishEdgeLocked(id domain.EdgeID, success bool) {
	edge := p.state.Edge(id)
	if w, wanted := p.want[id]; wanted {
		delete(p.want, id)
		if w != Nothing {
			p.wantedEdges--
			if !edge.IsPhony() {
				p.commandEdges--
			}
		}
	}
	edge.OutputsReady = success
	if !success {
		return
	}
	for _, out := range edge.Outputs {
		p.nodeFinished(out)
	}
}

// nodeFinished schedules or transitively finishes every edge that consumes
// node, now that node itself is ready.
func (p *Plan) nodeFinished(node domain.NodeID) {
	for _, consumerID := range p.state.Node(node).OutEdges {
		if !p.allInputsReady(consumerID) {
			continue
		}
		switch p.want[consumerID] {
		case ToStart:
			p.ScheduleWork(consumerID)
		case Nothing:
			// Not wanted for its own sake, but its readiness may still
			// gate an order-only consumer further downstream.
			p.finishEdgeLocked(consumerID, true)
		}
	}
}

// CleanNode recursively marks node and its downstream consumers clean when
// a restat left an output's mtime unchanged, dropping any edge whose
// outputs turn out not to be dirty after all from the want set.
func (p *Plan) CleanNode(node domain.NodeID) error {
	n := p.state.Node(node)
	n.Dirty = false
	for _, consumerID := range n.OutEdges {
		consumer := p.state.Edge(consumerID)
		if !p.dirtyingInputsClean(consumer) {
			continue
		}
		stillDirty, err := p.scanner.RecomputeOutputsDirty(consumerID)
		if err != nil {
			return err
		}
		if stillDirty {
			continue
		}
		if w, wanted := p.want[consumerID]; wanted {
			delete(p.want, consumerID)
			if w != Nothing {
				p.wantedEdges--
				if !consumer.IsPhony() {
					p.commandEdges--
				}
			}
		}
		for _, out := range consumer.Outputs {
			if err := p.CleanNode(out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Plan) dirtyingInputsClean(edge *domain.Edge) bool {
	for _, in := range edge.DirtyingInputs() {
		if p.state.Node(in).Dirty {
			return false
		}
	}
	return true
}
