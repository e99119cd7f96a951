package domain

import "go.trai.ch/zerr"

// DepsLog is the subset of the build log's query surface the dirty scan
// needs: the recorded command hash and restat mtime for an output, and the
// dynamically-discovered input list for an edge with deps=gcc|msvc. It is
// satisfied by internal/buildlog.Log; kept as a narrow interface here so
// the domain package never imports the log's on-disk format.
type DepsLog interface {
	// CommandHash returns the command hash last recorded for output, and
	// whether any record exists.
	CommandHash(output string) (hash uint64, restatMtime int64, ok bool)
	// Deps returns the dynamically-discovered input paths last recorded
	// for output, and whether any deps record exists.
	Deps(output string) (inputs []string, mtime int64, ok bool)
}

// Disk is the subset of DiskInterface the dirty scan needs.
type Disk interface {
	Stat(path string) (int64, error)
	ReadFile(path string) ([]byte, error)
}

// Scanner runs RecomputeDirty over a State, consulting a DepsLog and Disk.
type Scanner struct {
	state *State
	disk  Disk
	log   DepsLog
	hash  func(command string) uint64
}

// NewScanner creates a Scanner. hash computes a command's content hash; the
// builder wires this to xxhash (see internal/buildlog).
func NewScanner(state *State, disk Disk, log DepsLog, hash func(string) uint64) *Scanner {
	return &Scanner{state: state, disk: disk, log: log, hash: hash}
}

// RecomputeDirty determines staleness of target and everything it
// transitively depends on. It is safe to call repeatedly for
// different targets in the same build; edges already resolved are not
// rescanned.
func (s *Scanner) RecomputeDirty(target NodeID) error {
	n := s.state.Node(target)
	if n.InEdge == InvalidEdgeID {
		// Source file: just stat it.
		return s.statNode(target)
	}
	return s.recomputeEdge(n.InEdge)
}

func (s *Scanner) recomputeEdge(id EdgeID) error {
	e := s.state.Edge(id)

	switch e.Mark {
	case VisitInStack:
		return zerr.With(ErrCycleDetected, "edge", id)
	case VisitDone:
		return nil
	}
	e.Mark = VisitInStack
	defer func() { e.Mark = VisitDone }()

	var mostRecentInput int64
	for _, in := range e.DirtyingInputs() {
		inNode := s.state.Node(in)
		if inNode.InEdge != InvalidEdgeID {
			if err := s.recomputeEdge(inNode.InEdge); err != nil {
				return err
			}
		}
		if err := s.statNode(in); err != nil {
			return err
		}
		if inNode.Dirty {
			if err := s.markEdgeAndOutputsDirty(e); err != nil {
				return err
			}
			return nil
		}
		if inNode.Mtime > mostRecentInput {
			mostRecentInput = inNode.Mtime
		}
	}
	// Order-only inputs still need to exist/be built, but never gate dirtiness.
	for _, in := range e.OrderOnlyInputs() {
		inNode := s.state.Node(in)
		if inNode.InEdge != InvalidEdgeID {
			if err := s.recomputeEdge(inNode.InEdge); err != nil {
				return err
			}
		}
		if err := s.statNode(in); err != nil {
			return err
		}
	}

	if depsType := e.DepsType(); depsType != "" {
		if _, _, ok := s.log.Deps(s.primaryOutputPath(e)); !ok {
			e.DepsMissing = true
			return s.markEdgeAndOutputsDirty(e)
		}
	}

	dirty, err := s.recomputeOutputsDirty(e, mostRecentInput)
	if err != nil {
		return err
	}
	if dirty {
		return s.markEdgeAndOutputsDirty(e)
	}
	for _, out := range e.Outputs {
		s.state.Node(out).StatusKnown = true
	}
	return nil
}

// recomputeOutputsDirty implements the RecomputeOutputsDirty rule
// order: missing output, stale mtime (or restat_mtime under restat),
// command-hash mismatch, unreadable depfile.
func (s *Scanner) recomputeOutputsDirty(e *Edge, mostRecentInput int64) (bool, error) {
	restat := e.Restat()
	for _, out := range e.Outputs {
		if err := s.statNode(out); err != nil {
			return false, err
		}
		n := s.state.Node(out)
		if n.Mtime == MtimeAbsent {
			return true, nil
		}
		if n.Mtime < mostRecentInput {
			if restat {
				if _, restatMtime, ok := s.log.CommandHash(n.Path); ok && restatMtime >= mostRecentInput {
					// the logged restat_mtime confirms the output was
					// already up to date as of the last run.
				} else {
					return true, nil
				}
			} else {
				return true, nil
			}
		}
	}
	if !e.IsPhony() {
		if hash, _, ok := s.log.CommandHash(s.primaryOutputPath(e)); ok {
			if hash != s.hash(e.EvaluateCommand()) {
				return true, nil
			}
		}
	}
	if depfile := e.EvaluateBinding("depfile"); depfile != "" {
		if _, err := s.disk.ReadFile(depfile); err != nil {
			return true, nil
		}
	}
	return false, nil
}

// RecomputeOutputsDirty re-evaluates whether e's outputs are still dirty
// given the current (already-known) mtimes of e's dirtying inputs, without
// revisiting producer edges. Used by internal/planner's CleanNode when a
// restat leaves an upstream output's mtime unchanged, to decide whether a
// downstream edge that is no longer blocked by a dirty input can itself be
// dropped from the want set.
func (s *Scanner) RecomputeOutputsDirty(id EdgeID) (bool, error) {
	e := s.state.Edge(id)
	var mostRecentInput int64
	for _, in := range e.DirtyingInputs() {
		n := s.state.Node(in)
		if n.Mtime > mostRecentInput {
			mostRecentInput = n.Mtime
		}
	}
	return s.recomputeOutputsDirty(e, mostRecentInput)
}

func (s *Scanner) primaryOutputPath(e *Edge) string {
	outs := e.ExplicitOutputs()
	if len(outs) == 0 {
		return ""
	}
	return s.state.Node(outs[0]).Path
}

func (s *Scanner) statNode(id NodeID) error {
	n := s.state.Node(id)
	if n.StatusKnown {
		return nil
	}
	mtime, err := s.disk.Stat(n.Path)
	if err != nil {
		n.Mtime = MtimeError
		n.Dirty = true
		n.StatusKnown = true
		return nil //nolint:nilerr // a stat failure marks the node dirty, it does not abort the scan
	}
	n.Mtime = mtime
	n.Dirty = mtime == MtimeAbsent
	n.StatusKnown = true
	return nil
}

// markEdgeAndOutputsDirty marks e's outputs dirty and propagates to every
// transitive consumer. A consumer that was
// already resolved earlier in the same scan (e.g. reached from a different
// requested target before this input turned dirty) is re-opened for
// reconsideration: its own inputs are already stat'd, so this is cheap.
func (s *Scanner) markEdgeAndOutputsDirty(e *Edge) error {
	for _, out := range e.Outputs {
		n := s.state.Node(out)
		if !n.StatusKnown {
			// Load the output's on-disk mtime even though it is about to be
			// marked dirty: the builder compares against it after a restat
			// edge runs to detect a no-op.
			if mtime, err := s.disk.Stat(n.Path); err == nil {
				n.Mtime = mtime
			} else {
				n.Mtime = MtimeError
			}
		}
		if n.Dirty {
			continue
		}
		n.Dirty = true
		n.StatusKnown = true
		for _, consumer := range n.OutEdges {
			ce := s.state.Edge(consumer)
			if ce.Mark == VisitInStack {
				// consumer is an ancestor already on the current DFS stack;
				// its own DirtyingInputs loop will observe this node's new
				// dirty bit when it resumes, so recursing here would just
				// re-enter it mid-visit and look like a cycle.
				continue
			}
			if ce.Mark == VisitDone {
				ce.Mark = VisitNone
			}
			if err := s.recomputeEdge(consumer); err != nil {
				return err
			}
		}
	}
	return nil
}
