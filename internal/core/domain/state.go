package domain

// State is the arena owning every Node, Edge, Rule and Pool created during
// manifest parsing and deps-log load. Components address into it with
// NodeID/EdgeID rather than holding pointers, eliminating the
// lifetime/aliasing hazards of a Node<->Edge<->Node pointer graph.
type State struct {
	nodes []*Node
	edges []*Edge
	rules []*Rule
	pools []*Pool

	paths       map[string]NodeID // canonical path -> NodeID, the path->Node bijection
	poolsByName map[string]PoolID
	defaults    []NodeID
	Bindings    *BindingEnv // top-level (file) scope
}

// PoolID is a stable integer index into State's pool arena.
type PoolID int

// InvalidPoolID marks the absence of a pool (i.e. the unbounded default pool).
const InvalidPoolID PoolID = -1

// NewState creates an empty State with its top-level binding scope, the
// built-in phony rule and the built-in console pool.
func NewState() *State {
	s := &State{
		paths:       make(map[string]NodeID),
		poolsByName: make(map[string]PoolID),
		Bindings:    NewBindingEnv(nil),
	}
	_ = s.Bindings.AddRule(PhonyRule)
	s.AddPool(ConsolePool())
	return s
}

// GetNode canonicalizes path and interns it: looks it up in the path->Node
// map, inserting a fresh Node on miss. Looking up an already-canonical path
// never mutates the map beyond the first insertion (idempotent).
func (s *State) GetNode(rawPath string) (NodeID, error) {
	canon, bits, err := CanonicalizePath(rawPath)
	if err != nil {
		return InvalidNodeID, err
	}
	return s.internCanonical(canon, bits), nil
}

// LookupNode returns the NodeID for an already-canonicalized path without
// creating one; ok is false if no such node exists yet.
func (s *State) LookupNode(canonPath string) (NodeID, bool) {
	id, ok := s.paths[canonPath]
	return id, ok
}

func (s *State) internCanonical(canon string, bits uint64) NodeID {
	if id, ok := s.paths[canon]; ok {
		return id
	}
	id := NodeID(len(s.nodes))
	s.nodes = append(s.nodes, NewNode(canon, bits))
	s.paths[canon] = id
	return id
}

// Node returns the Node for id.
func (s *State) Node(id NodeID) *Node {
	if id == InvalidNodeID {
		return nil
	}
	return s.nodes[id]
}

// NodeCount returns the number of interned nodes.
func (s *State) NodeCount() int {
	return len(s.nodes)
}

// AddEdge creates a new edge bound to rule/pool/env and returns its id.
func (s *State) AddEdge(rule *Rule, pool *Pool, env *BindingEnv) EdgeID {
	id := EdgeID(len(s.edges))
	s.edges = append(s.edges, &Edge{Rule: rule, Pool: pool, Env: env, Id: id})
	return id
}

// Edge returns the Edge for id.
func (s *State) Edge(id EdgeID) *Edge {
	if id == InvalidEdgeID {
		return nil
	}
	return s.edges[id]
}

// EdgeCount returns the number of edges.
func (s *State) EdgeCount() int {
	return len(s.edges)
}

// AddOut records edge as the producer of output (its InEdge); consumer
// links are recorded separately by AddIn. Enforces the
// at-most-one-producing-edge invariant.
func (s *State) AddOut(edge EdgeID, output NodeID) error {
	n := s.nodes[output]
	if n.InEdge != InvalidEdgeID && n.InEdge != edge {
		return ErrNodeAlreadyHasProducer
	}
	n.InEdge = edge
	return nil
}

// AddIn records edge as a consumer of input.
func (s *State) AddIn(edge EdgeID, input NodeID) {
	s.nodes[input].AddOutEdge(edge)
}

// AddPool registers a pool and returns its id. The caller is responsible
// for duplicate-name checking (the parser enforces ErrDuplicatePool).
func (s *State) AddPool(p *Pool) PoolID {
	id := PoolID(len(s.pools))
	s.pools = append(s.pools, p)
	s.poolsByName[p.Name] = id
	return id
}

// LookupPool returns the pool named name, or nil if undeclared.
func (s *State) LookupPool(name string) *Pool {
	id, ok := s.poolsByName[name]
	if !ok {
		return nil
	}
	return s.pools[id]
}

// AddDefault records node as a default target (built when no targets are
// named on the command line).
func (s *State) AddDefault(n NodeID) {
	s.defaults = append(s.defaults, n)
}

// Defaults returns the declared default targets, in declaration order.
func (s *State) Defaults() []NodeID {
	return s.defaults
}

// RootNodes returns every node that is not an input to any edge: the
// natural top-level build targets when no defaults are declared and no
// targets were named explicitly.
func (s *State) RootNodes() []NodeID {
	var roots []NodeID
	for id, n := range s.nodes {
		if len(n.OutEdges) == 0 {
			roots = append(roots, NodeID(id))
		}
	}
	return roots
}
