package domain

// NodeID is a stable integer index into State's node arena, replacing the
// raw Node* back-pointers of the original pointer graph.
type NodeID int

// InvalidNodeID marks the absence of a node.
const InvalidNodeID NodeID = -1

// Mtime sentinel values: 0 = absent, -1 = stat error, otherwise a
// strictly-monotonic-per-file timestamp.
const (
	MtimeAbsent = 0
	MtimeError  = -1
)

// Node is one canonical input or output path. A node has at most one
// producing edge (InEdge); the AddOut invariant in state.go enforces this.
type Node struct {
	Path       string
	SlashBits  uint64
	Mtime      int64
	Dirty      bool
	StatusKnown bool
	LogID      int // dense id in the build log's id space, or -1 if never logged

	InEdge   EdgeID   // producing edge, or InvalidEdgeID
	OutEdges []EdgeID // consuming edges
}

// NewNode creates a node for an already-canonicalized path.
func NewNode(path string, slashBits uint64) *Node {
	return &Node{
		Path:      path,
		SlashBits: slashBits,
		InEdge:    InvalidEdgeID,
		LogID:     -1,
	}
}

// AddOutEdge records e as a consumer of this node.
func (n *Node) AddOutEdge(e EdgeID) {
	n.OutEdges = append(n.OutEdges, e)
}
