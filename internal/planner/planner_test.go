package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majak-build/majak/internal/core/domain"
	"github.com/majak-build/majak/internal/parser"
	"github.com/majak-build/majak/internal/planner"
)

// fakeDisk is a minimal domain.Disk: every path is absent (mtime 0) unless
// explicitly seeded, making every edge dirty by default.
type fakeDisk struct {
	mtime map[string]int64
}

func newFakeDisk() *fakeDisk { return &fakeDisk{mtime: make(map[string]int64)} }

func (d *fakeDisk) Stat(path string) (int64, error) {
	return d.mtime[path], nil
}

func (d *fakeDisk) ReadFile(path string) ([]byte, error) {
	return nil, domain.ErrUnknownTarget
}

type fakeLog struct{}

func (fakeLog) CommandHash(output string) (uint64, int64, bool) { return 0, 0, false }
func (fakeLog) Deps(output string) ([]string, int64, bool)      { return nil, 0, false }

func parseSrc(t *testing.T, src string) *domain.State {
	t.Helper()
	state := domain.NewState()
	p := parser.New(state, mapLoader{}, parser.DefaultOptions())
	require.NoError(t, p.ParseFile("test.ninja", []byte(src)))
	return state
}

type mapLoader map[string][]byte

func (m mapLoader) Load(path string) ([]byte, error) {
	src, ok := m[path]
	if !ok {
		return nil, domain.ErrUnknownTarget
	}
	return src, nil
}

// TestPlanConservationTwoEdgeChain models a two-edge chain (a.o from a.c,
// bin from a.o) where everything is dirty: AddTarget on bin must want both
// edges, and scheduling/finishing them in dependency order must drain the
// want set to empty.
func TestPlanConservationTwoEdgeChain(t *testing.T) {
	state := parseSrc(t, "rule cc\n  command = cc $in -o $out\n\n"+
		"build a.o: cc a.c\n"+
		"build bin: cc a.o\n")

	disk := newFakeDisk()
	scanner := domain.NewScanner(state, disk, fakeLog{}, func(string) uint64 { return 0 })
	plan := planner.New(state, scanner)

	target, ok := state.LookupNode("bin")
	require.True(t, ok)
	require.NoError(t, plan.AddTarget(target))

	assert.Equal(t, 2, plan.WantedEdges())
	assert.Equal(t, 2, plan.CommandEdges())

	// Only the a.c -> a.o edge has all-ready inputs (a.c is a source file);
	// bin's edge depends on a.o, not yet ready.
	firstID, ok := plan.PopReady()
	require.True(t, ok)
	_, ok = plan.PopReady()
	assert.False(t, ok, "second edge must not be ready until the first finishes")

	plan.EdgeFinished(firstID, true)

	secondID, ok := plan.PopReady()
	require.True(t, ok)
	plan.EdgeFinished(secondID, true)

	assert.Equal(t, 0, plan.WantedEdges())
	assert.False(t, plan.HasPendingWork())
}

// TestPoolDepthNeverExceeded models scenario 6: a pool of depth 2 with 5
// simultaneously-schedulable edges must never admit more than 2 into ready
// at once.
func TestPoolDepthNeverExceeded(t *testing.T) {
	state := parseSrc(t, "pool limited\n  depth = 2\n\n"+
		"rule cc\n  command = cc $in -o $out\n\n"+
		"build o1: cc i1\n  pool = limited\n"+
		"build o2: cc i2\n  pool = limited\n"+
		"build o3: cc i3\n  pool = limited\n"+
		"build o4: cc i4\n  pool = limited\n"+
		"build o5: cc i5\n  pool = limited\n")

	disk := newFakeDisk()
	scanner := domain.NewScanner(state, disk, fakeLog{}, func(string) uint64 { return 0 })
	plan := planner.New(state, scanner)

	for _, out := range []string{"o1", "o2", "o3", "o4", "o5"} {
		n, ok := state.LookupNode(out)
		require.True(t, ok)
		require.NoError(t, plan.AddTarget(n))
	}

	admitted := 0
	for {
		if _, ok := plan.PopReady(); !ok {
			break
		}
		admitted++
	}
	assert.LessOrEqual(t, admitted, 2, "pool depth 2 must never admit more than 2 edges at once")

	pool := state.LookupPool("limited")
	require.NotNil(t, pool)
	assert.True(t, pool.CanRunMore(0))
}

// TestCleanNodeDropsRestatNoOpFromWant models scenario 3: a producer edge
// finishes but restat determines its output's mtime is unchanged, so
// CleanNode must recursively clean and drop the now-not-actually-dirty
// downstream edge from the want set.
func TestCleanNodeDropsRestatNoOpFromWant(t *testing.T) {
	state := parseSrc(t, "rule gen\n  command = gen $out\n  restat = 1\n\n"+
		"build header.h: gen header.in\n\n"+
		"rule cc\n  command = cc $in -o $out\n\n"+
		"build out.o: cc in.c | header.h\n")

	disk := newFakeDisk()
	// Seed out.o newer than header.h so, once header.h is marked clean by
	// CleanNode, out.o's edge is no longer dirty either.
	disk.mtime["in.c"] = 1
	disk.mtime["header.h"] = 5
	disk.mtime["out.o"] = 10

	scanner := domain.NewScanner(state, disk, fakeLog{}, func(string) uint64 { return 0 })
	plan := planner.New(state, scanner)

	target, ok := state.LookupNode("out.o")
	require.True(t, ok)
	require.NoError(t, plan.AddTarget(target))

	headerEdgeID, ok := state.LookupNode("header.h")
	require.True(t, ok)
	headerEdge := state.Node(headerEdgeID).InEdge
	require.NotEqual(t, domain.InvalidEdgeID, headerEdge)

	wantedBefore := plan.WantedEdges()
	require.NoError(t, plan.CleanNode(headerEdgeID))
	assert.Equal(t, wantedBefore-1, plan.WantedEdges())
}
