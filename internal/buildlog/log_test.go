package buildlog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majak-build/majak/internal/buildlog"
)

func TestRecordAndReloadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	clock := clockwork.NewFakeClock()

	l, err := buildlog.Open(path, clock)
	require.NoError(t, err)
	require.NoError(t, l.RecordCommand("out", "cat in > out", 42))
	require.NoError(t, l.RecordDeps("out", []string{"a.h", "b.h"}, 42))
	require.NoError(t, l.Close())

	l2, err := buildlog.Open(path, clock)
	require.NoError(t, err)
	hash, mtime, ok := l2.CommandHash("out")
	require.True(t, ok)
	assert.Equal(t, int64(42), mtime)
	assert.NotZero(t, hash)

	deps, depMtime, ok := l2.Deps("out")
	require.True(t, ok)
	assert.Equal(t, []string{"a.h", "b.h"}, deps)
	assert.Equal(t, int64(42), depMtime)
	require.NoError(t, l2.Close())
}

func TestCommandHashChangesWithCommandText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	clock := clockwork.NewFakeClock()

	l, err := buildlog.Open(path, clock)
	require.NoError(t, err)
	require.NoError(t, l.RecordCommand("out", "cat in > out", 1))
	first, _, _ := l.CommandHash("out")

	require.NoError(t, l.RecordCommand("out", "cat in | cat > out", 2))
	second, _, _ := l.CommandHash("out")

	assert.NotEqual(t, first, second)
	require.NoError(t, l.Close())
}

type fakeUser struct{ dead map[string]bool }

func (u fakeUser) IsPathDead(path string) bool { return u.dead[path] }

func TestRecompactionRemovesDeadOutputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	clock := clockwork.NewFakeClock()

	l, err := buildlog.Open(path, clock)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		require.NoError(t, l.RecordCommand("out", "touch out", int64(i)))
	}
	require.NoError(t, l.RecordCommand("out2", "touch out2", 1))
	require.True(t, l.NeedsRecompaction())

	before, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, l.Recompact(fakeUser{dead: map[string]bool{"out2": true}}))
	require.NoError(t, l.Close())

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, after.Size(), before.Size())

	l2, err := buildlog.Open(path, clock)
	require.NoError(t, err)
	_, _, ok := l2.CommandHash("out2")
	assert.False(t, ok)
	_, _, ok = l2.CommandHash("out")
	assert.True(t, ok)
	require.NoError(t, l2.Close())
}

func TestTruncationRecoveryIsMonotonic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	clock := clockwork.NewFakeClock()

	l, err := buildlog.Open(path, clock)
	require.NoError(t, err)
	require.NoError(t, l.RecordCommand("a", "touch a", 1))
	require.NoError(t, l.RecordCommand("b", "touch b", 2))
	require.NoError(t, l.RecordDeps("a", []string{"h1.h"}, 1))
	require.NoError(t, l.Close())

	full, err := os.ReadFile(path)
	require.NoError(t, err)

	var prevCount = len(full) + 1
	for k := len(full); k >= 1; k-- {
		truncPath := filepath.Join(dir, "trunc")
		require.NoError(t, os.WriteFile(truncPath, full[:k], 0o644))

		lk, err := buildlog.Open(truncPath, clock)
		require.NoError(t, err, "Load must return success for any truncation length")

		count := 0
		if _, _, ok := lk.CommandHash("a"); ok {
			count++
		}
		if _, _, ok := lk.CommandHash("b"); ok {
			count++
		}
		assert.LessOrEqual(t, count, prevCount, "nodes recovered must be monotonic non-increasing as k shrinks")
		prevCount = count
		require.NoError(t, lk.Close())
	}
}
