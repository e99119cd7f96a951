package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majak-build/majak/internal/core/domain"
)

func TestCanonicalizePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a/./b/../c", "a/c"},
		{"a/b/c", "a/b/c"},
		{"./a", "a"},
		{"a/..", "."},
		{"../a", "../a"},
		{"a/../../b", "../b"},
		{"//a/b", "/a/b"},
		{"/a/./b/../c", "/a/c"},
		{"a/b/", "a/b/"},
		{"a//b", "a/b"},
	}
	for _, tc := range cases {
		got, _, err := domain.CanonicalizePath(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestCanonicalizePathEmpty(t *testing.T) {
	_, _, err := domain.CanonicalizePath("")
	require.ErrorIs(t, err, domain.ErrEmptyPath)
}

func TestCanonicalizePathTooManyComponents(t *testing.T) {
	long := ""
	for i := 0; i < 65; i++ {
		long += "a/"
	}
	_, _, err := domain.CanonicalizePath(long)
	require.ErrorIs(t, err, domain.ErrTooManyComponents)
}

func TestCanonicalizePathIdempotent(t *testing.T) {
	inputs := []string{"a/./b/../c", "x/y/z", "../../a/b", "a//b///c"}
	for _, in := range inputs {
		once, bits1, err := domain.CanonicalizePath(in)
		require.NoError(t, err)
		twice, bits2, err := domain.CanonicalizePath(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, in)
		assert.Equal(t, uint64(0), bits2, "re-canonicalizing must yield zero slash_bits")
		_ = bits1
	}
}
