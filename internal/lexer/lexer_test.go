package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majak-build/majak/internal/lexer"
)

func TestNextStructuralTokens(t *testing.T) {
	src := "rule cat\n  command = cat $in\nbuild out: cat in\n"
	l := lexer.New([]byte(src), "test.ninja")

	kinds := []lexer.Kind{}
	for {
		tok := l.Next()
		kinds = append(kinds, tok.Kind)
		if tok.Kind == lexer.EOF || tok.Kind == lexer.ERROR {
			break
		}
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, lexer.RULE, kinds[0])
}

func TestTabIndentIsError(t *testing.T) {
	src := "rule cat\n\tcommand = cat $in\n"
	l := lexer.New([]byte(src), "test.ninja")
	_ = l.Next() // RULE
	_ = l.Next() // IDENT "cat"
	_ = l.Next() // NEWLINE
	tok := l.Next()
	assert.Equal(t, lexer.ERROR, tok.Kind)
}

func TestUnreadRewinds(t *testing.T) {
	src := "build out : cat in\n"
	l := lexer.New([]byte(src), "test.ninja")
	first := l.Next()
	l.Unread()
	second := l.Next()
	assert.Equal(t, first.Kind, second.Kind)
	assert.Equal(t, first.Text, second.Text)
}

func TestReadPathHandlesEscapes(t *testing.T) {
	src := "a$ b$:c$ $$d\n"
	l := lexer.New([]byte(src), "test.ninja")
	ev, ok, err := l.ReadPath()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a b:c $d", ev.Evaluate(nil))
}

func TestReadVarValueJoinsContinuations(t *testing.T) {
	src := "cat $\n   more\n"
	l := lexer.New([]byte(src), "test.ninja")
	ev, err := l.ReadVarValue()
	require.NoError(t, err)
	assert.Equal(t, "cat more", ev.Evaluate(nil))
}
