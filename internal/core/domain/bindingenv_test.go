package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majak-build/majak/internal/core/domain"
)

func TestBindingEnvLookupVariableUnbound(t *testing.T) {
	env := domain.NewBindingEnv(nil)
	assert.Equal(t, "", env.LookupVariable("cflags"))
}

func TestBindingEnvLookupVariableShadowing(t *testing.T) {
	top := domain.NewBindingEnv(nil)
	top.AddBinding("cflags", "-O2")

	child := domain.NewBindingEnv(top)
	assert.Equal(t, "-O2", child.LookupVariable("cflags"), "child must see parent's binding")

	child.AddBinding("cflags", "-O0 -g")
	assert.Equal(t, "-O0 -g", child.LookupVariable("cflags"), "child's own binding must shadow the parent's")
	assert.Equal(t, "-O2", top.LookupVariable("cflags"), "shadowing in the child must not mutate the parent")
}

func TestBindingEnvAddRuleDuplicateInSameScope(t *testing.T) {
	env := domain.NewBindingEnv(nil)
	require.NoError(t, env.AddRule(domain.NewRule("cc")))
	require.ErrorIs(t, env.AddRule(domain.NewRule("cc")), domain.ErrDuplicateRule)
}

func TestBindingEnvAddRuleShadowsParentScope(t *testing.T) {
	top := domain.NewBindingEnv(nil)
	require.NoError(t, top.AddRule(domain.NewRule("cc")))

	child := domain.NewBindingEnv(top)
	// subninja scopes may redeclare a rule name already used by an ancestor.
	require.NoError(t, child.AddRule(domain.NewRule("cc")))
}

func TestBindingEnvLookupRuleWalksParentChain(t *testing.T) {
	top := domain.NewBindingEnv(nil)
	ccRule := domain.NewRule("cc")
	require.NoError(t, top.AddRule(ccRule))

	child := domain.NewBindingEnv(top)
	assert.Same(t, ccRule, child.LookupRule("cc"))
	assert.Nil(t, child.LookupRule("link"))
}

func TestBindingEnvParent(t *testing.T) {
	top := domain.NewBindingEnv(nil)
	child := domain.NewBindingEnv(top)
	assert.Same(t, top, child.Parent())
	assert.Nil(t, top.Parent())
}
