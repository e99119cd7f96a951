package domain

// reservedRuleBindings are the only binding names a rule may declare.
// Anything else is a parse error.
var reservedRuleBindings = map[string]bool{
	"command":           true,
	"description":       true,
	"depfile":           true,
	"deps":              true,
	"rspfile":           true,
	"rspfile_content":   true,
	"restat":            true,
	"generator":         true,
	"pool":              true,
	"msvc_deps_prefix":  true,
}

// IsReservedRuleBinding reports whether name is one of the well-known rule
// binding names.
func IsReservedRuleBinding(name string) bool {
	return reservedRuleBindings[name]
}

// Rule is a named collection of string-template bindings, shared by every
// edge that invokes it.
type Rule struct {
	Name     string
	Bindings map[string]EvalString
}

// NewRule creates an empty rule with the given name.
func NewRule(name string) *Rule {
	return &Rule{Name: name, Bindings: make(map[string]EvalString)}
}

// Binding returns the EvalString bound to name, or nil if unset.
func (r *Rule) Binding(name string) *EvalString {
	if v, ok := r.Bindings[name]; ok {
		return &v
	}
	return nil
}

// IsPhonyRule reports whether r is the built-in "phony" rule, which has no
// command and is never executed.
func (r *Rule) IsPhonyRule() bool {
	return r.Name == "phony"
}

// PhonyRule is the implicit rule used for grouping targets.
var PhonyRule = &Rule{Name: "phony", Bindings: map[string]EvalString{}}
