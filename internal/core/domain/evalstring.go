package domain

import "strings"

// EvalString is a lazy template: an ordered list of segments, each either
// literal text or a reference to a variable to be resolved against a
// BindingEnv at evaluation time. Evaluation is not memoized. A variable
// reference resolves to the binding's stored string, which is already
// expanded, so evaluation never recurses; a binding that references its own
// name sees the value bound before it.
type EvalString struct {
	segments []evalSegment
}

type evalSegment struct {
	varName string // empty for literal segments
	literal string
}

// AddLiteral appends a literal text segment.
func (e *EvalString) AddLiteral(text string) {
	if text == "" {
		return
	}
	e.segments = append(e.segments, evalSegment{literal: text})
}

// AddVariable appends a variable-reference segment.
func (e *EvalString) AddVariable(name string) {
	e.segments = append(e.segments, evalSegment{varName: name})
}

// Empty reports whether the template has no segments at all.
func (e *EvalString) Empty() bool {
	return len(e.segments) == 0
}

// Unparsed renders the template back into source form, writing variable
// references as `$x` or `${name}`; literal text is written as is, without
// `$`-escaping. Used for diagnostics, not re-parsed.
func (e *EvalString) Unparsed() string {
	var b strings.Builder
	for _, s := range e.segments {
		if s.varName != "" {
			b.WriteByte('$')
			if len(s.varName) != 1 {
				b.WriteByte('{')
				b.WriteString(s.varName)
				b.WriteByte('}')
			} else {
				b.WriteString(s.varName)
			}
			continue
		}
		b.WriteString(s.literal)
	}
	return b.String()
}

// Evaluate expands the template against env, walking the scope chain for
// every variable reference. A missing variable expands to the empty string.
func (e *EvalString) Evaluate(env *BindingEnv) string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	for _, s := range e.segments {
		if s.varName != "" {
			b.WriteString(env.LookupVariable(s.varName))
			continue
		}
		b.WriteString(s.literal)
	}
	return b.String()
}

// NewLiteralEvalString is a convenience constructor for a template that is
// entirely literal text (the common case for most bindings).
func NewLiteralEvalString(s string) EvalString {
	var e EvalString
	e.AddLiteral(s)
	return e
}
