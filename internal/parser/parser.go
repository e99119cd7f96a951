// Package parser builds a domain.State directly from manifest tokens: there
// is no separate AST stage.
package parser

import (
	"fmt"

	"github.com/majak-build/majak/internal/core/domain"
	"github.com/majak-build/majak/internal/lexer"
)

// DupeEdgePolicy controls how a second edge producing an already-produced
// output is handled.
type DupeEdgePolicy int

const (
	// DupeEdgeWarn drops the offending output from the new edge and adjusts
	// its implicit-output count; the manifest still parses.
	DupeEdgeWarn DupeEdgePolicy = iota
	// DupeEdgeError fails the parse.
	DupeEdgeError
)

// PhonyCyclePolicy controls how a phony edge listing itself as an input is
// handled.
type PhonyCyclePolicy int

const (
	// PhonyCycleWarn filters the self-referential input; parsing succeeds.
	PhonyCycleWarn PhonyCyclePolicy = iota
	// PhonyCycleError fails the parse.
	PhonyCycleError
)

// Options configures the warning-to-error promotions exposed on the CLI as
// "-w dupbuild=..." / "-w phonycycle=...".
type Options struct {
	DupeEdge    DupeEdgePolicy
	PhonyCycle  PhonyCyclePolicy
	MaxSupportedVersion string
}

// DefaultOptions matches upstream majak's defaults: duplicate builds warn,
// phony self-cycles warn.
func DefaultOptions() Options {
	return Options{DupeEdge: DupeEdgeWarn, PhonyCycle: PhonyCycleWarn}
}

// Loader reads included/subninja'd manifest files. The parser calls it
// re-entrantly for "include" (same scope) and "subninja" (child scope)
// statements.
type Loader interface {
	Load(path string) ([]byte, error)
}

// Parser parses one or more manifest files into a shared domain.State.
type Parser struct {
	state   *domain.State
	loader  Loader
	opts    Options
	outputs map[string]domain.EdgeID // canonical output path -> producing edge, for dupe detection
}

// New creates a Parser that populates state, loading includes via loader.
func New(state *domain.State, loader Loader, opts Options) *Parser {
	return &Parser{state: state, loader: loader, opts: opts, outputs: make(map[string]domain.EdgeID)}
}

// ParseFile tokenizes and parses one manifest file into the top-level scope.
func (p *Parser) ParseFile(filename string, src []byte) error {
	return p.parse(filename, src, p.state.Bindings)
}

func (p *Parser) parse(filename string, src []byte, scope *domain.BindingEnv) error {
	lx := lexer.New(src, filename)
	for {
		tok := lx.Next()
		switch tok.Kind {
		case lexer.EOF:
			return nil
		case lexer.ERROR:
			return fmt.Errorf("%s", tok.Text)
		case lexer.NEWLINE, lexer.INDENT:
			continue // blank line, or indentation with nothing meaningful before a statement
		case lexer.RULE:
			if err := p.parseRule(lx, scope); err != nil {
				return err
			}
		case lexer.POOL:
			if err := p.parsePool(lx); err != nil {
				return err
			}
		case lexer.BUILD:
			if err := p.parseBuild(lx, scope); err != nil {
				return err
			}
		case lexer.DEFAULT:
			if err := p.parseDefault(lx, scope); err != nil {
				return err
			}
		case lexer.INCLUDE:
			if err := p.parseInclude(lx, scope, filename); err != nil {
				return err
			}
		case lexer.SUBNINJA:
			if err := p.parseSubninja(lx, filename); err != nil {
				return err
			}
		case lexer.IDENT:
			if err := p.parseTopLevelBinding(lx, scope, tok.Text); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s:%d:%d: unexpected token %s", filename, tok.Line, tok.Col, tok.Kind)
		}
	}
}

func (p *Parser) parseTopLevelBinding(lx *lexer.Lexer, scope *domain.BindingEnv, name string) error {
	if err := expect(lx, lexer.EQUALS); err != nil {
		return err
	}
	val, err := lx.ReadVarValue()
	if err != nil {
		return err
	}
	value := val.Evaluate(scope)
	scope.AddBinding(name, value)
	if name == "ninja_required_version" || name == "majak_required_version" {
		if isNewerVersion(value) {
			return domain.ErrUnsupportedVersion
		}
	}
	return consumeStatementEnd(lx)
}

func (p *Parser) parseRule(lx *lexer.Lexer, scope *domain.BindingEnv) error {
	name, err := lx.ReadIdent()
	if err != nil {
		return err
	}
	if err := consumeStatementEnd(lx); err != nil {
		return err
	}
	rule := domain.NewRule(name)
	for {
		binding, ev, more, err := readIndentedBindingRaw(lx)
		if err != nil {
			return err
		}
		if !more {
			break
		}
		if !domain.IsReservedRuleBinding(binding) {
			return domain.ErrReservedBinding
		}
		// Rule bindings stay unevaluated: $in/$out and any rule-scope
		// variable are only resolved per edge, at EvaluateCommand time.
		rule.Bindings[binding] = ev
	}
	if _, ok := rule.Bindings["command"]; !ok {
		return domain.ErrEmptyCommand
	}
	if cmd := rule.Bindings["command"]; cmd.Empty() {
		return domain.ErrEmptyCommand
	}
	rf, hasRf := rule.Bindings["rspfile"]
	rc, hasRc := rule.Bindings["rspfile_content"]
	if hasRf != hasRc {
		return domain.ErrRspfileMismatch
	}
	_, _ = rf, rc
	return scope.AddRule(rule)
}

func (p *Parser) parsePool(lx *lexer.Lexer) error {
	name, err := lx.ReadIdent()
	if err != nil {
		return err
	}
	if err := consumeStatementEnd(lx); err != nil {
		return err
	}
	if p.state.LookupPool(name) != nil {
		return domain.ErrDuplicatePool
	}
	pool := domain.NewPool(name, 0)
	for {
		binding, val, more, err := readIndentedBinding(lx, p.state.Bindings)
		if err != nil {
			return err
		}
		if !more {
			break
		}
		if binding == "depth" {
			var depth int
			if _, err := fmt.Sscanf(val, "%d", &depth); err != nil {
				return fmt.Errorf("invalid pool depth %q: %w", val, err)
			}
			pool.Depth = depth
		}
	}
	p.state.AddPool(pool)
	return nil
}

func (p *Parser) parseBuild(lx *lexer.Lexer, scope *domain.BindingEnv) error {
	explicitOuts, err := readPathList(lx)
	if err != nil {
		return err
	}
	var implicitOuts []domain.EvalString
	if tok := lx.Next(); tok.Kind == lexer.PIPE {
		implicitOuts, err = readPathList(lx)
		if err != nil {
			return err
		}
	} else {
		lx.Unread()
	}
	if err := expect(lx, lexer.COLON); err != nil {
		return err
	}
	ruleName, err := lx.ReadIdent()
	if err != nil {
		return err
	}
	rule := scope.LookupRule(ruleName)
	if rule == nil {
		return domain.ErrUnknownRule
	}

	explicitIns, err := readPathList(lx)
	if err != nil {
		return err
	}
	var implicitIns, orderOnlyIns []domain.EvalString
	tok := lx.Next()
	if tok.Kind == lexer.PIPE {
		implicitIns, err = readPathList(lx)
		if err != nil {
			return err
		}
		tok = lx.Next()
	}
	if tok.Kind == lexer.PIPE2 {
		orderOnlyIns, err = readPathList(lx)
		if err != nil {
			return err
		}
		tok = lx.Next()
	}
	if tok.Kind != lexer.NEWLINE && tok.Kind != lexer.EOF {
		return fmt.Errorf("unexpected token %s in build statement", tok.Kind)
	}

	// Evaluate path terms against the enclosing (file) scope now, before
	// building the edge's own environment, and seed $in/$out from the
	// result: rule bodies reference them, and per-edge bindings below may
	// too.
	explicitOutPaths := evaluateAll(explicitOuts, scope)
	implicitOutPaths := evaluateAll(implicitOuts, scope)
	explicitInPaths := evaluateAll(explicitIns, scope)
	implicitInPaths := evaluateAll(implicitIns, scope)
	orderOnlyInPaths := evaluateAll(orderOnlyIns, scope)

	edgeEnv := domain.NewBindingEnv(scope)
	edgeEnv.AddBinding("in", joinSpace(explicitInPaths))
	edgeEnv.AddBinding("out", joinSpace(explicitOutPaths))

	var poolName string
	for {
		binding, val, more, err := readIndentedBinding(lx, edgeEnv)
		if err != nil {
			return err
		}
		if !more {
			break
		}
		edgeEnv.AddBinding(binding, val)
		if binding == "pool" {
			poolName = val
		}
	}

	var pool *domain.Pool
	if poolName != "" {
		pool = p.state.LookupPool(poolName)
		if pool == nil {
			return domain.ErrUnknownPool
		}
	} else if boundPool := edgeEnv.LookupVariable("pool"); boundPool != "" {
		pool = p.state.LookupPool(boundPool)
		if pool == nil {
			return domain.ErrUnknownPool
		}
	}

	if depsBinding := rule.Binding("deps"); depsBinding != nil && !depsBinding.Empty() {
		if len(explicitOutPaths) != 1 {
			return domain.ErrMultipleOutputsWithDeps
		}
	}

	edgeID := p.state.AddEdge(rule, pool, edgeEnv)
	edge := p.state.Edge(edgeID)

	if err := p.resolveOutputs(edge, edgeID, explicitOutPaths, implicitOutPaths); err != nil {
		return err
	}
	if err := p.resolveInputs(edge, edgeID, explicitInPaths, implicitInPaths, orderOnlyInPaths, rule.IsPhonyRule()); err != nil {
		return err
	}
	return nil
}

func evaluateAll(evs []domain.EvalString, scope *domain.BindingEnv) []string {
	out := make([]string, len(evs))
	for i := range evs {
		out[i] = evs[i].Evaluate(scope)
	}
	return out
}

func joinSpace(paths []string) string {
	out := ""
	for i, p := range paths {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

func (p *Parser) resolveOutputs(edge *domain.Edge, edgeID domain.EdgeID, explicit, implicit []string) error {
	allPaths := append(append([]string{}, explicit...), implicit...)
	for i, path := range allPaths {
		nodeID, err := p.state.GetNode(path)
		if err != nil {
			return err
		}
		if existing, dup := p.outputs[p.state.Node(nodeID).Path]; dup {
			if p.opts.DupeEdge == DupeEdgeError {
				return domain.ErrDuplicateOutput
			}
			// warn policy: drop this output from the new edge, keep the
			// original producer.
			_ = existing
			continue
		}
		if err := p.state.AddOut(edgeID, nodeID); err != nil {
			return err
		}
		p.outputs[p.state.Node(nodeID).Path] = edgeID
		edge.Outputs = append(edge.Outputs, nodeID)
		if i >= len(explicit) {
			edge.ImplicitOuts++
		}
	}
	return nil
}

func (p *Parser) resolveInputs(edge *domain.Edge, edgeID domain.EdgeID, explicit, implicit, orderOnly []string, phony bool) error {
	appendInput := func(path string) (domain.NodeID, error) {
		nodeID, err := p.state.GetNode(path)
		if err != nil {
			return domain.InvalidNodeID, err
		}
		return nodeID, nil
	}

	selfCycle := false
	for _, path := range explicit {
		id, err := appendInput(path)
		if err != nil {
			return err
		}
		if phony && edgeContainsOutput(edge, id) {
			selfCycle = true
			continue
		}
		edge.Inputs = append(edge.Inputs, id)
		p.state.AddIn(edgeID, id)
	}
	for _, path := range implicit {
		id, err := appendInput(path)
		if err != nil {
			return err
		}
		edge.Inputs = append(edge.Inputs, id)
		edge.ImplicitDeps++
		p.state.AddIn(edgeID, id)
	}
	for _, path := range orderOnly {
		id, err := appendInput(path)
		if err != nil {
			return err
		}
		edge.Inputs = append(edge.Inputs, id)
		edge.OrderOnlyDeps++
		p.state.AddIn(edgeID, id)
	}
	if selfCycle && p.opts.PhonyCycle == PhonyCycleError {
		return domain.ErrPhonySelfCycle
	}
	return nil
}

func edgeContainsOutput(edge *domain.Edge, id domain.NodeID) bool {
	for _, out := range edge.Outputs {
		if out == id {
			return true
		}
	}
	return false
}

func (p *Parser) parseDefault(lx *lexer.Lexer, scope *domain.BindingEnv) error {
	paths, err := readPathList(lx)
	if err != nil {
		return err
	}
	if err := consumeStatementEnd(lx); err != nil {
		return err
	}
	for _, ev := range paths {
		id, err := p.state.GetNode(ev.Evaluate(scope))
		if err != nil {
			return err
		}
		p.state.AddDefault(id)
	}
	return nil
}

func (p *Parser) parseInclude(lx *lexer.Lexer, scope *domain.BindingEnv, filename string) error {
	ev, _, err := lx.ReadPath()
	if err != nil {
		return err
	}
	if err := consumeStatementEnd(lx); err != nil {
		return err
	}
	path := ev.Evaluate(scope)
	src, err := p.loader.Load(path)
	if err != nil {
		return err
	}
	return p.parse(path, src, scope)
}

func (p *Parser) parseSubninja(lx *lexer.Lexer, filename string) error {
	ev, _, err := lx.ReadPath()
	if err != nil {
		return err
	}
	if err := consumeStatementEnd(lx); err != nil {
		return err
	}
	path := ev.Evaluate(p.state.Bindings)
	src, err := p.loader.Load(path)
	if err != nil {
		return err
	}
	child := domain.NewBindingEnv(p.state.Bindings)
	return p.parse(path, src, child)
}

// readPathList reads path terms until a terminator (colon, pipe, newline, EOF).
func readPathList(lx *lexer.Lexer) ([]domain.EvalString, error) {
	var out []domain.EvalString
	for {
		ev, ok, err := lx.ReadPath()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, ev)
	}
}

// readIndentedBinding reads one "  name = value" line under a rule/pool/
// build statement. more is false once the block ends (a non-indented line
// or EOF).
func readIndentedBinding(lx *lexer.Lexer, scope *domain.BindingEnv) (name, value string, more bool, err error) {
	tok := lx.Next()
	if tok.Kind != lexer.INDENT {
		lx.Unread()
		return "", "", false, nil
	}
	ident, err := lx.ReadIdent()
	if err != nil {
		return "", "", false, err
	}
	if err := expect(lx, lexer.EQUALS); err != nil {
		return "", "", false, err
	}
	ev, err := lx.ReadVarValue()
	if err != nil {
		return "", "", false, err
	}
	if err := consumeStatementEnd(lx); err != nil {
		return "", "", false, err
	}
	return ident, ev.Evaluate(scope), true, nil
}

// readIndentedBindingRaw is readIndentedBinding without evaluation, used
// for rule bodies whose bindings must stay lazy templates.
func readIndentedBindingRaw(lx *lexer.Lexer) (name string, value domain.EvalString, more bool, err error) {
	tok := lx.Next()
	if tok.Kind != lexer.INDENT {
		lx.Unread()
		return "", domain.EvalString{}, false, nil
	}
	ident, err := lx.ReadIdent()
	if err != nil {
		return "", domain.EvalString{}, false, err
	}
	if err := expect(lx, lexer.EQUALS); err != nil {
		return "", domain.EvalString{}, false, err
	}
	ev, err := lx.ReadVarValue()
	if err != nil {
		return "", domain.EvalString{}, false, err
	}
	if err := consumeStatementEnd(lx); err != nil {
		return "", domain.EvalString{}, false, err
	}
	return ident, ev, true, nil
}

func expect(lx *lexer.Lexer, kind lexer.Kind) error {
	tok := lx.Next()
	if tok.Kind != kind {
		return fmt.Errorf("line %d: expected %s, got %s", tok.Line, kind, tok.Kind)
	}
	return nil
}

func consumeStatementEnd(lx *lexer.Lexer) error {
	tok := lx.Next()
	if tok.Kind == lexer.NEWLINE || tok.Kind == lexer.EOF {
		return nil
	}
	return fmt.Errorf("line %d: expected end of line, got %s", tok.Line, tok.Kind)
}

// isNewerVersion reports whether v names a version newer than this
// implementation supports. majak implements the 1.x manifest language, so a
// requirement whose major version (the leading digits of v) is 2 or higher
// is rejected; every 1.x requirement is accepted, as is a v that does not
// start with a digit.
func isNewerVersion(v string) bool {
	major := 0
	for i := 0; i < len(v) && v[i] >= '0' && v[i] <= '9'; i++ {
		major = major*10 + int(v[i]-'0')
	}
	return major > 1
}
