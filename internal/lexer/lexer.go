package lexer

import (
	"fmt"

	"github.com/majak-build/majak/internal/core/domain"
)

// Lexer is a single-pass byte scanner over a manifest's source text. It
// exposes a structural token stream via Next/Unread for statement-level
// tokens (keywords, punctuation, newlines, indentation), plus ReadIdent,
// ReadPath and ReadVarValue for the value-bearing grammar positions the
// parser drives explicitly once it knows what shape of value to expect.
type Lexer struct {
	src      []byte
	filename string
	pos      int
	line     int
	col      int

	atLineStart bool

	// savedPos implements one-token lookahead: Unread rewinds to the start
	// of the most recently returned token.
	savedPos, savedLine, savedCol int
	savedAtLineStart              bool
}

// New creates a Lexer over src. filename is used only for error messages.
func New(src []byte, filename string) *Lexer {
	return &Lexer{src: src, filename: filename, line: 1, col: 1, atLineStart: true}
}

func (l *Lexer) errorf(format string, args ...any) Token {
	return Token{Kind: ERROR, Text: fmt.Sprintf("%s:%d:%d: "+format, append([]any{l.filename, l.line, l.col}, args...)...), Offset: l.pos, Line: l.line, Col: l.col}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

// skipCommentsAndContinuations consumes "#...\n" comment lines and "$\n"
// escaped continuations, both of which are invisible to the statement
// grammar.
func (l *Lexer) skipCommentsAndContinuations() {
	for {
		switch {
		case l.peek() == '#':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
			if l.peek() == '\n' {
				l.advance()
				l.atLineStart = true
			}
		case l.peek() == '$' && l.peekAt(1) == '\n':
			l.advance()
			l.advance()
		case l.peek() == '$' && l.peekAt(1) == '\r' && l.peekAt(2) == '\n':
			l.advance()
			l.advance()
			l.advance()
		default:
			return
		}
	}
}

// Next returns the next structural token. Blank lines (including
// comment-only lines) are collapsed away; a run of spaces at the true
// start of a line becomes INDENT, tabs there are a hard error.
func (l *Lexer) Next() Token {
	l.savedPos, l.savedLine, l.savedCol, l.savedAtLineStart = l.pos, l.line, l.col, l.atLineStart

	l.skipCommentsAndContinuations()

	if l.atLineStart {
		if l.peek() == '\t' {
			return l.errorf("tabs are not allowed for indentation")
		}
		if l.peek() == ' ' {
			start := l.pos
			for l.peek() == ' ' {
				l.advance()
			}
			l.atLineStart = false
			return Token{Kind: INDENT, Text: string(l.src[start:l.pos]), Offset: start, Line: l.line, Col: l.col}
		}
		l.atLineStart = false
	} else {
		for l.peek() == ' ' {
			l.advance()
		}
		l.skipCommentsAndContinuations()
	}

	startLine, startCol, startOff := l.line, l.col, l.pos

	if l.pos >= len(l.src) {
		return Token{Kind: EOF, Offset: l.pos, Line: startLine, Col: startCol}
	}

	c := l.peek()
	switch {
	case c == '\n':
		l.advance()
		l.atLineStart = true
		return Token{Kind: NEWLINE, Offset: startOff, Line: startLine, Col: startCol}
	case c == '\r' && l.peekAt(1) == '\n':
		l.advance()
		l.advance()
		l.atLineStart = true
		return Token{Kind: NEWLINE, Offset: startOff, Line: startLine, Col: startCol}
	case c == '=':
		l.advance()
		return Token{Kind: EQUALS, Offset: startOff, Line: startLine, Col: startCol}
	case c == ':':
		l.advance()
		return Token{Kind: COLON, Offset: startOff, Line: startLine, Col: startCol}
	case c == '|':
		l.advance()
		if l.peek() == '|' {
			l.advance()
			return Token{Kind: PIPE2, Offset: startOff, Line: startLine, Col: startCol}
		}
		return Token{Kind: PIPE, Offset: startOff, Line: startLine, Col: startCol}
	default:
		text := l.scanIdentText()
		if text == "" {
			return l.errorf("unexpected character %q", c)
		}
		if kind, ok := keywords[text]; ok {
			return Token{Kind: kind, Text: text, Offset: startOff, Line: startLine, Col: startCol}
		}
		return Token{Kind: IDENT, Text: text, Offset: startOff, Line: startLine, Col: startCol}
	}
}

// scanIdentText consumes a run of characters that are not structural
// delimiters: whitespace, ':', '|', '=', '\n', '#', '$'.
func (l *Lexer) scanIdentText() string {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.peek()
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ':' || c == '|' || c == '=' || c == '#' || c == '$' {
			break
		}
		l.advance()
	}
	return string(l.src[start:l.pos])
}

// Unread rewinds the lexer to just before the most recently returned
// token, implementing the one-token lookahead the parser needs.
func (l *Lexer) Unread() {
	l.pos, l.line, l.col, l.atLineStart = l.savedPos, l.savedLine, l.savedCol, l.savedAtLineStart
}

// ReadIdent reads a single bare identifier (a pool, rule or variable name):
// a run of non-delimiter characters with no $-escape processing.
func (l *Lexer) ReadIdent() (string, error) {
	for l.peek() == ' ' {
		l.advance()
	}
	text := l.scanIdentText()
	if text == "" {
		return "", l.errorAt("expected identifier")
	}
	return text, nil
}

// ReadPath reads one EvalString path term: text up to (not including)
// whitespace, ':', '|', '||' or newline, honoring path escapes.
// It returns an empty, !ok result when positioned at a terminator.
func (l *Lexer) ReadPath() (domain.EvalString, bool, error) {
	for l.peek() == ' ' {
		l.advance()
	}
	if l.atTerminator() {
		return domain.EvalString{}, false, nil
	}
	ev, err := l.readEvalString(func(c byte) bool {
		return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ':' || c == '|'
	})
	return ev, true, err
}

// ReadVarValue reads a "var = value" right-hand side: everything to the end
// of the (possibly $-continued) line.
func (l *Lexer) ReadVarValue() (domain.EvalString, error) {
	for l.peek() == ' ' {
		l.advance()
	}
	return l.readEvalString(func(c byte) bool {
		return c == '\n' || c == '\r'
	})
}

func (l *Lexer) atTerminator() bool {
	c := l.peek()
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ':' || c == '|' || l.pos >= len(l.src)
}

// readEvalString scans literal/variable segments until stop(c) is true for
// the next unescaped character, interpreting $$, $ , $:, ${name} and $name.
func (l *Lexer) readEvalString(stop func(byte) bool) (domain.EvalString, error) {
	var ev domain.EvalString
	var lit []byte
	flush := func() {
		if len(lit) > 0 {
			ev.AddLiteral(string(lit))
			lit = lit[:0]
		}
	}
	for l.pos < len(l.src) {
		c := l.peek()
		if c == '$' && l.peekAt(1) == '\n' {
			l.advance()
			l.advance()
			for l.peek() == ' ' {
				l.advance()
			}
			continue
		}
		if c == '$' {
			l.advance()
			switch l.peek() {
			case '$':
				l.advance()
				lit = append(lit, '$')
			case ' ':
				l.advance()
				lit = append(lit, ' ')
			case ':':
				l.advance()
				lit = append(lit, ':')
			case '{':
				l.advance()
				start := l.pos
				for l.pos < len(l.src) && l.peek() != '}' {
					l.advance()
				}
				name := string(l.src[start:l.pos])
				if l.peek() == '}' {
					l.advance()
				}
				flush()
				ev.AddVariable(name)
			default:
				start := l.pos
				for l.pos < len(l.src) && isNameByte(l.peek()) {
					l.advance()
				}
				if start == l.pos {
					return ev, l.errorAt("expected variable name after '$'")
				}
				flush()
				ev.AddVariable(string(l.src[start:l.pos]))
			}
			continue
		}
		if stop(c) {
			break
		}
		lit = append(lit, c)
		l.advance()
	}
	flush()
	return ev, nil
}

func isNameByte(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (l *Lexer) errorAt(msg string) error {
	return fmt.Errorf("%s:%d:%d: %s", l.filename, l.line, l.col, msg)
}

// Position returns the lexer's current line/column, for parser diagnostics.
func (l *Lexer) Position() (line, col int) {
	return l.line, l.col
}
