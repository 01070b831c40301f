package template

import (
	"strings"
	"unicode/utf8"
)

// TokenType identifies the type of token.
type TokenType int

// TokenType constants for template token types.
const (
	TokenText TokenType = iota // Literal text (SQL)
	TokenExpr                  // Expression content (between {{ and }})
	TokenStmt                  // Statement content (between {* and *})
	TokenEOF                   // End of input
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "TEXT"
	case TokenExpr:
		return "EXPR"
	case TokenStmt:
		return "STMT"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Pos   Position
}

// delimiter describes one tag syntax. Comments ({# #}) produce no token.
type delimiter struct {
	open, close string
	typ         TokenType
	emit        bool
	// expression tags may contain braces and string literals
	expression bool
	missing    string
}

var delimiters = []delimiter{
	{open: "{{", close: "}}", typ: TokenExpr, emit: true, expression: true, missing: "unclosed expression: missing '}}'"},
	{open: "{*", close: "*}", typ: TokenStmt, emit: true, missing: "unclosed statement: missing '*}'"},
	{open: "{#", close: "#}", missing: "unclosed comment: missing '#}'"},
}

// Lexer tokenizes a template string.
type Lexer struct {
	input string
	file  string
	pos   int // byte offset into input
	line  int // 1-based
	col   int // 1-based
	start Position
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input, file string) *Lexer {
	return &Lexer{input: input, file: file, line: 1, col: 1}
}

// Tokenize converts the input into a slice of tokens ending with TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for l.pos < len(l.input) {
		if d, ok := l.openingDelimiter(); ok {
			tok, err := l.scanTag(d)
			if err != nil {
				return nil, err
			}
			if d.emit {
				tokens = append(tokens, tok)
			}
			continue
		}
		tokens = append(tokens, l.scanText())
	}
	return append(tokens, Token{Type: TokenEOF, Pos: l.position()}), nil
}

func (l *Lexer) openingDelimiter() (delimiter, bool) {
	for _, d := range delimiters {
		if strings.HasPrefix(l.input[l.pos:], d.open) {
			return d, true
		}
	}
	return delimiter{}, false
}

// scanText consumes literal text up to the next tag or EOF.
func (l *Lexer) scanText() Token {
	l.mark()
	begin := l.pos
	for l.pos < len(l.input) {
		if _, ok := l.openingDelimiter(); ok {
			break
		}
		l.advance()
	}
	return Token{Type: TokenText, Value: l.input[begin:l.pos], Pos: l.start}
}

// scanTag consumes one delimited tag and returns its trimmed content.
func (l *Lexer) scanTag(d delimiter) (Token, error) {
	l.mark()
	l.skip(len(d.open))
	begin := l.pos

	depth := 0
	var quote rune
	for l.pos < len(l.input) {
		r := l.peek()

		if d.expression {
			switch {
			case quote != 0:
				if r == '\\' {
					l.advance() // escaped character inside a string literal
				} else if r == quote {
					quote = 0
				}
				l.advance()
				continue
			case r == '"' || r == '\'':
				quote = r
				l.advance()
				continue
			}
		}

		if depth == 0 && strings.HasPrefix(l.input[l.pos:], d.close) {
			content := strings.TrimSpace(l.input[begin:l.pos])
			l.skip(len(d.close))
			return Token{Type: d.typ, Value: content, Pos: l.start}, nil
		}

		if d.expression {
			if r == '{' {
				depth++
			} else if r == '}' && depth > 0 {
				depth--
			}
		}
		l.advance()
	}

	return Token{}, &Error{Phase: PhaseLex, Pos: l.start, Msg: d.missing}
}

// peek returns the current rune without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

// advance moves to the next rune, updating position tracking.
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

// skip advances over n bytes of ASCII delimiter text.
func (l *Lexer) skip(n int) {
	l.pos += n
	l.col += n
}

func (l *Lexer) mark() {
	l.start = l.position()
}

func (l *Lexer) position() Position {
	return Position{File: l.file, Line: l.line, Column: l.col}
}
