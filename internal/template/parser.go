package template

import (
	"strings"
)

// Parse tokenizes and parses input into a Template.
func Parse(input, file string) (*Template, error) {
	tokens, err := NewLexer(input, file).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	nodes, end, err := p.parseUntil(nil)
	if err != nil {
		return nil, err
	}
	if end != nil {
		return nil, stray(end.pos, end.kw)
	}
	return &Template{File: file, Nodes: nodes}, nil
}

// ParseString is Parse for callers that think in terms of template text.
func ParseString(input, file string) (*Template, error) {
	return Parse(input, file)
}

// keyword is the leading word of a {* *} statement.
type keyword string

const (
	kwFor    keyword = "for"
	kwEndFor keyword = "endfor"
	kwIf     keyword = "if"
	kwElif   keyword = "elif"
	kwElse   keyword = "else"
	kwEndIf  keyword = "endif"
)

// stmt is a classified {* *} tag.
type stmt struct {
	pos  Position
	kw   keyword
	expr string   // condition or loop iterator
	vars []string // loop variables
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

// parseUntil consumes nodes until a statement whose keyword is in stop, or
// EOF. It returns that statement, or nil at EOF. Continuation and end
// keywords outside stop are returned too so the caller can report them.
func (p *parser) parseUntil(stop []keyword) ([]Node, *stmt, error) {
	var nodes []Node
	for {
		tok := p.next()
		switch tok.Type {
		case TokenEOF:
			return nodes, nil, nil

		case TokenText:
			if tok.Value != "" {
				nodes = append(nodes, &Text{At: tok.Pos, SQL: tok.Value})
			}

		case TokenExpr:
			if tok.Value == "" {
				return nil, nil, errorf(PhaseParse, tok.Pos, "empty expression")
			}
			nodes = append(nodes, &Expr{At: tok.Pos, Source: tok.Value})

		case TokenStmt:
			s, err := classify(tok)
			if err != nil {
				return nil, nil, err
			}
			switch s.kw {
			case kwFor:
				loop, err := p.parseLoop(s)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, loop)
			case kwIf:
				cond, err := p.parseCond(s)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, cond)
			default:
				for _, kw := range stop {
					if s.kw == kw {
						return nodes, s, nil
					}
				}
				return nil, nil, stray(s.pos, s.kw)
			}
		}
	}
}

func (p *parser) parseLoop(open *stmt) (*Loop, error) {
	body, end, err := p.parseUntil([]keyword{kwEndFor})
	if err != nil {
		return nil, err
	}
	if end == nil {
		return nil, unclosed(open.pos, kwFor)
	}
	return &Loop{At: open.pos, Vars: open.vars, Iter: open.expr, Body: body}, nil
}

func (p *parser) parseCond(open *stmt) (*Cond, error) {
	cond := &Cond{At: open.pos}
	arm := open
	for {
		body, end, err := p.parseUntil([]keyword{kwElif, kwElse, kwEndIf})
		if err != nil {
			return nil, err
		}
		if end == nil {
			return nil, unclosed(open.pos, kwIf)
		}

		if arm != nil {
			cond.Branches = append(cond.Branches, Branch{At: arm.pos, Test: arm.expr, Body: body})
		} else {
			if body == nil {
				body = []Node{}
			}
			cond.Else = body
		}

		switch end.kw {
		case kwEndIf:
			return cond, nil
		case kwElif, kwElse:
			if arm == nil {
				return nil, errorf(PhaseParse, end.pos, "'%s' after 'else'", end.kw)
			}
			if end.kw == kwElse {
				arm = nil
			} else {
				arm = end
			}
		}
	}
}

// classify parses the content of a {* ... *} tag.
func classify(tok Token) (*stmt, error) {
	content := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(tok.Value), ":"))
	word, rest, _ := strings.Cut(content, " ")
	rest = strings.TrimSpace(rest)
	s := &stmt{pos: tok.Pos, kw: keyword(word)}

	switch s.kw {
	case kwFor:
		vars, iter, ok := strings.Cut(rest, " in ")
		iter = strings.TrimSpace(iter)
		names, valid := loopVars(vars)
		if !ok || iter == "" || !valid {
			return nil, errorf(PhaseParse, tok.Pos, "invalid for statement %q, expected 'for x in items'", tok.Value)
		}
		s.vars, s.expr = names, iter

	case kwIf, kwElif:
		if rest == "" {
			return nil, errorf(PhaseParse, tok.Pos, "'%s' needs a condition", word)
		}
		s.expr = rest

	case kwElse, kwEndFor, kwEndIf:
		if rest != "" {
			return nil, errorf(PhaseParse, tok.Pos, "unexpected %q after '%s'", rest, word)
		}

	default:
		return nil, errorf(PhaseParse, tok.Pos, "unknown statement %q", tok.Value)
	}
	return s, nil
}

// loopVars splits "x" or "k, v" into identifiers.
func loopVars(vars string) ([]string, bool) {
	parts := strings.Split(vars, ",")
	for i, v := range parts {
		parts[i] = strings.TrimSpace(v)
		if !isIdent(parts[i]) {
			return nil, false
		}
	}
	return parts, true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		letter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !letter && (i == 0 || r < '0' || r > '9') {
			return false
		}
	}
	return true
}
