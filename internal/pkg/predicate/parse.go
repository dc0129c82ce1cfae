package predicate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// SyntaxError reports an expression that cannot be compiled.
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("predicate %q: position %d: %s", e.Expr, e.Pos, e.Msg)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokNot
	tokAnd
	tokOr
	tokOp
	tokString
	tokWord
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(expr string) ([]token, error) {
	var toks []token
	rs := []rune(expr)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case r == '!' && i+1 < len(rs) && rs[i+1] == '=':
			toks = append(toks, token{tokOp, "!=", i})
			i += 2
		case r == '!':
			toks = append(toks, token{tokNot, "!", i})
			i++
		case r == '=' && i+1 < len(rs) && (rs[i+1] == '=' || rs[i+1] == '~'):
			toks = append(toks, token{tokOp, string(rs[i : i+2]), i})
			i += 2
		case r == '&' && i+1 < len(rs) && rs[i+1] == '&':
			toks = append(toks, token{tokAnd, "&&", i})
			i += 2
		case r == '|' && i+1 < len(rs) && rs[i+1] == '|':
			toks = append(toks, token{tokOr, "||", i})
			i += 2
		case r == '\'' || r == '"':
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(rs) {
				if rs[i] == '\\' && i+1 < len(rs) && (rs[i+1] == r || rs[i+1] == '\\') {
					sb.WriteRune(rs[i+1])
					i += 2
					continue
				}
				if rs[i] == r {
					closed = true
					i++
					break
				}
				sb.WriteRune(rs[i])
				i++
			}
			if !closed {
				return nil, &SyntaxError{Expr: expr, Pos: start, Msg: "unterminated string"}
			}
			toks = append(toks, token{tokString, sb.String(), start})
		case isWordRune(r):
			start := i
			for i < len(rs) && isWordRune(rs[i]) {
				i++
			}
			word := string(rs[start:i])
			switch strings.ToLower(word) {
			case "and":
				toks = append(toks, token{tokAnd, word, start})
			case "or":
				toks = append(toks, token{tokOr, word, start})
			case "not":
				toks = append(toks, token{tokNot, word, start})
			case "contains":
				toks = append(toks, token{tokOp, "contains", start})
			default:
				toks = append(toks, token{tokWord, word, start})
			}
		default:
			return nil, &SyntaxError{Expr: expr, Pos: i, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	toks = append(toks, token{tokEOF, "", len(rs)})
	return toks, nil
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("_.:@-/", r)
}

type parser struct {
	expr string
	toks []token
	pos  int
}

// Parse compiles expr into a Predicate.
func Parse(expr string) (Predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, &SyntaxError{Expr: expr, Msg: "empty expression"}
	}
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{expr: expr, toks: toks}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return pred, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Expr: p.expr, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Predicate, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Predicate, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Predicate, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, p.errorf(c, "expected ')'")
		}
		return inner, nil
	case tokWord:
		return p.parseTerm(t)
	case tokEOF:
		return nil, p.errorf(t, "unexpected end of expression")
	default:
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
}

func (p *parser) parseTerm(t token) (Predicate, error) {
	word := t.text
	switch {
	case word == "true" || word == "always":
		return constNode(true), nil
	case word == "false":
		return constNode(false), nil
	case strings.HasPrefix(word, "tag:"):
		name := strings.TrimPrefix(word, "tag:")
		if name == "" {
			return nil, p.errorf(t, "tag name is empty")
		}
		return tagNode(name), nil
	case strings.HasPrefix(word, "field:"):
		name := strings.TrimPrefix(word, "field:")
		if name == "" {
			return nil, p.errorf(t, "field name is empty")
		}
		if p.peek().kind != tokOp {
			return existsNode(name), nil
		}
		op := p.next()
		v := p.next()
		if v.kind != tokString && v.kind != tokWord {
			return nil, p.errorf(v, "expected value after %q", op.text)
		}
		node := &compareNode{field: name, op: op.text, value: v.text}
		if op.text == "=~" {
			re, err := regexp.Compile(v.text)
			if err != nil {
				return nil, p.errorf(v, "invalid regular expression: %v", err)
			}
			node.re = re
		}
		return node, nil
	}
	return nil, p.errorf(t, "unknown term %q (expected tag:, field:, true or false)", word)
}
