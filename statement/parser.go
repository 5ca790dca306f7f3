// Package statement parses the CREATE FUNCTION statements and function
// call expressions accepted by the adhesive command line.
package statement

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cryguy/adhesive"
)

// Call is a parsed function call: a name applied to column names.
type Call struct {
	Function string
	Args     []string
}

type parser struct {
	tokens []Token
	pos    int
}

// Parse parses
//
//	CREATE [OR REPLACE] FUNCTION name([argname] type, ...) RETURNS type
//	    [LANGUAGE lang] AS '<source>' | "<class>"
//
// The LANGUAGE and AS clauses may appear in either order.
func Parse(sql string) (*adhesive.CreateFunction, error) {
	tokens, err := Tokenize(sql)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	stmt, err := p.parseCreateFunction()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t != nil && t.Type == Semicolon {
		p.next()
	}
	if t := p.peek(); t != nil {
		return nil, fmt.Errorf("line %d: unexpected %q after statement", t.Line, t.Value)
	}
	return stmt, nil
}

// ParseCall parses name(col, ...).
func ParseCall(expr string) (*Call, error) {
	tokens, err := Tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}

	name, err := p.expect(Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LParen); err != nil {
		return nil, err
	}
	call := &Call{Function: name.Value}
	if t := p.peek(); t != nil && t.Type == RParen {
		p.next()
	} else {
		for {
			arg, err := p.expect(Ident)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg.Value)
			sep := p.next()
			if sep == nil {
				return nil, fmt.Errorf("unexpected end of input")
			}
			if sep.Type == RParen {
				break
			}
			if sep.Type != Comma {
				return nil, fmt.Errorf("line %d: expected ',' or ')', got %q", sep.Line, sep.Value)
			}
		}
	}
	if t := p.peek(); t != nil {
		return nil, fmt.Errorf("line %d: unexpected %q after call", t.Line, t.Value)
	}
	return call, nil
}

func (p *parser) peek() *Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *parser) next() *Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	t := &p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) expect(typ TokenType) (*Token, error) {
	t := p.next()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of input, expected %v", typ)
	}
	if t.Type != typ {
		return nil, fmt.Errorf("line %d: expected %v, got %q", t.Line, typ, t.Value)
	}
	return t, nil
}

func (p *parser) expectKeyword(kw string) error {
	t := p.next()
	if t == nil {
		return fmt.Errorf("unexpected end of input, expected %s", kw)
	}
	if !t.keyword(kw) {
		return fmt.Errorf("line %d: expected %s, got %q", t.Line, kw, t.Value)
	}
	return nil
}

func (p *parser) acceptKeyword(kw string) bool {
	if t := p.peek(); t != nil && t.keyword(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseCreateFunction() (*adhesive.CreateFunction, error) {
	if err := p.expectKeyword("CREATE"); err != nil {
		return nil, err
	}
	stmt := &adhesive.CreateFunction{}
	if p.acceptKeyword("OR") {
		if err := p.expectKeyword("REPLACE"); err != nil {
			return nil, err
		}
		stmt.OrReplace = true
	}
	if err := p.expectKeyword("FUNCTION"); err != nil {
		return nil, err
	}

	name, err := p.expect(Ident)
	if err != nil {
		return nil, err
	}
	stmt.Name = name.Value

	if stmt.Args, err = p.parseArgs(); err != nil {
		return nil, err
	}

	if err := p.expectKeyword("RETURNS"); err != nil {
		return nil, err
	}
	words, err := p.typeWords(func(t *Token) bool { return t.keyword("LANGUAGE") || t.keyword("AS") || t.Type == Semicolon })
	if err != nil {
		return nil, err
	}
	if stmt.ReturnType, err = resolveType(words, name.Line); err != nil {
		return nil, err
	}

	var sawLanguage bool
	for {
		switch {
		case p.acceptKeyword("LANGUAGE"):
			if sawLanguage {
				return nil, fmt.Errorf("duplicate LANGUAGE clause")
			}
			lang, err := p.expect(Ident)
			if err != nil {
				return nil, err
			}
			stmt.Language = lang.Value
			sawLanguage = true
		case p.acceptKeyword("AS"):
			if stmt.Body != nil {
				return nil, fmt.Errorf("duplicate AS clause")
			}
			body := p.next()
			if body == nil {
				return nil, fmt.Errorf("unexpected end of input, expected function body")
			}
			switch body.Type {
			case SingleQuoted:
				stmt.Body = &adhesive.DefinitionStatement{Quote: adhesive.SingleQuoted, Value: body.Value}
			case DoubleQuoted:
				stmt.Body = &adhesive.DefinitionStatement{Quote: adhesive.DoubleQuoted, Value: body.Value}
			default:
				return nil, fmt.Errorf("line %d: expected quoted function body, got %q", body.Line, body.Value)
			}
		default:
			return stmt, nil
		}
	}
}

func (p *parser) parseArgs() ([]adhesive.FunctionArg, error) {
	if _, err := p.expect(LParen); err != nil {
		return nil, err
	}
	if t := p.peek(); t != nil && t.Type == RParen {
		p.next()
		return nil, nil
	}

	var args []adhesive.FunctionArg
	for {
		start := p.peek()
		words, err := p.typeWords(func(t *Token) bool { return t.Type == Comma || t.Type == RParen })
		if err != nil {
			return nil, err
		}
		arg, err := splitArg(words, start.Line)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		sep := p.next()
		if sep == nil {
			return nil, fmt.Errorf("unexpected end of input in argument list")
		}
		if sep.Type == RParen {
			return args, nil
		}
	}
}

// typeWords collects identifiers up to a token matching stop. A
// parenthesized length such as VARCHAR(20) is consumed and dropped.
func (p *parser) typeWords(stop func(*Token) bool) ([]string, error) {
	var words []string
	t := p.peek()
	for ; t != nil && !stop(t); t = p.peek() {
		switch t.Type {
		case Ident:
			words = append(words, t.Value)
			p.next()
		case LParen:
			if len(words) == 0 {
				return nil, fmt.Errorf("line %d: unexpected '('", t.Line)
			}
			p.next()
			if _, err := p.expect(Number); err != nil {
				return nil, err
			}
			if _, err := p.expect(RParen); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("line %d: unexpected %q in type", t.Line, t.Value)
		}
	}
	if len(words) == 0 {
		if t == nil {
			return nil, fmt.Errorf("unexpected end of input, expected type")
		}
		return nil, fmt.Errorf("line %d: expected type, got %q", t.Line, t.Value)
	}
	return words, nil
}

// splitArg treats the words as a bare type when they form one, and as a
// name followed by a type otherwise.
func splitArg(words []string, line int) (adhesive.FunctionArg, error) {
	if dt, ok := LookupType(strings.Join(words, " ")); ok {
		return adhesive.FunctionArg{Type: dt}, nil
	}
	if len(words) < 2 {
		return adhesive.FunctionArg{}, fmt.Errorf("line %d: unknown type %q", line, words[0])
	}
	dt, err := resolveType(words[1:], line)
	if err != nil {
		return adhesive.FunctionArg{}, err
	}
	return adhesive.FunctionArg{Name: words[0], Type: dt}, nil
}

func resolveType(words []string, line int) (arrow.DataType, error) {
	name := strings.Join(words, " ")
	dt, ok := LookupType(name)
	if !ok {
		return nil, fmt.Errorf("line %d: unknown type %q", line, name)
	}
	return dt, nil
}
