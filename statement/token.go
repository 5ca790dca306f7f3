package statement

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType classifies a lexical token.
type TokenType int

const (
	Ident TokenType = iota
	SingleQuoted
	DoubleQuoted
	Number
	LParen
	RParen
	Comma
	Semicolon
)

func (t TokenType) String() string {
	switch t {
	case Ident:
		return "identifier"
	case SingleQuoted:
		return "single-quoted string"
	case DoubleQuoted:
		return "double-quoted string"
	case Number:
		return "number"
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Comma:
		return "','"
	case Semicolon:
		return "';'"
	}
	return "unknown"
}

// Token is one lexical token. Quoted tokens hold the unescaped contents.
type Token struct {
	Value string
	Type  TokenType
	Line  int
}

// keyword reports whether t is the identifier kw, case-insensitively.
func (t Token) keyword(kw string) bool {
	return t.Type == Ident && strings.EqualFold(t.Value, kw)
}

// Tokenize splits SQL text into tokens. Quotes inside strings are escaped
// by doubling them, and -- starts a line comment.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	line := 1
	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' {
			line++
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}

		if r == '-' && i+1 < len(runes) && runes[i+1] == '-' {
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			line++
			continue
		}

		switch r {
		case '(':
			tokens = append(tokens, Token{"(", LParen, line})
			continue
		case ')':
			tokens = append(tokens, Token{")", RParen, line})
			continue
		case ',':
			tokens = append(tokens, Token{",", Comma, line})
			continue
		case ';':
			tokens = append(tokens, Token{";", Semicolon, line})
			continue
		}

		if r == '\'' || r == '"' {
			startLine := line
			var b strings.Builder
			closed := false
			for i++; i < len(runes); i++ {
				c := runes[i]
				if c == r {
					if i+1 < len(runes) && runes[i+1] == r {
						b.WriteRune(r)
						i++
						continue
					}
					closed = true
					break
				}
				if c == '\n' {
					line++
				}
				b.WriteRune(c)
			}
			if !closed {
				return nil, fmt.Errorf("line %d: unterminated string", startLine)
			}
			typ := SingleQuoted
			if r == '"' {
				typ = DoubleQuoted
			}
			tokens = append(tokens, Token{b.String(), typ, startLine})
			continue
		}

		if unicode.IsDigit(r) {
			start := i
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
			tokens = append(tokens, Token{string(runes[start:i]), Number, line})
			i--
			continue
		}

		if unicode.IsLetter(r) || r == '_' {
			start := i
			for i < len(runes) {
				c := runes[i]
				if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '.' || c == '$' {
					i++
				} else {
					break
				}
			}
			tokens = append(tokens, Token{string(runes[start:i]), Ident, line})
			i--
			continue
		}

		return nil, fmt.Errorf("line %d: unexpected character %q", line, r)
	}

	return tokens, nil
}
