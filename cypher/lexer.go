// Package cypher provides the lexical and structural analysis of Cypher query
// text used to validate generated queries against a graph schema, the literal
// parameteriser that turns generated literals into bound parameters, and a
// small parameterised query builder for hand-written read queries.
//
// The analyser is deliberately shallow: it recognises node and relationship
// patterns, property accesses, label predicates, RETURN items and write
// clauses. It does not implement the full Cypher grammar; the graph store
// remains the authority on syntax.
package cypher

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind identifies the lexical class of a token.
type TokenKind int

const (
	// Ident is a plain or backtick-quoted identifier, including keywords.
	Ident TokenKind = iota
	// String is a single- or double-quoted string literal.
	String
	// Number is an integer or floating point literal.
	Number
	// Param is a $parameter reference.
	Param
	// Punct is an operator or delimiter.
	Punct
)

// String returns the token kind name for debugging.
func (k TokenKind) String() string {
	switch k {
	case Ident:
		return "Ident"
	case String:
		return "String"
	case Number:
		return "Number"
	case Param:
		return "Param"
	case Punct:
		return "Punct"
	default:
		return fmt.Sprintf("TokenKind(%d)", int(k))
	}
}

// Token is a lexical token with its byte span in the source text.
type Token struct {
	Kind TokenKind
	// Text is the token's value: the identifier name without backticks, the
	// parameter name without '$', the raw literal for strings and numbers, or
	// the operator itself.
	Text string
	// Quoted is true for backtick-quoted identifiers, which are never keywords.
	Quoted bool
	// Start and End delimit the token in the source, End exclusive.
	Start, End int
}

// Is reports whether the token is the unquoted keyword kw (case-insensitive).
func (t Token) Is(kw string) bool {
	return t.Kind == Ident && !t.Quoted && strings.EqualFold(t.Text, kw)
}

// IsPunct reports whether the token is the operator or delimiter p.
func (t Token) IsPunct(p string) bool {
	return t.Kind == Punct && t.Text == p
}

// SyntaxError reports text the lexer could not tokenize.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("cypher syntax error at offset %d: %s", e.Pos, e.Msg)
}

// multi-character operators, longest first.
var operators = []string{"<-", "->", "<>", "<=", ">=", "=~", "..", "+=", "::", "||"}

// Tokenize splits src into tokens, skipping whitespace and comments.
func Tokenize(src string) ([]Token, error) {
	var toks []Token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])

		switch {
		case r == utf8.RuneError && size == 1:
			return nil, &SyntaxError{Pos: i, Msg: "invalid UTF-8"}

		case unicode.IsSpace(r):
			i += size

		case strings.HasPrefix(src[i:], "//"):
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				i = len(src)
			} else {
				i += end + 1
			}

		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return nil, &SyntaxError{Pos: i, Msg: "unterminated comment"}
			}
			i += 2 + end + 2

		case r == '\'' || r == '"':
			end, err := scanString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, Token{Kind: String, Text: src[i:end], Start: i, End: end})
			i = end

		case r == '`':
			end := i + 1
			var name strings.Builder
			for {
				j := strings.IndexByte(src[end:], '`')
				if j < 0 {
					return nil, &SyntaxError{Pos: i, Msg: "unterminated quoted identifier"}
				}
				name.WriteString(src[end : end+j])
				end += j + 1
				// A doubled backtick escapes a literal backtick.
				if end < len(src) && src[end] == '`' {
					name.WriteByte('`')
					end++
					continue
				}
				break
			}
			toks = append(toks, Token{Kind: Ident, Text: name.String(), Quoted: true, Start: i, End: end})
			i = end

		case r == '$':
			end := i + 1
			for end < len(src) {
				r2, s2 := utf8.DecodeRuneInString(src[end:])
				if !isIdentRune(r2) {
					break
				}
				end += s2
			}
			if end == i+1 {
				return nil, &SyntaxError{Pos: i, Msg: "empty parameter name"}
			}
			toks = append(toks, Token{Kind: Param, Text: src[i+1 : end], Start: i, End: end})
			i = end

		case isDigit(r) || (r == '.' && i+1 < len(src) && isDigit(rune(src[i+1])) && !prevIsIdentLike(toks)):
			end := scanNumber(src, i)
			toks = append(toks, Token{Kind: Number, Text: src[i:end], Start: i, End: end})
			i = end

		case r == '_' || unicode.IsLetter(r):
			end := i
			for end < len(src) {
				r2, s2 := utf8.DecodeRuneInString(src[end:])
				if !isIdentRune(r2) {
					break
				}
				end += s2
			}
			toks = append(toks, Token{Kind: Ident, Text: src[i:end], Start: i, End: end})
			i = end

		default:
			op := src[i : i+size]
			for _, candidate := range operators {
				if strings.HasPrefix(src[i:], candidate) {
					op = candidate
					break
				}
			}
			toks = append(toks, Token{Kind: Punct, Text: op, Start: i, End: i + len(op)})
			i += len(op)
		}
	}
	return toks, nil
}

func scanString(src string, start int) (int, error) {
	quote := src[start]
	i := start + 1
	for i < len(src) {
		switch src[i] {
		case '\\':
			i += 2
		case quote:
			return i + 1, nil
		default:
			i++
		}
	}
	return 0, &SyntaxError{Pos: start, Msg: "unterminated string literal"}
}

func scanNumber(src string, start int) int {
	i := start
	for i < len(src) && isDigit(rune(src[i])) {
		i++
	}
	// A fraction needs a digit after the dot so that ranges such as 1..3 stay
	// three tokens.
	if i+1 < len(src) && src[i] == '.' && isDigit(rune(src[i+1])) {
		i++
		for i < len(src) && isDigit(rune(src[i])) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(rune(src[j])) {
			i = j
			for i < len(src) && isDigit(rune(src[i])) {
				i++
			}
		}
	}
	return i
}

// prevIsIdentLike reports whether a '.' at the current position follows an
// expression (a.b, list[0].x), in which case it is property access and not
// the start of a number.
func prevIsIdentLike(toks []Token) bool {
	if len(toks) == 0 {
		return false
	}
	last := toks[len(toks)-1]
	return last.Kind == Ident || last.Kind == Param || last.IsPunct(")") || last.IsPunct("]")
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// unquoteString decodes a Cypher string literal including its quotes.
func unquoteString(lit string) (string, error) {
	if len(lit) < 2 {
		return "", fmt.Errorf("invalid string literal %q", lit)
	}
	body := lit[1 : len(lit)-1]
	if !strings.ContainsRune(body, '\\') {
		return body, nil
	}

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 >= len(body) {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'u', 'U':
			n := 4
			if body[i] == 'U' {
				n = 8
			}
			if i+1+n > len(body) {
				return "", fmt.Errorf("truncated unicode escape in %q", lit)
			}
			code, err := strconv.ParseUint(body[i+1:i+1+n], 16, 32)
			if err != nil {
				return "", fmt.Errorf("invalid unicode escape in %q", lit)
			}
			b.WriteRune(rune(code))
			i += n
		default:
			// \\, \', \" and any unknown escape yield the character itself.
			b.WriteByte(body[i])
		}
	}
	return b.String(), nil
}
