package cypher

import (
	"fmt"
	"strconv"
	"strings"
)

// Parameterize lifts string, number and boolean literals out of src into
// bound parameters named $lit0, $lit1, ... and returns the rewritten text with
// the parameter values. Literals in relationship range position (*1..3) stay
// inline since Cypher does not accept parameters there.
//
// If src already uses parameters starting with "lit", a longer prefix is
// chosen so generated names never collide.
func Parameterize(src string) (string, map[string]any, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return "", nil, err
	}

	prefix := paramPrefix(toks)
	params := make(map[string]any)

	var b strings.Builder
	last := 0
	n := 0
	// inRel tracks open '[' brackets and whether each opened a relationship pattern.
	var inRel []bool

	for i, t := range toks {
		switch {
		case t.IsPunct("["):
			rel := i > 0 && (toks[i-1].IsPunct("-") || toks[i-1].IsPunct("<-"))
			inRel = append(inRel, rel)
			continue
		case t.IsPunct("]"):
			if len(inRel) > 0 {
				inRel = inRel[:len(inRel)-1]
			}
			continue
		}

		var value any
		switch t.Kind {
		case String:
			s, err := unquoteString(t.Text)
			if err != nil {
				return "", nil, &SyntaxError{Pos: t.Start, Msg: err.Error()}
			}
			value = s

		case Number:
			if len(inRel) > 0 && inRel[len(inRel)-1] {
				continue
			}
			v, ok := parseNumber(t.Text)
			if !ok {
				continue
			}
			value = v

		case Ident:
			if t.Quoted || (i > 0 && toks[i-1].IsPunct(".")) || (i+1 < len(toks) && toks[i+1].IsPunct(":")) {
				continue
			}
			switch {
			case strings.EqualFold(t.Text, "true"):
				value = true
			case strings.EqualFold(t.Text, "false"):
				value = false
			default:
				continue
			}

		default:
			continue
		}

		name := fmt.Sprintf("%s%d", prefix, n)
		n++
		params[name] = value
		b.WriteString(src[last:t.Start])
		b.WriteString("$" + name)
		last = t.End
	}
	b.WriteString(src[last:])

	return b.String(), params, nil
}

func paramPrefix(toks []Token) string {
	prefix := "lit"
	for {
		clash := false
		for _, t := range toks {
			if t.Kind == Param && strings.HasPrefix(t.Text, prefix) {
				clash = true
				break
			}
		}
		if !clash {
			return prefix
		}
		prefix += "_"
	}
}

func parseNumber(text string) (any, bool) {
	if !strings.ContainsAny(text, ".eE") {
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, false
		}
		return v, true
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, false
	}
	return v, true
}
