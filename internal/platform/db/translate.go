package db

import (
	"strconv"
	"strings"
)

// generatedKeyTables have an id column assigned by the engine.
var generatedKeyTables = map[string]bool{
	"suppliers":            true,
	"customers":            true,
	"sales":                true,
	"sale_items":           true,
	"inventory_log":        true,
	"purchases":            true,
	"purchase_orders":      true,
	"purchase_order_items": true,
}

// Translation is the backend form of one canonical statement.
type Translation struct {
	SQL string
	// Skip marks statements that have no meaning on the backend.
	Skip bool
	// Insert and Table describe the statement target when it is an INSERT.
	Insert bool
	Table  string
	// Returning is set when RETURNING id was appended.
	Returning bool
}

// GeneratesKey reports whether the statement inserts into a table with an engine assigned id.
func (t Translation) GeneratesKey() bool {
	return t.Insert && generatedKeyTables[t.Table]
}

// Translate rewrites a canonical statement for backend b.
func Translate(b Backend, query string) Translation {
	return translate(b, query)
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokNumber
	tokString
	tokQuoted
	tokSpace
	tokComment
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

func (t token) is(word string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, word)
}

func (t token) punct(p byte) bool {
	return t.kind == tokPunct && len(t.text) == 1 && t.text[0] == p
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordPart(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}

func lex(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		start := i
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
				i++
			}
			toks = append(toks, token{tokSpace, s[start:i]})
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			toks = append(toks, token{tokComment, s[start:i]})
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += 2 + end + 2
			}
			toks = append(toks, token{tokComment, s[start:i]})
		case c == '\'' || c == '"' || c == '`':
			i = scanQuoted(s, i, c)
			kind := tokQuoted
			if c == '\'' {
				kind = tokString
			}
			toks = append(toks, token{kind, s[start:i]})
		case isWordStart(c):
			for i < len(s) && isWordPart(s[i]) {
				i++
			}
			toks = append(toks, token{tokWord, s[start:i]})
		case c >= '0' && c <= '9':
			for i < len(s) && ((s[i] >= '0' && s[i] <= '9') || s[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, s[start:i]})
		default:
			i++
			toks = append(toks, token{tokPunct, s[start:i]})
		}
	}
	return toks
}

// scanQuoted returns the index just past the literal opened at s[i]. A doubled
// quote character is an escaped quote.
func scanQuoted(s string, i int, q byte) int {
	i++
	for i < len(s) {
		if s[i] == q {
			if i+1 < len(s) && s[i+1] == q {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

// significant returns indexes of tokens that are neither space nor comment.
func significant(toks []token) []int {
	idx := make([]int, 0, len(toks))
	for i, t := range toks {
		if t.kind != tokSpace && t.kind != tokComment {
			idx = append(idx, i)
		}
	}
	return idx
}

func unquote(t token) string {
	if t.kind == tokQuoted && len(t.text) >= 2 {
		return t.text[1 : len(t.text)-1]
	}
	return t.text
}

type insertShape struct {
	modifier string
	// dropFrom and dropTo bound the "OR <modifier> " tokens.
	dropFrom, dropTo int
	table            string
	columns          []string
	// complete means a single VALUES group ends the statement.
	complete bool
}

func parseInsert(toks []token, sig []int) (insertShape, bool) {
	var shape insertShape
	if len(sig) < 3 || !toks[sig[0]].is("INSERT") {
		return shape, false
	}
	k := 1
	if toks[sig[k]].is("OR") {
		if k+2 >= len(sig) {
			return shape, false
		}
		shape.modifier = strings.ToUpper(toks[sig[k+1]].text)
		shape.dropFrom = sig[k]
		shape.dropTo = sig[k+2]
		k += 2
	}
	if !toks[sig[k]].is("INTO") || k+1 >= len(sig) {
		return shape, false
	}
	k++
	name := toks[sig[k]]
	if k+2 < len(sig) && toks[sig[k+1]].punct('.') {
		k += 2
		name = toks[sig[k]]
	}
	if name.kind != tokWord && name.kind != tokQuoted {
		return shape, false
	}
	shape.table = strings.ToLower(unquote(name))
	k++

	if k >= len(sig) || !toks[sig[k]].punct('(') {
		return shape, true
	}
	k++
	for k < len(sig) {
		t := toks[sig[k]]
		if t.kind != tokWord && t.kind != tokQuoted {
			shape.columns = nil
			return shape, true
		}
		shape.columns = append(shape.columns, t.text)
		k++
		if k >= len(sig) {
			shape.columns = nil
			return shape, true
		}
		if toks[sig[k]].punct(',') {
			k++
			continue
		}
		if toks[sig[k]].punct(')') {
			k++
			break
		}
		shape.columns = nil
		return shape, true
	}

	if k >= len(sig) || !toks[sig[k]].is("VALUES") {
		return shape, true
	}
	k++
	if k >= len(sig) || !toks[sig[k]].punct('(') {
		return shape, true
	}
	closeAt := matchParen(toks, sig[k])
	if closeAt < 0 {
		return shape, true
	}
	for k < len(sig) && sig[k] <= closeAt {
		k++
	}
	for k < len(sig) && toks[sig[k]].punct(';') {
		k++
	}
	shape.complete = k == len(sig)
	return shape, true
}

// matchParen returns the index of the parenthesis closing toks[open], or -1.
func matchParen(toks []token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch {
		case toks[i].punct('('):
			depth++
		case toks[i].punct(')'):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// argCount counts top level arguments of the call whose parenthesis opens at toks[open].
func argCount(toks []token, open int) int {
	closeAt := matchParen(toks, open)
	if closeAt < 0 {
		return 0
	}
	depth, args, seen := 0, 1, false
	for i := open + 1; i < closeAt; i++ {
		t := toks[i]
		switch {
		case t.punct('('):
			depth++
		case t.punct(')'):
			depth--
		case t.punct(',') && depth == 0:
			args++
		}
		if t.kind != tokSpace && t.kind != tokComment {
			seen = true
		}
	}
	if !seen {
		return 0
	}
	return args
}

func nextSignificant(toks []token, i int) int {
	for j := i + 1; j < len(toks); j++ {
		if toks[j].kind != tokSpace && toks[j].kind != tokComment {
			return j
		}
	}
	return -1
}

func translate(b Backend, query string) Translation {
	tr := Translation{SQL: query}
	toks := lex(query)
	sig := significant(toks)
	if len(sig) == 0 {
		return tr
	}
	if toks[sig[0]].is("PRAGMA") {
		tr.Skip = b == ClientServer
		return tr
	}
	shape, isInsert := parseInsert(toks, sig)
	if isInsert {
		tr.Insert = true
		tr.Table = shape.table
	}
	if b == Embedded {
		return tr
	}

	var hasConflict, hasReturning bool
	for _, i := range sig {
		hasConflict = hasConflict || toks[i].is("CONFLICT")
		hasReturning = hasReturning || toks[i].is("RETURNING")
	}

	var suffix strings.Builder
	dropFrom, dropTo := -1, -1
	switch {
	case isInsert && shape.modifier == "IGNORE":
		dropFrom, dropTo = shape.dropFrom, shape.dropTo
		if !hasConflict {
			suffix.WriteString(" ON CONFLICT DO NOTHING")
		}
	case isInsert && shape.modifier == "REPLACE" && shape.complete && len(shape.columns) > 0:
		dropFrom, dropTo = shape.dropFrom, shape.dropTo
		suffix.WriteString(" ON CONFLICT (")
		suffix.WriteString(shape.columns[0])
		suffix.WriteString(")")
		if len(shape.columns) == 1 {
			suffix.WriteString(" DO NOTHING")
		} else {
			suffix.WriteString(" DO UPDATE SET ")
			for i, col := range shape.columns[1:] {
				if i > 0 {
					suffix.WriteString(", ")
				}
				suffix.WriteString(col)
				suffix.WriteString(" = EXCLUDED.")
				suffix.WriteString(col)
			}
		}
	}
	if isInsert && generatedKeyTables[shape.table] && !hasReturning {
		suffix.WriteString(" RETURNING id")
		tr.Returning = true
	}

	last := len(toks) - 1
	if suffix.Len() > 0 {
		j := len(sig) - 1
		for j > 0 && toks[sig[j]].punct(';') {
			j--
		}
		last = sig[j]
	}

	var out strings.Builder
	out.Grow(len(query) + suffix.Len() + 8)
	param := 0
	for i := 0; i <= last; i++ {
		if i >= dropFrom && i < dropTo {
			continue
		}
		t := toks[i]
		switch {
		case t.punct('?'):
			param++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(param))
		case t.is("MAX"):
			if open := nextSignificant(toks, i); open >= 0 && toks[open].punct('(') && argCount(toks, open) == 2 {
				out.WriteString("GREATEST")
			} else {
				out.WriteString(t.text)
			}
		default:
			out.WriteString(t.text)
		}
	}
	out.WriteString(suffix.String())
	tr.SQL = out.String()
	return tr
}
