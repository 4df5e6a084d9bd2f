package dwr

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// maxDepth bounds literal nesting.
const maxDepth = 64

// ParseLiteral parses a JavaScript literal restricted to objects, arrays,
// strings, numbers, booleans, null, undefined and new Date(...). Nothing is
// evaluated: identifiers other than object keys and the keywords above are
// rejected.
//
// Values map to map[string]any, []any, string, float64, bool, nil and
// time.Time (UTC).
func ParseLiteral(src string) (any, error) {
	p := &parser{src: src}
	p.skipSpace()
	v, err := p.value(0)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("trailing data")
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return eris.Errorf("literal: offset %d: "+format, append([]any{p.pos}, args...)...)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) value(depth int) (any, error) {
	if depth > maxDepth {
		return nil, p.errorf("nesting too deep")
	}
	p.skipSpace()
	switch c := p.peek(); {
	case c == 0:
		return nil, p.errorf("unexpected end of input")
	case c == '{':
		return p.object(depth)
	case c == '[':
		return p.array(depth)
	case c == '"' || c == '\'':
		return p.str()
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		return p.keyword(depth)
	default:
		return nil, p.errorf("unexpected %q", c)
	}
}

func (p *parser) object(depth int) (any, error) {
	p.pos++ // {
	obj := make(map[string]any)
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return obj, nil
		}
		key, err := p.key()
		if err != nil {
			return nil, err
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		obj[key] = v

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return obj, nil
		default:
			return nil, p.errorf("expected ',' or '}'")
		}
	}
}

func (p *parser) key() (string, error) {
	c := p.peek()
	switch {
	case c == '"' || c == '\'':
		return p.str()
	case isIdentStart(c):
		return p.ident(), nil
	case isDigit(c):
		start := p.pos
		for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
			p.pos++
		}
		return p.src[start:p.pos], nil
	default:
		return "", p.errorf("expected object key")
	}
}

func (p *parser) array(depth int) (any, error) {
	p.pos++ // [
	arr := []any{}
	for {
		p.skipSpace()
		if p.peek() == ']' {
			p.pos++
			return arr, nil
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return arr, nil
		default:
			return nil, p.errorf("expected ',' or ']'")
		}
	}
}

func (p *parser) str() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return "", p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\n' || c == '\r':
			return "", p.errorf("newline in string")
		case c == '\\':
			p.pos++
			if err := p.escapeSeq(&b); err != nil {
				return "", err
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
}

func (p *parser) escapeSeq(b *strings.Builder) error {
	if p.pos >= len(p.src) {
		return p.errorf("unterminated escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case '0':
		b.WriteByte(0)
	case 'x':
		r, err := p.hex(2)
		if err != nil {
			return err
		}
		b.WriteRune(r)
	case 'u':
		r, err := p.hex(4)
		if err != nil {
			return err
		}
		if r >= 0xD800 && r < 0xDC00 && strings.HasPrefix(p.src[p.pos:], `\u`) {
			save := p.pos
			p.pos += 2
			lo, err := p.hex(4)
			if err == nil && lo >= 0xDC00 && lo < 0xE000 {
				r = (r-0xD800)<<10 + (lo - 0xDC00) + 0x10000
			} else {
				p.pos = save
			}
		}
		if !utf8.ValidRune(r) {
			r = utf8.RuneError
		}
		b.WriteRune(r)
	default:
		// \\, \', \", \/ and any other escaped char stand for themselves.
		b.WriteByte(c)
	}
	return nil
}

func (p *parser) hex(n int) (rune, error) {
	if p.pos+n > len(p.src) {
		return 0, p.errorf("short hex escape")
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+n], 16, 32)
	if err != nil {
		return 0, p.errorf("bad hex escape")
	}
	p.pos += n
	return rune(v), nil
}

func (p *parser) number() (any, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if isDigit(c) || c == '.' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		if (c == '-' || c == '+') && (p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E') {
			p.pos++
			continue
		}
		break
	}
	text := p.src[start:p.pos]
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) {
		p.pos = start
		return nil, p.errorf("bad number %q", text)
	}
	return f, nil
}

func (p *parser) keyword(depth int) (any, error) {
	start := p.pos
	switch word := p.ident(); word {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null", "undefined":
		return nil, nil
	case "new":
		p.skipSpace()
		if p.ident() != "Date" {
			p.pos = start
			return nil, p.errorf("only new Date is allowed")
		}
		return p.date(depth)
	default:
		p.pos = start
		return nil, p.errorf("identifier %q not allowed", word)
	}
}

// date parses the argument list of new Date(...). Numeric component lists
// follow the JavaScript convention of zero-based months and are read as UTC.
func (p *parser) date(depth int) (any, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var args []any
	for {
		p.skipSpace()
		if p.peek() == ')' {
			p.pos++
			break
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
		default:
			return nil, p.errorf("expected ',' or ')'")
		}
	}

	switch {
	case len(args) == 1:
		switch a := args[0].(type) {
		case float64:
			return time.UnixMilli(int64(a)).UTC(), nil
		case string:
			for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "2006/01/02"} {
				if t, err := time.Parse(layout, a); err == nil {
					return t.UTC(), nil
				}
			}
			return nil, p.errorf("unparseable date %q", a)
		}
	case len(args) >= 2 && len(args) <= 7:
		parts := [7]int{0, 0, 1, 0, 0, 0, 0}
		for i, a := range args {
			f, ok := a.(float64)
			if !ok {
				return nil, p.errorf("date component must be numeric")
			}
			parts[i] = int(f)
		}
		return time.Date(parts[0], time.Month(parts[1]+1), parts[2], parts[3], parts[4], parts[5], parts[6]*int(time.Millisecond), time.UTC), nil
	}
	return nil, p.errorf("unsupported Date arguments")
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
