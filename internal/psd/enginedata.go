package psd

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/hpungsan/layerdeck/internal/binreader"
)

const maxEngineDepth = 64

// parseEngineData parses the PostScript-like dictionary embedded in a type
// layer. Dictionaries become map[string]any, arrays []any, numbers float64,
// strings and names string.
func parseEngineData(b []byte) (map[string]any, error) {
	p := &engineParser{b: b}
	v, err := p.value(0)
	if err != nil {
		return nil, err
	}
	dict, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("engine data: top level is %T, not a dictionary", v)
	}
	return dict, nil
}

type engineParser struct {
	b   []byte
	pos int
}

func (p *engineParser) skipSpace() {
	for p.pos < len(p.b) && isEngineSpace(p.b[p.pos]) {
		p.pos++
	}
}

func (p *engineParser) peek(s string) bool {
	return bytes.HasPrefix(p.b[p.pos:], []byte(s))
}

func (p *engineParser) value(depth int) (any, error) {
	if depth > maxEngineDepth {
		return nil, fmt.Errorf("engine data: nesting deeper than %d", maxEngineDepth)
	}
	p.skipSpace()
	if p.pos >= len(p.b) {
		return nil, fmt.Errorf("engine data: %w", io.ErrUnexpectedEOF)
	}

	switch c := p.b[p.pos]; {
	case p.peek("<<"):
		return p.dict(depth)
	case c == '[':
		return p.array(depth)
	case c == '/':
		return p.name(), nil
	case c == '(':
		return p.str()
	default:
		return p.scalar()
	}
}

func (p *engineParser) dict(depth int) (map[string]any, error) {
	p.pos += 2
	m := map[string]any{}
	for {
		p.skipSpace()
		if p.pos >= len(p.b) {
			return nil, fmt.Errorf("engine data: unterminated dictionary: %w", io.ErrUnexpectedEOF)
		}
		if p.peek(">>") {
			p.pos += 2
			return m, nil
		}
		if p.b[p.pos] != '/' {
			return nil, fmt.Errorf("engine data: expected key at offset %d, got %q", p.pos, p.b[p.pos])
		}
		key := p.name()
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		m[key] = v
	}
}

func (p *engineParser) array(depth int) ([]any, error) {
	p.pos++
	list := []any{}
	for {
		p.skipSpace()
		if p.pos >= len(p.b) {
			return nil, fmt.Errorf("engine data: unterminated array: %w", io.ErrUnexpectedEOF)
		}
		if p.b[p.pos] == ']' {
			p.pos++
			return list, nil
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
}

func (p *engineParser) name() string {
	p.pos++
	start := p.pos
	for p.pos < len(p.b) && !isEngineDelim(p.b[p.pos]) {
		p.pos++
	}
	return string(p.b[start:p.pos])
}

// str reads a parenthesised string. Backslash escapes the next byte;
// a leading FE FF marks UTF-16BE content.
func (p *engineParser) str() (string, error) {
	p.pos++
	var buf []byte
	for p.pos < len(p.b) {
		c := p.b[p.pos]
		p.pos++
		switch c {
		case '\\':
			if p.pos < len(p.b) {
				buf = append(buf, p.b[p.pos])
				p.pos++
			}
		case ')':
			if bytes.HasPrefix(buf, []byte{0xFE, 0xFF}) {
				return binreader.DecodeUTF16BE(buf)
			}
			return string(buf), nil
		default:
			buf = append(buf, c)
		}
	}
	return "", fmt.Errorf("engine data: unterminated string: %w", io.ErrUnexpectedEOF)
}

func (p *engineParser) scalar() (any, error) {
	start := p.pos
	for p.pos < len(p.b) && !isEngineDelim(p.b[p.pos]) {
		p.pos++
	}
	tok := string(p.b[start:p.pos])
	switch tok {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "":
		return nil, fmt.Errorf("engine data: unexpected %q at offset %d", p.b[start], start)
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return nil, fmt.Errorf("engine data: bad token %q at offset %d", tok, start)
	}
	return f, nil
}

func isEngineSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == 0
}

func isEngineDelim(c byte) bool {
	switch c {
	case '<', '>', '[', ']', '/', '(', ')':
		return true
	}
	return isEngineSpace(c)
}

// lookup walks nested dictionaries; an int step indexes an array.
func lookup(v any, path ...any) (any, bool) {
	for _, step := range path {
		switch s := step.(type) {
		case string:
			m, ok := v.(map[string]any)
			if !ok {
				return nil, false
			}
			if v, ok = m[s]; !ok {
				return nil, false
			}
		case int:
			list, ok := v.([]any)
			if !ok || s < 0 || s >= len(list) {
				return nil, false
			}
			v = list[s]
		default:
			return nil, false
		}
	}
	return v, true
}
