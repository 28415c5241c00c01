package crs

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// node is one WKT element: KEY[value, value, CHILD[...], ...].
type node struct {
	Key      string
	Values   []string
	Children []*node
}

func (n *node) child(key string) *node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if strings.EqualFold(c.Key, key) {
			return c
		}
	}
	return nil
}

func (n *node) children(key string) []*node {
	if n == nil {
		return nil
	}
	var out []*node
	for _, c := range n.Children {
		if strings.EqualFold(c.Key, key) {
			out = append(out, c)
		}
	}
	return out
}

func (n *node) name() string {
	if n == nil || len(n.Values) == 0 {
		return ""
	}
	return n.Values[0]
}

func (n *node) float(i int) (float64, bool) {
	if n == nil || i >= len(n.Values) {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.Values[i], 64)
	return f, err == nil
}

// authority returns the EPSG code declared directly on n, 0 if none.
func (n *node) authority() int {
	a := n.child("AUTHORITY")
	if a == nil {
		a = n.child("ID")
	}
	if a == nil || len(a.Values) < 2 || !strings.EqualFold(a.Values[0], "EPSG") {
		return 0
	}
	code, err := strconv.Atoi(strings.TrimSpace(a.Values[1]))
	if err != nil {
		return 0
	}
	return code
}

type wktParser struct {
	s   string
	pos int
}

func parseWKT(s string) (*node, error) {
	p := &wktParser{s: strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))}
	n, err := p.element()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("wkt: trailing data at offset %d", p.pos)
	}
	return n, nil
}

func (p *wktParser) skipSpace() {
	for p.pos < len(p.s) && unicode.IsSpace(rune(p.s[p.pos])) {
		p.pos++
	}
}

func (p *wktParser) element() (*node, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) && (isKeyByte(p.s[p.pos])) {
		p.pos++
	}
	if start == p.pos {
		return nil, fmt.Errorf("wkt: expected keyword at offset %d", p.pos)
	}
	n := &node{Key: strings.ToUpper(p.s[start:p.pos])}
	p.skipSpace()
	if p.pos >= len(p.s) || (p.s[p.pos] != '[' && p.s[p.pos] != '(') {
		return nil, fmt.Errorf("wkt: expected '[' after %s", n.Key)
	}
	closer := byte(']')
	if p.s[p.pos] == '(' {
		closer = ')'
	}
	p.pos++

	for {
		p.skipSpace()
		if p.pos >= len(p.s) {
			return nil, fmt.Errorf("wkt: unterminated %s", n.Key)
		}
		switch c := p.s[p.pos]; {
		case c == closer:
			p.pos++
			return n, nil
		case c == ',':
			p.pos++
		case c == '"':
			v, err := p.quoted()
			if err != nil {
				return nil, err
			}
			n.Values = append(n.Values, v)
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			n.Values = append(n.Values, p.number())
		default:
			if !isKeyByte(c) {
				return nil, fmt.Errorf("wkt: unexpected %q at offset %d", c, p.pos)
			}
			// bare enum values (AXIS["E",EAST]) have no bracket
			save := p.pos
			for p.pos < len(p.s) && isKeyByte(p.s[p.pos]) {
				p.pos++
			}
			word := p.s[save:p.pos]
			p.skipSpace()
			if p.pos < len(p.s) && (p.s[p.pos] == '[' || p.s[p.pos] == '(') {
				p.pos = save
				child, err := p.element()
				if err != nil {
					return nil, err
				}
				n.Children = append(n.Children, child)
				continue
			}
			n.Values = append(n.Values, word)
		}
	}
}

func (p *wktParser) quoted() (string, error) {
	p.pos++ // opening quote
	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '"' {
			if p.pos+1 < len(p.s) && p.s[p.pos+1] == '"' {
				b.WriteByte('"')
				p.pos += 2
				continue
			}
			p.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		p.pos++
	}
	return "", fmt.Errorf("wkt: unterminated string")
}

func (p *wktParser) number() string {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		break
	}
	return p.s[start:p.pos]
}

func isKeyByte(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
