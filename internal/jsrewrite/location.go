package jsrewrite

import (
	"sort"

	"github.com/dop251/goja/ast"
)

// locationPass collects candidate nodes in a single walk and turns them into
// token replacements. Categories are processed in a fixed order (literals,
// member expressions, object patterns, properties, identifiers) so that every
// later category sees the URL-like and CSS-like literals excluded by the first.
type locationPass struct {
	src source

	literals    []ast.Node
	members     []ast.Node
	patterns    []*ast.ObjectPattern
	properties  []ast.Node
	identifiers []*ast.Identifier

	tokens      []int  // offsets of every location token in src
	blocked     []bool // bytes of comments and excluded literals
	memberSpans []span
	memberSet   spanSet
	seenProp    map[span]struct{}
	renames     map[int]struct{}
}

func renameLocation(src string) (Result, error) {
	if !containsToken(src, locationToken) {
		return Result{Output: src}, nil
	}
	prog, tolerant, err := parse(src)
	if err != nil {
		return Result{Output: src}, err
	}

	p := &locationPass{
		src:      source{text: src},
		tokens:   occurrences(src, locationToken),
		blocked:  make([]bool, len(src)),
		seenProp: make(map[span]struct{}),
		renames:  make(map[int]struct{}),
	}
	walk(prog, p.collect)

	literalSpans := make([]span, 0, len(p.literals))
	for _, n := range p.literals {
		if sp, ok := p.src.spanOf(n); ok {
			literalSpans = append(literalSpans, sp)
		}
	}
	markComments(src, literalSpans, p.blocked)

	for _, n := range p.literals {
		p.literal(n)
	}
	for _, n := range p.members {
		p.member(n)
	}
	p.memberSet = newSpanSet(p.memberSpans)
	for _, n := range p.patterns {
		p.pattern(n)
	}
	for _, n := range p.properties {
		p.property(n)
	}
	for _, n := range p.identifiers {
		p.identifier(n)
	}

	var edits editList
	for at := range p.renames {
		edits.replace(at, at+len(locationToken), LocationAlias)
	}
	out, n := edits.apply(src)
	return Result{Output: out, Edits: n, Tolerant: tolerant}, nil
}

func (p *locationPass) collect(n ast.Node) {
	switch n := n.(type) {
	case *ast.StringLiteral, *ast.RegExpLiteral, *ast.TemplateElement:
		p.literals = append(p.literals, n)
	case *ast.DotExpression, *ast.BracketExpression:
		p.members = append(p.members, n)
	case *ast.ObjectPattern:
		p.patterns = append(p.patterns, n)
	case *ast.PropertyKeyed, *ast.PropertyShort:
		p.properties = append(p.properties, n)
	case *ast.Identifier:
		p.identifiers = append(p.identifiers, n)
	}
}

// literal renames location inside code-like string and template literals and
// blocks URL-like and CSS-like ones so that no other category touches them.
func (p *locationPass) literal(n ast.Node) {
	sp, ok := p.src.spanOf(n)
	if !ok || !p.hasToken(sp) {
		return
	}
	if _, isRegExp := n.(*ast.RegExpLiteral); isRegExp {
		p.block(sp)
		return
	}

	inner, base := unquote(p.src.slice(sp), sp.start)
	if Classify(inner) != KindCode {
		p.block(sp)
		return
	}
	for _, i := range occurrences(inner, locationToken) {
		p.rename(base + i)
	}
}

// member handles a.b and a[b] where exactly one side mentions location.
func (p *locationPass) member(n ast.Node) {
	var object ast.Node
	var inProperty bool
	switch m := n.(type) {
	case *ast.DotExpression:
		object = m.Left
		inProperty = containsToken(string(m.Identifier.Name), locationToken)
	case *ast.BracketExpression:
		object = m.Left
		propSpan, ok := p.src.spanOf(m.Member)
		if !ok {
			return
		}
		inProperty = p.hasToken(propSpan)
	}

	sp, ok := p.src.spanOf(n)
	if !ok {
		return
	}
	objSpan, ok := p.src.spanOf(object)
	if !ok {
		return
	}
	if p.hasToken(objSpan) == inProperty {
		return
	}
	p.memberSpans = append(p.memberSpans, sp)
	p.scan(sp)
}

// pattern handles destructuring such as var {location} = window.
func (p *locationPass) pattern(n *ast.ObjectPattern) {
	for _, prop := range n.Properties {
		if sp, ok := p.src.spanOf(prop); ok && p.hasToken(sp) {
			p.scan(sp)
		}
	}
	if n.Rest != nil {
		if sp, ok := p.src.spanOf(n.Rest); ok && p.hasToken(sp) {
			p.scan(sp)
		}
	}
}

// property handles object literal entries. A literal key must be exactly
// location once unquoted; values follow the boundary rule.
func (p *locationPass) property(n ast.Node) {
	sp, ok := p.src.spanOf(n)
	if !ok || !p.hasToken(sp) {
		return
	}
	if _, seen := p.seenProp[sp]; seen {
		return
	}
	p.seenProp[sp] = struct{}{}
	if p.memberSet.covers(sp) {
		return
	}

	switch prop := n.(type) {
	case *ast.PropertyShort:
		if id, ok := p.src.spanOf(&prop.Name); ok && p.src.slice(id) == locationToken && p.bounded(id.start) {
			p.rename(id.start)
		}
		if prop.Initializer != nil {
			if init, ok := p.src.spanOf(prop.Initializer); ok {
				p.scan(init)
			}
		}
	case *ast.PropertyKeyed:
		if key, ok := p.src.spanOf(prop.Key); ok {
			if _, literal := prop.Key.(*ast.StringLiteral); literal {
				if inner, base := unquote(p.src.slice(key), key.start); inner == locationToken {
					p.rename(base)
				}
			} else {
				p.scan(key)
			}
		}
		if val, ok := p.src.spanOf(prop.Value); ok {
			p.scan(val)
		}
	}
}

// identifier renames a bare location reference.
func (p *locationPass) identifier(n *ast.Identifier) {
	if string(n.Name) != locationToken {
		return
	}
	sp, ok := p.src.spanOf(n)
	if !ok || p.src.slice(sp) != locationToken {
		return
	}
	if p.bounded(sp.start) {
		p.rename(sp.start)
	}
}

// scan renames every boundary-delimited location token inside sp.
func (p *locationPass) scan(sp span) {
	for i := sort.SearchInts(p.tokens, sp.start); i < len(p.tokens); i++ {
		at := p.tokens[i]
		if at+len(locationToken) > sp.end {
			return
		}
		if p.bounded(at) {
			p.rename(at)
		}
	}
}

// hasToken reports whether a location token lies entirely inside sp.
func (p *locationPass) hasToken(sp span) bool {
	i := sort.SearchInts(p.tokens, sp.start)
	return i < len(p.tokens) && p.tokens[i]+len(locationToken) <= sp.end
}

func (p *locationPass) bounded(at int) bool {
	return boundedAt(p.src.text, at, len(locationToken))
}

func (p *locationPass) block(sp span) {
	for i := sp.start; i < sp.end; i++ {
		p.blocked[i] = true
	}
}

func (p *locationPass) rename(at int) {
	if p.blocked[at] {
		return
	}
	p.renames[at] = struct{}{}
}

// unquote strips matching quotes from a string literal and returns the
// offset of the unquoted text in the source.
func unquote(raw string, start int) (string, int) {
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1], start + 1
	}
	return raw, start
}

func containsToken(s, token string) bool {
	return len(occurrences(s, token)) > 0
}
