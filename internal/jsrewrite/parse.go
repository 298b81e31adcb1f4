package jsrewrite

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// parse parses src strictly and falls back to the tolerant parse when the
// strict one reports errors. tolerant is true when the fallback was used.
func parse(src string) (prog *ast.Program, tolerant bool, err error) {
	prog, err = parseWith(src, 0)
	if err == nil {
		return prog, false, nil
	}
	if loose, _ := parseWith(src, parser.IgnoreRegExpErrors); loose != nil {
		return loose, true, nil
	}
	return nil, false, fmt.Errorf("%w: %v", ErrParse, err)
}

// parseWith returns whatever program the parser built, together with its error
// list. The program is partial (Bad* nodes) when errors were reported.
func parseWith(src string, mode parser.Mode) (prog *ast.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			prog, err = nil, fmt.Errorf("parser panic: %v", r)
		}
	}()
	return parser.ParseFile(nil, "", src, mode, parser.WithDisableSourceMaps)
}

var astPkgPath = reflect.TypeOf(ast.Program{}).PkgPath()

// walk calls visit once for every node reachable from prog, parents first.
// The goja AST has no visitor, so the tree is traversed through its exported
// fields. Nodes referenced twice (declaration lists) are visited once.
func walk(prog *ast.Program, visit func(ast.Node)) {
	walkNode(prog, visit)
}

// walkNode is walk over the subtree rooted at n.
func walkNode(n ast.Node, visit func(ast.Node)) {
	w := &walker{visit: visit, seen: make(map[ast.Node]struct{})}
	w.value(reflect.ValueOf(n))
}

type walker struct {
	visit func(ast.Node)
	seen  map[ast.Node]struct{}
}

func (w *walker) value(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || v.Type().Elem().PkgPath() != astPkgPath {
			return
		}
		if n, ok := v.Interface().(ast.Node); ok {
			if _, dup := w.seen[n]; dup {
				return
			}
			w.seen[n] = struct{}{}
			w.visit(n)
		}
		if v.Elem().Kind() == reflect.Struct {
			w.fields(v.Elem())
		}
	case reflect.Interface:
		if !v.IsNil() {
			w.value(v.Elem())
		}
	case reflect.Struct:
		if v.Type().PkgPath() != astPkgPath {
			return
		}
		if v.CanAddr() {
			w.value(v.Addr())
			return
		}
		w.fields(v)
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			w.value(v.Index(i))
		}
	}
}

func (w *walker) fields(v reflect.Value) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).IsExported() {
			w.value(v.Field(i))
		}
	}
}

// span is a half-open byte range of the original source.
type span struct {
	start, end int
}

func (s span) contains(o span) bool { return s.start <= o.start && o.end <= s.end }

// spanSet answers containment queries over AST node ranges, which are
// either nested or disjoint. Only the outermost spans are kept.
type spanSet struct {
	outer []span
}

func newSpanSet(spans []span) spanSet {
	sorted := make([]span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].start != sorted[j].start {
			return sorted[i].start < sorted[j].start
		}
		return sorted[i].end > sorted[j].end
	})
	var outer []span
	for _, sp := range sorted {
		if n := len(outer); n > 0 && outer[n-1].contains(sp) {
			continue
		}
		outer = append(outer, sp)
	}
	return spanSet{outer: outer}
}

// covers reports whether some span of the set contains sp.
func (s spanSet) covers(sp span) bool {
	i := sort.Search(len(s.outer), func(i int) bool { return s.outer[i].start > sp.start }) - 1
	return i >= 0 && s.outer[i].contains(sp)
}

// markComments sets mask[i] for every byte of src that belongs to a comment.
// literals are the string, regexp and template text spans of the program;
// they are skipped so that slashes inside them do not open a comment.
func markComments(src string, literals []span, mask []bool) {
	lits := make([]span, len(literals))
	copy(lits, literals)
	sort.Slice(lits, func(i, j int) bool { return lits[i].start < lits[j].start })

	li := 0
	for i := 0; i < len(src); {
		for li < len(lits) && lits[li].end <= i {
			li++
		}
		if li < len(lits) && lits[li].start <= i {
			i = lits[li].end
			continue
		}
		if src[i] != '/' || i+1 >= len(src) {
			i++
			continue
		}
		end := i
		switch src[i+1] {
		case '/':
			end = strings.IndexAny(src[i:], "\n\r")
			if end < 0 {
				end = len(src)
			} else {
				end += i
			}
		case '*':
			end = strings.Index(src[i+2:], "*/")
			if end < 0 {
				end = len(src)
			} else {
				end += i + 4
			}
		default:
			i++
			continue
		}
		for j := i; j < end; j++ {
			mask[j] = true
		}
		i = end
	}
}

// source wraps the immutable input of a pass.
type source struct {
	text string
}

// spanOf maps a node to its byte range. Nodes of a partial program may have
// nil children; their positions are reported as unavailable.
func (s source) spanOf(n ast.Node) (sp span, ok bool) {
	defer func() {
		if recover() != nil {
			sp, ok = span{}, false
		}
	}()
	if n == nil {
		return span{}, false
	}
	if el, ok := n.(*ast.TemplateElement); ok {
		return s.templateSpan(el)
	}
	// file.Idx is 1-based when parsing without a file set.
	start, end := int(n.Idx0())-1, int(n.Idx1())-1
	if start < 0 || end > len(s.text) || start > end {
		return span{}, false
	}
	return span{start, end}, true
}

// templateSpan locates the raw text of a template element. The parser
// records the element one character past its first byte, so the text is
// matched at the nearby offsets.
func (s source) templateSpan(el *ast.TemplateElement) (span, bool) {
	at := int(el.Idx) - 1
	for _, start := range []int{at - 1, at - 2, at - 3, at - 4, at} {
		end := start + len(el.Literal)
		if start >= 0 && end <= len(s.text) && s.text[start:end] == el.Literal {
			return span{start, end}, true
		}
	}
	return span{}, false
}

func (s source) slice(sp span) string { return s.text[sp.start:sp.end] }
