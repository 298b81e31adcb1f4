package jsrewrite

import (
	"strings"

	"github.com/dop251/goja/ast"
)

const postMessageSuffix = "." + postMessageToken

func wrapPostMessage(src string) (Result, error) {
	if !strings.Contains(src, postMessageToken) {
		return Result{Output: src}, nil
	}
	prog, tolerant, err := parse(src)
	if err != nil {
		return Result{Output: src}, err
	}

	s := source{text: src}
	var edits editList
	walk(prog, func(n ast.Node) {
		call, ok := n.(*ast.CallExpression)
		if !ok || !isPostMessageCall(s, call) {
			return
		}
		wraps := [...]string{PostMessageMsgWrap, PostMessageOriginWrap}
		for i, arg := range call.ArgumentList {
			if i >= len(wraps) {
				break
			}
			if _, bad := arg.(*ast.BadExpression); bad {
				continue
			}
			sp, ok := s.spanOf(arg)
			if !ok || sp.start == sp.end {
				continue
			}
			wrapArgument(&edits, s, arg, sp, wraps[i])
		}
	})

	out, n := edits.apply(src)
	return Result{Output: out, Edits: n, Tolerant: tolerant}, nil
}

// isPostMessageCall matches x.postMessage(msg[, origin[, transfer]]) without
// spread arguments.
func isPostMessageCall(s source, call *ast.CallExpression) bool {
	if n := len(call.ArgumentList); n == 0 || n > 3 {
		return false
	}
	for _, arg := range call.ArgumentList {
		if _, spread := arg.(*ast.SpreadElement); spread {
			return false
		}
	}
	sp, ok := s.spanOf(call.Callee)
	if !ok {
		return false
	}
	return strings.HasSuffix(strings.TrimSpace(s.slice(sp)), postMessageSuffix)
}

// wrapArgument surrounds the argument with fn(...). A sequence expression is
// wrapped twice so that it stays a single argument. Prefixes of enclosing
// calls sort before inner ones at a shared offset and suffixes after them.
func wrapArgument(edits *editList, s source, arg ast.Node, sp span, fn string) {
	open, closing := fn+"(", ")"
	if _, seq := arg.(*ast.SequenceExpression); seq {
		open, closing = fn+"((", "))"
	}
	size := sp.end - sp.start
	edits.insert(sp.start, open, -size)
	edits.insert(sp.end, closing, size)

	text := s.slice(sp)
	if !strings.ContainsAny(text, "\n\r") || !joinable(arg, text) {
		return
	}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' || text[i] == '\r' {
			edits.replace(sp.start+i, sp.start+i+1, "")
		}
	}
}

// joinable reports whether the argument reads the same with its line breaks
// removed. Line comments, template text, line continuations and function or
// class bodies (where statements end at line breaks) keep their newlines, and
// so does anything that no longer parses once joined.
func joinable(arg ast.Node, text string) bool {
	if strings.Contains(text, "//") || strings.Contains(text, "`") ||
		strings.Contains(text, "\\\n") || strings.Contains(text, "\\\r") {
		return false
	}
	hasBody := false
	walkNode(arg, func(n ast.Node) {
		switch n.(type) {
		case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral, *ast.ClassLiteral:
			hasBody = true
		}
	})
	if hasBody {
		return false
	}
	joined := strings.NewReplacer("\r", "", "\n", "").Replace(text)
	_, err := parseWith("("+joined+")", 0)
	return err == nil
}
