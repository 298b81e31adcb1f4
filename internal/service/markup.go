package service

import (
	"errors"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"mcop-proxy/internal/metrics"
)

// urlAttributes hold a single URL.
var urlAttributes = map[string]bool{
	"action":     true,
	"formaction": true,
	"href":       true,
	"poster":     true,
	"src":        true,
}

var (
	cssURLPattern  = regexp.MustCompile(`(?i)url\s*\(\s*(?:'([^']*)'|"([^"]*)"|([^)\s'"]+))\s*\)`)
	jsonURLPattern = regexp.MustCompile(`https?:(?:\\?/){2}(?:[^\s"'<>\\]|\\/)+`)
)

// rewriteHTML rewrites URL attributes, inline scripts and inline styles.
// Tokens that need no change are copied byte for byte.
func (s *ProxyService) rewriteHTML(body string, rt *route) (string, string) {
	z := html.NewTokenizer(strings.NewReader(body))
	var b strings.Builder
	b.Grow(len(body) + len(body)/8)

	var changed int
	var inScript, inStyle bool
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return body, metrics.ResultFailed
		}
		raw := string(z.Raw())

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if s.rewriteAttributes(&tok, rt) {
				b.WriteString(tok.String())
				changed++
			} else {
				b.WriteString(raw)
			}
			if tt == html.StartTagToken {
				inScript = tok.DataAtom == atom.Script && isInlineScript(tok)
				inStyle = tok.DataAtom == atom.Style
			}
		case html.TextToken:
			out := raw
			switch {
			case inScript:
				var result string
				out, result = s.rewriteScript(raw, rt)
				if result == metrics.ResultRewritten || result == metrics.ResultTolerant {
					changed++
				}
			case inStyle:
				var n int
				out, n = s.rewriteCSSURLs(raw, rt)
				changed += n
			}
			b.WriteString(out)
		case html.EndTagToken:
			inScript, inStyle = false, false
			b.WriteString(raw)
		default:
			b.WriteString(raw)
		}
	}

	if changed == 0 {
		return body, metrics.ResultUnchanged
	}
	return b.String(), metrics.ResultRewritten
}

// rewriteAttributes rewrites the URL-bearing attributes of tok in place.
func (s *ProxyService) rewriteAttributes(tok *html.Token, rt *route) bool {
	changed := false
	for i := range tok.Attr {
		a := &tok.Attr[i]
		switch {
		case urlAttributes[a.Key]:
			if out, ok := s.encodeURL(a.Val, rt); ok {
				a.Val = out
				changed = true
			}
		case a.Key == "srcset":
			if out, ok := s.rewriteSrcset(a.Val, rt); ok {
				a.Val = out
				changed = true
			}
		case a.Key == "style":
			if out, n := s.rewriteCSSURLs(a.Val, rt); n > 0 {
				a.Val = out
				changed = true
			}
		}
	}
	return changed
}

// rewriteSrcset rewrites every "url [descriptor]" candidate of a srcset value.
func (s *ProxyService) rewriteSrcset(val string, rt *route) (string, bool) {
	candidates := strings.Split(val, ",")
	changed := false
	for i, c := range candidates {
		fields := strings.Fields(c)
		if len(fields) == 0 {
			continue
		}
		if out, ok := s.encodeURL(fields[0], rt); ok {
			fields[0] = out
			changed = true
		}
		candidates[i] = strings.Join(fields, " ")
	}
	if !changed {
		return val, false
	}
	return strings.Join(candidates, ", "), true
}

func isInlineScript(tok html.Token) bool {
	for _, a := range tok.Attr {
		switch a.Key {
		case "src":
			return false
		case "type":
			switch strings.ToLower(strings.TrimSpace(a.Val)) {
			case "", "module", "text/javascript", "application/javascript", "application/ecmascript", "text/ecmascript":
			default:
				return false
			}
		}
	}
	return true
}

// rewriteCSSURLs rewrites url(...) references and returns the number changed.
func (s *ProxyService) rewriteCSSURLs(css string, rt *route) (string, int) {
	n := 0
	out := cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		sub := cssURLPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		raw, quote := sub[3], ""
		switch {
		case sub[1] != "":
			raw, quote = sub[1], "'"
		case sub[2] != "":
			raw, quote = sub[2], `"`
		}
		proxied, ok := s.encodeURL(raw, rt)
		if !ok {
			return match
		}
		n++
		return "url(" + quote + proxied + quote + ")"
	})
	return out, n
}

// rewriteJSONURLs rewrites absolute http(s) URLs inside a JSON document,
// including ones written with escaped slashes.
func (s *ProxyService) rewriteJSONURLs(body string, rt *route) (string, int) {
	n := 0
	out := jsonURLPattern.ReplaceAllStringFunc(body, func(match string) string {
		escaped := strings.Contains(match, `\/`)
		plain := match
		if escaped {
			plain = strings.ReplaceAll(match, `\/`, "/")
		}
		proxied, ok := s.encodeURL(plain, rt)
		if !ok {
			return match
		}
		n++
		if escaped {
			proxied = strings.ReplaceAll(proxied, "/", `\/`)
		}
		return proxied
	})
	return out, n
}
