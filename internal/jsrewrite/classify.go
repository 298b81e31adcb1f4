package jsrewrite

import "strings"

// Kind classifies the text of a literal that mentions location.
type Kind int

const (
	KindCode Kind = iota
	KindURL
	KindCSS
)

func (k Kind) String() string {
	switch k {
	case KindURL:
		return "url"
	case KindCSS:
		return "css"
	default:
		return "code"
	}
}

// Classify tells URL-like and CSS-like text apart from text that names the
// location binding. Only KindCode literals are rewritten.
func Classify(text string) Kind {
	if isURLLike(text) {
		return KindURL
	}
	if isCSSLike(text) {
		return KindCSS
	}
	return KindCode
}

// isURLLike: a path or dotted name with no whitespace or quotes in it.
func isURLLike(text string) bool {
	if !strings.ContainsAny(text, "/.") {
		return false
	}
	return !strings.ContainsAny(text, " \t\n\r\f\v\"'`")
}

// isCSSLike: location glued to an identifier fragment, as in sc-location-loader.
func isCSSLike(text string) bool {
	for _, i := range occurrences(text, locationToken) {
		if i > 0 && isWordByte(text[i-1]) {
			return true
		}
		if end := i + len(locationToken); end < len(text) && isWordByte(text[end]) {
			return true
		}
	}
	return false
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == '$'
}

// boundaryBytes may sit right before or after a renamed location token.
const boundaryBytes = ".=,;():?[]+-{}&|!>"

func isBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return strings.IndexByte(boundaryBytes, c) >= 0
}

// boundedAt reports whether the token of length n at src[i:] is delimited by
// boundary bytes or the ends of src.
func boundedAt(src string, i, n int) bool {
	if i > 0 && !isBoundary(src[i-1]) {
		return false
	}
	if end := i + n; end < len(src) && !isBoundary(src[end]) {
		return false
	}
	return true
}

// occurrences returns the offsets of every non-overlapping token in s.
func occurrences(s, token string) []int {
	var out []int
	for from := 0; ; {
		i := strings.Index(s[from:], token)
		if i < 0 {
			return out
		}
		out = append(out, from+i)
		from += i + len(token)
	}
}
