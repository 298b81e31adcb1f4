package urlcodec

import (
	"net/url"
	"strings"
)

const (
	markerKey        = OriginalHostParam + "="
	encodedMarkerKey = OriginalHostParam + "%3d"
	legacyMarker     = "~" + markerKey
)

// ContainsOriginalHost reports whether rawURL carries the original-host marker,
// literally or percent-encoded.
func ContainsOriginalHost(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), OriginalHostParam)
}

// ExtractOriginalHost returns the percent-decoded original-host value of rawURL,
// or "" when the marker is absent or unrecoverable.
func ExtractOriginalHost(rawURL string) string {
	if !ContainsOriginalHost(rawURL) {
		return ""
	}

	s := rawURL
	if !strings.Contains(s, markerKey) && strings.Contains(strings.ToLower(s), encodedMarkerKey) {
		if dec, err := url.QueryUnescape(s); err == nil {
			s = dec
		}
	}

	// A query string that lost its "?" still starts at the first "&".
	if !strings.Contains(s, "?") {
		if i := strings.Index(s, "&"); i >= 0 {
			s = s[:i] + "?" + s[i+1:]
		}
	}

	if u, ok := tryParseURL(s); ok {
		if q, err := url.ParseQuery(u.RawQuery); err == nil {
			if vals := q[OriginalHostParam]; len(vals) > 0 && vals[len(vals)-1] != "" {
				return vals[len(vals)-1]
			}
		}
	}
	return extractManually(s)
}

// extractManually reads the value after the last marker key up to the next
// parameter or fragment.
func extractManually(s string) string {
	i := strings.LastIndex(s, markerKey)
	if i < 0 {
		return ""
	}
	v := s[i+len(markerKey):]
	if end := strings.IndexAny(v, "&#~"); end >= 0 {
		v = v[:end]
	}
	if dec, err := url.QueryUnescape(v); err == nil {
		return dec
	}
	return v
}

// RemoveOriginalHost strips the original-host marker from rawURL.
//
// The query string is rebuilt parameter by parameter in its original order.
// A remaining parameter whose value is itself an absolute URL carrying the
// marker has one nested level stripped; one whose value points at serverHost is
// rewritten to realHost. Unparseable input is returned unchanged.
func RemoveOriginalHost(rawURL, serverHost, realHost string) string {
	if strings.Contains(rawURL, legacyMarker) {
		return removeLegacyMarker(rawURL)
	}
	return removeOriginalHost(rawURL, serverHost, realHost, 0)
}

func removeOriginalHost(rawURL, serverHost, realHost string, depth int) string {
	if _, ok := tryParseURL(rawURL); !ok {
		return rawURL
	}

	base, query, fragment, ok := splitQuery(rawURL)
	if !ok {
		return rawURL
	}

	pairs := strings.Split(query, "&")
	kept := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key, value, hasValue := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil && k == OriginalHostParam {
			continue
		}
		if hasValue {
			pair = key + "=" + rewriteNestedValue(value, serverHost, realHost, depth)
		}
		kept = append(kept, pair)
	}

	out := base
	if len(kept) > 0 {
		out += "?" + strings.Join(kept, "&")
	}
	return out + fragment
}

// rewriteNestedValue handles a query value that decodes to an absolute URL.
func rewriteNestedValue(value, serverHost, realHost string, depth int) string {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return value
	}
	inner, ok := tryParseURL(decoded)
	if !ok || !inner.IsAbs() || inner.Host == "" {
		return value
	}

	changed := false
	if depth == 0 && ContainsOriginalHost(decoded) {
		// The nested marker names the backend of the nested URL.
		if h := ExtractOriginalHost(decoded); h != "" {
			realHost = h
		}
		decoded = removeOriginalHost(decoded, serverHost, realHost, depth+1)
		changed = true
		if inner, ok = tryParseURL(decoded); !ok {
			return value
		}
	}
	if serverHost != "" && realHost != "" && inner.Host == serverHost {
		inner.Host = realHost
		decoded = inner.String()
		changed = true
	}
	if !changed {
		return value
	}
	return url.QueryEscape(decoded)
}

// splitQuery cuts rawURL into the part before the query, the raw query and the
// fragment (with its "#"). ok is false when there is no query to rebuild.
func splitQuery(rawURL string) (base, query, fragment string, ok bool) {
	s := rawURL
	if i := strings.Index(s, "#"); i >= 0 {
		s, fragment = s[:i], s[i:]
	}
	i := strings.Index(s, "?")
	if i < 0 {
		i = strings.Index(s, "&"+markerKey)
		if i < 0 {
			return "", "", "", false
		}
	}
	return s[:i], s[i+1:], fragment, true
}

// removeLegacyMarker cuts a "~original-host=<host>" segment out of rawURL.
func removeLegacyMarker(rawURL string) string {
	i := strings.Index(rawURL, legacyMarker)
	rest := rawURL[i+len(legacyMarker):]
	end := strings.IndexAny(rest, "&#~")
	if end < 0 {
		return rawURL[:i]
	}
	tail := rest[end:]
	if tail[0] == '&' && strings.HasSuffix(rawURL[:i], "?") {
		tail = tail[1:]
	}
	return rawURL[:i] + tail
}

// RemoveVarFromURL removes every occurrence of the query parameter name from
// rawURL, keeping the other parameters in order. Unparseable input is returned
// unchanged.
func RemoveVarFromURL(rawURL, name string) string {
	if name == "" {
		return rawURL
	}
	if _, ok := tryParseURL(rawURL); !ok {
		return rawURL
	}
	s := rawURL
	fragment := ""
	if i := strings.Index(s, "#"); i >= 0 {
		s, fragment = s[:i], s[i:]
	}
	base, query, found := strings.Cut(s, "?")
	if !found {
		return rawURL
	}

	var kept []string
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil && k == name {
			continue
		}
		kept = append(kept, pair)
	}
	if len(kept) == 0 {
		return base + fragment
	}
	return base + "?" + strings.Join(kept, "&") + fragment
}
