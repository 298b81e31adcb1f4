// Package urlcodec carries a backend hostname inside proxied URLs and recovers it.
//
// A proxied URL always targets the proxy host. When the real backend is not the
// application domain, its host travels in the original-host query parameter,
// appended after every other parameter and before the fragment.
package urlcodec

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// OriginalHostParam is the query parameter that carries the backend host.
const OriginalHostParam = "original-host"

// ErrMissingArgument is returned when a required configuration string is empty.
var ErrMissingArgument = errors.New("urlcodec: missing required argument")

// passThroughPrefixes are URL forms that never point at a proxied backend.
var passThroughPrefixes = []string{"#", "data:", "blob:", "javascript:", "mailto:", "tel:"}

// proxiedSchemes are the absolute schemes rewritten onto the proxy host.
var proxiedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ws":    true,
	"wss":   true,
}

// Target is the backend a proxied request URI resolves to.
type Target struct {
	Host       string // backend host, optionally host:port
	RequestURI string // request URI with the original-host marker removed
}

// IsPassThrough reports whether rawURL is left untouched by Encode regardless of hosts.
func IsPassThrough(rawURL string) bool {
	if rawURL == "" {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	for _, p := range passThroughPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Encode rewrites rawURL so that it targets proxyHost. See EncodeWithOrigin.
func Encode(rawURL, proxyHost, appDomain string) (string, error) {
	return EncodeWithOrigin(rawURL, "", proxyHost, appDomain)
}

// EncodeWithOrigin rewrites rawURL so that it targets proxyHost.
//
// Absolute http(s)/ws(s) URLs keep their scheme, path, query and fragment; their
// host is replaced by proxyHost and, unless it is appDomain, appended as the
// original-host parameter. Relative URLs are prefixed with https://proxyHost.
// Protocol-relative URLs take their scheme from origin (https when origin is
// empty or unparseable). Malformed URLs are returned unchanged.
func EncodeWithOrigin(rawURL, origin, proxyHost, appDomain string) (string, error) {
	if proxyHost == "" {
		return "", fmt.Errorf("%w: proxyHost", ErrMissingArgument)
	}
	if appDomain == "" {
		return "", fmt.Errorf("%w: appDomain", ErrMissingArgument)
	}
	if IsPassThrough(rawURL) {
		return rawURL, nil
	}

	if strings.HasPrefix(rawURL, "//") {
		rawURL = originScheme(origin) + ":" + rawURL
	}

	u, ok := tryParseURL(rawURL)
	if !ok {
		return rawURL, nil
	}

	if u.IsAbs() {
		if !proxiedSchemes[strings.ToLower(u.Scheme)] || u.Host == "" {
			return rawURL, nil
		}
		if u.Host == proxyHost || u.Hostname() == proxyHost {
			return rawURL, nil
		}
		return encodeAbsolute(u, proxyHost, appDomain), nil
	}

	if strings.HasPrefix(rawURL, "/") {
		return "https://" + proxyHost + rawURL, nil
	}
	return "https://" + proxyHost + "/" + rawURL, nil
}

func encodeAbsolute(u *url.URL, proxyHost, appDomain string) string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(proxyHost)
	b.WriteString(u.EscapedPath())

	query := u.RawQuery
	if u.Hostname() != appDomain {
		marker := OriginalHostParam + "=" + u.Host
		if query == "" {
			query = marker
		} else {
			query = strings.TrimSuffix(query, "&") + "&" + marker
		}
	}
	if query != "" || u.ForceQuery {
		b.WriteByte('?')
		b.WriteString(query)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.EscapedFragment())
	}
	return b.String()
}

// Decode resolves the backend for a request URI received on proxyHost.
// Requests without an original-host marker belong to appDomain.
func Decode(requestURI, proxyHost, appDomain string) (Target, error) {
	if proxyHost == "" {
		return Target{}, fmt.Errorf("%w: proxyHost", ErrMissingArgument)
	}
	if appDomain == "" {
		return Target{}, fmt.Errorf("%w: appDomain", ErrMissingArgument)
	}

	host := ExtractOriginalHost(requestURI)
	if host == "" {
		host = appDomain
	}
	uri := RemoveOriginalHost(requestURI, proxyHost, host)
	if uri == "" {
		uri = "/"
	}
	return Target{Host: host, RequestURI: uri}, nil
}

// tryParseURL parses raw as an absolute URL or a relative reference.
func tryParseURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	return u, true
}

func originScheme(origin string) string {
	if origin == "" {
		return "https"
	}
	u, ok := tryParseURL(origin)
	if !ok || u.Scheme == "" {
		return "https"
	}
	return strings.ToLower(u.Scheme)
}
