package jar

import (
	"strings"
	"time"
)

// Cookie is one stored cookie. Attribute values are kept as the backend sent them.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  string `json:"expires,omitempty"`
	MaxAge   string `json:"maxAge,omitempty"`
	SameSite string `json:"samesite,omitempty"`
}

// Snapshot is the persisted form of a Jar, keyed by cookie name.
type Snapshot map[string]Cookie

// Attribute names understood by ParseAttribute.
const (
	AttrExpires  = "expires"
	AttrMaxAge   = "max-age"
	AttrDomain   = "domain"
	AttrPath     = "path"
	AttrSameSite = "samesite"
)

var attributes = [...]string{AttrExpires, AttrMaxAge, AttrDomain, AttrPath, AttrSameSite}

// ParseOne returns the name and value of a raw Set-Cookie string.
// ok is false when the name or the value is empty.
func ParseOne(raw string) (name, value string, ok bool) {
	head, _, _ := strings.Cut(raw, ";")
	name, value, found := strings.Cut(head, "=")
	if !found {
		return "", "", false
	}
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)
	if !validName(name) || value == "" {
		return "", "", false
	}
	return name, value, true
}

// validName accepts any printable non-space bytes, a superset of the RFC 6265 token.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c <= ' ' || c == 0x7f {
			return false
		}
	}
	return true
}

// ParseAttribute returns the value of attr in a raw Set-Cookie string.
// attr is matched case-insensitively and must be one of the Attr constants.
func ParseAttribute(raw, attr string) (string, bool) {
	attr = strings.ToLower(attr)
	if !knownAttribute(attr) {
		return "", false
	}
	parts := strings.Split(raw, ";")
	for _, part := range parts[1:] {
		k, v, _ := strings.Cut(part, "=")
		if !strings.EqualFold(strings.TrimSpace(k), attr) {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return "", false
}

func knownAttribute(attr string) bool {
	for _, a := range attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// ExtractAll parses every raw Set-Cookie string. Invalid entries are skipped.
// The result keeps first-seen order; a later cookie with the same name
// replaces the earlier one.
func ExtractAll(raws []string) []Cookie {
	var out []Cookie
	index := make(map[string]int, len(raws))
	for _, raw := range raws {
		name, value, ok := ParseOne(raw)
		if !ok {
			continue
		}
		c := Cookie{Name: name, Value: value}
		if strings.Contains(raw, ";") {
			c.Expires, _ = ParseAttribute(raw, AttrExpires)
			c.MaxAge, _ = ParseAttribute(raw, AttrMaxAge)
			c.Domain, _ = ParseAttribute(raw, AttrDomain)
			c.Path, _ = ParseAttribute(raw, AttrPath)
			c.SameSite, _ = ParseAttribute(raw, AttrSameSite)
		}
		if i, dup := index[name]; dup {
			out[i] = c
			continue
		}
		index[name] = len(out)
		out = append(out, c)
	}
	return out
}

var expiresLayouts = [...]string{
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05 -0700 MST",
}

// parseExpires parses an Expires attribute. ok is false for unparseable dates.
func parseExpires(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range expiresLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// expiredAt reports whether c has an Expires date at or before now.
// Cookies without a parseable Expires never expire.
func (c Cookie) expiredAt(now time.Time) bool {
	if c.Expires == "" {
		return false
	}
	t, ok := parseExpires(c.Expires)
	return ok && !t.After(now)
}
