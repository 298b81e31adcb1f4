// Package jar stores the cookies of one backend service and serializes them
// for outgoing backend requests and for the client-side runtime.
//
// A Jar is not safe for concurrent mutation. Callers serialize access per
// service (see package jarstore).
package jar

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrMissingDomain is returned by Merge when no default domain is given.
var ErrMissingDomain = errors.New("jar: default domain is required")

// Option configures a Jar.
type Option func(*Jar)

// WithClock sets the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(j *Jar) {
		if now != nil {
			j.now = now
		}
	}
}

// Jar maps cookie names to records. Names are unique.
type Jar struct {
	now     func() time.Time
	cookies map[string]Cookie
	order   []string
}

// New returns an empty Jar.
func New(opts ...Option) *Jar {
	j := &Jar{
		now:     time.Now,
		cookies: make(map[string]Cookie),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Merge upserts the cookies found in raws. A cookie whose Expires date is
// already in the past is skipped and any stored record with its name is kept.
// A cookie without a Domain attribute gets defaultDomain. Merge reports
// whether any cookie was extracted.
func (j *Jar) Merge(raws []string, defaultDomain string) (bool, error) {
	if defaultDomain == "" {
		return false, ErrMissingDomain
	}
	cookies := ExtractAll(raws)
	if len(cookies) == 0 {
		return false, nil
	}
	now := j.now()
	for _, c := range cookies {
		if c.expiredAt(now) {
			continue
		}
		if c.Domain == "" {
			c.Domain = defaultDomain
		}
		j.put(c)
	}
	return true, nil
}

func (j *Jar) put(c Cookie) {
	if _, ok := j.cookies[c.Name]; !ok {
		j.order = append(j.order, c.Name)
	}
	j.cookies[c.Name] = c
}

// GetAsString returns the Cookie header value for a backend request.
// When targetedDomain is set, records whose domain neither contains nor is
// contained in it are left out.
func (j *Jar) GetAsString(targetedDomain string) string {
	now := j.now()
	pairs := make([]string, 0, len(j.order))
	for _, name := range j.order {
		c := j.cookies[name]
		if c.expiredAt(now) {
			continue
		}
		if targetedDomain != "" && !domainRelated(c.Domain, targetedDomain) {
			continue
		}
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// domainRelated is substring containment in either direction, not RFC 6265
// domain matching.
func domainRelated(stored, target string) bool {
	return strings.Contains(stored, target) || strings.Contains(target, stored)
}

// GetForClientSide returns one name@domain=value;path=...;expires=...; entry
// per live record. defaultDomain stands in for records stored without a domain.
func (j *Jar) GetForClientSide(defaultDomain string) []string {
	now := j.now()
	out := make([]string, 0, len(j.order))
	var b strings.Builder
	for _, name := range j.order {
		c := j.cookies[name]
		if c.expiredAt(now) {
			continue
		}
		domain := c.Domain
		if domain == "" {
			domain = defaultDomain
		}
		b.Reset()
		b.WriteString(c.Name)
		b.WriteByte('@')
		b.WriteString(domain)
		b.WriteByte('=')
		b.WriteString(c.Value)
		b.WriteByte(';')
		if c.Path != "" {
			b.WriteString("path=" + c.Path + ";")
		}
		if c.Expires != "" {
			b.WriteString("expires=" + c.Expires + ";")
		}
		out = append(out, b.String())
	}
	return out
}

// SetOldCookies replaces the contents of the Jar with a persisted snapshot,
// dropping records that have already expired.
func (j *Jar) SetOldCookies(s Snapshot) {
	now := j.now()
	j.cookies = make(map[string]Cookie, len(s))
	j.order = j.order[:0]

	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := s[name]
		if c.Name == "" {
			c.Name = name
		}
		if c.Name != name || c.expiredAt(now) {
			continue
		}
		j.put(c)
	}
}

// Snapshot returns the live records in persistable form.
func (j *Jar) Snapshot() Snapshot {
	now := j.now()
	s := make(Snapshot, len(j.cookies))
	for name, c := range j.cookies {
		if !c.expiredAt(now) {
			s[name] = c
		}
	}
	return s
}

// Len returns the number of stored records, expired ones included.
func (j *Jar) Len() int { return len(j.cookies) }

// Get returns the record stored under name.
func (j *Jar) Get(name string) (Cookie, bool) {
	c, ok := j.cookies[name]
	return c, ok
}
