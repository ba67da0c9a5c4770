// Package cachecontrol parses request Cache-Control directives into a Policy and
// answers freshness questions about cached entries.
//
// Parsing never fails. Unknown directives are ignored and malformed values fall
// back to the defaults:
//
//	max-age=60, stale-while-revalidate=0, stale-if-error=0
//
// All freshness predicates work on whole epoch seconds, the resolution at which
// entries record their cache time.
package cachecontrol

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// DefaultMaxAge is used when the header carries no valid max-age.
	DefaultMaxAge = 60 * time.Second

	// maxDeltaSeconds caps delta-seconds values (2^31-1), as RFC 9111 recommends.
	maxDeltaSeconds = 1<<31 - 1
)

// Policy is the parsed form of one request's directives. The zero value is not the
// default policy; use Default or Parse.
type Policy struct {
	MaxAge               time.Duration
	StaleWhileRevalidate time.Duration
	StaleIfError         time.Duration
	NoCache              bool
	NoStore              bool
}

// Default returns the policy applied when no directive is given.
func Default() Policy {
	return Policy{MaxAge: DefaultMaxAge}
}

// Parse turns a directive string such as "max-age=2, stale-while-revalidate=2" into a
// Policy. Directives are recognised wherever they appear: commas, semicolons and
// whitespace all separate them. An empty header yields Default().
func Parse(header string) Policy {
	p := Default()
	var seenMaxAge, seenSWR, seenSIE bool

	for _, tok := range directives(header) {
		name, val, hasVal := strings.Cut(tok, "=")
		name = strings.ToLower(name)
		if name == "" {
			continue
		}

		switch name {
		case "no-cache":
			p.NoCache = true
		case "no-store":
			p.NoStore = true
		case "max-age":
			if d, ok := deltaSeconds(val, hasVal); ok && !seenMaxAge {
				p.MaxAge, seenMaxAge = d, true
			}
		case "stale-while-revalidate":
			if d, ok := deltaSeconds(val, hasVal); ok && !seenSWR {
				p.StaleWhileRevalidate, seenSWR = d, true
			}
		case "stale-if-error":
			if d, ok := deltaSeconds(val, hasVal); ok && !seenSIE {
				p.StaleIfError, seenSIE = d, true
			}
		}
	}
	return p
}

// directives splits h into name[=value] tokens. Whitespace around "=" is allowed,
// so "max-age = 7" is one token while "max-age= no-cache" stays two.
func directives(h string) []string {
	fields := strings.FieldsFunc(h, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if n := len(out); n > 0 && glues(out[n-1], f) {
			out[n-1] += f
			continue
		}
		out = append(out, f)
	}
	return out
}

func glues(prev, cur string) bool {
	if strings.HasPrefix(cur, "=") {
		return !strings.Contains(prev, "=")
	}
	if !strings.HasSuffix(prev, "=") || strings.Count(prev, "=") > 1 {
		return false
	}
	return cur[0] == '"' || (cur[0] >= '0' && cur[0] <= '9')
}

// deltaSeconds accepts only non-negative decimal integers, optionally quoted.
func deltaSeconds(raw string, hasVal bool) (time.Duration, bool) {
	if !hasVal {
		return 0, false
	}
	v := strings.Trim(strings.TrimSpace(raw), `"`)
	if v == "" {
		return 0, false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n > maxDeltaSeconds {
		// only overflow reaches here
		n = maxDeltaSeconds
	}
	return time.Duration(n) * time.Second, true
}

// StoreTTL is the expiry to request from the store when writing an entry:
// max-age plus the larger of the two grace periods, so that an entry eligible for
// stale serving is not evicted before its grace window ends.
func (p Policy) StoreTTL() time.Duration {
	grace := p.StaleWhileRevalidate
	if p.StaleIfError > grace {
		grace = p.StaleIfError
	}
	return p.MaxAge + grace
}

// Fresh reports whether an entry cached at cachedAt may be served as-is at now.
func (p Policy) Fresh(cachedAt, now int64) bool {
	return cachedAt+secs(p.MaxAge) >= now
}

// CanRevalidate reports whether a stale entry may be served while it is refreshed
// in the background.
func (p Policy) CanRevalidate(cachedAt, now int64) bool {
	if p.StaleWhileRevalidate <= 0 {
		return false
	}
	return cachedAt+secs(p.MaxAge)+secs(p.StaleWhileRevalidate) >= now
}

// CanServeOnError reports whether a stale entry may replace a failed upstream call.
func (p Policy) CanServeOnError(cachedAt, now int64) bool {
	if p.StaleIfError <= 0 {
		return false
	}
	return cachedAt+secs(p.MaxAge)+secs(p.StaleIfError) >= now
}

// String renders the policy in header form, e.g. "max-age=2, stale-if-error=2".
func (p Policy) String() string {
	parts := make([]string, 0, 5)
	if p.NoCache {
		parts = append(parts, "no-cache")
	}
	if p.NoStore {
		parts = append(parts, "no-store")
	}
	parts = append(parts, "max-age="+strconv.FormatInt(secs(p.MaxAge), 10))
	if p.StaleWhileRevalidate > 0 {
		parts = append(parts, "stale-while-revalidate="+strconv.FormatInt(secs(p.StaleWhileRevalidate), 10))
	}
	if p.StaleIfError > 0 {
		parts = append(parts, "stale-if-error="+strconv.FormatInt(secs(p.StaleIfError), 10))
	}
	return strings.Join(parts, ", ")
}

func secs(d time.Duration) int64 { return int64(d / time.Second) }
