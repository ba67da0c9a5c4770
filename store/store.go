// Package store defines the compare-and-swap contract the decorator relies on.
//
// A Store keeps opaque byte values under string keys with a TTL and a version.
// Every Read returns a Token describing what was observed; passing that Token back
// to Write makes the write conditional:
//
//	Absent        write only if the key still has no value (create)
//	Version(v)    write only if the current version is still v
//	Unconditional write regardless of the current state
//
// A write that loses the race returns (false, nil). That is not an error: a fresher
// value already won.
package store

import (
	"context"
	"strconv"
	"time"
)

// Store must be safe for concurrent use.
type Store interface {
	// Read returns (nil, Absent, nil) when no value exists.
	Read(ctx context.Context, key string) (value []byte, tok Token, err error)

	// Write stores value with ttl (ttl <= 0 means no expiry) if tok still matches.
	Write(ctx context.Context, key string, value []byte, ttl time.Duration, tok Token) (applied bool, err error)

	Close(ctx context.Context) error
}

type tokenKind uint8

const (
	kindAbsent tokenKind = iota
	kindVersion
	kindUnconditional
)

// Token is an opaque CAS marker. The zero Token is Absent; absence is a distinct
// state and never collides with a real version number.
type Token struct {
	kind tokenKind
	ver  uint64
}

var (
	Absent        = Token{kind: kindAbsent}
	Unconditional = Token{kind: kindUnconditional}
)

// Version returns a token for an observed version v.
func Version(v uint64) Token { return Token{kind: kindVersion, ver: v} }

func (t Token) IsAbsent() bool        { return t.kind == kindAbsent }
func (t Token) IsUnconditional() bool { return t.kind == kindUnconditional }

// Version returns the observed version and true, or (0, false) for the
// Absent/Unconditional tokens.
func (t Token) Version() (uint64, bool) {
	return t.ver, t.kind == kindVersion
}

// Matches reports whether a write holding t may replace the current state, where
// present/current describe the value in the store right now.
func (t Token) Matches(present bool, current uint64) bool {
	switch t.kind {
	case kindUnconditional:
		return true
	case kindAbsent:
		return !present
	default:
		return present && current == t.ver
	}
}

func (t Token) String() string {
	switch t.kind {
	case kindAbsent:
		return "absent"
	case kindUnconditional:
		return "any"
	default:
		return "v" + strconv.FormatUint(t.ver, 10)
	}
}
