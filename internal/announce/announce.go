// Package announce implements the announcement bus: a broadcast of
// "path is active" and "path has ended" transitions with filtered,
// backlog-first subscriptions.
//
// A Producer is driven by a single owner that decides when a path starts
// and stops being active. Any number of Consumers subscribe with a Filter.
// Each consumer first receives every matching path that is already active
// (as Active events), then a Live marker, then the live stream of matching
// transitions in the order the producer applied them.
//
// Producers never wait for consumers. Every consumer owns an unbounded FIFO,
// so a slow subscriber only grows its own buffer.
package announce

import (
	"context"
	"errors"
	"strings"
)

// ErrClosed is returned by Stream.Next once the stream has ended and every
// buffered announcement has been delivered.
var ErrClosed = errors.New("announce: closed")

// Path names an announceable broadcast or track.
type Path string

// HasPrefix reports whether p begins with prefix.
func (p Path) HasPrefix(prefix Path) bool {
	return strings.HasPrefix(string(p), string(prefix))
}

func (p Path) String() string {
	return string(p)
}

// Kind is the type of an announcement.
type Kind int

const (
	// Active means the path became available.
	Active Kind = iota + 1
	// Ended means the path is no longer available.
	Ended
	// Live marks the end of the initial backlog.
	Live
)

func (k Kind) String() string {
	switch k {
	case Active:
		return "active"
	case Ended:
		return "ended"
	case Live:
		return "live"
	default:
		return "unknown"
	}
}

// Announced is a single item of an announcement stream.
// Path is empty for Live.
type Announced struct {
	Kind Kind
	Path Path
}

// ActiveOf returns an Active announcement for path.
func ActiveOf(path Path) Announced {
	return Announced{Kind: Active, Path: path}
}

// EndedOf returns an Ended announcement for path.
func EndedOf(path Path) Announced {
	return Announced{Kind: Ended, Path: path}
}

// LiveMarker returns the Live announcement.
func LiveMarker() Announced {
	return Announced{Kind: Live}
}

func (a Announced) String() string {
	if a.Kind == Live {
		return "live"
	}
	return a.Kind.String() + ":" + string(a.Path)
}

// Stream is a sequence of announcements, such as a subscription to a
// Producer or the announce stream of a connected session.
type Stream interface {
	// Next blocks until the next announcement is available.
	// It returns ErrClosed when the stream has ended, or the context
	// error if ctx is done first.
	Next(ctx context.Context) (Announced, error)
}

type filterMode int

const (
	matchAll filterMode = iota
	matchPrefix
	matchExact
)

// Filter selects which paths a subscriber is told about.
// The zero value matches every path.
type Filter struct {
	mode filterMode
	path Path
}

// All matches every path.
func All() Filter {
	return Filter{mode: matchAll}
}

// Prefix matches paths that start with prefix.
func Prefix(prefix Path) Filter {
	return Filter{mode: matchPrefix, path: prefix}
}

// Exact matches a single path.
func Exact(path Path) Filter {
	return Filter{mode: matchExact, path: path}
}

// Match reports whether path passes the filter.
func (f Filter) Match(path Path) bool {
	switch f.mode {
	case matchPrefix:
		return path.HasPrefix(f.path)
	case matchExact:
		return path == f.path
	default:
		return true
	}
}

func (f Filter) String() string {
	switch f.mode {
	case matchPrefix:
		return "prefix:" + string(f.path)
	case matchExact:
		return "exact:" + string(f.path)
	default:
		return "all"
	}
}
