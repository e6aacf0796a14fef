// Package origin identifies where a track announcement came from.
//
// An Origin is either the local tier of this relay (publishers connected
// directly to this node) or a remote session, such as a cluster peer that
// relayed the announcement to us. Origins are plain comparable values: two
// origins are the same origin exactly when == reports true.
package origin

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionID identifies a connected session. It is opaque and comparable.
type SessionID uuid.UUID

// NilSession is the zero SessionID.
var NilSession SessionID

// NewSessionID returns a new random session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

// ParseSessionID parses the canonical string form of a session identifier.
func ParseSessionID(s string) (SessionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilSession, fmt.Errorf("origin: invalid session id %q: %w", s, err)
	}
	return SessionID(id), nil
}

func (s SessionID) String() string {
	return uuid.UUID(s).String()
}

// Origin is a source of announcements. The zero value is Local().
type Origin struct {
	remote  bool
	session SessionID
}

// Local returns the origin that represents directly connected publishers.
func Local() Origin {
	return Origin{}
}

// Remote returns the origin for the given session.
func Remote(id SessionID) Origin {
	return Origin{remote: true, session: id}
}

// IsLocal reports whether o is the local origin.
func (o Origin) IsLocal() bool {
	return !o.remote
}

// Session returns the session behind a remote origin.
// The boolean is false for the local origin.
func (o Origin) Session() (SessionID, bool) {
	if !o.remote {
		return NilSession, false
	}
	return o.session, true
}

// Kind returns "local" or "remote". Used as a metric label.
func (o Origin) Kind() string {
	if o.remote {
		return "remote"
	}
	return "local"
}

func (o Origin) String() string {
	if !o.remote {
		return "local"
	}
	return "remote:" + o.session.String()
}

// MarshalText renders the origin in its String form so origins can be
// used in JSON documents such as the routes debug endpoint.
func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
