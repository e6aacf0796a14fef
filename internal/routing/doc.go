// Package routing implements the relay's origin routing table.
//
// Announcements arrive from many origins at once: the local tier of
// publishers and any number of remote sessions such as cluster peers.
// The Registry merges them into one table mapping each path to the ordered
// list of origins currently announcing it, and projects that table onto a
// single deduplicated announcement bus:
//
//   - a path becomes active on the bus when its first origin announces it
//   - a path ends on the bus when its last origin withdraws it
//
// no matter how many origins announce or withdraw the path in between.
//
// Route selection
//
// Route returns the first origin in announcement order, which is the
// earliest origin that is still announcing the path. It is not the most
// recent announcer.
//
// Withdrawal matching
//
// Unannounce removes exactly one matching occurrence of the origin. The
// table does not deduplicate, so an origin that announces the same path
// twice must withdraw it twice. Upstream protocols guarantee at most one
// outstanding announce per origin per path, and the relay feeds its whole
// local tier into the cluster table as a single Local origin, so this
// holds in practice.
//
// Disconnects
//
// Serve drives one origin's announcement stream into the table. When the
// stream ends nothing is withdrawn unless the caller asks for it with
// WithReconcile; without it the table keeps reporting the departed origin
// until explicit Ended announcements arrive.
package routing
