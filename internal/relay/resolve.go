package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/moqlab/relay/internal/announce"
	"github.com/moqlab/relay/internal/cluster"
	"github.com/moqlab/relay/internal/origin"
)

var (
	// ErrNoRoute is returned when no origin announces a path.
	ErrNoRoute = errors.New("relay: no route")

	// ErrPeerNotFound is returned when a path routes to a peer whose
	// registration is no longer visible.
	ErrPeerNotFound = errors.New("relay: peer not found")
)

// Route is the resolved upstream of a path.
type Route struct {
	Origin origin.Origin
	// Node is the peer serving the path. It is nil for local origins.
	Node *cluster.NodeInfo
}

// Local reports whether the path is served by this node.
func (r Route) Local() bool {
	return r.Node == nil
}

// Resolve picks the origin for path and, for a remote origin, looks up the
// peer that serves it.
func (n *Node) Resolve(ctx context.Context, path announce.Path) (Route, error) {
	o, ok := n.origins.Route(path)
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrNoRoute, path)
	}
	session, remote := o.Session()
	if !remote {
		return Route{Origin: o}, nil
	}
	if n.membership == nil {
		return Route{}, fmt.Errorf("%w: %s", ErrPeerNotFound, session)
	}

	info, err := n.lookupPeer(ctx, session)
	if err != nil {
		return Route{}, err
	}
	return Route{Origin: o, Node: &info}, nil
}

func (n *Node) lookupPeer(ctx context.Context, session origin.SessionID) (cluster.NodeInfo, error) {
	if nodeID, ok := n.watcher.NodeFor(session); ok {
		info, found, err := n.membership.GetNode(ctx, nodeID)
		if err != nil {
			return cluster.NodeInfo{}, fmt.Errorf("relay: get node %s: %w", nodeID, err)
		}
		if found {
			return info, nil
		}
		return cluster.NodeInfo{}, fmt.Errorf("%w: %s", ErrPeerNotFound, nodeID)
	}

	// The watcher may already have dropped the peer while the registry
	// still routes to it.
	nodes, err := n.membership.ListNodes(ctx)
	if err != nil {
		return cluster.NodeInfo{}, fmt.Errorf("relay: list nodes: %w", err)
	}
	for _, info := range nodes {
		if info.Session() == session {
			return info, nil
		}
	}
	return cluster.NodeInfo{}, fmt.Errorf("%w: %s", ErrPeerNotFound, session)
}
