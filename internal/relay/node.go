// Package relay wires the routing tables of a relay node.
//
// A node keeps two registries. The local registry is keyed by the session
// of each connected publisher. The origin registry is cluster-wide: the
// whole local tier enters it as a single Local origin and every peer node
// enters it as one Remote origin. Subscribers read the origin registry.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/moqlab/relay/internal/announce"
	"github.com/moqlab/relay/internal/cluster"
	"github.com/moqlab/relay/internal/logging"
	"github.com/moqlab/relay/internal/metadata"
	"github.com/moqlab/relay/internal/metrics"
	"github.com/moqlab/relay/internal/origin"
	"github.com/moqlab/relay/internal/routing"
)

// deregisterTimeout bounds the removal of the node key on shutdown.
const deregisterTimeout = 5 * time.Second

// Config configures a Node.
type Config struct {
	ClusterID     string
	NodeID        string
	AdvertiseAddr string
	BuildInfo     cluster.BuildInfo

	Logger *logging.Logger
}

// Metrics groups the optional metrics of a Node. Nil fields are skipped.
type Metrics struct {
	Local    *metrics.RoutingMetrics
	Origins  *metrics.RoutingMetrics
	Bus      *metrics.BusMetrics
	Cluster  *metrics.ClusterMetrics
	Sessions *metrics.SessionMetrics
}

// Node is a relay node. Without a metadata store it runs standalone and
// only routes to its own publishers.
type Node struct {
	config  Config
	logger  *logging.Logger
	metrics Metrics

	locals  *routing.Registry
	origins *routing.Registry

	store      metadata.MetadataStore
	membership *cluster.Membership
	publisher  *cluster.Publisher
	watcher    *cluster.Watcher

	ready chan struct{}
}

// New creates a node. store may be nil for a standalone node.
func New(config Config, store metadata.MetadataStore, m Metrics) (*Node, error) {
	if store != nil {
		if config.ClusterID == "" {
			return nil, errors.New("relay: cluster id is required in cluster mode")
		}
		if config.NodeID == "" {
			return nil, errors.New("relay: node id is required in cluster mode")
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Global()
	}
	if config.NodeID != "" {
		logger = logger.WithNodeID(config.NodeID)
	}

	n := &Node{
		config:  config,
		logger:  logger.Component("relay"),
		metrics: m,
		store:   store,
		ready:   make(chan struct{}),
	}
	n.locals = newRegistry(logger, m.Local, m.Bus)
	n.origins = newRegistry(logger, m.Origins, m.Bus)

	if store != nil {
		n.membership = cluster.NewMembership(store, cluster.MembershipConfig{
			ClusterID:     config.ClusterID,
			NodeID:        config.NodeID,
			AdvertiseAddr: config.AdvertiseAddr,
			BuildInfo:     config.BuildInfo,
			Logger:        logger,
			Metrics:       m.Cluster,
		})
		n.publisher = cluster.NewPublisher(store, cluster.PublisherConfig{
			ClusterID: config.ClusterID,
			NodeID:    config.NodeID,
			Logger:    logger,
			Metrics:   m.Cluster,
		})
		n.watcher = cluster.NewWatcher(store, n.origins, cluster.WatcherConfig{
			ClusterID: config.ClusterID,
			NodeID:    config.NodeID,
			Logger:    logger,
			Metrics:   m.Cluster,
		})
	}
	return n, nil
}

func newRegistry(logger *logging.Logger, rm *metrics.RoutingMetrics, bm *metrics.BusMetrics) *routing.Registry {
	var busOpts []announce.ProducerOption
	if bm != nil {
		busOpts = append(busOpts, announce.WithBusMetrics(bm))
	}
	opts := []routing.Option{routing.WithLogger(logger)}
	if rm != nil {
		opts = append(opts, routing.WithMetrics(rm))
	}
	return routing.NewRegistry(announce.NewProducer(busOpts...), opts...)
}

// Standalone reports whether the node runs without a cluster.
func (n *Node) Standalone() bool {
	return n.store == nil
}

// Run registers the node, mirrors local announcements to the cluster and
// follows peers until ctx is done. It returns nil on a clean shutdown.
func (n *Node) Run(ctx context.Context) error {
	if n.membership != nil {
		if err := n.membership.Register(ctx); err != nil {
			return fmt.Errorf("relay: register node: %w", err)
		}
		defer n.deregister(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Subscriptions are taken before any goroutine starts so that nothing
	// announced from here on is missed.
	feed := n.locals.Subscribe(announce.All())
	fed := make(chan struct{})
	g.Go(func() error {
		defer feed.Close()
		return n.origins.Serve(gctx, feed, origin.Local(),
			routing.WithReconcile(),
			routing.WithLiveHook(func() { close(fed) }),
		)
	})

	watcherReady := closedChan()
	if n.store != nil {
		mirror := n.locals.Subscribe(announce.All())
		g.Go(func() error {
			defer mirror.Close()
			return n.publisher.Run(gctx, mirror)
		})
		g.Go(func() error {
			return n.watcher.Run(gctx)
		})
		watcherReady = n.watcher.Ready()
	}

	g.Go(func() error {
		for _, ch := range []<-chan struct{}{fed, watcherReady} {
			select {
			case <-ch:
			case <-gctx.Done():
				return nil
			}
		}
		close(n.ready)
		n.logger.Infof("relay ready", map[string]any{"standalone": n.Standalone()})
		return nil
	})

	err := g.Wait()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func (n *Node) deregister(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deregisterTimeout)
	defer cancel()
	if err := n.membership.Deregister(ctx); err != nil {
		n.logger.Warnf("failed to deregister node", map[string]any{"error": err.Error()})
	}
}

// Ready is closed once the node has routed its local backlog and loaded the
// current cluster state.
func (n *Node) Ready() <-chan struct{} {
	return n.ready
}

// Publish serves the announce stream of a connected publisher session into
// the local table until the stream ends or ctx is done. Paths the session
// still holds are withdrawn when Publish returns.
func (n *Node) Publish(ctx context.Context, session origin.SessionID, stream announce.Stream) error {
	kind := origin.Local().Kind()
	log := n.logger.WithSessionID(session.String())
	log.Debug("publisher session started")
	if n.metrics.Sessions != nil {
		n.metrics.Sessions.SessionStarted(kind)
	}

	err := n.locals.Serve(ctx, stream, origin.Remote(session), routing.WithReconcile())

	if n.metrics.Sessions != nil {
		n.metrics.Sessions.SessionEnded(kind, err)
	}
	if err != nil && ctx.Err() == nil {
		log.Warnf("publisher session failed", map[string]any{"error": err.Error()})
		return err
	}
	log.Debug("publisher session ended")
	return err
}

// Announced subscribes to the cluster-wide table.
func (n *Node) Announced(filter announce.Filter) *announce.Consumer {
	return n.origins.Subscribe(filter)
}

// LocalAnnounced subscribes to the paths of this node's own publishers.
func (n *Node) LocalAnnounced(filter announce.Filter) *announce.Consumer {
	return n.locals.Subscribe(filter)
}

// Route returns the origin currently chosen for path.
func (n *Node) Route(path announce.Path) (origin.Origin, bool) {
	return n.origins.Route(path)
}

// LocalRoute returns the publisher session currently chosen for path on
// this node.
func (n *Node) LocalRoute(path announce.Path) (origin.SessionID, bool) {
	o, ok := n.locals.Route(path)
	if !ok {
		return origin.SessionID{}, false
	}
	return o.Session()
}

// Origins returns the cluster-wide table.
func (n *Node) Origins() *routing.Registry {
	return n.origins
}

// Locals returns the table of this node's publishers.
func (n *Node) Locals() *routing.Registry {
	return n.locals
}

// Peers returns the peers currently followed. It is empty for a standalone
// node.
func (n *Node) Peers() []origin.SessionID {
	if n.watcher == nil {
		return nil
	}
	return n.watcher.Peers()
}

// Membership returns the node's cluster membership, or nil when standalone.
func (n *Node) Membership() *cluster.Membership {
	return n.membership
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
