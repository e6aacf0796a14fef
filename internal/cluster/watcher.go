package cluster

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/moqlab/relay/internal/announce"
	"github.com/moqlab/relay/internal/logging"
	"github.com/moqlab/relay/internal/metadata"
	"github.com/moqlab/relay/internal/metadata/keys"
	"github.com/moqlab/relay/internal/metrics"
	"github.com/moqlab/relay/internal/origin"
	"github.com/moqlab/relay/internal/routing"
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	ClusterID string
	// NodeID is this node. Its own keys are ignored.
	NodeID string

	Logger  *logging.Logger
	Metrics *metrics.ClusterMetrics
}

// Watcher follows the origin keys of peer nodes and serves each peer into
// a routing registry as one remote origin.
type Watcher struct {
	store    metadata.MetadataStore
	registry *routing.Registry
	config   WatcherConfig
	logger   *logging.Logger

	mu    sync.Mutex
	peers map[string]*peer
	ready chan struct{}
	wg    sync.WaitGroup
}

type peer struct {
	nodeID   string
	session  origin.SessionID
	producer *announce.Producer
}

// NewWatcher creates a Watcher that feeds registry.
func NewWatcher(store metadata.MetadataStore, registry *routing.Registry, config WatcherConfig) *Watcher {
	logger := config.Logger
	if logger == nil {
		logger = logging.Global()
	}
	return &Watcher{
		store:    store,
		registry: registry,
		config:   config,
		logger:   logger.Component("watcher"),
		peers:    make(map[string]*peer),
		ready:    make(chan struct{}),
	}
}

// Run follows the cluster until ctx is done or the notification stream
// fails. It subscribes before listing so that no change between the
// listing and the subscription is lost. When Run returns every peer is
// closed and its paths are withdrawn from the registry.
//
// Run must be called at most once.
func (w *Watcher) Run(ctx context.Context) error {
	stream, err := w.store.Notifications(ctx)
	if err != nil {
		return fmt.Errorf("cluster: subscribe to notifications: %w", err)
	}
	defer stream.Close()

	defer w.closeAll()

	if err := w.loadBacklog(ctx); err != nil {
		return err
	}
	close(w.ready)
	w.logger.Infof("watcher caught up", map[string]any{"peers": len(w.Peers())})

	for {
		n, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("cluster: notification stream: %w", err)
		}
		w.apply(ctx, n)
	}
}

// Ready is closed once the current cluster state has been loaded.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// loadBacklog lists registered nodes and the paths each one serves.
// Origin keys are listed per node since Oxia prefix listings only return
// direct children.
func (w *Watcher) loadBacklog(ctx context.Context) error {
	nodes, err := w.store.List(ctx, keys.NodesPrefix(w.config.ClusterID), "", 0)
	w.record(metrics.OpListPeers, err)
	if err != nil {
		return fmt.Errorf("cluster: list nodes: %w", err)
	}

	for _, kv := range nodes {
		_, nodeID, err := keys.ParseNodeKey(kv.Key)
		if err != nil || nodeID == w.config.NodeID {
			continue
		}

		paths, err := ListOrigins(ctx, w.store, w.config.ClusterID, nodeID)
		w.record(metrics.OpListPeers, err)
		if err != nil {
			return err
		}

		p := w.ensurePeer(ctx, nodeID)
		for _, path := range paths {
			p.producer.Announce(path)
		}
	}
	return nil
}

func (w *Watcher) apply(ctx context.Context, n metadata.Notification) {
	if clusterID, nodeID, path, err := keys.ParseOriginKey(n.Key); err == nil {
		if clusterID != w.config.ClusterID || nodeID == w.config.NodeID {
			return
		}
		if n.Deleted {
			if p := w.peer(nodeID); p != nil {
				p.producer.Unannounce(announce.Path(path))
			}
			return
		}
		w.ensurePeer(ctx, nodeID).producer.Announce(announce.Path(path))
		return
	}

	if clusterID, nodeID, err := keys.ParseNodeKey(n.Key); err == nil {
		if clusterID != w.config.ClusterID || nodeID == w.config.NodeID {
			return
		}
		if n.Deleted {
			w.removePeer(nodeID)
			return
		}
		w.ensurePeer(ctx, nodeID)
	}
}

func (w *Watcher) peer(nodeID string) *peer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.peers[nodeID]
}

// ensurePeer returns the peer for nodeID, starting to serve it into the
// registry if it is new.
func (w *Watcher) ensurePeer(ctx context.Context, nodeID string) *peer {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.peers[nodeID]; ok {
		return p
	}

	p := &peer{
		nodeID:   nodeID,
		session:  PeerSession(nodeID),
		producer: announce.NewProducer(),
	}
	w.peers[nodeID] = p
	w.setPeersLocked()

	sub := p.producer.Subscribe(announce.All())
	log := w.logger.With(map[string]any{"peer": nodeID})
	log.Info("peer joined")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer sub.Close()
		err := w.registry.Serve(ctx, sub, origin.Remote(p.session), routing.WithReconcile())
		if err != nil && ctx.Err() == nil {
			log.Warnf("peer stream failed", map[string]any{"error": err.Error()})
		}
	}()
	return p
}

// removePeer closes the peer's producer. Serve drains it and withdraws
// every path the peer still held.
func (w *Watcher) removePeer(nodeID string) {
	w.mu.Lock()
	p, ok := w.peers[nodeID]
	if ok {
		delete(w.peers, nodeID)
		w.setPeersLocked()
	}
	w.mu.Unlock()

	if !ok {
		return
	}
	p.producer.Close()
	w.logger.Infof("peer left", map[string]any{"peer": nodeID})
}

func (w *Watcher) closeAll() {
	w.mu.Lock()
	peers := w.peers
	w.peers = make(map[string]*peer)
	w.setPeersLocked()
	w.mu.Unlock()

	for _, p := range peers {
		p.producer.Close()
	}
	w.wg.Wait()
}

// Peers returns the session IDs of the peers currently followed.
func (w *Watcher) Peers() []origin.SessionID {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]origin.SessionID, 0, len(w.peers))
	for _, p := range w.peers {
		out = append(out, p.session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// NodeFor returns the node ID behind a peer session.
func (w *Watcher) NodeFor(session origin.SessionID) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range w.peers {
		if p.session == session {
			return p.nodeID, true
		}
	}
	return "", false
}

func (w *Watcher) setPeersLocked() {
	if w.config.Metrics != nil {
		w.config.Metrics.SetPeers(len(w.peers))
	}
}

func (w *Watcher) record(op string, err error) {
	if w.config.Metrics != nil {
		w.config.Metrics.RecordOperation(op, err)
	}
}
