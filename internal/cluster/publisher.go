package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/moqlab/relay/internal/announce"
	"github.com/moqlab/relay/internal/logging"
	"github.com/moqlab/relay/internal/metadata"
	"github.com/moqlab/relay/internal/metadata/keys"
	"github.com/moqlab/relay/internal/metrics"
)

// withdrawTimeout bounds the cleanup of origin keys when a Publisher stops.
const withdrawTimeout = 5 * time.Second

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	ClusterID string
	NodeID    string

	Logger  *logging.Logger
	Metrics *metrics.ClusterMetrics
}

// Publisher mirrors this node's announcements into ephemeral origin keys
// so that peers can route to it.
type Publisher struct {
	store  metadata.MetadataStore
	config PublisherConfig
	logger *logging.Logger

	mu        sync.Mutex
	published map[announce.Path]struct{}
}

// NewPublisher creates a Publisher for the configured node.
func NewPublisher(store metadata.MetadataStore, config PublisherConfig) *Publisher {
	logger := config.Logger
	if logger == nil {
		logger = logging.Global()
	}
	return &Publisher{
		store:     store,
		config:    config,
		logger:    logger.Component("publisher"),
		published: make(map[announce.Path]struct{}),
	}
}

// Run mirrors stream until it ends or ctx is done. Active writes the origin
// key and Ended deletes it. Store failures are logged and counted but do
// not stop the publisher. Keys still published when Run returns are
// deleted on a best-effort basis.
func (p *Publisher) Run(ctx context.Context, stream announce.Stream) error {
	defer p.withdrawAll(ctx)

	for {
		a, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, announce.ErrClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("cluster: publisher stream: %w", err)
		}

		switch a.Kind {
		case announce.Active:
			p.publish(ctx, a.Path)
		case announce.Ended:
			p.withdraw(ctx, a.Path)
		case announce.Live:
			p.logger.Debug("publisher caught up with local announcements")
		}
	}
}

func (p *Publisher) publish(ctx context.Context, path announce.Path) {
	key := keys.OriginKeyPath(p.config.ClusterID, p.config.NodeID, string(path))
	_, err := p.store.PutEphemeral(ctx, key, []byte(path))
	p.record(metrics.OpPublish, err)
	if err != nil {
		p.logger.Warnf("failed to publish origin", map[string]any{
			"path":  string(path),
			"key":   key,
			"error": err.Error(),
		})
		return
	}

	p.mu.Lock()
	p.published[path] = struct{}{}
	p.mu.Unlock()
	p.logger.Debugf("published origin", map[string]any{"path": string(path)})
}

func (p *Publisher) withdraw(ctx context.Context, path announce.Path) {
	key := keys.OriginKeyPath(p.config.ClusterID, p.config.NodeID, string(path))
	err := p.store.Delete(ctx, key)
	p.record(metrics.OpWithdraw, err)
	if err != nil {
		p.logger.Warnf("failed to withdraw origin", map[string]any{
			"path":  string(path),
			"key":   key,
			"error": err.Error(),
		})
		return
	}

	p.mu.Lock()
	delete(p.published, path)
	p.mu.Unlock()
	p.logger.Debugf("withdrew origin", map[string]any{"path": string(path)})
}

func (p *Publisher) withdrawAll(ctx context.Context) {
	paths := p.Published()
	if len(paths) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), withdrawTimeout)
	defer cancel()
	for _, path := range paths {
		p.withdraw(ctx, path)
	}
}

// Published returns the paths currently mirrored, in lexicographic order.
func (p *Publisher) Published() []announce.Path {
	p.mu.Lock()
	defer p.mu.Unlock()

	paths := make([]announce.Path, 0, len(p.published))
	for path := range p.published {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

func (p *Publisher) record(op string, err error) {
	if p.config.Metrics != nil {
		p.config.Metrics.RecordOperation(op, err)
	}
}
