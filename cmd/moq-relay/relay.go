package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/moqlab/relay/internal/cluster"
	"github.com/moqlab/relay/internal/config"
	"github.com/moqlab/relay/internal/logging"
	"github.com/moqlab/relay/internal/metadata"
	"github.com/moqlab/relay/internal/metadata/oxia"
	"github.com/moqlab/relay/internal/metrics"
	"github.com/moqlab/relay/internal/relay"
	"github.com/moqlab/relay/internal/server"
)

// RelayOptions contains the configuration for creating a relay process.
type RelayOptions struct {
	Config    *config.Config
	Logger    *logging.Logger
	Version   string
	GitCommit string
	BuildTime string

	// Store replaces the Oxia connection when set. Used by tests.
	Store metadata.MetadataStore
}

// Relay is a running relay process: the node plus its HTTP endpoints.
type Relay struct {
	opts     RelayOptions
	logger   *logging.Logger
	registry *prometheus.Registry

	mu            sync.Mutex
	started       bool
	store         metadata.MetadataStore
	node          *relay.Node
	healthServer  *server.HealthServer
	metricsServer *metrics.Server
	up            chan struct{}
}

// NewRelay creates a Relay but does not start it.
func NewRelay(opts RelayOptions) (*Relay, error) {
	if opts.Config == nil {
		return nil, errors.New("relay: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Relay{
		opts:     opts,
		logger:   opts.Logger,
		registry: reg,
		up:       make(chan struct{}),
	}, nil
}

// Start brings up the endpoints and runs the node until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("relay already started")
	}
	r.started = true
	r.mu.Unlock()

	cfg := r.opts.Config
	r.logger.Infof("starting relay", map[string]any{
		"nodeId":        cfg.Relay.NodeID,
		"clusterId":     cfg.ClusterID,
		"cluster":       cfg.Cluster.Enabled,
		"advertiseAddr": cfg.AdvertiseAddr(),
		"version":       r.opts.Version,
	})

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}

	m := relay.Metrics{
		Local:    metrics.NewRoutingMetricsWithRegistry(r.registry, "local"),
		Origins:  metrics.NewRoutingMetricsWithRegistry(r.registry, "origins"),
		Bus:      metrics.NewBusMetricsWithRegistry(r.registry, "announce"),
		Cluster:  metrics.NewClusterMetricsWithRegistry(r.registry),
		Sessions: metrics.NewSessionMetricsWithRegistry(r.registry),
	}
	node, err := relay.New(relay.Config{
		ClusterID:     cfg.ClusterID,
		NodeID:        cfg.Relay.NodeID,
		AdvertiseAddr: cfg.AdvertiseAddr(),
		BuildInfo: cluster.BuildInfo{
			Version:   r.opts.Version,
			GitCommit: r.opts.GitCommit,
			BuildTime: r.opts.BuildTime,
		},
		Logger: r.logger,
	}, store, m)
	if err != nil {
		return err
	}

	health := server.NewHealthServer(cfg.Observability.HealthAddr, r.logger)
	health.RegisterReadinessCheck(server.NewChannelChecker("relay", node.Ready()))
	if store != nil {
		health.RegisterReadinessCheck(server.NewMetadataStoreChecker(store))
	}
	health.RegisterHandler(server.RoutesPattern, server.NewRoutesHandler(map[string]server.RouteTable{
		"origins": node.Origins(),
		"local":   node.Locals(),
	}))
	if err := health.Start(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}

	var metricsServer *metrics.Server
	if cfg.Observability.MetricsAddr != "" {
		metricsServer = metrics.NewServerWithRegistry(cfg.Observability.MetricsAddr, r.registry).WithLogger(r.logger)
		if err := metricsServer.Start(); err != nil {
			health.Close()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	r.mu.Lock()
	r.store = store
	r.node = node
	r.healthServer = health
	r.metricsServer = metricsServer
	r.mu.Unlock()
	close(r.up)

	health.LoopStarted("relay")
	err = node.Run(ctx)
	health.LoopStopped("relay")
	return err
}

func (r *Relay) openStore(ctx context.Context) (metadata.MetadataStore, error) {
	cfg := r.opts.Config
	if !cfg.Cluster.Enabled {
		r.logger.Info("clustering disabled, running standalone")
		return nil, nil
	}

	store := r.opts.Store
	if store == nil {
		oxiaCfg := oxia.DefaultConfig(cfg.Metadata.OxiaEndpoint, cfg.Metadata.Namespace)
		if d := cfg.Metadata.RequestTimeout(); d > 0 {
			oxiaCfg.RequestTimeout = d
		}
		if d := cfg.Metadata.SessionTimeout(); d > 0 {
			oxiaCfg.SessionTimeout = d
		}

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		oxiaStore, err := oxia.New(connectCtx, oxiaCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Oxia at %s: %w", cfg.Metadata.OxiaEndpoint, err)
		}
		store = oxiaStore
	}
	return metadata.NewInstrumentedStore(store, metrics.NewMetadataMetricsWithRegistry(r.registry)), nil
}

// Up is closed once the endpoints are listening.
func (r *Relay) Up() <-chan struct{} {
	return r.up
}

// Node returns the running node, or nil before Start.
func (r *Relay) Node() *relay.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.node
}

// HealthAddr returns the bound health address, or "" before Start.
func (r *Relay) HealthAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.healthServer == nil {
		return ""
	}
	return r.healthServer.Addr()
}

// SetShuttingDown makes the health endpoints report 503.
func (r *Relay) SetShuttingDown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.healthServer != nil {
		r.healthServer.SetShuttingDown()
	}
}

// Shutdown closes the endpoints and the metadata store. Call it after
// Start has returned.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}

	var errs []error
	if r.healthServer != nil {
		r.healthServer.SetShuttingDown()
		if err := r.healthServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("health server: %w", err))
		}
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil && !errors.Is(err, metadata.ErrStoreClosed) {
			errs = append(errs, fmt.Errorf("metadata store: %w", err))
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
