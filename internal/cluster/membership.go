// Package cluster shares announcements between relay nodes through the
// metadata store.
//
// Each node registers itself under an ephemeral node key and mirrors its
// locally announced paths into ephemeral origin keys (Publisher). Every
// node follows the origin keys of its peers and feeds them into its own
// routing table, one remote origin per peer (Watcher). When a node dies
// its metadata session expires, Oxia deletes its keys, and peers withdraw
// its paths.
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moqlab/relay/internal/logging"
	"github.com/moqlab/relay/internal/metadata"
	"github.com/moqlab/relay/internal/metadata/keys"
	"github.com/moqlab/relay/internal/metrics"
	"github.com/moqlab/relay/internal/origin"
)

// ErrNodeAlreadyRegistered is returned by Register when another live
// process already holds this node ID.
var ErrNodeAlreadyRegistered = errors.New("cluster: node already registered")

// NodeInfo is the registration record of a relay node.
type NodeInfo struct {
	// NodeID is the unique identifier for this node.
	NodeID string `json:"nodeId"`

	// ClusterID is the cluster the node belongs to.
	ClusterID string `json:"clusterId"`

	// AdvertiseAddr is the host:port peers and clients use to reach the node.
	AdvertiseAddr string `json:"advertiseAddr"`

	// StartedAt is the Unix timestamp (milliseconds) when the node started.
	StartedAt int64 `json:"startedAt"`

	// BuildInfo contains version and build metadata.
	BuildInfo BuildInfo `json:"buildInfo"`
}

// BuildInfo contains relay version and build metadata.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
}

// Session returns the session ID peers use for this node's remote origin.
func (n NodeInfo) Session() origin.SessionID {
	return PeerSession(n.NodeID)
}

// peerNamespace derives session IDs for node IDs that are not UUIDs.
var peerNamespace = uuid.MustParse("6f1b5a51-2a3e-4e7c-9a0a-7d4e2f6c8b10")

// PeerSession maps a node ID to the session ID of its remote origin.
// UUID node IDs map to themselves; other IDs map to a stable name-based UUID.
func PeerSession(nodeID string) origin.SessionID {
	if id, err := uuid.Parse(nodeID); err == nil {
		return origin.SessionID(id)
	}
	return origin.SessionID(uuid.NewSHA1(peerNamespace, []byte(nodeID)))
}

// MembershipConfig configures node registration.
type MembershipConfig struct {
	ClusterID     string
	NodeID        string
	AdvertiseAddr string
	BuildInfo     BuildInfo

	// Logger for registration events.
	Logger *logging.Logger

	// Metrics records register operations. Optional.
	Metrics *metrics.ClusterMetrics
}

// Membership registers this node and looks up peers.
type Membership struct {
	store  metadata.MetadataStore
	config MembershipConfig
	logger *logging.Logger

	mu         sync.RWMutex
	registered bool
	version    metadata.Version
	startedAt  int64
}

// NewMembership creates a Membership for the configured node.
func NewMembership(store metadata.MetadataStore, config MembershipConfig) *Membership {
	logger := config.Logger
	if logger == nil {
		logger = logging.Global()
	}

	return &Membership{
		store:     store,
		config:    config,
		logger:    logger.Component("membership"),
		startedAt: time.Now().UnixMilli(),
	}
}

// Register writes this node's ephemeral registration key. It fails with
// ErrNodeAlreadyRegistered if the key is held by someone else. Calling
// Register again after a successful registration refreshes the record.
func (m *Membership) Register(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(m.selfLocked())
	if err != nil {
		return fmt.Errorf("cluster: marshal node info: %w", err)
	}

	key := keys.NodeKeyPath(m.config.ClusterID, m.config.NodeID)

	opt := metadata.WithEphemeralExpectNotExists()
	if m.registered {
		opt = metadata.WithEphemeralExpectedVersion(m.version)
	}

	version, err := m.store.PutEphemeral(ctx, key, data, opt)
	m.recordOp(err)
	if err != nil {
		if errors.Is(err, metadata.ErrVersionMismatch) {
			return fmt.Errorf("%w: %s", ErrNodeAlreadyRegistered, m.config.NodeID)
		}
		return fmt.Errorf("cluster: register node: %w", err)
	}

	m.registered = true
	m.version = version
	m.logger.Infof("node registered", map[string]any{
		"nodeId":        m.config.NodeID,
		"advertiseAddr": m.config.AdvertiseAddr,
		"key":           key,
	})
	return nil
}

// Deregister removes the registration. It is optional since the key is
// ephemeral, but lets peers react before the session times out.
func (m *Membership) Deregister(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registered {
		return nil
	}

	key := keys.NodeKeyPath(m.config.ClusterID, m.config.NodeID)
	if err := m.store.Delete(ctx, key, metadata.WithDeleteExpectedVersion(m.version)); err != nil {
		return fmt.Errorf("cluster: deregister node: %w", err)
	}

	m.registered = false
	m.version = 0
	m.logger.Infof("node deregistered", map[string]any{
		"nodeId": m.config.NodeID,
		"key":    key,
	})
	return nil
}

// ListNodes returns every registered node in the cluster, this one included.
func (m *Membership) ListNodes(ctx context.Context) ([]NodeInfo, error) {
	kvs, err := m.store.List(ctx, keys.NodesPrefix(m.config.ClusterID), "", 0)
	if err != nil {
		return nil, fmt.Errorf("cluster: list nodes: %w", err)
	}

	nodes := make([]NodeInfo, 0, len(kvs))
	for _, kv := range kvs {
		var info NodeInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			m.logger.Warnf("failed to unmarshal node info", map[string]any{
				"key":   kv.Key,
				"error": err.Error(),
			})
			continue
		}
		nodes = append(nodes, info)
	}
	return nodes, nil
}

// GetNode returns the registration of nodeID. The boolean is false if the
// node is not registered.
func (m *Membership) GetNode(ctx context.Context, nodeID string) (NodeInfo, bool, error) {
	result, err := m.store.Get(ctx, keys.NodeKeyPath(m.config.ClusterID, nodeID))
	if err != nil {
		return NodeInfo{}, false, fmt.Errorf("cluster: get node: %w", err)
	}
	if !result.Exists {
		return NodeInfo{}, false, nil
	}

	var info NodeInfo
	if err := json.Unmarshal(result.Value, &info); err != nil {
		return NodeInfo{}, false, fmt.Errorf("cluster: unmarshal node info: %w", err)
	}
	return info, true, nil
}

// IsRegistered reports whether this node currently holds its registration.
func (m *Membership) IsRegistered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

// Self returns this node's registration record.
func (m *Membership) Self() NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selfLocked()
}

func (m *Membership) selfLocked() NodeInfo {
	return NodeInfo{
		NodeID:        m.config.NodeID,
		ClusterID:     m.config.ClusterID,
		AdvertiseAddr: m.config.AdvertiseAddr,
		StartedAt:     m.startedAt,
		BuildInfo:     m.config.BuildInfo,
	}
}

// NodeID returns this node's ID.
func (m *Membership) NodeID() string {
	return m.config.NodeID
}

// ClusterID returns the cluster this node belongs to.
func (m *Membership) ClusterID() string {
	return m.config.ClusterID
}

func (m *Membership) recordOp(err error) {
	if m.config.Metrics != nil {
		m.config.Metrics.RecordOperation(metrics.OpRegister, err)
	}
}
