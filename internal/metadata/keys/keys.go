// Package keys builds and parses the relay's metadata keyspace.
//
// Cluster state lives under one prefix per cluster:
//
//	/moq/v1/cluster/<clusterId>/nodes/<nodeId>
//	/moq/v1/cluster/<clusterId>/origins/<nodeId>/<escapedPath>
//
// Node keys and origin keys are both ephemeral, so a node that loses its
// metadata session drops out of the cluster together with every path it
// announced. Announced paths contain slashes; they are stored with
// url.PathEscape so each origin key has exactly one path segment.
package keys

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Key prefixes.
const (
	// Prefix is the root prefix for all relay keys.
	Prefix = "/moq/v1"

	// ClusterPrefix is the prefix for cluster metadata.
	ClusterPrefix = Prefix + "/cluster"

	// HealthCheckKey is read by readiness probes to test connectivity.
	HealthCheckKey = Prefix + "/_health"
)

// ErrInvalidKey is returned when a key cannot be parsed.
var ErrInvalidKey = errors.New("keys: invalid key format")

// ClusterKeyPath returns the key for cluster metadata.
func ClusterKeyPath(clusterID string) string {
	return fmt.Sprintf("%s/%s", ClusterPrefix, clusterID)
}

// NodeKeyPath returns the key for a relay node registration (ephemeral).
// Format: /moq/v1/cluster/<clusterId>/nodes/<nodeId>
func NodeKeyPath(clusterID, nodeID string) string {
	return fmt.Sprintf("%s/%s/nodes/%s", ClusterPrefix, clusterID, nodeID)
}

// NodesPrefix returns the prefix for listing all nodes in a cluster.
func NodesPrefix(clusterID string) string {
	return fmt.Sprintf("%s/%s/nodes/", ClusterPrefix, clusterID)
}

// ParseNodeKey parses a node key into its components.
func ParseNodeKey(key string) (clusterID, nodeID string, err error) {
	clusterID, rest, err := splitCluster(key, "/nodes/")
	if err != nil {
		return "", "", err
	}
	if rest == "" || strings.Contains(rest, "/") {
		return "", "", ErrInvalidKey
	}
	return clusterID, rest, nil
}

// OriginKeyPath returns the key recording that nodeID serves path
// (ephemeral).
// Format: /moq/v1/cluster/<clusterId>/origins/<nodeId>/<escapedPath>
func OriginKeyPath(clusterID, nodeID, path string) string {
	return fmt.Sprintf("%s/%s/origins/%s/%s", ClusterPrefix, clusterID, nodeID, url.PathEscape(path))
}

// OriginsPrefix returns the prefix for listing every origin key in a cluster.
func OriginsPrefix(clusterID string) string {
	return fmt.Sprintf("%s/%s/origins/", ClusterPrefix, clusterID)
}

// NodeOriginsPrefix returns the prefix for listing the paths one node serves.
func NodeOriginsPrefix(clusterID, nodeID string) string {
	return fmt.Sprintf("%s/%s/origins/%s/", ClusterPrefix, clusterID, nodeID)
}

// ParseOriginKey parses an origin key and unescapes the announced path.
func ParseOriginKey(key string) (clusterID, nodeID, path string, err error) {
	clusterID, rest, err := splitCluster(key, "/origins/")
	if err != nil {
		return "", "", "", err
	}

	nodeID, escaped, ok := strings.Cut(rest, "/")
	if !ok || nodeID == "" || escaped == "" || strings.Contains(escaped, "/") {
		return "", "", "", ErrInvalidKey
	}

	path, err = url.PathUnescape(escaped)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return clusterID, nodeID, path, nil
}

// IsNodeKey reports whether key is a node registration key.
func IsNodeKey(key string) bool {
	_, _, err := ParseNodeKey(key)
	return err == nil
}

// IsOriginKey reports whether key is an origin key.
func IsOriginKey(key string) bool {
	_, _, _, err := ParseOriginKey(key)
	return err == nil
}

// splitCluster strips the cluster prefix and returns the cluster ID and
// whatever follows sep.
func splitCluster(key, sep string) (clusterID, rest string, err error) {
	prefix := ClusterPrefix + "/"
	if !strings.HasPrefix(key, prefix) {
		return "", "", ErrInvalidKey
	}

	clusterID, rest, ok := strings.Cut(key[len(prefix):], sep)
	if !ok || clusterID == "" || strings.Contains(clusterID, "/") {
		return "", "", ErrInvalidKey
	}
	return clusterID, rest, nil
}
