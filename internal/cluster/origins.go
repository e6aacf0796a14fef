package cluster

import (
	"context"
	"fmt"

	"github.com/moqlab/relay/internal/announce"
	"github.com/moqlab/relay/internal/metadata"
	"github.com/moqlab/relay/internal/metadata/keys"
)

// ListOrigins returns the paths a node has published, in key order.
// Malformed keys are skipped.
func ListOrigins(ctx context.Context, store metadata.MetadataStore, clusterID, nodeID string) ([]announce.Path, error) {
	kvs, err := store.List(ctx, keys.NodeOriginsPrefix(clusterID, nodeID), "", 0)
	if err != nil {
		return nil, fmt.Errorf("cluster: list origins of %s: %w", nodeID, err)
	}

	paths := make([]announce.Path, 0, len(kvs))
	for _, kv := range kvs {
		_, _, path, err := keys.ParseOriginKey(kv.Key)
		if err != nil {
			continue
		}
		paths = append(paths, announce.Path(path))
	}
	return paths, nil
}
