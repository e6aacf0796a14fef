package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/moqlab/relay/internal/announce"
	"github.com/moqlab/relay/internal/cluster"
	"github.com/moqlab/relay/internal/logging"
	"github.com/moqlab/relay/internal/metadata"
	"github.com/moqlab/relay/internal/metadata/oxia"
)

// NodeOrigins is one node and the paths it publishes.
type NodeOrigins struct {
	NodeID        string          `json:"nodeId"`
	AdvertiseAddr string          `json:"advertiseAddr"`
	Paths         []announce.Path `json:"paths"`
}

func runOrigins(args []string) {
	fs := flag.NewFlagSet("origins", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (.yaml or .toml)")
	nodeFilter := fs.String("node", "", "Only list the origins of this node")
	clusterID := fs.String("cluster-id", "", "Override cluster ID (default: from config)")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Println(`Usage: moq-relay origins [options]

List the paths each node of the cluster announces, as recorded in the
metadata store.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *clusterID != "" {
		cfg.ClusterID = *clusterID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	oxiaCfg := oxia.DefaultConfig(cfg.Metadata.OxiaEndpoint, cfg.Metadata.Namespace)
	if d := cfg.Metadata.RequestTimeout(); d > 0 {
		oxiaCfg.RequestTimeout = d
	}
	store, err := oxia.New(ctx, oxiaCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to Oxia at %s: %v\n", cfg.Metadata.OxiaEndpoint, err)
		os.Exit(1)
	}
	defer store.Close()

	nodes, err := collectOrigins(ctx, store, cfg.ClusterID, *nodeFilter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		data, _ := json.MarshalIndent(nodes, "", "  ")
		fmt.Println(string(data))
		return
	}
	printOrigins(os.Stdout, nodes)
}

// collectOrigins reads the registered nodes of a cluster and their paths.
// A non-empty nodeFilter restricts the result to that node.
func collectOrigins(ctx context.Context, store metadata.MetadataStore, clusterID, nodeFilter string) ([]NodeOrigins, error) {
	m := cluster.NewMembership(store, cluster.MembershipConfig{
		ClusterID: clusterID,
		Logger:    logging.Discard(),
	})

	var nodes []cluster.NodeInfo
	if nodeFilter != "" {
		info, ok, err := m.GetNode(ctx, nodeFilter)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("node %s is not registered", nodeFilter)
		}
		nodes = []cluster.NodeInfo{info}
	} else {
		var err error
		if nodes, err = m.ListNodes(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]NodeOrigins, 0, len(nodes))
	for _, info := range nodes {
		paths, err := cluster.ListOrigins(ctx, store, clusterID, info.NodeID)
		if err != nil {
			return nil, err
		}
		out = append(out, NodeOrigins{
			NodeID:        info.NodeID,
			AdvertiseAddr: info.AdvertiseAddr,
			Paths:         paths,
		})
	}
	return out, nil
}

func printOrigins(w io.Writer, nodes []NodeOrigins) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tADDRESS\tPATH")
	for _, n := range nodes {
		if len(n.Paths) == 0 {
			fmt.Fprintf(tw, "%s\t%s\t-\n", n.NodeID, n.AdvertiseAddr)
			continue
		}
		for _, p := range n.Paths {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", n.NodeID, n.AdvertiseAddr, p)
		}
	}
	tw.Flush()
}
