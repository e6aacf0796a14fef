package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/moqlab/relay/internal/config"
	"github.com/moqlab/relay/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("moq-relay version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "origins":
		runOrigins(os.Args[2:])
	case "version":
		fmt.Printf("moq-relay version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: moq-relay <command> [options]

Commands:
  serve     Run a relay node
  origins   List the paths announced across the cluster
  version   Print version information

Run 'moq-relay <command> --help' for more information on a command.`)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (.yaml or .toml)")
	nodeID := fs.String("node-id", "", "Override node ID (default: auto-generated UUID)")
	clusterID := fs.String("cluster-id", "", "Override cluster ID (default: from config)")
	healthAddr := fs.String("health-addr", "", "Override health endpoint address (e.g., :9091)")
	advertise := fs.String("advertise", "", "Override the address peers use to reach this node")

	fs.Usage = func() {
		fmt.Println(`Usage: moq-relay serve [options]

Run a relay node. With cluster.enabled the node registers in the metadata
store, publishes its origins and routes to its peers.

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

	if *nodeID != "" {
		cfg.Relay.NodeID = *nodeID
	}
	if cfg.Relay.NodeID == "" {
		cfg.Relay.NodeID = uuid.New().String()
	}
	if *clusterID != "" {
		cfg.ClusterID = *clusterID
	}
	if *healthAddr != "" {
		cfg.Observability.HealthAddr = *healthAddr
	}
	if *advertise != "" {
		cfg.Relay.AdvertiseAddr = *advertise
	}

	logger := logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	r, err := NewRelay(RelayOptions{
		Config:    cfg,
		Logger:    logger,
		Version:   version,
		GitCommit: gitCommit,
		BuildTime: buildTime,
	})
	if err != nil {
		logger.Errorf("failed to create relay", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Start(ctx)
	}()

	failed := false
	select {
	case sig := <-sigCh:
		logger.Infof("received shutdown signal", map[string]any{"signal": sig.String()})
		r.SetShuttingDown()
		cancel()
		if err := <-errCh; err != nil {
			logger.Errorf("relay error", map[string]any{"error": err.Error()})
			failed = true
		}
	case err := <-errCh:
		if err != nil {
			logger.Errorf("relay error", map[string]any{"error": err.Error()})
			failed = true
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := r.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error", map[string]any{"error": err.Error()})
		failed = true
	}
	if failed {
		os.Exit(1)
	}
	logger.Info("relay shutdown complete")
}
