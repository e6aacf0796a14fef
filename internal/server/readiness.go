package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/moqlab/relay/internal/metadata"
	"github.com/moqlab/relay/internal/metadata/keys"
)

// MetadataStoreChecker reports ready while the metadata store answers a Get.
type MetadataStoreChecker struct {
	store metadata.MetadataStore
}

// NewMetadataStoreChecker creates a MetadataStoreChecker.
func NewMetadataStoreChecker(store metadata.MetadataStore) *MetadataStoreChecker {
	return &MetadataStoreChecker{store: store}
}

// Name implements ReadinessChecker.
func (c *MetadataStoreChecker) Name() string {
	return "metadata_store"
}

// CheckReady reads a key that normally does not exist. A missing key is
// a healthy answer.
func (c *MetadataStoreChecker) CheckReady(ctx context.Context) error {
	if c.store == nil {
		return errors.New("metadata store not configured")
	}
	_, err := c.store.Get(ctx, keys.HealthCheckKey)
	if err != nil && !errors.Is(err, metadata.ErrKeyNotFound) {
		return err
	}
	return nil
}

// ChannelChecker reports ready once a channel is closed, such as the ready
// channel of a relay node.
type ChannelChecker struct {
	name  string
	ready <-chan struct{}
}

// NewChannelChecker creates a ChannelChecker.
func NewChannelChecker(name string, ready <-chan struct{}) *ChannelChecker {
	return &ChannelChecker{name: name, ready: ready}
}

// Name implements ReadinessChecker.
func (c *ChannelChecker) Name() string {
	return c.name
}

// CheckReady does not block.
func (c *ChannelChecker) CheckReady(context.Context) error {
	if c.ready == nil {
		return fmt.Errorf("%s: not started", c.name)
	}
	select {
	case <-c.ready:
		return nil
	default:
		return fmt.Errorf("%s: still loading", c.name)
	}
}

// FuncChecker wraps a function as a ReadinessChecker.
type FuncChecker struct {
	name  string
	check func(context.Context) error
}

// NewFuncChecker creates a FuncChecker.
func NewFuncChecker(name string, check func(context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, check: check}
}

func (c *FuncChecker) Name() string {
	return c.name
}

func (c *FuncChecker) CheckReady(ctx context.Context) error {
	if c.check == nil {
		return nil
	}
	return c.check(ctx)
}
