package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/moqlab/relay/internal/announce"
	"github.com/moqlab/relay/internal/origin"
)

// ServeOption configures Serve.
type ServeOption func(*serveConfig)

type serveConfig struct {
	reconcile bool
	onLive    func()
}

// WithReconcile withdraws every path o still holds when the stream ends,
// whether it ended cleanly, with an error, or because ctx was canceled.
func WithReconcile() ServeOption {
	return func(c *serveConfig) {
		c.reconcile = true
	}
}

// WithLiveHook calls fn once when the stream delivers its Live marker.
func WithLiveHook(fn func()) ServeOption {
	return func(c *serveConfig) {
		c.onLive = fn
	}
}

// Serve applies stream's announcements to the registry on behalf of o
// until the stream ends. Active records an announce, Ended records an
// unannounce, and Live is skipped.
//
// Serve returns nil when the stream reports announce.ErrClosed, ctx.Err()
// when ctx is done, and any other stream error wrapped.
func (r *Registry) Serve(ctx context.Context, stream announce.Stream, o origin.Origin, opts ...ServeOption) error {
	var cfg serveConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	// Only consulted when reconciling; tracks what o currently holds.
	held := make(map[announce.Path]int)
	if cfg.reconcile {
		defer func() {
			for path, n := range held {
				for i := 0; i < n; i++ {
					r.Unannounce(path, o)
				}
			}
		}()
	}

	log := r.logger.With(map[string]any{"origin": o.String()})
	live := false

	for {
		a, err := stream.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, announce.ErrClosed):
				log.Debug("announce stream closed")
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				log.Warnf("announce stream failed", map[string]any{"error": err.Error()})
				return fmt.Errorf("routing: serve %s: %w", o, err)
			}
		}

		switch a.Kind {
		case announce.Active:
			r.Announce(a.Path, o)
			if cfg.reconcile {
				held[a.Path]++
			}
		case announce.Ended:
			r.Unannounce(a.Path, o)
			if cfg.reconcile && held[a.Path] > 0 {
				held[a.Path]--
				if held[a.Path] == 0 {
					delete(held, a.Path)
				}
			}
		case announce.Live:
			if !live {
				live = true
				if cfg.onLive != nil {
					cfg.onLive()
				}
			}
		}
	}
}
