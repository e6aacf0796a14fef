package routing

import (
	"sync"

	"github.com/moqlab/relay/internal/announce"
	"github.com/moqlab/relay/internal/logging"
	"github.com/moqlab/relay/internal/metrics"
	"github.com/moqlab/relay/internal/origin"
)

// Bus is the announcement broadcast the registry drives.
// Announce and Unannounce must not block on subscribers.
type Bus interface {
	Announce(path announce.Path) bool
	Unannounce(path announce.Path) bool
	Subscribe(filter announce.Filter) *announce.Consumer
}

var _ Bus = (*announce.Producer)(nil)

// Registry maps paths to the origins announcing them.
// It is safe for concurrent use.
type Registry struct {
	bus     Bus
	logger  *logging.Logger
	metrics *metrics.RoutingMetrics

	mu     sync.Mutex
	routes map[announce.Path][]origin.Origin
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for announce and unannounce events.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records table activity.
func WithMetrics(m *metrics.RoutingMetrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty registry that publishes path transitions to bus.
func NewRegistry(bus Bus, opts ...Option) *Registry {
	r := &Registry{
		bus:    bus,
		logger: logging.Global(),
		routes: make(map[announce.Path][]origin.Origin),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Announce records that o announces path. The first origin for a path
// makes the path active on the bus; later origins are appended in order.
func (r *Registry) Announce(path announce.Path, o origin.Origin) {
	r.logger.Infof("announced origin", map[string]any{
		"path":   string(path),
		"origin": o.String(),
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordAnnounce(o.Kind())
	}

	if existing, ok := r.routes[path]; ok {
		r.routes[path] = append(existing, o)
		return
	}

	r.routes[path] = []origin.Origin{o}
	r.bus.Announce(path)

	if r.metrics != nil {
		r.metrics.SetActivePaths(len(r.routes))
	}
}

// Unannounce removes one occurrence of o from path. When the last origin
// is removed the path ends on the bus. Withdrawing a path or origin that
// is not in the table does nothing.
func (r *Registry) Unannounce(path announce.Path, o origin.Origin) {
	r.logger.Infof("unannounced origin", map[string]any{
		"path":   string(path),
		"origin": o.String(),
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordUnannounce(o.Kind())
	}

	entry, ok := r.routes[path]
	if !ok {
		return
	}

	idx := -1
	for i, existing := range entry {
		if existing == o {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	if len(entry) > 1 {
		// Keep announcement order for the survivors.
		r.routes[path] = append(entry[:idx:idx], entry[idx+1:]...)
		return
	}

	delete(r.routes, path)
	r.bus.Unannounce(path)

	if r.metrics != nil {
		r.metrics.SetActivePaths(len(r.routes))
	}
}

// Subscribe returns the deduplicated announcement stream for paths that
// match filter: the active backlog, a Live marker, then live transitions.
func (r *Registry) Subscribe(filter announce.Filter) *announce.Consumer {
	return r.bus.Subscribe(filter)
}

// Route returns the origin selected to serve path: the earliest origin
// still announcing it. The boolean is false if nobody announces path.
func (r *Registry) Route(path announce.Path) (origin.Origin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.routes[path]
	found := ok && len(entry) > 0
	if r.metrics != nil {
		r.metrics.RecordLookup(found)
	}
	if !found {
		return origin.Origin{}, false
	}
	return entry[0], true
}

// Origins returns a copy of the origins announcing path, oldest first.
func (r *Registry) Origins(path announce.Path) []origin.Origin {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.routes[path]
	if len(entry) == 0 {
		return nil
	}
	out := make([]origin.Origin, len(entry))
	copy(out, entry)
	return out
}

// Snapshot returns a deep copy of the table.
func (r *Registry) Snapshot() map[announce.Path][]origin.Origin {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[announce.Path][]origin.Origin, len(r.routes))
	for path, entry := range r.routes {
		cp := make([]origin.Origin, len(entry))
		copy(cp, entry)
		out[path] = cp
	}
	return out
}

// Len returns the number of active paths.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}
