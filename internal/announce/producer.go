package announce

import (
	"sort"
	"sync"

	"github.com/moqlab/relay/internal/metrics"
)

// Producer owns the set of active paths and fans transitions out to
// subscribers. It is safe for concurrent use.
type Producer struct {
	mu        sync.Mutex
	active    map[Path]struct{}
	consumers map[*Consumer]struct{}
	closed    bool
	metrics   *metrics.BusMetrics
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithBusMetrics records subscriber and event counts.
func WithBusMetrics(m *metrics.BusMetrics) ProducerOption {
	return func(p *Producer) {
		p.metrics = m
	}
}

// NewProducer creates a Producer with no active paths.
func NewProducer(opts ...ProducerOption) *Producer {
	p := &Producer{
		active:    make(map[Path]struct{}),
		consumers: make(map[*Consumer]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Announce marks path active and notifies matching subscribers.
// It returns false, without notifying anyone, if path was already active
// or the producer is closed.
func (p *Producer) Announce(path Path) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if _, ok := p.active[path]; ok {
		return false
	}
	p.active[path] = struct{}{}
	p.broadcast(ActiveOf(path))
	return true
}

// Unannounce marks path inactive and notifies matching subscribers.
// It returns false if path was not active or the producer is closed.
func (p *Producer) Unannounce(path Path) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if _, ok := p.active[path]; !ok {
		return false
	}
	delete(p.active, path)
	p.broadcast(EndedOf(path))
	return true
}

// broadcast must be called with p.mu held.
func (p *Producer) broadcast(a Announced) {
	if p.metrics != nil {
		p.metrics.RecordEvent(a.Kind.String())
	}
	for c := range p.consumers {
		if c.filter.Match(a.Path) {
			c.push(a)
		}
	}
}

// Subscribe returns a consumer that receives the backlog of active paths
// matching filter, then a Live marker, then live transitions.
//
// The backlog snapshot and the registration for live events happen under
// the same lock, so no transition can be both in the backlog and delivered
// live, and none can fall between the two.
func (p *Producer) Subscribe(filter Filter) *Consumer {
	c := newConsumer(p, filter)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		c.finish()
		return c
	}

	backlog := make([]Path, 0, len(p.active))
	for path := range p.active {
		if filter.Match(path) {
			backlog = append(backlog, path)
		}
	}
	sort.Slice(backlog, func(i, j int) bool { return backlog[i] < backlog[j] })

	for _, path := range backlog {
		c.push(ActiveOf(path))
	}
	c.push(LiveMarker())

	p.consumers[c] = struct{}{}
	if p.metrics != nil {
		p.metrics.SubscriberAdded()
	}
	return c
}

func (p *Producer) unsubscribe(c *Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.consumers[c]; !ok {
		return
	}
	delete(p.consumers, c)
	if p.metrics != nil {
		p.metrics.SubscriberRemoved()
	}
}

// Active returns the currently active paths in lexicographic order.
func (p *Producer) Active() []Path {
	p.mu.Lock()
	defer p.mu.Unlock()

	paths := make([]Path, 0, len(p.active))
	for path := range p.active {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

// IsActive reports whether path is currently active.
func (p *Producer) IsActive(path Path) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[path]
	return ok
}

// Len returns the number of active paths.
func (p *Producer) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Close ends every subscription. Consumers still deliver what they have
// buffered before returning ErrClosed. Subsequent Announce and Unannounce
// calls are no-ops. No Ended events are sent for paths that were active.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for c := range p.consumers {
		c.finish()
		if p.metrics != nil {
			p.metrics.SubscriberRemoved()
		}
	}
	p.consumers = make(map[*Consumer]struct{})
}
