package announce

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// Consumer is a filtered subscription to a Producer.
type Consumer struct {
	producer *Producer
	filter   Filter

	mu       sync.Mutex
	buf      *queue.Queue
	finished bool // producer closed; drain then ErrClosed
	detached bool // consumer closed; ErrClosed immediately

	wake chan struct{}
}

func newConsumer(p *Producer, filter Filter) *Consumer {
	return &Consumer{
		producer: p,
		filter:   filter,
		buf:      queue.New(),
		wake:     make(chan struct{}, 1),
	}
}

// push never blocks.
func (c *Consumer) push(a Announced) {
	c.mu.Lock()
	if c.detached || c.finished {
		c.mu.Unlock()
		return
	}
	c.buf.Add(a)
	c.mu.Unlock()
	c.signal()
}

func (c *Consumer) finish() {
	c.mu.Lock()
	c.finished = true
	c.mu.Unlock()
	c.signal()
}

func (c *Consumer) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Filter returns the filter this consumer was created with.
func (c *Consumer) Filter() Filter {
	return c.filter
}

// Next returns the next announcement, blocking until one is available.
func (c *Consumer) Next(ctx context.Context) (Announced, error) {
	for {
		c.mu.Lock()
		if c.detached {
			c.mu.Unlock()
			return Announced{}, ErrClosed
		}
		if c.buf.Length() > 0 {
			a := c.buf.Remove().(Announced)
			c.mu.Unlock()
			return a, nil
		}
		if c.finished {
			c.mu.Unlock()
			return Announced{}, ErrClosed
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return Announced{}, ctx.Err()
		case <-c.wake:
		}
	}
}

// Buffered returns the number of announcements waiting to be read.
func (c *Consumer) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Length()
}

// Close stops the subscription and drops anything still buffered.
func (c *Consumer) Close() {
	c.producer.unsubscribe(c)

	c.mu.Lock()
	c.detached = true
	c.buf = queue.New()
	c.mu.Unlock()
	c.signal()
}

var _ Stream = (*Consumer)(nil)
