package shape

import (
	"context"
	"sync"
)

// LoadFunc produces the shared shape resource.
type LoadFunc func() (*Shape, error)

// Cache memoizes a single shape load. Concurrent first-time callers share
// one in-flight load and receive the identical result; a successful load is
// kept forever, a failed one is not, so the next Get retries.
type Cache struct {
	mu      sync.Mutex
	load    LoadFunc
	shape   *Shape
	pending *flight
}

type flight struct {
	done  chan struct{}
	shape *Shape
	err   error
}

func NewCache(load LoadFunc) *Cache {
	return &Cache{load: load}
}

// Get returns the memoized shape, joining an in-flight load if one exists.
func (c *Cache) Get(ctx context.Context) (*Shape, error) {
	c.mu.Lock()
	if c.shape != nil {
		s := c.shape
		c.mu.Unlock()
		return s, nil
	}

	if c.pending != nil {
		fl := c.pending
		c.mu.Unlock()
		select {
		case <-fl.done:
			return fl.shape, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fl := &flight{done: make(chan struct{})}
	c.pending = fl
	c.mu.Unlock()

	s, err := c.load()

	c.mu.Lock()
	if err == nil {
		c.shape = s
	}
	fl.shape, fl.err = s, err
	c.pending = nil
	c.mu.Unlock()
	close(fl.done)

	return s, err
}
