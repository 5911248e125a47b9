package autotask

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Factory produces an authenticated Client from configured credentials.
type Factory func(ctx context.Context) (Client, error)

// Gate lazily creates and holds exactly one live Client shared by all
// callers. Concurrent first-time acquisitions are coalesced into a single
// in-flight initialization; every waiter of that attempt receives the same
// client or the same error. A failed attempt leaves the gate empty so a
// later call retries. The gate performs no retries of its own.
type Gate struct {
	factory Factory
	logger  *zap.Logger

	group singleflight.Group

	mu     sync.RWMutex
	client Client
}

// NewGate creates a gate around the given factory.
func NewGate(factory Factory, logger *zap.Logger) (*Gate, error) {
	if factory == nil {
		return nil, fmt.Errorf("factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		factory: factory,
		logger:  logger.Named("gate"),
	}, nil
}

// Acquire returns the shared client, initializing it on first use.
func (g *Gate) Acquire(ctx context.Context) (Client, error) {
	g.mu.RLock()
	client := g.client
	g.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	v, err, shared := g.group.Do("init", func() (any, error) {
		// A racing caller may have completed initialization while this
		// one waited on the singleflight key.
		g.mu.RLock()
		existing := g.client
		g.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		g.logger.Info("initializing autotask connection")
		c, err := g.factory(ctx)
		if err != nil {
			g.logger.Error("autotask connection failed", zap.Error(err))
			return nil, fmt.Errorf("connect to autotask: %w", err)
		}

		g.mu.Lock()
		g.client = c
		g.mu.Unlock()
		g.logger.Info("autotask connection established")
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		g.logger.Debug("connection initialization coalesced with concurrent caller")
	}
	return v.(Client), nil
}

// QueryResources acquires the shared client and lists resources through it.
// This lets the metadata cache refresh through the gate without holding a
// client of its own.
func (g *Gate) QueryResources(ctx context.Context, activeOnly bool) ([]Resource, error) {
	c, err := g.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return c.QueryResources(ctx, activeOnly)
}
