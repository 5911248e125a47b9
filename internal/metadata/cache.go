// Package metadata maintains the reference-data cache backing request
// validation: ticket statuses, ticket priorities, and active resources.
//
// Status and priority sets are seeded from fixed default tables (see
// defaults.go for the documented limitation). The resource set is fetched
// live under a hard timeout and cleared on any fetch failure, so validation
// fails closed rather than approving writes against stale agent data.
//
// Each set is replaced wholesale on refresh; readers always see the last
// fully committed snapshot, never a half-written set.
package metadata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/psabridge/internal/autotask"
	"github.com/fyrsmithlabs/psabridge/internal/config"
)

const instrumentationName = "github.com/fyrsmithlabs/psabridge/internal/metadata"

// Entry is one reference-set member.
type Entry struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"isActive"`
	System bool   `json:"isSystem,omitempty"`
}

// ResourceSource lists resources from the live system. *autotask.Gate
// satisfies this.
type ResourceSource interface {
	QueryResources(ctx context.Context, activeOnly bool) ([]autotask.Resource, error)
}

// Cache holds the three reference sets with bounded staleness.
type Cache struct {
	source          ResourceSource
	refreshInterval time.Duration
	resourceTimeout time.Duration
	logger          *zap.Logger

	mu          sync.RWMutex
	statuses    map[int64]Entry
	priorities  map[int64]Entry
	resources   map[int64]Entry
	lastRefresh time.Time
	lastErr     error

	lifecycleMu sync.Mutex
	running     bool
	stopCh      chan struct{}
	done        chan struct{}

	refreshes metric.Int64Counter
}

// NewCache creates a cache. Initialize must be called before validation
// reads; until then every membership check returns false.
func NewCache(source ResourceSource, cfg config.CacheConfig, logger *zap.Logger) (*Cache, error) {
	if source == nil {
		return nil, fmt.Errorf("resource source is required")
	}
	if cfg.RefreshInterval.Duration() <= 0 {
		return nil, fmt.Errorf("refresh interval must be > 0")
	}
	if cfg.ResourceTimeout.Duration() <= 0 {
		return nil, fmt.Errorf("resource timeout must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cache{
		source:          source,
		refreshInterval: cfg.RefreshInterval.Duration(),
		resourceTimeout: cfg.ResourceTimeout.Duration(),
		logger:          logger.Named("metadata"),
		statuses:        map[int64]Entry{},
		priorities:      map[int64]Entry{},
		resources:       map[int64]Entry{},
	}

	refreshes, err := otel.Meter(instrumentationName).Int64Counter(
		"psabridge.metadata.refreshes_total",
		metric.WithDescription("Reference cache refresh attempts by outcome"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		c.logger.Warn("failed to create refresh counter", zap.Error(err))
	} else {
		c.refreshes = refreshes
	}

	return c, nil
}

// Initialize populates all three sets and starts the periodic refresh loop.
// A resource fetch failure does not abort startup: the resource set stays
// empty (fail-closed) and the next tick retries.
func (c *Cache) Initialize(ctx context.Context) error {
	c.lifecycleMu.Lock()
	if c.running {
		c.lifecycleMu.Unlock()
		return fmt.Errorf("cache already initialized")
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.lifecycleMu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("initial metadata refresh incomplete, validation will fail closed",
			zap.Error(err))
	}

	go c.refreshLoop()

	return nil
}

// refreshLoop drives periodic refreshes until Stop. A failed refresh is
// recorded and the ticker keeps running.
func (c *Cache) refreshLoop() {
	defer close(c.done)

	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.refreshInterval)
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("scheduled metadata refresh failed", zap.Error(err))
			}
			cancel()
		case <-c.stopCh:
			return
		}
	}
}

// Refresh re-populates all three sets in parallel, replacing each set's
// contents wholesale.
//
// Refresh has no internal mutual-exclusion guard: in normal operation only
// the periodic loop calls it, and two concurrent refreshes could interleave
// their set replacements.
func (c *Cache) Refresh(ctx context.Context) error {
	var (
		statuses   = map[int64]Entry{}
		priorities = map[int64]Entry{}
		resources  map[int64]Entry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, e := range DefaultStatuses() {
			statuses[e.ID] = e
		}
		return nil
	})
	g.Go(func() error {
		for _, e := range DefaultPriorities() {
			priorities[e.ID] = e
		}
		return nil
	})
	g.Go(func() error {
		fetched, err := c.fetchResources(gctx)
		if err != nil {
			return err
		}
		resources = fetched
		return nil
	})
	err := g.Wait()

	c.mu.Lock()
	c.statuses = statuses
	c.priorities = priorities
	if err != nil {
		// Fail closed: an uncertain resource set rejects every agent id
		// until a future refresh succeeds.
		c.resources = map[int64]Entry{}
		c.lastErr = err
	} else {
		c.resources = resources
		c.lastErr = nil
		c.lastRefresh = time.Now()
	}
	c.mu.Unlock()

	c.recordRefresh(ctx, err)

	if err != nil {
		return fmt.Errorf("metadata refresh: %w", err)
	}
	c.logger.Debug("metadata refreshed",
		zap.Int("statuses", len(statuses)),
		zap.Int("priorities", len(priorities)),
		zap.Int("resources", len(resources)))
	return nil
}

// fetchResources lists active resources under the hard resource timeout.
func (c *Cache) fetchResources(ctx context.Context) (map[int64]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.resourceTimeout)
	defer cancel()

	list, err := c.source.QueryResources(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("fetch resources: %w", err)
	}

	resources := make(map[int64]Entry, len(list))
	for _, r := range list {
		resources[r.ID] = Entry{ID: r.ID, Name: r.Name(), Active: r.IsActive}
	}
	return resources, nil
}

func (c *Cache) recordRefresh(ctx context.Context, err error) {
	if c.refreshes == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Stop cancels the refresh loop. Safe to call more than once.
func (c *Cache) Stop() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)
	<-c.done
	c.logger.Info("metadata refresh loop stopped")
}

// IsValidStatus reports whether id is a known ticket status.
func (c *Cache) IsValidStatus(id int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.statuses[int64(id)]
	return ok
}

// IsValidPriority reports whether id is a known ticket priority.
func (c *Cache) IsValidPriority(id int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.priorities[int64(id)]
	return ok
}

// IsValidResource reports whether id is a known active resource. After a
// failed or timed-out refresh this returns false for every id.
func (c *Cache) IsValidResource(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.resources[id]
	return ok && entry.Active
}

// Statuses returns the current status set sorted by id.
func (c *Cache) Statuses() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedEntries(c.statuses)
}

// Priorities returns the current priority set sorted by id.
func (c *Cache) Priorities() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedEntries(c.priorities)
}

// Resources returns the current resource set sorted by id.
func (c *Cache) Resources() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedEntries(c.resources)
}

// LastRefresh returns when the last successful refresh completed and the
// error from the most recent attempt, if any.
func (c *Cache) LastRefresh() (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh, c.lastErr
}

func sortedEntries(set map[int64]Entry) []Entry {
	out := make([]Entry, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
