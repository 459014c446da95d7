package core

// cache.go owns the lifetime of the loaded datasets.
//
// State machine:
//
//	Empty --Load--> Loading --ok--> Ready
//	Ready --Load--> Loading --ok--> Ready (new generation)
//	Loading --error--> previous state (the old generation stays published)
//	Ready --Clear--> Clearing --> Empty
//
// Readers take the generation pointer under a read lock and then work on an
// immutable value; publication is a single pointer swap.

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	loadFlightKey   = "load"
	ensureFlightKey = "ensure"
)

// CacheOptions configures a Cache. Zero values use defaults.
type CacheOptions struct {
	Encoding         Encoding       // Source text encoding (default UTF-8)
	ParseConcurrency int            // Datasets parsed in parallel (default GOMAXPROCS)
	Logger           *slog.Logger   // Default slog.Default()
	Observers        []LoadObserver // Notified after every load and clear
	Now              func() time.Time
}

// Cache loads all registered datasets from a SourceProvider and publishes
// them as immutable generations.
type Cache struct {
	provider SourceProvider
	defs     []DatasetDefinition
	opts     CacheOptions
	log      *slog.Logger

	// opMu serializes load and clear.
	opMu sync.Mutex

	mu      sync.RWMutex
	state   CacheState
	gen     *Generation
	lastErr error

	flight singleflight.Group
}

// NewCache creates an empty cache for the given datasets.
func NewCache(provider SourceProvider, defs []DatasetDefinition, opts CacheOptions) *Cache {
	if opts.Encoding == "" {
		opts.Encoding = EncodingUTF8
	}
	if opts.ParseConcurrency <= 0 {
		opts.ParseConcurrency = runtime.GOMAXPROCS(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	sorted := make([]DatasetDefinition, len(defs))
	copy(sorted, defs)
	sortDefinitions(sorted)

	return &Cache{
		provider: provider,
		defs:     sorted,
		opts:     opts,
		log:      log,
		state:    StateEmpty,
	}
}

// Datasets returns the definitions this cache loads, in build order.
func (c *Cache) Datasets() []DatasetDefinition {
	out := make([]DatasetDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Snapshot returns the current generation, or nil when nothing is loaded.
func (c *Cache) Snapshot() *Generation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Load rebuilds every dataset and publishes a new generation. Callers that
// arrive while a load is running share its result. The load itself is not
// cancelled by ctx; a caller whose ctx ends stops waiting.
//
// On failure the previous generation, if any, stays published and the
// returned error is a *LoadError naming the dataset.
func (c *Cache) Load(ctx context.Context) (*Generation, error) {
	ch := c.flight.DoChan(loadFlightKey, func() (any, error) {
		return c.load(context.WithoutCancel(ctx))
	})
	return waitGeneration(ctx, ch)
}

// EnsureLoaded returns the current generation, loading it first when the
// cache is empty.
func (c *Cache) EnsureLoaded(ctx context.Context) (*Generation, error) {
	if g := c.Snapshot(); g != nil {
		return g, nil
	}
	ch := c.flight.DoChan(ensureFlightKey, func() (any, error) {
		// A load may have published while this flight was being set up.
		if g := c.Snapshot(); g != nil {
			return g, nil
		}
		res := <-c.flight.DoChan(loadFlightKey, func() (any, error) {
			return c.load(context.WithoutCancel(ctx))
		})
		return res.Val, res.Err
	})
	return waitGeneration(ctx, ch)
}

func waitGeneration(ctx context.Context, ch <-chan singleflight.Result) (*Generation, error) {
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Generation), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Clear drops the current generation. It waits for a running load and always
// succeeds.
func (c *Cache) Clear(ctx context.Context) {
	c.opMu.Lock()
	start := c.opts.Now()

	c.mu.Lock()
	c.state = StateClearing
	prev := c.gen
	c.gen = nil
	c.lastErr = nil
	c.state = StateEmpty
	c.mu.Unlock()

	c.opMu.Unlock()

	ev := LoadEvent{
		ID:        uuid.NewString(),
		Action:    ActionClear,
		Success:   true,
		StartedAt: start,
		Duration:  c.opts.Now().Sub(start),
	}
	if prev != nil {
		ev.GenerationID = prev.ID
	}
	c.log.Info("cache cleared", "generation", ev.GenerationID)
	c.notify(ctx, ev)
}

// Status returns a point-in-time view of the cache.
func (c *Cache) Status() CacheStatus {
	c.mu.RLock()
	state, gen, lastErr := c.state, c.gen, c.lastErr
	c.mu.RUnlock()

	st := CacheStatus{State: state}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	if gen == nil {
		return st
	}

	loadedAt := gen.LoadedAt
	st.GenerationID = gen.ID
	st.LoadedAt = &loadedAt
	st.Facts = make(map[DatasetID]int, len(c.defs))
	for _, def := range c.defs {
		st.Facts[def.ID] = gen.FactCount(def)
	}
	st.Categories = len(gen.Categories)
	st.Products = len(gen.Products)
	st.Cultivars = len(gen.Cultivars)
	st.Countries = len(gen.Countries)
	return st
}

func (c *Cache) load(ctx context.Context) (*Generation, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	start := c.opts.Now()
	c.mu.Lock()
	c.state = StateLoading
	c.mu.Unlock()

	c.log.Info("loading datasets", "datasets", len(c.defs), "encoding", c.opts.Encoding)

	gen, counts, err := c.build(ctx, start)

	c.mu.Lock()
	if err != nil {
		c.lastErr = err
		if c.gen != nil {
			c.state = StateReady
		} else {
			c.state = StateEmpty
		}
	} else {
		c.gen = gen
		c.lastErr = nil
		c.state = StateReady
	}
	c.mu.Unlock()

	ev := LoadEvent{
		ID:        uuid.NewString(),
		Action:    ActionLoad,
		Success:   err == nil,
		StartedAt: start,
		Duration:  c.opts.Now().Sub(start),
		Facts:     counts,
	}
	if err != nil {
		ev.Error = err.Error()
		ev.Dataset = DatasetOf(err)
		c.log.Error("dataset load failed",
			"dataset", ev.Dataset,
			"error", err,
			"duration_ms", ev.Duration.Milliseconds(),
		)
	} else {
		ev.GenerationID = gen.ID
		c.log.Info("datasets loaded",
			"generation", gen.ID,
			"categories", len(gen.Categories),
			"products", len(gen.Products),
			"cultivars", len(gen.Cultivars),
			"countries", len(gen.Countries),
			"duration_ms", ev.Duration.Milliseconds(),
		)
	}
	c.notify(ctx, ev)

	if err != nil {
		return nil, err
	}
	return gen, nil
}

// build parses every dataset in parallel and then builds them in registry
// order through one Builder.
func (c *Cache) build(ctx context.Context, loadedAt time.Time) (*Generation, map[DatasetID]int, error) {
	parsed := make([]*ParsedDataset, len(c.defs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.ParseConcurrency)
	for i, def := range c.defs {
		g.Go(func() error {
			p, err := c.fetch(gctx, def)
			if err != nil {
				return &LoadError{Dataset: def.ID, Err: err}
			}
			parsed[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	b := NewBuilder()
	counts := make(map[DatasetID]int, len(parsed))
	for _, p := range parsed {
		n, err := b.Build(p)
		if err != nil {
			return nil, counts, &LoadError{Dataset: p.Dataset.ID, Err: err}
		}
		counts[p.Dataset.ID] = n
		c.log.Debug("dataset built",
			"dataset", p.Dataset.ID,
			"rows", p.DataRows(),
			"skipped_totals", p.Skipped,
			"facts", n,
		)
	}
	return b.Generation(uuid.NewString(), loadedAt), counts, nil
}

func (c *Cache) fetch(ctx context.Context, def DatasetDefinition) (*ParsedDataset, error) {
	rc, err := c.provider.Open(ctx, def.ID)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()

	p, err := Parse(def, DecodeSource(rc, c.opts.Encoding))
	if err != nil {
		return nil, err
	}
	// Drain so HTTP bodies can be reused.
	_, _ = io.Copy(io.Discard, rc)
	return p, nil
}

func (c *Cache) notify(ctx context.Context, ev LoadEvent) {
	for _, o := range c.opts.Observers {
		o.ObserveLoad(ctx, ev)
	}
}
