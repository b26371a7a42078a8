package translate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// lockedEngine serializes calls to a shared engine so that runs sharing the
// cache never have two translate calls in flight on the same handle.
type lockedEngine struct {
	mut    sync.Mutex
	engine Engine
}

func (e *lockedEngine) Translate(ctx context.Context, text string) (string, error) {
	e.mut.Lock()
	defer e.mut.Unlock()
	return e.engine.Translate(ctx, text)
}

// Cache holds loaded engines keyed by language pair for the lifetime of the
// process (or until Clear). Failed loads are not cached.
type Cache struct {
	loader Loader

	mut     sync.Mutex
	engines map[Pair]*lockedEngine
}

func NewCache(loader Loader) (*Cache, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader should not be nil")
	}

	return &Cache{
		loader:  loader,
		engines: make(map[Pair]*lockedEngine),
	}, nil
}

// Get returns the engine for the pair, loading it on first use.
func (c *Cache) Get(pair Pair) (Engine, error) {
	if err := pair.IsValid(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	if e, ok := c.engines[pair]; ok {
		return e, nil
	}

	engine, err := c.loader.Load(pair)
	if err != nil {
		return nil, fmt.Errorf("failed to load engine for %s: %w", pair, err)
	}
	if engine == nil {
		return nil, fmt.Errorf("failed to load engine for %s: %w", pair, ErrUnavailable)
	}

	e := &lockedEngine{engine: engine}
	c.engines[pair] = e

	slog.Info("translation engine loaded", slog.String("pair", pair.String()))

	return e, nil
}

func (c *Cache) Len() int {
	c.mut.Lock()
	defer c.mut.Unlock()
	return len(c.engines)
}

// Clear drops every cached engine. Engines are reloaded on next use.
func (c *Cache) Clear() {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.engines = make(map[Pair]*lockedEngine)
}
