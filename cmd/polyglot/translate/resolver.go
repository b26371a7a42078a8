package translate

import (
	"context"
	"fmt"
	"log/slog"
)

type Resolver struct {
	cache *Cache
}

func NewResolver(cache *Cache) (*Resolver, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache should not be nil")
	}
	return &Resolver{cache: cache}, nil
}

// Resolve builds the chain translating from sourceLang through the languages
// in spec. If any hop has no engine the whole chain is unavailable and an
// error wrapping ErrUnavailable is returned.
func (r *Resolver) Resolve(sourceLang, spec string) (*Chain, error) {
	if sourceLang == "" {
		return nil, fmt.Errorf("%w: unknown source language", ErrUnavailable)
	}

	path := NewPath(sourceLang, ParseChainSpec(spec))
	hops := path.Hops()
	if len(hops) == 0 {
		return nil, fmt.Errorf("%w: chain %q has no hops from %q", ErrUnavailable, spec, sourceLang)
	}

	chain := &Chain{
		ID:      path.ID(),
		Hops:    hops,
		engines: make([]Engine, 0, len(hops)),
	}

	for _, hop := range hops {
		engine, err := r.cache.Get(hop)
		if err != nil {
			return nil, fmt.Errorf("chain %s unavailable: %w", chain.ID, err)
		}
		chain.engines = append(chain.engines, engine)
	}

	slog.Debug("translation chain resolved", slog.String("chainID", chain.ID), slog.Int("hops", len(hops)))

	return chain, nil
}

// Translate pipes text through every hop in order, feeding each hop's output
// to the next one. It stops at the first failing hop.
func (c *Chain) Translate(ctx context.Context, text string) (string, error) {
	for i, engine := range c.engines {
		out, err := engine.Translate(ctx, text)
		if err != nil {
			return "", fmt.Errorf("hop %s failed: %w", c.Hops[i], err)
		}
		text = out
	}
	return text, nil
}
