package translate

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is returned when no engine can be obtained for a language
// pair (no model, load failure, unsupported by the backend).
var ErrUnavailable = errors.New("translation unavailable")

// Pair is an ordered (from, to) language pair, e.g. {"he", "en"}.
type Pair struct {
	From string
	To   string
}

func (p Pair) String() string {
	return p.From + "-" + p.To
}

func (p Pair) IsValid() error {
	if p.From == "" {
		return fmt.Errorf("invalid From: should not be empty")
	}
	if p.To == "" {
		return fmt.Errorf("invalid To: should not be empty")
	}
	if p.From == p.To {
		return fmt.Errorf("invalid pair: From and To should differ")
	}
	return nil
}

// Engine translates text for a single language pair.
type Engine interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Loader creates the engine for a language pair. A pair the loader cannot
// serve should be reported by wrapping ErrUnavailable.
type Loader interface {
	Load(pair Pair) (Engine, error)
}

type LoaderFunc func(pair Pair) (Engine, error)

func (f LoaderFunc) Load(pair Pair) (Engine, error) {
	return f(pair)
}
