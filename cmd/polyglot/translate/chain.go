package translate

import (
	"strings"
)

// ParseChainSpec splits a chain spec such as "en-ru", "-en-ru" or "en.ru"
// into its ordered target languages.
func ParseChainSpec(spec string) []string {
	fields := strings.FieldsFunc(spec, func(r rune) bool {
		return r == '-' || r == '.' || r == ' '
	})

	langs := make([]string, 0, len(fields))
	for _, f := range fields {
		langs = append(langs, strings.ToLower(f))
	}

	return langs
}

// Path is an ordered pivot path, source language first.
type Path []string

// NewPath builds the pivot path for source followed by targets. Consecutive
// repeated languages are collapsed since translating a language into itself
// is not a hop.
func NewPath(source string, targets []string) Path {
	var p Path
	for _, lang := range append([]string{strings.ToLower(source)}, targets...) {
		if lang == "" {
			continue
		}
		if len(p) > 0 && p[len(p)-1] == lang {
			continue
		}
		p = append(p, lang)
	}
	return p
}

// Hops returns the adjacent language pairs of the path in order.
func (p Path) Hops() []Pair {
	if len(p) < 2 {
		return nil
	}

	hops := make([]Pair, 0, len(p)-1)
	for i := 1; i < len(p); i++ {
		hops = append(hops, Pair{From: p[i-1], To: p[i]})
	}
	return hops
}

// ID is the display and lookup key of the chain, e.g. "he-en-ru".
func (p Path) ID() string {
	return strings.Join(p, "-")
}

// Chain is a resolved translation chain: one engine per hop.
type Chain struct {
	ID      string
	Hops    []Pair
	engines []Engine
}
