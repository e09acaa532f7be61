// Package humanizer picks reply text from the catalog's reply pools without
// repeating itself.
//
// Pools are keyed by category and subcategory:
//
//	done/single
//	greet/morning
//	error/not_found
//
// Each pick avoids the user's most recent picks for the same key (up to
// HistoryDepth, never the whole pool) and then fills {placeholder} tokens.
package humanizer

import (
	"log/slog"
	"math/rand/v2"
	"regexp"
	"slices"

	"github.com/bdobrica/Kanri/internal/kanri/catalog"
)

// HistoryDepth is how many recent picks are excluded per key.
const HistoryDepth = 3

// Vars are placeholder values, keyed without braces.
type Vars map[string]string

// History stores recent template indices per key. *dialogue.State
// implements it.
type History interface {
	History(key string) []int
	Remember(key string, id, limit int)
}

// Selector is read-only after New and safe for concurrent use as long as
// each History is only used by one goroutine at a time.
type Selector struct {
	pools catalog.Replies
	intn  func(n int) int
}

// Option configures a Selector.
type Option func(*Selector)

// WithRand replaces the random source. intn must return a value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(s *Selector) { s.intn = intn }
}

// New returns a Selector over pools.
func New(pools catalog.Replies, opts ...Option) *Selector {
	s := &Selector{pools: pools, intn: rand.IntN}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key is the history key for a pool.
func Key(category, subcategory string) string {
	return category + "/" + subcategory
}

// Has reports whether a pool exists and is non-empty.
func (s *Selector) Has(category, subcategory string) bool {
	return len(s.pools.Pool(category, subcategory)) > 0
}

// Pick selects and renders one template. h may be nil, in which case no
// history is consulted or recorded. An unknown pool renders as "" and is
// logged.
func (s *Selector) Pick(h History, category, subcategory string, vars Vars) string {
	pool := s.pools.Pool(category, subcategory)
	if len(pool) == 0 {
		slog.Warn("humanizer: empty reply pool", "category", category, "subcategory", subcategory)
		return ""
	}
	key := Key(category, subcategory)

	idx := 0
	if len(pool) > 1 {
		var recent []int
		if h != nil {
			recent = h.History(key)
		}
		exclude := min(HistoryDepth, len(pool)-1)
		if len(recent) > exclude {
			recent = recent[len(recent)-exclude:]
		}
		allowed := make([]int, 0, len(pool))
		for i := range pool {
			if !slices.Contains(recent, i) {
				allowed = append(allowed, i)
			}
		}
		idx = allowed[s.intn(len(allowed))]
	}
	if h != nil {
		h.Remember(key, idx, HistoryDepth)
	}
	return render(pool[idx], vars, key)
}

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// render fills placeholders in tmpl. A placeholder without a value becomes ""
// and is logged at warn level.
func render(tmpl string, vars Vars, key string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		slog.Warn("humanizer: missing placeholder value", "placeholder", name, "pool", key)
		return ""
	})
}
