// Package scale maps named display contexts to compositor scale factors.
package scale

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hpungsan/layerdeck/internal/errors"
)

// Context names a place a slide is displayed.
type Context string

const (
	Interactive Context = "interactive"
	GridSmall   Context = "grid-small"
	GridMedium  Context = "grid-medium"
	GridLarge   Context = "grid-large"
	ListSmall   Context = "list-small"
	ListMedium  Context = "list-medium"
	ListLarge   Context = "list-large"
)

// Contexts lists every context in a stable order.
var Contexts = []Context{Interactive, GridSmall, GridMedium, GridLarge, ListSmall, ListMedium, ListLarge}

var defaultBudgets = map[Context]int{
	Interactive: 1080,
	GridSmall:   160,
	GridMedium:  240,
	GridLarge:   320,
	ListSmall:   48,
	ListMedium:  72,
	ListLarge:   96,
}

// Parse resolves a context name, case-insensitively.
func Parse(s string) (Context, error) {
	c := Context(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := defaultBudgets[c]; !ok {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown display context %q (want one of %s)", s, names()))
	}
	return c, nil
}

func names() string {
	out := make([]string, len(Contexts))
	for i, c := range Contexts {
		out[i] = string(c)
	}
	return strings.Join(out, ", ")
}

// Adapter holds the pixel budget of each context: the longest output edge.
type Adapter struct {
	budgets map[Context]int
}

// Default returns an Adapter with the built-in budgets.
func Default() *Adapter {
	a, _ := New(nil)
	return a
}

// New returns an Adapter with the built-in budgets replaced by overrides.
// Override keys must be known context names and values positive.
func New(overrides map[string]int) (*Adapter, error) {
	budgets := make(map[Context]int, len(defaultBudgets))
	for c, b := range defaultBudgets {
		budgets[c] = b
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c, err := Parse(k)
		if err != nil {
			return nil, err
		}
		if overrides[k] <= 0 {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("budget for %s must be positive, got %d", c, overrides[k]))
		}
		budgets[c] = overrides[k]
	}
	return &Adapter{budgets: budgets}, nil
}

// Budget returns the pixel budget of c.
func (a *Adapter) Budget(c Context) (int, error) {
	b, ok := a.budgets[c]
	if !ok {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("unknown display context %q", c))
	}
	return b, nil
}

// Factor returns budget / max(width, height) for a slide of the given size.
func (a *Adapter) Factor(c Context, width, height int) (float64, error) {
	b, err := a.Budget(c)
	if err != nil {
		return 0, err
	}
	if width <= 0 || height <= 0 {
		return 0, errors.NewGeometry(fmt.Sprintf("slide dimensions must be positive, got %dx%d", width, height))
	}
	return float64(b) / float64(max(width, height)), nil
}

// Factor uses the built-in budgets.
func Factor(c Context, width, height int) (float64, error) {
	return Default().Factor(c, width, height)
}
