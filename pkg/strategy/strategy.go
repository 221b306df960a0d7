package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"toggle-client/pkg/toggle"
)

var (
	// ErrDuplicateStrategy is returned when a name is registered twice.
	ErrDuplicateStrategy = errors.New("strategy already registered")

	// ErrRegistryFrozen is returned by Register once evaluation has started.
	ErrRegistryFrozen = errors.New("strategy registry is frozen")

	// ErrInvalidStrategy is returned for empty names or nil implementations.
	ErrInvalidStrategy = errors.New("invalid strategy")
)

// Strategy decides whether a toggle is active for a context.
// Implementations must be safe for concurrent use and must not retain params.
type Strategy interface {
	Evaluate(params map[string]string, ctx *toggle.Context) bool
}

// Func adapts a plain function to Strategy.
type Func func(params map[string]string, ctx *toggle.Context) bool

func (f Func) Evaluate(params map[string]string, ctx *toggle.Context) bool { return f(params, ctx) }

// Registry maps strategy names to implementations. It follows a
// write-then-freeze discipline: Register is only valid before Freeze, after
// which Resolve is lock-free.
type Registry struct {
	mu         sync.Mutex
	frozen     atomic.Bool
	strategies map[string]Strategy
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy, len(builtins)+4)}
	for name, s := range builtins {
		r.strategies[name] = s
	}
	r.strategies[ApplicationHostname] = newHostnameStrategy(lookupHostname)
	return r
}

// Register adds a custom strategy. It never overwrites an existing entry.
func (r *Registry) Register(name string, s Strategy) error {
	if name == "" || s == nil {
		return fmt.Errorf("%w: name %q", ErrInvalidStrategy, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, name)
	}
	if _, ok := r.strategies[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateStrategy, name)
	}
	r.strategies[name] = s
	return nil
}

// Resolve returns the strategy registered under name.
func (r *Registry) Resolve(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

func (r *Registry) Frozen() bool { return r.frozen.Load() }

// Names lists every registered strategy, built-in and custom, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
