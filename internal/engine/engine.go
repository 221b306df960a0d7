package engine

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"toggle-client/internal/observability"
	"toggle-client/internal/store"
	"toggle-client/pkg/strategy"
	"toggle-client/pkg/toggle"
)

// Recorder receives one outcome per evaluation call. GetVariant reports
// through RecordVariant only.
type Recorder interface {
	Record(feature string, enabled bool)
	RecordVariant(feature string, enabled bool, variant string)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, bool)                {}
func (nopRecorder) RecordVariant(string, bool, string) {}

// Options tune evaluation.
type Options struct {
	// DefaultEnabled is returned for features missing from the snapshot.
	DefaultEnabled bool
	Logger         zerolog.Logger
	Recorder       Recorder
	Metrics        *observability.Metrics
}

// Engine evaluates toggles against the store's current snapshot. All
// methods are safe for concurrent use and never block on I/O.
type Engine struct {
	store          *store.Store
	registry       *strategy.Registry
	recorder       Recorder
	metrics        *observability.Metrics
	defaultEnabled bool
	log            zerolog.Logger
	warned         atomic.Pointer[warnSet]
}

// warnSet remembers which (feature, strategy) pairs were reported for one
// snapshot.
type warnSet struct {
	snap *toggle.Snapshot
	seen sync.Map
}

func New(st *store.Store, reg *strategy.Registry, opts Options) *Engine {
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Engine{
		store:          st,
		registry:       reg,
		recorder:       rec,
		metrics:        opts.Metrics,
		defaultEnabled: opts.DefaultEnabled,
		log:            opts.Logger,
	}
}

// IsEnabled evaluates name with the configured default for unknown features.
func (e *Engine) IsEnabled(name string, ctx *toggle.Context) bool {
	return e.IsEnabledOr(name, ctx, e.defaultEnabled)
}

// IsEnabledOr evaluates name, returning fallback when the feature is unknown.
func (e *Engine) IsEnabledOr(name string, ctx *toggle.Context, fallback bool) bool {
	enabled, _ := e.check(name, bind(name, ctx), fallback)
	e.record(name, enabled)
	return enabled
}

// GetVariant evaluates name and, when enabled, selects one of its variants.
func (e *Engine) GetVariant(name string, ctx *toggle.Context) toggle.VariantResult {
	c := bind(name, ctx)
	snap := e.store.Current()
	f, ok := snap.Lookup(name)
	if !ok {
		e.metrics.Evaluation(false)
		e.recorder.RecordVariant(name, false, toggle.DisabledVariantName)
		return toggle.DisabledVariant(false)
	}

	enabled, matched := e.evaluate(snap, f, c)
	e.metrics.Evaluation(enabled)

	res := toggle.DisabledVariant(enabled)
	if enabled {
		variants, group := f.Variants, f.Name
		if matched != nil && len(matched.Variants) > 0 {
			variants = matched.Variants
			if g := matched.Parameters["groupId"]; g != "" {
				group = g
			}
		}
		if v := selectVariant(variants, group, c); v != nil {
			res = toggle.VariantResult{Name: v.Name, Payload: v.Payload, Enabled: true, FeatureEnabled: true}
		}
	}
	e.recorder.RecordVariant(name, enabled, res.Name)
	return res
}

func (e *Engine) record(name string, enabled bool) {
	e.recorder.Record(name, enabled)
	e.metrics.Evaluation(enabled)
}

func (e *Engine) check(name string, ctx *toggle.Context, fallback bool) (bool, *toggle.ActivationStrategy) {
	snap := e.store.Current()
	f, ok := snap.Lookup(name)
	if !ok {
		return fallback, nil
	}
	return e.evaluate(snap, f, ctx)
}

// evaluate returns whether f is on for ctx and the first strategy that
// matched. A toggle with no strategies is on with a nil strategy.
func (e *Engine) evaluate(snap *toggle.Snapshot, f *toggle.FeatureToggle, ctx *toggle.Context) (bool, *toggle.ActivationStrategy) {
	if !f.Enabled {
		return false, nil
	}
	if len(f.Strategies) == 0 {
		return true, nil
	}
	for i := range f.Strategies {
		as := &f.Strategies[i]
		impl, ok := e.registry.Resolve(as.Name)
		if !ok {
			e.metrics.UnknownStrategy()
			e.warnUnknown(snap, f.Name, as.Name)
			continue
		}
		if !constraintsMatch(as.Constraints, ctx) {
			continue
		}
		if e.safeEvaluate(f.Name, as, impl, ctx) {
			return true, as
		}
	}
	return false, nil
}

// safeEvaluate keeps a panicking custom strategy from reaching the caller.
func (e *Engine) safeEvaluate(feature string, as *toggle.ActivationStrategy, impl strategy.Strategy, ctx *toggle.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("feature", feature).Str("strategy", as.Name).Interface("panic", r).Msg("strategy panicked; treating as non-matching")
			ok = false
		}
	}()
	return impl.Evaluate(as.Parameters, ctx)
}

// warnUnknown logs an unresolved strategy once per (feature, strategy)
// pair for each installed snapshot.
func (e *Engine) warnUnknown(snap *toggle.Snapshot, feature, name string) {
	set := e.warned.Load()
	for set == nil || set.snap != snap {
		fresh := &warnSet{snap: snap}
		if e.warned.CompareAndSwap(set, fresh) {
			set = fresh
			break
		}
		set = e.warned.Load()
	}
	if _, seen := set.seen.LoadOrStore(feature+"\x00"+name, struct{}{}); seen {
		return
	}
	e.log.Warn().Str("feature", feature).Str("strategy", name).Str("revision", snap.Revision()).
		Msg("unknown strategy; treating as non-matching")
}

func bind(name string, ctx *toggle.Context) *toggle.Context {
	var c toggle.Context
	if ctx != nil {
		c = *ctx
	}
	c = c.WithFeatureName(name)
	return &c
}
