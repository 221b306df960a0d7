package engine

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toggle-client/internal/store"
	"toggle-client/pkg/strategy"
	"toggle-client/pkg/toggle"
)

type countingRecorder struct {
	yes, no  atomic.Int64
	mu       sync.Mutex
	variants map[string]int
}

func (r *countingRecorder) Record(_ string, enabled bool) {
	if enabled {
		r.yes.Add(1)
		return
	}
	r.no.Add(1)
}

func (r *countingRecorder) RecordVariant(feature string, enabled bool, variant string) {
	r.Record(feature, enabled)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.variants == nil {
		r.variants = map[string]int{}
	}
	r.variants[variant]++
}

func newEngine(t *testing.T, opts Options, features ...toggle.FeatureToggle) (*Engine, *strategy.Registry) {
	t.Helper()
	snap, err := toggle.NewSnapshot(features, "rev")
	require.NoError(t, err)
	st := store.New()
	st.Install(snap)
	reg := strategy.NewRegistry()
	opts.Logger = zerolog.Nop()
	return New(st, reg, opts), reg
}

func defaultStrategy() toggle.ActivationStrategy {
	return toggle.ActivationStrategy{Name: strategy.Default}
}

func TestIsEnabled(t *testing.T) {
	eng, _ := newEngine(t, Options{},
		toggle.FeatureToggle{Name: "default", Enabled: true, Strategies: []toggle.ActivationStrategy{defaultStrategy()}},
		toggle.FeatureToggle{Name: "nostrategies", Enabled: true},
		toggle.FeatureToggle{Name: "disabled", Enabled: false, Strategies: []toggle.ActivationStrategy{defaultStrategy()}},
		toggle.FeatureToggle{Name: "userWithId", Enabled: true, Strategies: []toggle.ActivationStrategy{
			{Name: strategy.UserWithID, Parameters: map[string]string{"userIds": "present"}},
		}},
		toggle.FeatureToggle{Name: "userWithId+default", Enabled: true, Strategies: []toggle.ActivationStrategy{
			{Name: strategy.UserWithID, Parameters: map[string]string{"userIds": "present"}},
			defaultStrategy(),
		}},
	)

	present := &toggle.Context{UserID: "present"}
	missing := &toggle.Context{UserID: "missing"}

	assert.False(t, eng.IsEnabled("unknown", nil))
	assert.True(t, eng.IsEnabledOr("unknown", nil, true))
	assert.True(t, eng.IsEnabled("default", nil))
	assert.True(t, eng.IsEnabled("userWithId", present))
	assert.False(t, eng.IsEnabled("userWithId", missing))
	assert.True(t, eng.IsEnabled("userWithId+default", missing))
	assert.False(t, eng.IsEnabledOr("disabled", nil, true))
	assert.True(t, eng.IsEnabled("nostrategies", nil))
}

func TestIsEnabled_DefaultEnabledOption(t *testing.T) {
	eng, _ := newEngine(t, Options{DefaultEnabled: true})
	assert.True(t, eng.IsEnabled("missing", &toggle.Context{}))
}

func TestIsEnabled_KillSwitch(t *testing.T) {
	eng, _ := newEngine(t, Options{}, toggle.FeatureToggle{
		Name:    "off",
		Enabled: false,
		Strategies: []toggle.ActivationStrategy{
			defaultStrategy(),
			{Name: strategy.FlexibleRollout, Parameters: map[string]string{"rollout": "100"}},
		},
	})
	for i := 0; i < 100; i++ {
		assert.False(t, eng.IsEnabled("off", &toggle.Context{UserID: fmt.Sprint(i)}))
	}
}

func TestIsEnabled_ZeroPercentRollout(t *testing.T) {
	eng, _ := newEngine(t, Options{}, toggle.FeatureToggle{
		Name:    "beta",
		Enabled: true,
		Strategies: []toggle.ActivationStrategy{
			{Name: strategy.FlexibleRollout, Parameters: map[string]string{"percentage": "0", "stickiness": "default"}},
		},
	})
	for i := 0; i < 1000; i++ {
		assert.False(t, eng.IsEnabled("beta", &toggle.Context{UserID: fmt.Sprint(i), SessionID: fmt.Sprint(-i)}))
	}
	assert.False(t, eng.IsEnabled("beta", nil))
}

func TestIsEnabled_GroupIDDefaultsToFeatureName(t *testing.T) {
	eng, _ := newEngine(t, Options{}, toggle.FeatureToggle{
		Name:    "gr1",
		Enabled: true,
		Strategies: []toggle.ActivationStrategy{
			{Name: strategy.GradualRolloutUserID, Parameters: map[string]string{"percentage": "73"}},
		},
	})
	// "gr1:123" normalizes to exactly 73.
	assert.True(t, eng.IsEnabled("gr1", &toggle.Context{UserID: "123"}))
}

func TestIsEnabled_UnknownStrategyFailsClosed(t *testing.T) {
	eng, _ := newEngine(t, Options{},
		toggle.FeatureToggle{Name: "only-unknown", Enabled: true, Strategies: []toggle.ActivationStrategy{{Name: "mystery"}}},
		toggle.FeatureToggle{Name: "unknown-then-default", Enabled: true, Strategies: []toggle.ActivationStrategy{
			{Name: "mystery"}, defaultStrategy(),
		}},
	)
	assert.False(t, eng.IsEnabledOr("only-unknown", nil, true))
	assert.True(t, eng.IsEnabled("unknown-then-default", nil))
}

func TestIsEnabled_UnknownStrategyWarnsOncePerPair(t *testing.T) {
	features := make([]toggle.FeatureToggle, 10)
	for i := range features {
		features[i] = toggle.FeatureToggle{
			Name:       fmt.Sprintf("f%d", i),
			Enabled:    true,
			Strategies: []toggle.ActivationStrategy{{Name: fmt.Sprintf("mystery%d", i)}},
		}
	}
	snap, err := toggle.NewSnapshot(features, "r1")
	require.NoError(t, err)
	st := store.New()
	st.Install(snap)

	var buf bytes.Buffer
	eng := New(st, strategy.NewRegistry(), Options{Logger: zerolog.New(&buf)})
	warnings := func() int { return strings.Count(buf.String(), "unknown strategy") }

	for round := 0; round < 3; round++ {
		for i := range features {
			assert.False(t, eng.IsEnabled(features[i].Name, nil))
			eng.GetVariant(features[i].Name, nil)
		}
	}
	assert.Equal(t, 10, warnings())
	assert.Contains(t, buf.String(), `"strategy":"mystery7"`)
	assert.Contains(t, buf.String(), `"revision":"r1"`)

	next, err := toggle.NewSnapshot(features[:2], "r2")
	require.NoError(t, err)
	st.Install(next)
	for round := 0; round < 3; round++ {
		eng.IsEnabled("f0", nil)
		eng.IsEnabled("f1", nil)
	}
	assert.Equal(t, 12, warnings(), "a new snapshot reports its pairs again")
}

func TestIsEnabled_CustomStrategy(t *testing.T) {
	st := store.New()
	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register("reversed", strategy.Func(func(params map[string]string, ctx *toggle.Context) bool {
		r := []rune(ctx.UserID)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return params["userIds"] == string(r)
	})))
	snap, err := toggle.NewSnapshot([]toggle.FeatureToggle{
		{Name: "reversed", Enabled: true, Strategies: []toggle.ActivationStrategy{
			{Name: "reversed", Parameters: map[string]string{"userIds": "abc"}},
		}},
		{Name: "default", Enabled: true, Strategies: []toggle.ActivationStrategy{defaultStrategy()}},
	}, "")
	require.NoError(t, err)
	st.Install(snap)
	eng := New(st, reg, Options{Logger: zerolog.Nop()})

	assert.True(t, eng.IsEnabled("reversed", &toggle.Context{UserID: "cba"}))
	assert.False(t, eng.IsEnabled("reversed", &toggle.Context{UserID: "abc"}))
	assert.True(t, eng.IsEnabled("default", nil))
}

func TestIsEnabled_PanickingStrategy(t *testing.T) {
	st := store.New()
	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register("boom", strategy.Func(func(map[string]string, *toggle.Context) bool {
		panic("boom")
	})))
	snap, err := toggle.NewSnapshot([]toggle.FeatureToggle{
		{Name: "f", Enabled: true, Strategies: []toggle.ActivationStrategy{{Name: "boom"}, defaultStrategy()}},
		{Name: "g", Enabled: true, Strategies: []toggle.ActivationStrategy{{Name: "boom"}}},
	}, "")
	require.NoError(t, err)
	st.Install(snap)
	eng := New(st, reg, Options{Logger: zerolog.Nop()})

	assert.NotPanics(t, func() {
		assert.True(t, eng.IsEnabled("f", nil))
		assert.False(t, eng.IsEnabled("g", nil))
	})
}

func TestIsEnabled_StrategyConstraints(t *testing.T) {
	eng, _ := newEngine(t, Options{}, toggle.FeatureToggle{
		Name:    "eu-admins",
		Enabled: true,
		Strategies: []toggle.ActivationStrategy{{
			Name: strategy.Default,
			Constraints: []toggle.Constraint{
				{ContextName: "region", Operator: toggle.OpIn, Values: []string{"eu-west", "eu-north"}},
				{ContextName: "role", Operator: toggle.OpIn, Values: []string{"admin"}},
			},
		}},
	})
	props := func(region, role string) *toggle.Context {
		return &toggle.Context{Properties: map[string]string{"region": region, "role": role}}
	}
	assert.True(t, eng.IsEnabled("eu-admins", props("eu-west", "admin")))
	assert.False(t, eng.IsEnabled("eu-admins", props("us-east", "admin")))
	assert.False(t, eng.IsEnabled("eu-admins", props("eu-west", "viewer")))
	assert.False(t, eng.IsEnabled("eu-admins", &toggle.Context{}))
}

func TestMetricsConservation(t *testing.T) {
	rec := &countingRecorder{}
	eng, _ := newEngine(t, Options{Recorder: rec},
		toggle.FeatureToggle{Name: "half", Enabled: true, Strategies: []toggle.ActivationStrategy{
			{Name: strategy.FlexibleRollout, Parameters: map[string]string{"rollout": "50", "stickiness": "userId"}},
		}},
		toggle.FeatureToggle{Name: "off"},
	)

	const workers, calls = 8, 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < calls; i++ {
				ctx := &toggle.Context{UserID: fmt.Sprintf("%d-%d", w, i)}
				switch i % 3 {
				case 0:
					eng.IsEnabled("half", ctx)
				case 1:
					eng.IsEnabled("off", ctx)
				default:
					eng.IsEnabled("absent", ctx)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, int64(workers*calls), rec.yes.Load()+rec.no.Load())
}

func BenchmarkIsEnabled(b *testing.B) {
	features := make([]toggle.FeatureToggle, 0, 100)
	for i := 1; i <= 100; i++ {
		features = append(features, toggle.FeatureToggle{
			Name:    fmt.Sprintf("flexible%d", i),
			Enabled: true,
			Strategies: []toggle.ActivationStrategy{{
				Name:       strategy.FlexibleRollout,
				Parameters: map[string]string{"stickiness": "DEFAULT", "groupId": "flexible", "rollout": "33"},
			}},
		})
	}
	snap, _ := toggle.NewSnapshot(features, "")
	st := store.New()
	st.Install(snap)
	eng := New(st, strategy.NewRegistry(), Options{Logger: zerolog.Nop()})
	ctx := &toggle.Context{UserID: "user-7"}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = eng.IsEnabled("flexible42", ctx)
		}
	})
}
