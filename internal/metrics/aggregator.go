// Package metrics aggregates evaluation counts into time windows and ships
// each closed window to the toggle service.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"toggle-client/internal/observability"
	"toggle-client/pkg/wire"
)

// Sender delivers one closed window.
type Sender interface {
	SendMetrics(ctx context.Context, m wire.Metrics) error
}

type Options struct {
	AppName      string
	InstanceID   string
	ConnectionID string
	// Interval between flushes. Zero disables the loop in Run.
	Interval time.Duration
	// SendTimeout bounds each delivery.
	SendTimeout time.Duration
	// Disabled turns Record into a no-op and Flush into nothing.
	Disabled bool
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
	Now      func() time.Time
	// OnError receives failed deliveries after the window is dropped.
	OnError func(error)
}

// Aggregator counts evaluations per feature. Record may be called from any
// number of goroutines concurrently with Flush; every increment lands in
// exactly one window.
type Aggregator struct {
	mu     sync.RWMutex
	window *window

	sender  Sender
	opts    Options
	log     zerolog.Logger
	now     func() time.Time
	pending sync.WaitGroup
}

func NewAggregator(sender Sender, opts Options) *Aggregator {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &Aggregator{
		window: newWindow(now()),
		sender: sender,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "metrics").Logger(),
		now:    now,
	}
}

// Record counts one IsEnabled outcome.
func (a *Aggregator) Record(feature string, enabled bool) {
	if a.opts.Disabled {
		return
	}
	a.mu.RLock()
	a.window.counter(feature).count(enabled)
	a.mu.RUnlock()
}

// RecordVariant counts one GetVariant outcome. The yes/no count and the
// variant count land in the same window.
func (a *Aggregator) RecordVariant(feature string, enabled bool, variant string) {
	if a.opts.Disabled {
		return
	}
	a.mu.RLock()
	c := a.window.counter(feature)
	c.count(enabled)
	c.variant(variant).Add(1)
	a.mu.RUnlock()
}

// Peek returns the counts of the open window without closing it.
func (a *Aggregator) Peek() wire.Bucket {
	a.mu.RLock()
	w := a.window
	a.mu.RUnlock()
	return w.bucket(a.now())
}

// Flush closes the open window and hands it to the sender in the
// background. Empty windows are discarded. A window whose delivery fails is
// dropped and logged.
func (a *Aggregator) Flush() {
	if a.opts.Disabled {
		return
	}
	now := a.now()
	a.mu.Lock()
	closed := a.window
	a.window = newWindow(now)
	a.mu.Unlock()

	bucket := closed.bucket(now)
	if len(bucket.Toggles) == 0 {
		a.opts.Metrics.Flush(observability.OutcomeEmpty)
		return
	}
	payload := wire.Metrics{
		AppName:      a.opts.AppName,
		InstanceID:   a.opts.InstanceID,
		ConnectionID: a.opts.ConnectionID,
		Bucket:       bucket,
	}
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		a.send(payload)
	}()
}

func (a *Aggregator) send(payload wire.Metrics) {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.SendTimeout)
	defer cancel()
	if err := a.sender.SendMetrics(ctx, payload); err != nil {
		a.opts.Metrics.Flush(observability.OutcomeSendFailed)
		a.log.Warn().Err(err).
			Int("toggles", len(payload.Bucket.Toggles)).
			Time("start", payload.Bucket.Start).
			Msg("metrics send failed; window dropped")
		if a.opts.OnError != nil {
			a.opts.OnError(err)
		}
		return
	}
	a.opts.Metrics.Flush(observability.OutcomeSent)
	a.log.Debug().Int("toggles", len(payload.Bucket.Toggles)).Msg("metrics sent")
}

// Run flushes every Interval until ctx is done, then flushes once more.
func (a *Aggregator) Run(ctx context.Context) error {
	if a.opts.Disabled || a.opts.Interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(a.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			a.Flush()
			return nil
		case <-t.C:
			a.Flush()
		}
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (a *Aggregator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type window struct {
	start   time.Time
	toggles sync.Map // string -> *counter
}

func newWindow(start time.Time) *window { return &window{start: start} }

func (w *window) counter(feature string) *counter {
	if c, ok := w.toggles.Load(feature); ok {
		return c.(*counter)
	}
	c, _ := w.toggles.LoadOrStore(feature, &counter{})
	return c.(*counter)
}

func (w *window) bucket(stop time.Time) wire.Bucket {
	b := wire.Bucket{Start: w.start, Stop: stop, Toggles: map[string]wire.ToggleStats{}}
	w.toggles.Range(func(k, v any) bool {
		b.Toggles[k.(string)] = v.(*counter).stats()
		return true
	})
	return b
}

type counter struct {
	yes      atomic.Uint64
	no       atomic.Uint64
	variants sync.Map // string -> *atomic.Uint64
}

func (c *counter) count(enabled bool) {
	if enabled {
		c.yes.Add(1)
		return
	}
	c.no.Add(1)
}

func (c *counter) variant(name string) *atomic.Uint64 {
	if v, ok := c.variants.Load(name); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := c.variants.LoadOrStore(name, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

func (c *counter) stats() wire.ToggleStats {
	s := wire.ToggleStats{Yes: c.yes.Load(), No: c.no.Load()}
	c.variants.Range(func(k, v any) bool {
		if s.Variants == nil {
			s.Variants = map[string]uint64{}
		}
		s.Variants[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})
	return s
}
