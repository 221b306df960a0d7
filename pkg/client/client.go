// Package client is the entry point for evaluating feature toggles. A Client
// owns its strategy registry, toggle store, poller and usage aggregator; no
// state is shared between clients.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"toggle-client/internal/engine"
	"toggle-client/internal/metrics"
	"toggle-client/internal/observability"
	"toggle-client/internal/poller"
	"toggle-client/internal/store"
	"toggle-client/pkg/strategy"
	"toggle-client/pkg/toggle"
	"toggle-client/pkg/wire"
)

type lifecycle int

const (
	created lifecycle = iota
	running
	stopped
)

type Client struct {
	opts         Options
	log          zerolog.Logger
	metrics      *observability.Metrics
	connectionID string
	onError      func(error)

	registry   *strategy.Registry
	store      *store.Store
	engine     *engine.Engine
	poller     *poller.Poller
	aggregator *metrics.Aggregator

	readyOnce sync.Once
	ready     chan struct{}

	mu     sync.Mutex
	state  lifecycle
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New validates opts and assembles a client. Nothing touches the network
// until Start.
func New(opts Options, extra ...Option) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	s := settings{logger: zerolog.Nop()}
	for _, o := range extra {
		o(&s)
	}
	if s.connectionID == "" {
		s.connectionID = uuid.NewString()
	}

	c := &Client{
		opts:         opts,
		metrics:      s.metrics,
		connectionID: s.connectionID,
		onError:      s.onError,
		registry:     strategy.NewRegistry(),
		store:        store.New(),
		ready:        make(chan struct{}),
	}
	c.log = s.logger.With().Str("app", opts.AppName).Str("instance", opts.InstanceID).Logger()

	c.aggregator = metrics.NewAggregator(opts.Transport, metrics.Options{
		AppName:      opts.AppName,
		InstanceID:   opts.InstanceID,
		ConnectionID: c.connectionID,
		Interval:     opts.MetricsInterval,
		SendTimeout:  opts.RequestTimeout,
		Disabled:     opts.DisableMetrics,
		Logger:       c.log,
		Metrics:      c.metrics,
		OnError:      func(err error) { c.report(&MetricsSendError{Err: err}) },
	})
	c.engine = engine.New(c.store, c.registry, engine.Options{
		DefaultEnabled: opts.DefaultEnabled,
		Logger:         c.log,
		Recorder:       c.aggregator,
		Metrics:        c.metrics,
	})
	c.poller = poller.New(opts.Transport, c.store, poller.Options{
		Interval:  opts.PollInterval,
		Timeout:   opts.RequestTimeout,
		Logger:    c.log,
		Metrics:   c.metrics,
		OnInstall: func(*toggle.Snapshot) { c.readyOnce.Do(func() { close(c.ready) }) },
		OnError:   func(err error) { c.report(classifyPoll(err)) },
	})
	return c, nil
}

// RegisterStrategy adds a custom strategy. It fails once Start has run.
func (c *Client) RegisterStrategy(name string, s strategy.Strategy) error {
	return c.registry.Register(name, s)
}

// ConnectionID identifies this client instance to the service.
func (c *Client) ConnectionID() string { return c.connectionID }

// Start registers with the service, makes one best-effort fetch and starts
// the background loops. A registration failure is returned as a
// *RegistrationError and leaves the client stopped; Start may be called
// again. ctx bounds startup only.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != created {
		return ErrAlreadyStarted
	}

	c.registry.Freeze()
	reg := wire.Registration{
		AppName:      c.opts.AppName,
		InstanceID:   c.opts.InstanceID,
		ConnectionID: c.connectionID,
		SDKVersion:   wire.SDKVersion,
		Strategies:   c.registry.Names(),
		Started:      time.Now().UTC(),
		Interval:     c.opts.MetricsInterval.Milliseconds(),
	}
	rctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	err := c.opts.Transport.Register(rctx, reg)
	cancel()
	if err != nil {
		c.log.Error().Err(err).Msg("registration failed")
		return &RegistrationError{Err: err}
	}

	if err := c.poller.Poll(ctx); err != nil {
		c.log.Warn().Err(err).Msg("initial fetch failed; serving defaults until the next poll")
	}

	loopCtx, stop := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return c.poller.Run(gctx) })
	g.Go(func() error { return c.aggregator.Run(gctx) })
	c.cancel, c.group, c.state = stop, g, running

	c.log.Info().
		Dur("poll_interval", c.opts.PollInterval).
		Dur("metrics_interval", c.opts.MetricsInterval).
		Strs("strategies", reg.Strategies).
		Msg("client started")
	return nil
}

// Stop ends the background loops, flushes pending usage counts and waits
// for in-flight sends until ctx is done.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case created:
		c.mu.Unlock()
		return ErrNotStarted
	case stopped:
		c.mu.Unlock()
		return nil
	}
	c.state = stopped
	cancel, g := c.cancel, c.group
	c.mu.Unlock()

	cancel()
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return fmt.Errorf("stop: %w", ctx.Err())
	}
	if err := c.aggregator.Wait(ctx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	c.log.Info().Msg("client stopped")
	return nil
}

// Refresh polls immediately. Failures are *FetchError or *ParseError and
// leave the installed snapshot in place.
func (c *Client) Refresh(ctx context.Context) error {
	return classifyPoll(c.poller.Poll(ctx))
}

// IsEnabled evaluates name for ctx. Unknown features return the configured
// default. It never blocks on I/O.
func (c *Client) IsEnabled(name string, ctx *toggle.Context) bool {
	return c.engine.IsEnabled(name, ctx)
}

// IsEnabledOr is IsEnabled with a per-call fallback for unknown features.
func (c *Client) IsEnabledOr(name string, ctx *toggle.Context, fallback bool) bool {
	return c.engine.IsEnabledOr(name, ctx, fallback)
}

func (c *Client) GetVariant(name string, ctx *toggle.Context) toggle.VariantResult {
	return c.engine.GetVariant(name, ctx)
}

// Snapshot returns the installed definitions. The value is immutable.
func (c *Client) Snapshot() *toggle.Snapshot { return c.store.Current() }

// Ready is closed once the first fetched snapshot is installed.
func (c *Client) Ready() <-chan struct{} { return c.ready }

func (c *Client) report(err error) {
	if err != nil && c.onError != nil {
		c.onError(err)
	}
}
