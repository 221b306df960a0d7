// Package poller keeps the toggle store in step with the remote service.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"toggle-client/internal/observability"
	"toggle-client/internal/store"
	"toggle-client/pkg/toggle"
	"toggle-client/pkg/transport"
	"toggle-client/pkg/wire"
)

// ErrFetch wraps transport failures returned by Poll.
var ErrFetch = errors.New("fetch toggles")

// State is a point in the poll cycle.
type State int32

const (
	Idle State = iota
	Fetching
	Installed
	Unchanged
	FetchFailed
	ParseFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Installed:
		return observability.OutcomeInstalled
	case Unchanged:
		return observability.OutcomeUnchanged
	case FetchFailed:
		return observability.OutcomeFetchFailed
	case ParseFailed:
		return observability.OutcomeParseFailed
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Fetcher is the slice of transport.Transport the poller needs.
type Fetcher interface {
	FetchToggles(ctx context.Context, revision string) (transport.FetchResult, error)
}

type Options struct {
	Interval time.Duration
	// Timeout bounds one fetch. Defaults to Interval.
	Timeout   time.Duration
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
	OnInstall func(*toggle.Snapshot)
	// OnError receives failures from polls started by Run.
	OnError func(error)
}

// Poller is the store's only writer.
type Poller struct {
	fetcher Fetcher
	store   *store.Store
	opts    Options
	log     zerolog.Logger

	mu    sync.Mutex
	state atomic.Int32
	last  atomic.Int32
}

func New(f Fetcher, st *store.Store, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = opts.Interval
	}
	return &Poller{
		fetcher: f,
		store:   st,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "poller").Logger(),
	}
}

// State reports Fetching while a poll is running and Idle otherwise.
func (p *Poller) State() State { return State(p.state.Load()) }

// LastOutcome is the result of the most recent poll, or Idle before the first.
func (p *Poller) LastOutcome() State { return State(p.last.Load()) }

// Poll runs one fetch, bounded by the configured timeout. A failed poll
// leaves the installed snapshot in place.
func (p *Poller) Poll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.Store(int32(Fetching))
	defer p.state.Store(int32(Idle))

	start := time.Now()
	outcome, err := p.poll(ctx)
	p.last.Store(int32(outcome))
	p.opts.Metrics.Poll(outcome.String(), time.Since(start))
	return err
}

func (p *Poller) poll(ctx context.Context) (State, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	revision := p.store.Current().Revision()
	res, err := p.fetch(ctx, revision)
	if err != nil {
		p.log.Error().Err(err).Str("revision", revision).Msg("fetch toggles failed; keeping snapshot")
		return FetchFailed, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if res.Unchanged {
		p.log.Debug().Str("revision", revision).Msg("toggles unchanged")
		return Unchanged, nil
	}

	snap, err := decode(res)
	if err != nil {
		p.log.Error().Err(err).Str("revision", res.Revision).Msg("discarding toggle definitions")
		return ParseFailed, err
	}
	prev := p.store.Install(snap)
	p.opts.Metrics.SetFeatures(snap.Len())
	p.log.Info().
		Str("revision", snap.Revision()).
		Str("previous", prev.Revision()).
		Int("features", snap.Len()).
		Msg("snapshot installed")
	if p.opts.OnInstall != nil {
		p.opts.OnInstall(snap)
	}
	return Installed, nil
}

// fetch gives up when ctx is done even if the fetcher does not.
func (p *Poller) fetch(ctx context.Context, revision string) (transport.FetchResult, error) {
	type result struct {
		res transport.FetchResult
		err error
	}
	ch := make(chan result, 1)
	go func() {
		res, err := p.fetcher.FetchToggles(ctx, revision)
		ch <- result{res, err}
	}()
	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return transport.FetchResult{}, ctx.Err()
	}
}

func decode(res transport.FetchResult) (*toggle.Snapshot, error) {
	doc, err := wire.ParseFeatures(res.Body)
	if err != nil {
		return nil, err
	}
	return doc.Snapshot(res.Revision)
}

// Run polls every Interval until ctx is done. Failures are retried on the
// next tick only.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.opts.Interval)
	defer t.Stop()
	p.log.Info().Dur("interval", p.opts.Interval).Msg("poller started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("poller stopped")
			return nil
		case <-t.C:
			if err := p.Poll(ctx); err != nil && ctx.Err() == nil && p.opts.OnError != nil {
				p.opts.OnError(err)
			}
		}
	}
}
