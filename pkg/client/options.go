package client

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"toggle-client/internal/observability"
	"toggle-client/pkg/transport"
)

// Defaults applied by New.
const (
	DefaultPollInterval    = 15 * time.Second
	DefaultMetricsInterval = 60 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
)

// Options is the required client configuration.
type Options struct {
	AppName    string
	InstanceID string
	Transport  transport.Transport

	PollInterval    time.Duration
	MetricsInterval time.Duration
	// RequestTimeout bounds each fetch, send and the registration call.
	RequestTimeout time.Duration
	// DisableMetrics stops usage reporting. Evaluation is unaffected.
	DisableMetrics bool
	// DefaultEnabled is the answer for features the snapshot does not hold.
	DefaultEnabled bool
}

func (o *Options) validate() error {
	if o.AppName == "" {
		return fmt.Errorf("%w: app name is required", ErrInvalidConfig)
	}
	if o.InstanceID == "" {
		return fmt.Errorf("%w: instance id is required", ErrInvalidConfig)
	}
	if o.Transport == nil {
		return fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	}
	if o.PollInterval < 0 || o.MetricsInterval < 0 || o.RequestTimeout < 0 {
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidConfig)
	}
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MetricsInterval == 0 {
		o.MetricsInterval = DefaultMetricsInterval
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	return nil
}

type settings struct {
	logger       zerolog.Logger
	metrics      *observability.Metrics
	connectionID string
	onError      func(error)
}

// Option customizes a Client beyond its required Options.
type Option func(*settings)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithRegisterer registers the client's Prometheus collectors with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) { s.metrics = observability.New(reg) }
}

// WithConnectionID overrides the generated per-process connection id.
func WithConnectionID(id string) Option {
	return func(s *settings) { s.connectionID = id }
}

// WithErrorHandler receives background failures as *FetchError, *ParseError
// or *MetricsSendError. It is called from the loop goroutines.
func WithErrorHandler(fn func(error)) Option {
	return func(s *settings) { s.onError = fn }
}
