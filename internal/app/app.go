package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"toggle-client/internal/api"
	"toggle-client/internal/config"
	"toggle-client/internal/observability"
	"toggle-client/pkg/client"
	"toggle-client/pkg/transport"
	"toggle-client/pkg/wire"
)

const shutdownTimeout = 10 * time.Second

// App is a toggle client behind the local HTTP surface.
type App struct {
	cfg     config.Config
	log     zerolog.Logger
	client  *client.Client
	handler http.Handler
}

func New(cfg config.Config, logger zerolog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tr, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	c, err := client.New(client.Options{
		AppName:         cfg.AppName,
		InstanceID:      cfg.InstanceID,
		Transport:       tr,
		PollInterval:    cfg.PollInterval,
		MetricsInterval: cfg.MetricsInterval,
		RequestTimeout:  cfg.RequestTimeout,
		DisableMetrics:  cfg.DisableMetrics,
		DefaultEnabled:  cfg.DefaultEnabled,
	}, client.WithLogger(logger), client.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("init client: %w", err)
	}
	return &App{
		cfg:     cfg,
		log:     logger,
		client:  c,
		handler: api.Router(api.NewFeatureHandler(c), observability.NewHTTP(reg), observability.Handler(reg)),
	}, nil
}

func (a *App) Handler() http.Handler { return a.handler }

// Run listens on the configured address until ctx is done.
func Run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	a, err := New(cfg, logger)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve starts the client, serves HTTP on ln and shuts both down once ctx
// is done.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.client.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:      a.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", ln.Addr().String()).Msg("http server starting")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutdown...")
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shCtx), a.client.Stop(shCtx))
	})
	return g.Wait()
}

// DumpFeatures fetches the definition set once and writes it to w as
// indented JSON.
func DumpFeatures(ctx context.Context, cfg config.Config, w io.Writer) error {
	tr, err := newTransport(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	res, err := tr.FetchToggles(ctx, "")
	if err != nil {
		return err
	}
	doc, err := wire.ParseFeatures(res.Body)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func newTransport(cfg config.Config) (*transport.HTTP, error) {
	return transport.NewHTTP(transport.HTTPConfig{
		URL:           cfg.APIURL,
		AppName:       cfg.AppName,
		InstanceID:    cfg.InstanceID,
		Authorization: cfg.ClientSecret,
		Query:         cfg.Query(),
		Client:        &http.Client{Timeout: cfg.RequestTimeout},
	})
}
