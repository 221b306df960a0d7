package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"toggle-client/pkg/wire"
)

// Header names sent on every request.
const (
	HeaderAppName      = "UNLEASH-APPNAME"
	HeaderInstanceID   = "UNLEASH-INSTANCEID"
	HeaderConnectionID = "UNLEASH-CONNECTION-ID"
	HeaderSDK          = "UNLEASH-SDK"
)

const maxBody = 32 << 20

// HTTPConfig configures an HTTP transport.
type HTTPConfig struct {
	// URL is the API root, e.g. https://toggles.example.com/api.
	URL           string
	AppName       string
	InstanceID    string
	ConnectionID  string
	Authorization string
	// Headers are added to every request after the standard ones.
	Headers map[string]string
	Query   *wire.Query
	Client  *http.Client
}

// HTTP talks to the service's client API over net/http.
type HTTP struct {
	base   string
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: scheme must be http or https", cfg.URL)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{base: strings.TrimRight(u.String(), "/"), cfg: cfg, client: client}, nil
}

func (h *HTTP) FetchToggles(ctx context.Context, revision string) (FetchResult, error) {
	endpoint := h.base + "/client/features"
	if q := h.cfg.Query.Encode(); q != "" {
		endpoint += "?" + q
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch toggles: %w", err)
	}
	h.decorate(req)
	req.Header.Set("Accept", "application/json")
	if revision != "" {
		req.Header.Set("If-None-Match", revision)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch toggles: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		drain(resp.Body)
		return FetchResult{Unchanged: true, Revision: revision}, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		drain(resp.Body)
		return FetchResult{}, &StatusError{Op: "fetch toggles", StatusCode: resp.StatusCode, Status: resp.Status}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch toggles: read body: %w", err)
	}
	return FetchResult{Body: body, Revision: resp.Header.Get("ETag")}, nil
}

func (h *HTTP) SendMetrics(ctx context.Context, m wire.Metrics) error {
	return h.post(ctx, "send metrics", "/client/metrics", m)
}

func (h *HTTP) Register(ctx context.Context, r wire.Registration) error {
	return h.post(ctx, "register", "/client/register", r)
}

func (h *HTTP) post(ctx context.Context, op, path string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	h.decorate(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	drain(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

func (h *HTTP) decorate(req *http.Request) {
	req.Header.Set(HeaderAppName, h.cfg.AppName)
	req.Header.Set(HeaderInstanceID, h.cfg.InstanceID)
	if h.cfg.ConnectionID != "" {
		req.Header.Set(HeaderConnectionID, h.cfg.ConnectionID)
	}
	req.Header.Set(HeaderSDK, wire.SDKVersion)
	req.Header.Set("User-Agent", h.cfg.AppName)
	if h.cfg.Authorization != "" {
		req.Header.Set("Authorization", h.cfg.Authorization)
	}
	for k, v := range h.cfg.Headers {
		req.Header.Set(k, v)
	}
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, maxBody))
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
