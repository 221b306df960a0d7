package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toggle-client/pkg/wire"
)

type fakeService struct {
	mu       sync.Mutex
	etag     string
	headers  []http.Header
	rawQuery string
	metrics  []wire.Metrics
	regs     []wire.Registration
	status   int
}

func (f *fakeService) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/client", func(r chi.Router) {
		r.Get("/features", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.headers = append(f.headers, req.Header.Clone())
			f.rawQuery = req.URL.RawQuery
			if f.status != 0 {
				w.WriteHeader(f.status)
				return
			}
			if req.Header.Get("If-None-Match") == f.etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", f.etag)
			_, _ = w.Write([]byte(`{"version":1,"features":[{"name":"a","enabled":true}]}`))
		})
		r.Post("/metrics", func(w http.ResponseWriter, req *http.Request) {
			var m wire.Metrics
			if err := json.NewDecoder(req.Body).Decode(&m); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.mu.Lock()
			f.metrics = append(f.metrics, m)
			f.mu.Unlock()
			w.WriteHeader(http.StatusAccepted)
		})
		r.Post("/register", func(w http.ResponseWriter, req *http.Request) {
			var reg wire.Registration
			if err := json.NewDecoder(req.Body).Decode(&reg); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.mu.Lock()
			f.regs = append(f.regs, reg)
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func newHTTP(t *testing.T, f *fakeService, mod func(*HTTPConfig)) *HTTP {
	t.Helper()
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	cfg := HTTPConfig{
		URL:           srv.URL + "/api/",
		AppName:       "checkout",
		InstanceID:    "i-1",
		ConnectionID:  "c-1",
		Authorization: "secret",
	}
	if mod != nil {
		mod(&cfg)
	}
	h, err := NewHTTP(cfg)
	require.NoError(t, err)
	return h
}

func TestHTTP_FetchToggles(t *testing.T) {
	f := &fakeService{etag: `"v1"`}
	h := newHTTP(t, f, nil)
	ctx := context.Background()

	res, err := h.FetchToggles(ctx, "")
	require.NoError(t, err)
	assert.False(t, res.Unchanged)
	assert.Equal(t, `"v1"`, res.Revision)
	assert.Contains(t, string(res.Body), `"name":"a"`)

	res, err = h.FetchToggles(ctx, `"v1"`)
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Empty(t, res.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.headers, 2)
	hdr := f.headers[0]
	assert.Equal(t, "checkout", hdr.Get(HeaderAppName))
	assert.Equal(t, "i-1", hdr.Get(HeaderInstanceID))
	assert.Equal(t, "c-1", hdr.Get(HeaderConnectionID))
	assert.Equal(t, wire.SDKVersion, hdr.Get(HeaderSDK))
	assert.Equal(t, "secret", hdr.Get("Authorization"))
	assert.Empty(t, hdr.Get("If-None-Match"))
	assert.Equal(t, `"v1"`, f.headers[1].Get("If-None-Match"))
}

func TestHTTP_FetchQuery(t *testing.T) {
	f := &fakeService{etag: "x"}
	h := newHTTP(t, f, func(c *HTTPConfig) {
		c.Query = &wire.Query{Project: "web", Tags: []wire.TagFilter{{Name: "team", Value: "core"}}}
		c.Headers = map[string]string{"X-Extra": "1"}
	})

	_, err := h.FetchToggles(context.Background(), "")
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "project=web&tag[0]=team%3Acore", f.rawQuery)
	assert.Equal(t, "1", f.headers[0].Get("X-Extra"))
}

func TestHTTP_StatusError(t *testing.T) {
	f := &fakeService{status: http.StatusUnauthorized}
	h := newHTTP(t, f, nil)

	_, err := h.FetchToggles(context.Background(), "")
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestHTTP_SendMetricsAndRegister(t *testing.T) {
	f := &fakeService{}
	h := newHTTP(t, f, nil)
	ctx := context.Background()

	require.NoError(t, h.SendMetrics(ctx, wire.Metrics{
		AppName: "checkout",
		Bucket:  wire.Bucket{Toggles: map[string]wire.ToggleStats{"a": {Yes: 3}}},
	}))
	require.NoError(t, h.Register(ctx, wire.Registration{AppName: "checkout", Strategies: []string{"default"}}))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.metrics, 1)
	assert.Equal(t, uint64(3), f.metrics[0].Bucket.Toggles["a"].Yes)
	require.Len(t, f.regs, 1)
	assert.Equal(t, []string{"default"}, f.regs[0].Strategies)
}

func TestHTTP_CanceledContext(t *testing.T) {
	h := newHTTP(t, &fakeService{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.FetchToggles(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewHTTP_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://host", "::bad"} {
		_, err := NewHTTP(HTTPConfig{URL: raw})
		assert.Error(t, err, raw)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory([]byte(`{"features":[]}`), "r1")
	ctx := context.Background()

	res, err := m.FetchToggles(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "r1", res.Revision)

	res, err = m.FetchToggles(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Equal(t, 2, m.Fetches())

	m.FailSend(assert.AnError)
	assert.ErrorIs(t, m.SendMetrics(ctx, wire.Metrics{}), assert.AnError)
	assert.Empty(t, m.Sent())
}
