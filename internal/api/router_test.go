package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toggle-client/internal/observability"
	"toggle-client/pkg/client"
	"toggle-client/pkg/transport"
)

const defs = `{"version":1,"features":[
  {"name":"web","enabled":true,"strategies":[{"name":"userWithId","parameters":{"userIds":"42"}}],
   "variants":[{"name":"wide","weight":1000}]},
  {"name":"plan","enabled":true,"strategies":[{"name":"default","constraints":[
    {"contextName":"plan","operator":"IN","values":["pro"]}]}]},
  {"name":"off","enabled":false}
]}`

func newRouter(t *testing.T, mem *transport.Memory, fetch bool) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := client.New(client.Options{
		AppName:         "api-test",
		InstanceID:      "i-1",
		Transport:       mem,
		PollInterval:    time.Hour,
		MetricsInterval: time.Hour,
	}, client.WithRegisterer(reg))
	require.NoError(t, err)
	if fetch {
		require.NoError(t, c.Refresh(context.Background()))
	}
	return Router(NewFeatureHandler(c), observability.NewHTTP(reg), observability.Handler(reg))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestRouter_Evaluate(t *testing.T) {
	h := newRouter(t, transport.NewMemory([]byte(defs), "r1"), true)

	tests := []struct {
		path    string
		known   bool
		enabled bool
		variant string
	}{
		{"/v1/features/web?userId=42", true, true, "wide"},
		{"/v1/features/web?userId=7", true, false, "disabled"},
		{"/v1/features/plan?plan=pro", true, true, "disabled"},
		{"/v1/features/plan?plan=free", true, false, "disabled"},
		{"/v1/features/off", true, false, "disabled"},
		{"/v1/features/nope", false, false, "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := get(t, h, tt.path)
			require.Equal(t, http.StatusOK, rr.Code)
			var got evaluation
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			assert.Equal(t, tt.known, got.Known)
			assert.Equal(t, tt.enabled, got.Enabled)
			assert.Equal(t, tt.variant, got.Variant.Name)
		})
	}
}

func TestRouter_EvaluateBadTime(t *testing.T) {
	h := newRouter(t, transport.NewMemory([]byte(defs), "r1"), true)
	rr := get(t, h, "/v1/features/web?currentTime=yesterday")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_List(t *testing.T) {
	h := newRouter(t, transport.NewMemory([]byte(defs), "r1"), true)
	rr := get(t, h, "/v1/features")
	require.Equal(t, http.StatusOK, rr.Code)

	var got featureList
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "r1", got.Revision)
	require.Len(t, got.Features, 3)
	assert.Equal(t, "off", got.Features[0].Name)
	assert.Equal(t, featureSummary{Name: "web", Enabled: true, Strategies: 1, Variants: 1}, got.Features[2])
}

func TestRouter_Readiness(t *testing.T) {
	mem := transport.NewMemory([]byte(defs), "r1")
	assert.Equal(t, http.StatusServiceUnavailable, get(t, newRouter(t, mem, false), "/readyz").Code)
	assert.Equal(t, http.StatusOK, get(t, newRouter(t, mem, true), "/readyz").Code)
	assert.Equal(t, http.StatusOK, get(t, newRouter(t, mem, false), "/healthz").Code)
}

func TestRouter_Metrics(t *testing.T) {
	h := newRouter(t, transport.NewMemory([]byte(defs), "r1"), true)
	get(t, h, "/v1/features/web?userId=42")

	rr := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `toggle_client_evaluations_total{result="yes"} 1`)
	assert.Contains(t, body, `toggle_http_requests_total{code="200"}`)
	assert.Contains(t, body, `toggle_client_polls_total{outcome="installed"} 1`)
}

func TestContextFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/features/x?userId=u&sessionId=s&environment=prod&plan=pro&currentTime=2026-01-02T03:04:05Z", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	ctx, err := contextFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "u", ctx.UserID)
	assert.Equal(t, "s", ctx.SessionID)
	assert.Equal(t, "prod", ctx.Environment)
	assert.Equal(t, "10.1.2.3", ctx.RemoteAddress)
	assert.Equal(t, map[string]string{"plan": "pro"}, ctx.Properties)
	assert.Equal(t, 2026, ctx.CurrentTime.Year())
}
