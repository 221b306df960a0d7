package api

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"toggle-client/pkg/toggle"
)

// Evaluator is what the handlers need from a client.
type Evaluator interface {
	IsEnabled(name string, ctx *toggle.Context) bool
	GetVariant(name string, ctx *toggle.Context) toggle.VariantResult
	Snapshot() *toggle.Snapshot
	Ready() <-chan struct{}
}

type FeatureHandler struct {
	Client Evaluator
}

func NewFeatureHandler(c Evaluator) *FeatureHandler {
	return &FeatureHandler{Client: c}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type featureSummary struct {
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	Type       string `json:"type,omitempty"`
	Project    string `json:"project,omitempty"`
	Strategies int    `json:"strategies"`
	Variants   int    `json:"variants"`
}

type featureList struct {
	Revision string           `json:"revision"`
	Features []featureSummary `json:"features"`
}

// List describes the installed snapshot without evaluating anything.
func (h *FeatureHandler) List(w http.ResponseWriter, _ *http.Request) {
	snap := h.Client.Snapshot()
	out := featureList{Revision: snap.Revision(), Features: make([]featureSummary, 0, snap.Len())}
	for _, name := range snap.Names() {
		f, _ := snap.Lookup(name)
		out.Features = append(out.Features, featureSummary{
			Name:       f.Name,
			Enabled:    f.Enabled,
			Type:       f.Type,
			Project:    f.Project,
			Strategies: len(f.Strategies),
			Variants:   len(f.Variants),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type evaluation struct {
	Name    string               `json:"name"`
	Known   bool                 `json:"known"`
	Enabled bool                 `json:"enabled"`
	Variant toggle.VariantResult `json:"variant"`
}

// Evaluate answers for the context described by the query string.
func (h *FeatureHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx, err := contextFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	_, known := h.Client.Snapshot().Lookup(name)
	variant := h.Client.GetVariant(name, ctx)
	writeJSON(w, http.StatusOK, evaluation{
		Name:    name,
		Known:   known,
		Enabled: variant.FeatureEnabled,
		Variant: variant,
	})
}

// Ready is 503 until the first snapshot is installed.
func (h *FeatureHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	select {
	case <-h.Client.Ready():
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("waiting for toggles"))
	}
}

var contextParams = map[string]bool{
	toggle.FieldUserID:        true,
	toggle.FieldSessionID:     true,
	toggle.FieldRemoteAddress: true,
	toggle.FieldEnvironment:   true,
	toggle.FieldAppName:       true,
	toggle.FieldCurrentTime:   true,
}

func contextFromRequest(r *http.Request) (*toggle.Context, error) {
	q := r.URL.Query()
	ctx := &toggle.Context{
		UserID:        q.Get(toggle.FieldUserID),
		SessionID:     q.Get(toggle.FieldSessionID),
		RemoteAddress: q.Get(toggle.FieldRemoteAddress),
		Environment:   q.Get(toggle.FieldEnvironment),
		AppName:       q.Get(toggle.FieldAppName),
	}
	if ctx.RemoteAddress == "" {
		ctx.RemoteAddress = clientIP(r.RemoteAddr)
	}
	if raw := q.Get(toggle.FieldCurrentTime); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, err
		}
		ctx.CurrentTime = t
	}
	for k, vs := range q {
		if contextParams[k] || len(vs) == 0 {
			continue
		}
		if ctx.Properties == nil {
			ctx.Properties = make(map[string]string)
		}
		ctx.Properties[k] = vs[0]
	}
	return ctx, nil
}

func clientIP(remote string) string {
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
