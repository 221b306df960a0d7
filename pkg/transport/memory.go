package transport

import (
	"context"
	"sync"

	"toggle-client/pkg/wire"
)

// Memory is an in-process Transport for tests and offline use. It answers
// fetches from a body set with SetFeatures and keeps everything it is sent.
type Memory struct {
	mu            sync.Mutex
	body          []byte
	revision      string
	fetchErr      error
	sendErr       error
	registerErr   error
	fetches       int
	sent          []wire.Metrics
	registrations []wire.Registration
}

func NewMemory(body []byte, revision string) *Memory {
	m := &Memory{}
	m.SetFeatures(body, revision)
	return m
}

// SetFeatures replaces the served definitions.
func (m *Memory) SetFeatures(body []byte, revision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body = append([]byte(nil), body...)
	m.revision = revision
}

func (m *Memory) FailFetch(err error) {
	m.mu.Lock()
	m.fetchErr = err
	m.mu.Unlock()
}

func (m *Memory) FailSend(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

func (m *Memory) FailRegister(err error) {
	m.mu.Lock()
	m.registerErr = err
	m.mu.Unlock()
}

func (m *Memory) FetchToggles(ctx context.Context, revision string) (FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return FetchResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return FetchResult{}, m.fetchErr
	}
	if revision != "" && revision == m.revision {
		return FetchResult{Unchanged: true, Revision: revision}, nil
	}
	return FetchResult{Body: append([]byte(nil), m.body...), Revision: m.revision}, nil
}

func (m *Memory) SendMetrics(ctx context.Context, payload wire.Metrics) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, payload)
	return nil
}

func (m *Memory) Register(ctx context.Context, r wire.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return m.registerErr
	}
	m.registrations = append(m.registrations, r)
	return nil
}

func (m *Memory) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// Sent returns the metric reports accepted so far.
func (m *Memory) Sent() []wire.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]wire.Metrics(nil), m.sent...)
}

func (m *Memory) Registrations() []wire.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]wire.Registration(nil), m.registrations...)
}
