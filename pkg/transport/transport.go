// Package transport moves toggle definitions and usage reports between the
// client and the remote toggle service.
package transport

import (
	"context"
	"fmt"

	"toggle-client/pkg/wire"
)

// Transport is the client's only view of the network. Implementations must
// honor ctx cancellation.
type Transport interface {
	// FetchToggles fetches the definition set. revision is the marker of the
	// installed snapshot; an implementation may report Unchanged when the
	// service agrees it is current.
	FetchToggles(ctx context.Context, revision string) (FetchResult, error)
	SendMetrics(ctx context.Context, m wire.Metrics) error
	Register(ctx context.Context, r wire.Registration) error
}

// FetchResult is a raw definition body or a not-modified answer.
type FetchResult struct {
	Unchanged bool
	Body      []byte
	Revision  string
}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Op         string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %s", e.Op, e.Status)
}
