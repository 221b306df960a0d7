package client

import (
	"errors"
	"fmt"

	"toggle-client/internal/poller"
	"toggle-client/pkg/wire"
)

var (
	// ErrInvalidConfig is returned by New for unusable options.
	ErrInvalidConfig = errors.New("invalid client config")

	ErrAlreadyStarted = errors.New("client already started")
	ErrNotStarted     = errors.New("client not started")
)

// RegistrationError means the service rejected or never received the
// startup registration. Start does not retry it.
type RegistrationError struct{ Err error }

func (e *RegistrationError) Error() string { return "register client: " + e.Err.Error() }
func (e *RegistrationError) Unwrap() error { return e.Err }

// FetchError is a failed definition fetch. The prior snapshot is kept.
type FetchError struct{ Err error }

func (e *FetchError) Error() string { return "fetch toggles: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a definition set that could not be decoded. The prior
// snapshot is kept.
type ParseError struct{ Err error }

func (e *ParseError) Error() string { return "parse toggles: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// MetricsSendError is a usage report the service did not accept. The
// window it carried is gone.
type MetricsSendError struct{ Err error }

func (e *MetricsSendError) Error() string { return "send metrics: " + e.Err.Error() }
func (e *MetricsSendError) Unwrap() error { return e.Err }

func classifyPoll(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wire.ErrParse):
		return &ParseError{Err: err}
	case errors.Is(err, poller.ErrFetch):
		return &FetchError{Err: err}
	}
	return fmt.Errorf("poll: %w", err)
}
