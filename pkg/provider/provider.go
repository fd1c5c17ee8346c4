// Package provider performs the metered calls to the market-data API.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrFailedInFlight is wrapped by every error a Fetcher returns for a call
// that reached (or tried to reach) the provider and did not succeed.
var ErrFailedInFlight = errors.New("provider call failed")

// Kind classifies a failed call.
type Kind string

const (
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindSentinel  Kind = "sentinel"
	KindDecode    Kind = "decode"
	KindCanceled  Kind = "canceled"
)

// Error describes a failed provider call.
type Error struct {
	Provider string
	Kind     Kind
	Status   int
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" %d", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches ErrFailedInFlight.
func (e *Error) Is(target error) bool { return target == ErrFailedInFlight }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Fetcher fetches one JSON document for a flat parameter set.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, params map[string]string) ([]byte, error)
}
