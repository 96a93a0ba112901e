package ai

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProviderTimeout     = errors.New("provider timed out")
	ErrProviderHTTP        = errors.New("provider http error")
	ErrParse               = errors.New("malformed provider response")
	ErrNoProviderAvailable = errors.New("no provider available")
	ErrAllProvidersFailed  = errors.New("all providers failed")
	ErrCancelled           = errors.New("request cancelled")
	ErrTimeout             = errors.New("request timed out")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrInvalidRequest      = errors.New("invalid analysis request")
)

// ProviderHTTPError is a non-2xx reply, or a transport failure when
// StatusCode is 0.
type ProviderHTTPError struct {
	Provider   ProviderID
	StatusCode int
	Body       string
}

func (e *ProviderHTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: request failed: %s", e.Provider, body)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, body)
}

func (e *ProviderHTTPError) Unwrap() error { return ErrProviderHTTP }

// ParseError means the provider answered but nothing usable could be read
// from the reply.
type ParseError struct {
	Provider ProviderID
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Provider, ErrParse, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// Attempt is one provider call made while serving a request.
type Attempt struct {
	Provider ProviderID
	Err      error
}

// AllProvidersFailedError carries every attempt of a failed failover loop.
// It matches both ErrAllProvidersFailed and the last provider's error.
type AllProvidersFailedError struct {
	Attempts []Attempt
	Last     error
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return fmt.Sprintf("%s [%s]", ErrAllProvidersFailed, strings.Join(parts, "; "))
}

func (e *AllProvidersFailedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrAllProvidersFailed}
	}
	return []error{ErrAllProvidersFailed, e.Last}
}

// IsFailoverEligible reports whether err is a local provider failure that
// another provider may recover from.
func IsFailoverEligible(err error) bool {
	if err == nil || IsTerminal(err) {
		return false
	}
	return errors.Is(err, ErrProviderTimeout) ||
		errors.Is(err, ErrProviderHTTP) ||
		errors.Is(err, ErrParse)
}

// IsTerminal reports whether err ends a request regardless of the providers
// left to try.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, ErrTimeout)
}
