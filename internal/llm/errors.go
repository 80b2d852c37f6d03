// Package llm drives generation backends through a retry-then-advance
// fallback protocol.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of backend failure classes. Backend-call failures
// are wrapped into a Kind at the boundary with the external client, so the
// orchestrator never pattern-matches error strings of its own errors.
type Kind string

const (
	// KindTransient failures (timeouts, rate limits, 5xx) are retried in
	// place up to a bounded count.
	KindTransient Kind = "transient"

	// KindTerminal failures (auth, quota, context length, unknown model)
	// abandon the current backend and advance the chain.
	KindTerminal Kind = "terminal"

	// KindParse marks malformed or semantically invalid generated output.
	// The defect is attributable to the backend, so the chain advances
	// exactly as for KindTerminal.
	KindParse Kind = "parse"

	// KindExhausted means every backend in the chain failed.
	KindExhausted Kind = "exhausted"
)

// BackendError tags an underlying failure with its Kind and the backend it
// came from.
type BackendError struct {
	Kind    Kind
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// ChainExhaustedError is returned when no backend in the chain produced a
// usable result. It carries the full attempt trail for diagnostics.
type ChainExhaustedError struct {
	Trail []Attempt
}

func (e *ChainExhaustedError) Error() string {
	return fmt.Sprintf("all %d generation backends exhausted", len(e.Trail))
}

// transientPatterns and terminalPatterns are the last-resort string
// classification for errors from uncontrolled SDK clients. Anything
// unrecognized is treated as terminal: unknown failures advance the chain,
// they are never retried in place.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"rate limit",
	"rate_limit",
	"too many requests",
	"try again",
	"429",
	"500",
	"502",
	"503",
	"504",
	"overloaded",
	"connection reset",
	"connection refused",
	"temporarily unavailable",
}

var terminalPatterns = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"invalid api key",
	"invalid_api_key",
	"incorrect api key",
	"quota",
	"billing",
	"insufficient_quota",
	"context length",
	"context_length_exceeded",
	"maximum context",
	"model not found",
	"model_not_found",
	"unknown model",
	"404",
}

// Classify maps a backend-call failure to its Kind. Errors already tagged
// with a BackendError keep their kind; everything else goes through the
// string-pattern adapter.
func Classify(err error) Kind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	// Terminal patterns win: "429 quota exceeded" must not loop.
	for _, p := range terminalPatterns {
		if strings.Contains(msg, p) {
			return KindTerminal
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return KindTransient
		}
	}
	return KindTerminal
}
