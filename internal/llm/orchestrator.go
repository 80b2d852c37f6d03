package llm

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quizd/internal/config"
)

// Attempt is one entry in the fallback chain's attempt trail. The trail is
// strictly monotonic in Index and, within an index, in Retry.
type Attempt struct {
	Backend    string `json:"backend"`
	Index      int    `json:"index"`
	Retry      int    `json:"retry"`
	Kind       Kind   `json:"kind,omitempty"`
	Error      string `json:"error,omitempty"`
	Success    bool   `json:"success"`
	DurationMs int64  `json:"durationMs"`
}

// Outcome is the result of driving a fallback chain.
type Outcome struct {
	// Result and BackendID are set on success.
	Result    *GenerateResult
	BackendID string

	// Resumable is set when the pipeline budget expired with backends still
	// untried; NextIndex is where a later invocation should resume.
	Resumable bool
	NextIndex int

	Attempted []string
	Trail     []Attempt
}

// AcceptFunc lets the caller reject a syntactically successful response.
// A rejection is attributed to the backend's output (KindParse) and advances
// the chain.
type AcceptFunc func(*GenerateResult) error

// Orchestrator drives an ordered backend chain through the retry-then-advance
// protocol: transient failures retry the same backend with exponential
// backoff, everything else advances, and an index is never revisited once
// advanced past.
type Orchestrator struct {
	chain []Backend

	callTimeout time.Duration
	budget      time.Duration

	maxRetries  int
	backoffBase time.Duration
	backoffMult float64
	backoffCap  time.Duration

	logger *zap.Logger

	// sleep is replaceable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator over the given chain.
func NewOrchestrator(chain []Backend, cfg config.ModelsConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		chain:       chain,
		callTimeout: cfg.CallTimeout,
		budget:      cfg.PipelineBudget,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		backoffMult: cfg.BackoffMultiplier,
		backoffCap:  cfg.BackoffCap,
		logger:      logger.Named("orchestrator"),
		sleep:       sleepCtx,
	}
}

// ChainLen returns the number of backends in the chain.
func (o *Orchestrator) ChainLen() int { return len(o.chain) }

// Run drives the chain starting at startIndex until a backend succeeds, the
// chain is exhausted, or the pipeline budget runs out.
//
// On success the Outcome carries the accepted result and full trail. When
// the budget expires with backends remaining, Run returns a resumable
// Outcome (nil error) whose NextIndex a later invocation passes back as
// startIndex; this is how a fallback chain spans multiple execution-time
// ceilings. When every backend fails, Run returns a ChainExhaustedError
// carrying the trail.
func (o *Orchestrator) Run(ctx context.Context, prompt string, params CallParams, startIndex int, accept AcceptFunc) (*Outcome, error) {
	out := &Outcome{NextIndex: startIndex}
	if startIndex < 0 || startIndex >= len(o.chain) {
		return out, &ChainExhaustedError{Trail: nil}
	}

	deadline := time.Now().Add(o.budget)

	for index := startIndex; index < len(o.chain); index++ {
		backend := o.chain[index]
		out.Attempted = append(out.Attempted, backend.ID())

		for retry := 0; ; retry++ {
			if time.Until(deadline) <= 0 {
				out.Resumable = true
				out.NextIndex = index
				o.logger.Warn("pipeline budget expired, chain is resumable",
					zap.Int("next_index", index),
					zap.Strings("attempted", out.Attempted))
				return out, nil
			}

			callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
			start := time.Now()
			result, err := backend.Generate(callCtx, prompt, params)
			cancel()

			attempt := Attempt{
				Backend:    backend.ID(),
				Index:      index,
				Retry:      retry,
				DurationMs: time.Since(start).Milliseconds(),
			}

			if err == nil && accept != nil {
				if acceptErr := accept(result); acceptErr != nil {
					err = &BackendError{Kind: KindParse, Backend: backend.ID(), Err: acceptErr}
				}
			}

			if err == nil {
				attempt.Success = true
				out.Trail = append(out.Trail, attempt)
				out.Result = result
				out.BackendID = backend.ID()
				out.NextIndex = index + 1
				o.logger.Info("generation succeeded",
					zap.String("backend", backend.ID()),
					zap.Int("attempts", len(out.Trail)))
				return out, nil
			}

			// The caller cancelled; unwind without consuming the chain.
			if ctx.Err() != nil {
				return out, ctx.Err()
			}

			kind := Classify(err)
			attempt.Kind = kind
			attempt.Error = err.Error()
			out.Trail = append(out.Trail, attempt)

			o.logger.Warn("generation attempt failed",
				zap.String("backend", backend.ID()),
				zap.Int("retry", retry),
				zap.String("kind", string(kind)),
				zap.Error(err))

			if kind == KindTransient && retry < o.maxRetries-1 {
				if err := o.sleep(ctx, o.backoffDelay(retry)); err != nil {
					return out, err
				}
				continue
			}

			// Terminal, parse, or retries exhausted: advance.
			break
		}
	}

	out.NextIndex = len(o.chain)
	return out, &ChainExhaustedError{Trail: out.Trail}
}

// backoffDelay computes min(base * mult^attempt, cap).
func (o *Orchestrator) backoffDelay(attempt int) time.Duration {
	d := time.Duration(float64(o.backoffBase) * math.Pow(o.backoffMult, float64(attempt)))
	if d > o.backoffCap {
		d = o.backoffCap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
