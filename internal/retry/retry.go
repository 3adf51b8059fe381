package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"mercari/monitor/internal/faults"

	log "github.com/sirupsen/logrus"
)

// Policy is the immutable retry configuration for one operation family.
type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultPolicy matches the pacing used against the marketplace: few
// attempts, generous delays.
var DefaultPolicy = Policy{
	MaxAttempts:       3,
	BaseDelay:         1 * time.Second,
	MaxDelay:          60 * time.Second,
	BackoffMultiplier: 2.0,
}

// Jitter band applied to every computed wait.
const (
	jitterMin = 0.8
	jitterMax = 1.2
)

// Default wait band when no strategy supplies a hint for a retryable
// failure.
const (
	defaultWaitMin = 3 * time.Second
	defaultWaitMax = 8 * time.Second
)

// Outcome is what a recovery strategy reports back for one failure.
// Produced fresh per failure, never persisted.
type Outcome struct {
	Attempted        bool
	Succeeded        bool
	RetryRecommended bool
	WaitHint         time.Duration
	RestartSession   bool
}

// Invocation describes the failing call to a recovery strategy.
type Invocation struct {
	Operation string
	Attempt   int
	Max       int
}

// StrategyFunc performs a bounded remedial action for one failure kind
// (e.g. reloading the page through the browser collaborator) and says
// whether the executor should try again.
type StrategyFunc func(ctx context.Context, failure error, inv Invocation) Outcome

// Stats counts what happened during one run. Owned by the caller and
// handed in per run; the executor keeps no cross-call state of its own.
type Stats struct {
	Attempts          int
	Failures          map[faults.Kind]int
	Recoveries        int
	SecondaryFailures int
	RestartsAdvised   int
}

func (s *Stats) recordFailure(kind faults.Kind) {
	if s == nil {
		return
	}
	if s.Failures == nil {
		s.Failures = make(map[faults.Kind]int)
	}
	s.Failures[kind]++
}

// Executor re-invokes fallible operations under a policy, consulting
// the fault classifier and optional per-kind recovery strategies.
type Executor struct {
	policy     Policy
	strategies map[faults.Kind]StrategyFunc
	stats      *Stats

	// overridable in tests
	sleep func(ctx context.Context, d time.Duration) error
	randf func() float64
}

// NewExecutor builds an executor. strategies and stats may be nil.
func NewExecutor(policy Policy, strategies map[faults.Kind]StrategyFunc, stats *Stats) *Executor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BackoffMultiplier <= 0 {
		policy.BackoffMultiplier = DefaultPolicy.BackoffMultiplier
	}
	return &Executor{
		policy:     policy,
		strategies: strategies,
		stats:      stats,
		sleep:      sleepCtx,
		randf:      rand.Float64,
	}
}

// Do runs op until it succeeds, the policy is exhausted, or the failure
// is not worth retrying. The last error is always propagated, retagged
// fatal when its severity was critical.
func (e *Executor) Do(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s cancelled before attempt %d: %w", operation, attempt, err)
		}

		if e.stats != nil {
			e.stats.Attempts++
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		kind := faults.KindOf(err)
		severity := faults.Classify(err)
		e.stats.recordFailure(kind)
		log.Warnf("⚠️ %s attempt %d/%d failed (%s/%s): %v",
			operation, attempt, e.policy.MaxAttempts, kind, severity, err)

		if attempt == e.policy.MaxAttempts {
			break
		}

		outcome := e.recover(ctx, err, Invocation{
			Operation: operation,
			Attempt:   attempt,
			Max:       e.policy.MaxAttempts,
		})
		if outcome.Succeeded && e.stats != nil {
			e.stats.Recoveries++
		}
		if outcome.RestartSession && e.stats != nil {
			e.stats.RestartsAdvised++
		}

		if severity == faults.SeverityCritical || !outcome.RetryRecommended {
			log.Errorf("🛑 %s not retried after attempt %d (%s/%s)", operation, attempt, kind, severity)
			break
		}

		wait := e.waitFor(outcome, attempt)
		log.Debugf("💤 %s backing off %v before attempt %d", operation, wait.Round(time.Millisecond), attempt+1)
		if err := e.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%s cancelled during backoff: %w", operation, err)
		}
	}

	if faults.Classify(lastErr) == faults.SeverityCritical {
		lastErr = faults.Retag(faults.KindFatal, lastErr)
	}
	return lastErr
}

// Do runs a value-returning operation through the executor. The zero
// value is returned alongside the final error.
func Do[T any](ctx context.Context, e *Executor, operation string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, operation, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// recover consults the strategy registered for the failure kind, or the
// severity-based default when none is registered. A panicking strategy
// is a secondary failure and never retried.
func (e *Executor) recover(ctx context.Context, failure error, inv Invocation) (outcome Outcome) {
	strategy, ok := e.strategies[faults.KindOf(failure)]
	if !ok {
		return e.defaultOutcome(failure)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("❌ recovery strategy for %s panicked: %v", inv.Operation, r)
			if e.stats != nil {
				e.stats.SecondaryFailures++
			}
			outcome = Outcome{Attempted: true, RetryRecommended: false}
		}
	}()

	return strategy(ctx, failure, inv)
}

func (e *Executor) defaultOutcome(failure error) Outcome {
	switch faults.Classify(failure) {
	case faults.SeverityLow, faults.SeverityMedium:
		band := float64(defaultWaitMax - defaultWaitMin)
		return Outcome{
			RetryRecommended: true,
			WaitHint:         defaultWaitMin + time.Duration(e.randf()*band),
		}
	default:
		return Outcome{RetryRecommended: false}
	}
}

// waitFor picks the strategy's hint when it gave one, otherwise the
// capped exponential backoff, then jitters the result.
func (e *Executor) waitFor(outcome Outcome, attempt int) time.Duration {
	wait := outcome.WaitHint
	if wait <= 0 {
		wait = backoffDelay(e.policy, attempt)
	}
	factor := jitterMin + e.randf()*(jitterMax-jitterMin)
	return time.Duration(float64(wait) * factor)
}

// backoffDelay computes baseDelay * multiplier^(attempt-1), capped at
// maxDelay. attempt is 1-indexed.
func backoffDelay(policy Policy, attempt int) time.Duration {
	delay := float64(policy.BaseDelay) * math.Pow(policy.BackoffMultiplier, float64(attempt-1))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
