package ai

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/progression"
	"github.com/myrjola/liftguard/internal/safety"
)

// FallbackReason tells why a generated plan is the canned fallback.
type FallbackReason string

const (
	ReasonNone           FallbackReason = ""
	ReasonNoClient       FallbackReason = "no_client"
	ReasonCircuitOpen    FallbackReason = "circuit_open"
	ReasonRetryExhausted FallbackReason = "retries_exhausted"
	ReasonUpstream       FallbackReason = "upstream_error"
	ReasonAdapter        FallbackReason = "adapter_error"
	ReasonCanceled       FallbackReason = "canceled"
)

// GeneratorConfig tunes the retry policy. Zero values take the defaults.
type GeneratorConfig struct {
	// MaxAttempts defaults to 3, which is also the most allowed.
	MaxAttempts int
	// AttemptTimeout bounds each model call, defaults to 15 seconds.
	AttemptTimeout time.Duration
	// BaseBackoff is the delay after the first failed attempt and doubles per attempt, defaults to 1 second.
	BaseBackoff time.Duration
	// MaxBackoff caps any delay including upstream Retry-After hints, defaults to 4 seconds.
	MaxBackoff time.Duration
	// BreakerThreshold is the number of consecutive failed generations opening the circuit, defaults to 5.
	BreakerThreshold int
	// BreakerCooldown is how long an open circuit skips the model, defaults to 30 seconds.
	BreakerCooldown time.Duration
}

const (
	defaultMaxAttempts      = 3
	defaultAttemptTimeout   = 15 * time.Second
	defaultBaseBackoff      = time.Second
	defaultMaxBackoff       = 4 * time.Second
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.MaxAttempts <= 0 || c.MaxAttempts > defaultMaxAttempts {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = defaultAttemptTimeout
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = defaultBreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaultBreakerCooldown
	}
	return c
}

// Outcome is the result of one plan generation.
type Outcome struct {
	Plan     safety.WorkoutPlan
	Source   safety.PlanSource
	Attempts int
	Reason   FallbackReason
	// Err is the last failure behind a fallback, nil when the model delivered.
	Err      error
	Duration time.Duration
}

// Generator asks a [Client] for a plan and falls back to [FallbackPlan] when it cannot get a usable one.
// It is safe for concurrent use.
type Generator struct {
	client  Client
	logger  *slog.Logger
	cfg     GeneratorConfig
	breaker *circuitBreaker
	sleep   func(ctx context.Context, d time.Duration) error
	// jitter returns a random duration in [0, n).
	jitter func(n time.Duration) time.Duration
}

// NewGenerator creates a Generator. A nil client always yields the fallback plan.
func NewGenerator(logger *slog.Logger, client Client, cfg GeneratorConfig) *Generator {
	cfg = cfg.withDefaults()
	return &Generator{
		client:  client,
		logger:  logger,
		cfg:     cfg,
		breaker: newCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, time.Now),
		sleep:   sleepContext,
		jitter:  randomJitter,
	}
}

// Generate returns a candidate plan for profile within limits. It never fails: every failure path ends in the
// fallback plan with the reason recorded in the outcome.
func (g *Generator) Generate(
	ctx context.Context,
	profile safety.UserProfile,
	limits safety.SafetyLimits,
	recent []progression.ExerciseSession,
) Outcome {
	start := time.Now()
	out := g.generate(ctx, profile, limits, recent)
	out.Duration = time.Since(start)

	if out.Source == safety.SourceFallback {
		g.logger.LogAttrs(ctx, slog.LevelWarn, "using fallback plan",
			slog.String("reason", string(out.Reason)),
			slog.Int("attempts", out.Attempts),
			errors.SlogError(out.Err))
	}
	return out
}

func (g *Generator) generate(
	ctx context.Context,
	profile safety.UserProfile,
	limits safety.SafetyLimits,
	recent []progression.ExerciseSession,
) Outcome {
	fallback := func(attempts int, reason FallbackReason, err error) Outcome {
		return Outcome{
			Plan:     FallbackPlan(profile, limits),
			Source:   safety.SourceFallback,
			Attempts: attempts,
			Reason:   reason,
			Err:      err,
			Duration: 0,
		}
	}

	if g.client == nil {
		return fallback(0, ReasonNoClient, nil)
	}
	if !g.breaker.allow() {
		return fallback(0, ReasonCircuitOpen, nil)
	}

	prompt := BuildPrompt(profile, limits, recent)

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		raw, err := g.attempt(ctx, prompt)
		if err == nil {
			plan, adaptErr := AdaptSuggestion(raw, profile)
			if adaptErr != nil {
				g.breaker.failure()
				return fallback(attempt, ReasonAdapter, adaptErr)
			}
			g.breaker.success()
			return Outcome{
				Plan:     plan,
				Source:   safety.SourceAI,
				Attempts: attempt,
				Reason:   ReasonNone,
				Err:      nil,
				Duration: 0,
			}
		}

		upstream := Classify(err)
		lastErr = upstream
		if ctx.Err() != nil || upstream.Kind == UpstreamCanceled {
			g.breaker.release()
			return fallback(attempt, ReasonCanceled, upstream)
		}
		if !upstream.Retryable() {
			g.breaker.failure()
			return fallback(attempt, ReasonUpstream, upstream)
		}
		if attempt == g.cfg.MaxAttempts {
			break
		}

		delay := g.backoff(attempt, upstream)
		g.logger.LogAttrs(ctx, slog.LevelInfo, "retrying ai suggestion",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error_kind", string(upstream.Kind)))
		if err = g.sleep(ctx, delay); err != nil {
			g.breaker.release()
			return fallback(attempt, ReasonCanceled, errors.Wrap(err, "wait before retry"))
		}
	}

	g.breaker.failure()
	return fallback(g.cfg.MaxAttempts, ReasonRetryExhausted, lastErr)
}

func (g *Generator) attempt(ctx context.Context, prompt Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
	defer cancel()
	return g.client.Suggest(ctx, prompt)
}

// backoff doubles the base delay per failed attempt and adds up to a quarter of it as jitter so that concurrent
// generations do not retry in lockstep. A Retry-After hint from the upstream replaces it. Both are capped.
func (g *Generator) backoff(attempt int, err *UpstreamError) time.Duration {
	if err.RetryAfter > 0 {
		return min(err.RetryAfter, g.cfg.MaxBackoff)
	}
	delay := g.cfg.BaseBackoff << (attempt - 1)
	delay += g.jitter(delay / 4) //nolint:mnd // a quarter.
	return min(delay, g.cfg.MaxBackoff)
}

func randomJitter(n time.Duration) time.Duration {
	if n <= 0 {
		return 0
	}
	return rand.N(n)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
