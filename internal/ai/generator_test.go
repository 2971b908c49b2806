package ai

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/safety"
	"github.com/myrjola/liftguard/internal/testhelpers"
)

const okSuggestion = `{"sessions_per_week": 4, "session_minutes": 60, "exercises": [
	{"name": "Bench Press", "sets": 3, "reps_min": 8, "reps_max": 12, "weight_kg": 60, "target_rpe": 8,
	 "rest_seconds": 90, "notes": ""}]}`

type reply struct {
	raw string
	err error
}

// scriptedClient returns the replies in order and repeats the last one.
type scriptedClient struct {
	mu      sync.Mutex
	replies []reply
	calls   int
}

func (c *scriptedClient) Suggest(_ context.Context, _ Prompt) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.replies[min(c.calls, len(c.replies)-1)]
	c.calls++
	return r.raw, r.err
}

func newTestGenerator(t *testing.T, client Client, cfg GeneratorConfig) (*Generator, *[]time.Duration) {
	t.Helper()
	g := NewGenerator(testhelpers.NewLogger(testhelpers.NewWriter(t)), client, cfg)
	var slept []time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	g.jitter = func(time.Duration) time.Duration { return 0 }
	return g, &slept
}

func testProfile() safety.UserProfile {
	return safety.UserProfile{Age: 25, FitnessLevel: safety.LevelIntermediate, TrainingGoal: safety.GoalHypertrophy}
}

func TestGenerator_Generate(t *testing.T) {
	serverErr := StatusError(http.StatusInternalServerError, errors.New("upstream down"))
	rateLimited := &UpstreamError{Kind: UpstreamRateLimit, StatusCode: http.StatusTooManyRequests,
		RetryAfter: 30 * time.Second, Err: errors.New("slow down")}

	tests := []struct {
		name         string
		replies      []reply
		wantSource   safety.PlanSource
		wantAttempts int
		wantReason   FallbackReason
		wantSlept    []time.Duration
	}{
		{
			name:         "first attempt succeeds",
			replies:      []reply{{raw: okSuggestion}},
			wantSource:   safety.SourceAI,
			wantAttempts: 1,
			wantReason:   ReasonNone,
		},
		{
			name:         "transient failure then success",
			replies:      []reply{{err: serverErr}, {raw: okSuggestion}},
			wantSource:   safety.SourceAI,
			wantAttempts: 2,
			wantReason:   ReasonNone,
			wantSlept:    []time.Duration{time.Second},
		},
		{
			name:         "retries exhausted",
			replies:      []reply{{err: serverErr}},
			wantSource:   safety.SourceFallback,
			wantAttempts: 3,
			wantReason:   ReasonRetryExhausted,
			wantSlept:    []time.Duration{time.Second, 2 * time.Second},
		},
		{
			name:         "retry after is capped",
			replies:      []reply{{err: rateLimited}, {raw: okSuggestion}},
			wantSource:   safety.SourceAI,
			wantAttempts: 2,
			wantReason:   ReasonNone,
			wantSlept:    []time.Duration{4 * time.Second},
		},
		{
			name:         "non-transient failure is not retried",
			replies:      []reply{{err: StatusError(http.StatusUnauthorized, errors.New("bad key"))}},
			wantSource:   safety.SourceFallback,
			wantAttempts: 1,
			wantReason:   ReasonUpstream,
		},
		{
			name:         "malformed answer is not retried",
			replies:      []reply{{raw: "I cannot help with that"}, {raw: okSuggestion}},
			wantSource:   safety.SourceFallback,
			wantAttempts: 1,
			wantReason:   ReasonAdapter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{replies: tt.replies}
			g, slept := newTestGenerator(t, client, GeneratorConfig{})

			out := g.Generate(t.Context(), testProfile(), limitsFor(testProfile()), nil)

			if out.Source != tt.wantSource || out.Attempts != tt.wantAttempts || out.Reason != tt.wantReason {
				t.Errorf("Generate() source, attempts, reason = %q, %d, %q, want %q, %d, %q",
					out.Source, out.Attempts, out.Reason, tt.wantSource, tt.wantAttempts, tt.wantReason)
			}
			if client.calls != tt.wantAttempts {
				t.Errorf("client called %d times, want %d", client.calls, tt.wantAttempts)
			}
			if diff := cmp.Diff(tt.wantSlept, *slept); diff != "" {
				t.Errorf("backoff mismatch (-want +got):\n%s", diff)
			}
			if out.Source == safety.SourceFallback && out.Err == nil {
				t.Error("fallback outcome without the error behind it")
			}
			if out.Plan.Source != out.Source {
				t.Errorf("plan source %q differs from outcome source %q", out.Plan.Source, out.Source)
			}
		})
	}
}

func TestGenerator_Generate_attemptTimeout(t *testing.T) {
	blocking := ClientFunc(func(ctx context.Context, _ Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	g, slept := newTestGenerator(t, blocking, GeneratorConfig{AttemptTimeout: 5 * time.Millisecond})

	out := g.Generate(t.Context(), testProfile(), limitsFor(testProfile()), nil)

	if out.Source != safety.SourceFallback || out.Reason != ReasonRetryExhausted || out.Attempts != 3 {
		t.Errorf("Generate() = %q %q after %d attempts, want fallback after 3 timed out attempts",
			out.Source, out.Reason, out.Attempts)
	}
	var upstream *UpstreamError
	if !errors.As(out.Err, &upstream) || upstream.Kind != UpstreamTimeout {
		t.Errorf("Generate() error = %v, want a timeout", out.Err)
	}
	if len(*slept) != 2 {
		t.Errorf("slept %d times, want 2", len(*slept))
	}
}

func TestGenerator_Generate_callerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	client := ClientFunc(func(context.Context, Prompt) (string, error) {
		cancel()
		return "", context.Canceled
	})
	g, slept := newTestGenerator(t, client, GeneratorConfig{})

	out := g.Generate(ctx, testProfile(), limitsFor(testProfile()), nil)

	if out.Reason != ReasonCanceled || out.Attempts != 1 || len(*slept) != 0 {
		t.Errorf("Generate() reason %q after %d attempts and %d sleeps, want canceled after 1",
			out.Reason, out.Attempts, len(*slept))
	}
}

func TestGenerator_Generate_noClient(t *testing.T) {
	g, _ := newTestGenerator(t, nil, GeneratorConfig{})
	out := g.Generate(t.Context(), testProfile(), limitsFor(testProfile()), nil)
	if out.Source != safety.SourceFallback || out.Reason != ReasonNoClient || out.Attempts != 0 {
		t.Errorf("Generate() = %q %q %d, want fallback without attempts", out.Source, out.Reason, out.Attempts)
	}
}

func TestGenerator_Generate_circuitBreaker(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	client := &scriptedClient{replies: []reply{{err: StatusError(http.StatusForbidden, errors.New("denied"))}}}
	g, _ := newTestGenerator(t, client, GeneratorConfig{BreakerThreshold: 2, BreakerCooldown: time.Minute})
	g.breaker.now = func() time.Time { return now }

	profile := testProfile()
	limits := limitsFor(profile)
	for range 2 {
		g.Generate(t.Context(), profile, limits, nil)
	}
	if out := g.Generate(t.Context(), profile, limits, nil); out.Reason != ReasonCircuitOpen {
		t.Fatalf("Generate() reason = %q after repeated failures, want circuit open", out.Reason)
	}
	if client.calls != 2 {
		t.Errorf("client called %d times, want 2 while the circuit is open", client.calls)
	}

	now = now.Add(2 * time.Minute)
	client.replies = []reply{{raw: okSuggestion}}
	if out := g.Generate(t.Context(), profile, limits, nil); out.Source != safety.SourceAI {
		t.Fatalf("Generate() after cooldown = %q %q, want ai", out.Source, out.Reason)
	}
	if out := g.Generate(t.Context(), profile, limits, nil); out.Source != safety.SourceAI {
		t.Errorf("Generate() after a successful probe = %q, want the circuit closed", out.Source)
	}
}

func limitsFor(profile safety.UserProfile) safety.SafetyLimits {
	return safety.ResolveLimits(safety.DefaultPolicy(), profile)
}

func TestGenerator_Generate_attemptsAreCapped(t *testing.T) {
	client := &scriptedClient{replies: []reply{{err: StatusError(http.StatusServiceUnavailable, errors.New("down"))}}}
	g, _ := newTestGenerator(t, client, GeneratorConfig{MaxAttempts: 10}) //nolint:exhaustruct // defaults.

	out := g.Generate(t.Context(), testProfile(), limitsFor(testProfile()), nil)

	if client.calls != defaultMaxAttempts || out.Attempts != defaultMaxAttempts {
		t.Errorf("upstream called %d times over %d attempts, want %d", client.calls, out.Attempts, defaultMaxAttempts)
	}
	if out.Reason != ReasonRetryExhausted {
		t.Errorf("reason = %q, want %q", out.Reason, ReasonRetryExhausted)
	}
}

func TestGenerator_backoff_jitter(t *testing.T) {
	g := NewGenerator(testhelpers.NewDiscardLogger(), nil, GeneratorConfig{}) //nolint:exhaustruct // defaults.
	serverErr := StatusError(http.StatusInternalServerError, errors.New("upstream down"))

	var maxJitter []time.Duration
	g.jitter = func(n time.Duration) time.Duration {
		maxJitter = append(maxJitter, n)
		return n - 1
	}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second + 250*time.Millisecond - 1},
		{attempt: 2, want: 2*time.Second + 500*time.Millisecond - 1},
		{attempt: 3, want: 4 * time.Second}, // capped
	}
	for _, tt := range tests {
		if got := g.backoff(tt.attempt, serverErr); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second}
	if diff := cmp.Diff(want, maxJitter); diff != "" {
		t.Errorf("jitter bounds mismatch (-want +got):\n%s", diff)
	}

	for range 100 {
		if d := randomJitter(time.Second); d < 0 || d >= time.Second {
			t.Fatalf("randomJitter(1s) = %v, want [0, 1s)", d)
		}
	}
	if d := randomJitter(0); d != 0 {
		t.Errorf("randomJitter(0) = %v, want 0", d)
	}
}
