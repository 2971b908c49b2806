package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/myrjola/liftguard/internal/e2etest"
	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/logging"
	"github.com/myrjola/liftguard/internal/safety"
	"github.com/myrjola/liftguard/internal/testhelpers"
	"github.com/myrjola/liftguard/internal/workout"
)

var smokeProfile = map[string]any{ //nolint:gochecknoglobals // fixture.
	"age": 35, "fitness_level": "beginner", "training_goal": "balanced",
}

// checkDecisions verifies that limits resolve and that an obviously unsafe plan is rejected.
func checkDecisions(ctx context.Context, client *e2etest.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	resp, err := client.PostJSON(ctx, "/api/limits", map[string]any{"profile": smokeProfile})
	if err != nil {
		return errors.Wrap(err, "post limits")
	}
	limits, err := e2etest.DecodeJSON[safety.SafetyLimits](resp, http.StatusOK)
	if err != nil {
		return errors.Wrap(err, "decode limits")
	}

	plan := map[string]any{
		"sessions_per_week": limits.SessionsPerWeek.Max + 3,
		"exercises": []any{map[string]any{
			"name": "Back Squat", "sets": 3, "min_reps": 5, "max_reps": 8,
			"weight_kg": 200, "baseline_weight_kg": 60,
		}},
	}
	resp, err = client.PostJSON(ctx, "/api/validate", map[string]any{"profile": smokeProfile, "plan": plan})
	if err != nil {
		return errors.Wrap(err, "post validate")
	}
	ev, err := e2etest.DecodeJSON[workout.Evaluation](resp, http.StatusOK)
	if err != nil {
		return errors.Wrap(err, "decode evaluation")
	}
	if ev.Result.Verdict != safety.VerdictRejected {
		return errors.New("unsafe plan was not rejected", slog.String("verdict", string(ev.Result.Verdict)))
	}
	return nil
}

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		start    = time.Now()
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", hostname))
	url := "https://" + hostname
	if strings.Contains(hostname, "localhost") {
		url = "http://" + hostname
	}

	client := e2etest.NewClient(url)
	if err := client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready in time", errors.SlogError(err))
		os.Exit(1)
	}
	if err := checkDecisions(ctx, client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error checking safety decisions", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌", slog.Duration("duration", time.Since(start)))
}
