// Package workout orchestrates the decision engine for a user: it loads history, asks the analyzer or the plan
// generator for a candidate and passes every candidate through the safety validator before it is returned.
package workout

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/liftguard/internal/ai"
	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/metrics"
	"github.com/myrjola/liftguard/internal/progression"
	"github.com/myrjola/liftguard/internal/safety"
	"golang.org/x/sync/errgroup"
)

const (
	// recentSessions is how many sessions across exercises give the model context.
	recentSessions = 12
	// baselineLookups bounds concurrent latest weight queries.
	baselineLookups = 4
	// maxHistoryLimit bounds history listings.
	maxHistoryLimit = 100
	maxRecordedSets = 50
	maxRecordedReps = 1000
)

// InputError is returned for request data that fails field level checks.
type InputError struct {
	Violations []safety.Violation
}

func (e *InputError) Error() string {
	if len(e.Violations) == 0 {
		return "invalid input"
	}
	return "invalid input: " + e.Violations[0].Message
}

// Service is safe for concurrent use.
type Service struct {
	repo      HistoryRepository
	policy    safety.Policy
	analyzer  *progression.Analyzer
	generator *ai.Generator
	metrics   *metrics.Manager
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service. The policy must be valid, see [safety.Policy.Validate].
func NewService(
	logger *slog.Logger,
	repo HistoryRepository,
	policy safety.Policy,
	generator *ai.Generator,
	m *metrics.Manager,
) *Service {
	return &Service{
		repo:      repo,
		policy:    policy,
		analyzer:  progression.NewAnalyzer(policy),
		generator: generator,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Policy returns the active safety policy.
func (s *Service) Policy() safety.Policy {
	return s.policy
}

// ResolveLimits resolves the limits for profile. A malformed profile yields its violations and zero limits.
func (s *Service) ResolveLimits(profile safety.UserProfile) (safety.SafetyLimits, []safety.Violation) {
	if violations := profile.Validate(); len(violations) > 0 {
		return safety.SafetyLimits{}, violations
	}
	return safety.ResolveLimits(s.policy, profile), nil
}

// Validate checks a plan written by the user or another external author.
func (s *Service) Validate(ctx context.Context, profile safety.UserProfile, plan safety.WorkoutPlan) Evaluation {
	if plan.Source == "" {
		plan.Source = safety.SourceUser
	}
	ev := s.newEvaluation(profile, plan.Source)
	limits, violations := s.ResolveLimits(profile)
	if len(violations) > 0 {
		ev.Result = safety.Rejected(violations...)
		return s.finish(ctx, ev)
	}
	ev.Limits = &limits
	ev.Result = safety.Validate(plan, limits, profile.ReportedInjury)
	return s.finish(ctx, ev)
}

// Progress suggests the next session of one exercise from the user's history. The error is only set when the history
// could not be read.
func (s *Service) Progress(
	ctx context.Context,
	userID, exerciseID string,
	profile safety.UserProfile,
) (Evaluation, error) {
	ev := s.newEvaluation(profile, safety.SourceAnalyzer)
	limits, violations := s.ResolveLimits(profile)
	if len(violations) > 0 {
		ev.Result = safety.Rejected(violations...)
		return s.finish(ctx, ev), nil
	}

	history, err := s.repo.ExerciseHistory(ctx, userID, exerciseID, max(s.policy.Analyzer.WindowSize, 1))
	if err != nil {
		return Evaluation{}, errors.Wrap(err, "load exercise history")
	}

	suggestion := s.analyzer.Analyze(history, profile)
	s.metrics.Suggestions.WithLabelValues(string(suggestion.Type), string(suggestion.Confidence)).Inc()
	plan := progression.NextPlan(history, suggestion, limits, profile.ReportedInjury)

	ev.Limits = &limits
	ev.Suggestion = &suggestion
	ev.Result = safety.Validate(plan, limits, profile.ReportedInjury)
	if ev.Result.Verdict == safety.VerdictRejected {
		s.logger.LogAttrs(ctx, slog.LevelError, "validator rejected analyzer plan",
			slog.String("exercise_id", exerciseID),
			slog.String("suggestion", string(suggestion.Type)),
			slog.Int("violations", len(ev.Result.Violations)))
	}
	return s.finish(ctx, ev), nil
}

// GeneratePlan asks the plan generator for a weekly plan. A model plan that the validator rejects is replaced by the
// fallback plan. The error is only set when the baselines of a model plan could not be read.
func (s *Service) GeneratePlan(ctx context.Context, userID string, profile safety.UserProfile) (Evaluation, error) {
	limits, violations := s.ResolveLimits(profile)
	if len(violations) > 0 {
		ev := s.newEvaluation(profile, safety.SourceAI)
		ev.Result = safety.Rejected(violations...)
		return s.finish(ctx, ev), nil
	}

	recent, err := s.repo.RecentSessions(ctx, userID, recentSessions)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "generating plan without history", errors.SlogError(err))
		recent = nil
	}

	out := s.generator.Generate(ctx, profile, limits, recent)
	s.metrics.GenerationDuration.Observe(out.Duration.Seconds())
	generation := &Generation{
		Attempts:   out.Attempts,
		Reason:     out.Reason,
		DurationMs: out.Duration.Milliseconds(),
		Discarded:  nil,
	}

	plan := out.Plan
	if plan.Source == safety.SourceAI {
		if err = s.fillBaselines(ctx, userID, &plan); err != nil {
			return Evaluation{}, err
		}
	}
	result := safety.Validate(plan, limits, profile.ReportedInjury)

	if plan.Source == safety.SourceAI && result.Verdict == safety.VerdictRejected {
		s.recordVerdict(plan.Source, result)
		s.logger.LogAttrs(ctx, slog.LevelWarn, "validator rejected model plan, using fallback",
			slog.Int("violations", len(result.Violations)))
		generation.Reason = ReasonSafetyRejected
		generation.Discarded = result.Violations
		plan = ai.FallbackPlan(profile, limits)
		result = safety.Validate(plan, limits, profile.ReportedInjury)
	}
	s.metrics.Generations.WithLabelValues(string(plan.Source), string(generation.Reason)).Inc()

	ev := s.newEvaluation(profile, plan.Source)
	ev.Limits = &limits
	ev.Generation = generation
	ev.Result = result
	return s.finish(ctx, ev), nil
}

// fillBaselines sets the last performed weight of every weighted exercise that has none. Exercises the user never
// performed keep a nil baseline.
func (s *Service) fillBaselines(ctx context.Context, userID string, plan *safety.WorkoutPlan) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(baselineLookups)
	for i := range plan.Exercises {
		e := &plan.Exercises[i]
		if e.WeightKg == nil || e.BaselineWeightKg != nil || e.ExerciseID == "" {
			continue
		}
		g.Go(func() error {
			weight, err := s.repo.LatestWeight(gctx, userID, e.ExerciseID)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "lookup baseline", slog.String("exercise_id", e.ExerciseID))
			}
			e.BaselineWeightKg = &weight
			return nil
		})
	}
	return errors.Wrap(g.Wait(), "fill baselines")
}

// RecordSession stores a performed session. Malformed sessions return an [*InputError].
func (s *Service) RecordSession(ctx context.Context, userID string, session progression.ExerciseSession) error {
	if session.Date.IsZero() {
		session.Date = s.now()
	}
	if violations := validateSession(userID, session); len(violations) > 0 {
		return &InputError{Violations: violations}
	}
	return errors.Wrap(s.repo.RecordSession(ctx, userID, session), "record session")
}

// History returns up to limit of the latest sessions of an exercise, oldest first.
func (s *Service) History(
	ctx context.Context,
	userID, exerciseID string,
	limit int,
) (progression.ExerciseHistory, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	history, err := s.repo.ExerciseHistory(ctx, userID, exerciseID, limit)
	return history, errors.Wrap(err, "load exercise history")
}

func (s *Service) newEvaluation(profile safety.UserProfile, source safety.PlanSource) Evaluation {
	return Evaluation{ //nolint:exhaustruct // filled by the caller.
		ID:        uuid.New(),
		CreatedAt: s.now().UTC(),
		Profile:   profile,
		Source:    source,
	}
}

// finish renders the notice, records the verdict and logs the decision.
func (s *Service) finish(ctx context.Context, ev Evaluation) Evaluation {
	if ev.Result.Violations == nil {
		ev.Result.Violations = []safety.Violation{}
	}
	for _, v := range ev.Result.Violations {
		if v.LimitExceeded == safety.LimitContract {
			s.logger.LogAttrs(ctx, slog.LevelError, "validated against broken limits", slog.String("reason", v.Message))
		}
	}

	var err error
	if ev.Notice, err = newNotice(ev.Source, ev.Result, ev.Generation); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to render notice", errors.SlogError(err))
	}
	s.recordVerdict(ev.Source, ev.Result)

	s.logger.LogAttrs(ctx, slog.LevelInfo, "evaluated plan",
		slog.String("evaluation_id", ev.ID.String()),
		slog.String("source", string(ev.Source)),
		slog.String("verdict", string(ev.Result.Verdict)),
		slog.Int("violations", len(ev.Result.Violations)))
	return ev
}

func (s *Service) recordVerdict(source safety.PlanSource, result safety.ValidationResult) {
	s.metrics.Verdicts.WithLabelValues(string(source), string(result.Verdict)).Inc()
	for _, v := range result.Violations {
		s.metrics.Violations.WithLabelValues(v.LimitExceeded, string(v.Severity)).Inc()
	}
}

// validateSession returns a violation for every malformed field of a performed session.
func validateSession(userID string, session progression.ExerciseSession) []safety.Violation {
	var violations []safety.Violation
	bad := func(field, limit string, value float64, allowed safety.Range, msg string) {
		violations = append(violations, safety.Violation{
			Field:         field,
			LimitExceeded: limit,
			ProposedValue: value,
			AllowedRange:  allowed,
			Severity:      safety.SeverityHard,
			Message:       msg,
		})
	}

	if userID == "" {
		bad("user_id", safety.LimitRequired, 0, safety.Range{}, "user id is required")
	}
	if session.ExerciseID == "" {
		bad("exercise_id", safety.LimitRequired, 0, safety.Range{}, "exercise id is required")
	}
	if session.PrescribedSets < 0 || session.PrescribedSets > maxRecordedSets {
		bad("prescribed_sets", safety.LimitWellFormed, float64(session.PrescribedSets),
			safety.Range{Min: 0, Max: maxRecordedSets}, "prescribed sets must be between 0 and 50")
	}
	if session.TargetReps < 0 || session.TargetReps > maxRecordedReps {
		bad("target_reps", safety.LimitWellFormed, float64(session.TargetReps),
			safety.Range{Min: 0, Max: maxRecordedReps}, "target reps must be between 0 and 1000")
	}
	if len(session.Sets) > maxRecordedSets {
		bad("sets", safety.LimitWellFormed, float64(len(session.Sets)),
			safety.Range{Min: 0, Max: maxRecordedSets}, "a session can have at most 50 sets")
	}

	for i, set := range session.Sets {
		field := func(name string) string { return "sets[" + strconv.Itoa(i) + "]." + name }
		if math.IsNaN(set.WeightKg) || math.IsInf(set.WeightKg, 0) || set.WeightKg < 0 {
			bad(field("weight_kg"), safety.LimitWellFormed, 0, safety.Range{},
				"set "+strconv.Itoa(i+1)+" weight must be a non-negative number")
		}
		if set.Reps < 0 || set.Reps > maxRecordedReps {
			bad(field("reps"), safety.LimitWellFormed, float64(set.Reps), safety.Range{Min: 0, Max: maxRecordedReps},
				"set "+strconv.Itoa(i+1)+" reps must be between 0 and 1000")
		}
		if set.RPE != nil && !(*set.RPE >= 1 && *set.RPE <= 10) { //nolint:mnd // RPE scale.
			bad(field("rpe"), safety.LimitWellFormed, 0, safety.Range{Min: 1, Max: 10},
				"set "+strconv.Itoa(i+1)+" RPE must be between 1 and 10")
		}
	}
	return violations
}
