package progression_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/myrjola/liftguard/internal/progression"
	"github.com/myrjola/liftguard/internal/ptr"
	"github.com/myrjola/liftguard/internal/safety"
)

var start = time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // test fixture.

// session builds a session day days after start where every set is performed with the given reps.
func session(day int, weight float64, target int, reps []int, rpe *float64) progression.ExerciseSession {
	sets := make([]progression.SetPerformance, len(reps))
	for i, r := range reps {
		sets[i] = progression.SetPerformance{WeightKg: weight, Reps: r, RPE: rpe}
	}
	return progression.ExerciseSession{
		ExerciseID:     "bench-press",
		Date:           start.AddDate(0, 0, day),
		PrescribedSets: len(reps),
		TargetReps:     target,
		Sets:           sets,
		Completed:      true,
	}
}

func history(sessions ...progression.ExerciseSession) progression.ExerciseHistory {
	return progression.ExerciseHistory{ExerciseID: "bench-press", Sessions: sessions}
}

func profile(level safety.FitnessLevel, goal safety.TrainingGoal) safety.UserProfile {
	return safety.UserProfile{Age: 25, FitnessLevel: level, TrainingGoal: goal}
}

func TestAnalyze(t *testing.T) {
	analyzer := progression.NewAnalyzer(safety.DefaultPolicy())
	intermediateHypertrophy := profile(safety.LevelIntermediate, safety.GoalHypertrophy)
	intermediateStrength := profile(safety.LevelIntermediate, safety.GoalStrength)

	tests := []struct {
		name           string
		history        progression.ExerciseHistory
		profile        safety.UserProfile
		wantType       progression.Type
		wantConfidence progression.Confidence
		wantDelta      float64
		wantUnit       progression.Unit
	}{
		{
			name:           "no history",
			history:        history(),
			profile:        intermediateHypertrophy,
			wantType:       progression.TypeMaintain,
			wantConfidence: progression.ConfidenceLow,
		},
		{
			name:           "single session",
			history:        history(session(0, 60, 10, []int{12, 12, 12}, ptr.Ref(5.0))),
			profile:        intermediateHypertrophy,
			wantType:       progression.TypeMaintain,
			wantConfidence: progression.ConfidenceLow,
		},
		{
			name: "easy hypertrophy sessions add reps",
			history: history(
				session(0, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
				session(3, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
				session(6, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
			),
			profile:        intermediateHypertrophy,
			wantType:       progression.TypeIncreaseReps,
			wantConfidence: progression.ConfidenceHigh,
			wantDelta:      1,
			wantUnit:       progression.UnitReps,
		},
		{
			name: "two easy sessions are medium confidence",
			history: history(
				session(0, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
				session(3, 60, 10, []int{10, 10, 10}, ptr.Ref(6.5)),
			),
			profile:        intermediateHypertrophy,
			wantType:       progression.TypeIncreaseReps,
			wantConfidence: progression.ConfidenceMedium,
			wantDelta:      1,
			wantUnit:       progression.UnitReps,
		},
		{
			name: "easy strength sessions add weight",
			history: history(
				session(0, 100, 5, []int{5, 5, 5}, ptr.Ref(6.0)),
				session(3, 100, 5, []int{5, 5, 5}, ptr.Ref(6.0)),
				session(6, 100, 5, []int{5, 5, 5}, ptr.Ref(6.0)),
			),
			profile:        intermediateStrength,
			wantType:       progression.TypeIncreaseWeight,
			wantConfidence: progression.ConfidenceHigh,
			wantDelta:      2.5,
			wantUnit:       progression.UnitKg,
		},
		{
			name: "weight step respects the elite progression cap",
			history: history(
				session(0, 60, 5, []int{5, 5, 5}, ptr.Ref(6.0)),
				session(3, 60, 5, []int{5, 5, 5}, ptr.Ref(6.0)),
				session(6, 60, 5, []int{5, 5, 5}, ptr.Ref(6.0)),
			),
			profile:        profile(safety.LevelElite, safety.GoalStrength),
			wantType:       progression.TypeIncreaseWeight,
			wantConfidence: progression.ConfidenceHigh,
			wantDelta:      1.5,
			wantUnit:       progression.UnitKg,
		},
		{
			name: "weight step respects the injury cap",
			history: history(
				session(0, 40, 5, []int{5, 5, 5}, ptr.Ref(6.0)),
				session(3, 40, 5, []int{5, 5, 5}, ptr.Ref(6.0)),
			),
			profile: safety.UserProfile{
				Age: 25, FitnessLevel: safety.LevelIntermediate, TrainingGoal: safety.GoalStrength, ReportedInjury: true,
			},
			wantType:       progression.TypeIncreaseWeight,
			wantConfidence: progression.ConfidenceMedium,
			wantDelta:      1,
			wantUnit:       progression.UnitKg,
		},
		{
			name: "reps at the goal ceiling switch to weight",
			history: history(
				session(0, 50, 15, []int{15, 15, 15}, ptr.Ref(6.0)),
				session(3, 50, 15, []int{15, 15, 15}, ptr.Ref(6.0)),
				session(6, 50, 15, []int{15, 15, 15}, ptr.Ref(6.0)),
			),
			profile:        intermediateHypertrophy,
			wantType:       progression.TypeIncreaseWeight,
			wantConfidence: progression.ConfidenceHigh,
			wantDelta:      2.5,
			wantUnit:       progression.UnitKg,
		},
		{
			name: "bodyweight strength adds reps",
			history: history(
				session(0, 0, 5, []int{5, 5, 5}, ptr.Ref(6.0)),
				session(3, 0, 5, []int{5, 5, 5}, ptr.Ref(6.0)),
			),
			profile:        intermediateStrength,
			wantType:       progression.TypeIncreaseReps,
			wantConfidence: progression.ConfidenceMedium,
			wantDelta:      1,
			wantUnit:       progression.UnitReps,
		},
		{
			name: "bodyweight at the rep ceiling adds a set",
			history: history(
				session(0, 0, 6, []int{6, 6, 6}, ptr.Ref(6.0)),
				session(3, 0, 6, []int{6, 6, 6}, ptr.Ref(6.0)),
			),
			profile:        intermediateStrength,
			wantType:       progression.TypeAddSet,
			wantConfidence: progression.ConfidenceMedium,
			wantDelta:      1,
			wantUnit:       progression.UnitSets,
		},
		{
			name: "nothing left to add",
			history: history(
				session(0, 0, 6, []int{6, 6, 6, 6, 6}, ptr.Ref(6.0)),
				session(3, 0, 6, []int{6, 6, 6, 6, 6}, ptr.Ref(6.0)),
			),
			profile:        intermediateStrength,
			wantType:       progression.TypeMaintain,
			wantConfidence: progression.ConfidenceMedium,
		},
		{
			name: "on target effort maintains",
			history: history(
				session(0, 60, 10, []int{10, 10, 10}, ptr.Ref(8.5)),
				session(3, 60, 10, []int{10, 10, 10}, ptr.Ref(8.5)),
				session(6, 60, 10, []int{10, 10, 10}, ptr.Ref(8.0)),
			),
			profile:        intermediateHypertrophy,
			wantType:       progression.TypeMaintain,
			wantConfidence: progression.ConfidenceMedium,
		},
		{
			name: "missed sets deload",
			history: history(
				session(0, 60, 10, []int{10, 6, 5}, ptr.Ref(8.5)),
				session(3, 60, 10, []int{10, 7, 5}, ptr.Ref(8.5)),
			),
			profile:        intermediateHypertrophy,
			wantType:       progression.TypeDeload,
			wantConfidence: progression.ConfidenceHigh,
			wantDelta:      -6,
			wantUnit:       progression.UnitKg,
		},
		{
			name: "effort above the band twice deloads",
			history: history(
				session(0, 100, 10, []int{10, 10, 10}, ptr.Ref(9.5)),
				session(3, 100, 10, []int{10, 10, 10}, ptr.Ref(8.0)),
				session(6, 100, 10, []int{10, 10, 10}, ptr.Ref(10.0)),
			),
			profile:        intermediateHypertrophy,
			wantType:       progression.TypeDeload,
			wantConfidence: progression.ConfidenceHigh,
			wantDelta:      -10,
			wantUnit:       progression.UnitKg,
		},
		{
			name: "bodyweight deload drops a set",
			history: history(
				session(0, 0, 10, []int{10, 4, 3}, nil),
				session(3, 0, 10, []int{9, 4, 3}, nil),
			),
			profile:        intermediateHypertrophy,
			wantType:       progression.TypeDeload,
			wantConfidence: progression.ConfidenceHigh,
			wantDelta:      -1,
			wantUnit:       progression.UnitSets,
		},
		{
			name: "reps in reserve stand in for missing RPE",
			history: history(
				session(0, 60, 10, []int{12, 12, 12}, nil),
				session(3, 60, 10, []int{12, 12, 13}, nil),
				session(6, 60, 10, []int{13, 12, 12}, nil),
			),
			profile:        intermediateHypertrophy,
			wantType:       progression.TypeIncreaseReps,
			wantConfidence: progression.ConfidenceHigh,
			wantDelta:      1,
			wantUnit:       progression.UnitReps,
		},
		{
			name: "only the most recent window counts and input order does not matter",
			history: history(
				session(12, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
				session(0, 60, 10, []int{4, 4, 4}, ptr.Ref(10.0)),
				session(9, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
				session(3, 60, 10, []int{4, 4, 4}, ptr.Ref(10.0)),
				session(6, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
			),
			profile:        intermediateHypertrophy,
			wantType:       progression.TypeIncreaseReps,
			wantConfidence: progression.ConfidenceHigh,
			wantDelta:      1,
			wantUnit:       progression.UnitReps,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := cloneHistory(tt.history)
			got := analyzer.Analyze(tt.history, tt.profile)
			if got.Type != tt.wantType || got.Confidence != tt.wantConfidence {
				t.Errorf("Analyze() = %s/%s, want %s/%s (%s)",
					got.Type, got.Confidence, tt.wantType, tt.wantConfidence, got.Rationale)
			}
			if diff := cmp.Diff(tt.wantDelta, got.Delta, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("Delta mismatch (-want +got):\n%s", diff)
			}
			if got.Unit != tt.wantUnit {
				t.Errorf("Unit = %q, want %q", got.Unit, tt.wantUnit)
			}
			if got.Rationale == "" {
				t.Error("empty rationale")
			}
			if diff := cmp.Diff(before, tt.history); diff != "" {
				t.Errorf("history modified (-before +after):\n%s", diff)
			}
		})
	}
}

func cloneHistory(h progression.ExerciseHistory) progression.ExerciseHistory {
	c := h
	c.Sessions = append([]progression.ExerciseSession(nil), h.Sessions...)
	return c
}

func TestAnalyze_signals(t *testing.T) {
	analyzer := progression.NewAnalyzer(safety.DefaultPolicy())
	got := analyzer.Analyze(history(
		session(0, 60, 10, []int{10, 10, 5}, ptr.Ref(7.0)),
		session(3, 60, 10, []int{10, 10, 10}, nil),
	), profile(safety.LevelIntermediate, safety.GoalHypertrophy))

	want := progression.Signals{
		Sessions:       2,
		CompletionRate: (2.0/3 + 1) / 2,
		AverageRPE:     (7.0 + 8.0) / 2,
		RPEEstimated:   true,
		AboveBand:      0,
		ConsistentRun:  0,
	}
	if diff := cmp.Diff(want, got.Signals, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Signals mismatch (-want +got):\n%s", diff)
	}
}

func TestNextPlan_hypertrophyScenario(t *testing.T) {
	policy := safety.DefaultPolicy()
	p := profile(safety.LevelIntermediate, safety.GoalHypertrophy)
	h := history(
		session(0, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
		session(3, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
		session(6, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
	)
	suggestion := progression.NewAnalyzer(policy).Analyze(h, p)
	limits := safety.ResolveLimits(policy, p)

	plan := progression.NextPlan(h, suggestion, limits, false)
	want := safety.WorkoutPlan{
		Source: safety.SourceAnalyzer,
		Exercises: []safety.PlannedExercise{{
			ExerciseID:       "bench-press",
			Name:             "bench-press",
			Sets:             3,
			MinReps:          11,
			MaxReps:          11,
			WeightKg:         ptr.Ref(60.0),
			BaselineWeightKg: ptr.Ref(60.0),
			TargetRPE:        ptr.Ref(8.0),
			RestSeconds:      113,
			Notes:            suggestion.Rationale,
		}},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("NextPlan() mismatch (-want +got):\n%s", diff)
	}

	if got := safety.Validate(plan, limits, false); got.Verdict != safety.VerdictAccepted {
		t.Errorf("Validate() verdict = %s, want accepted: %+v", got.Verdict, got.Violations)
	}
}

func TestNextPlan_rejectsAFortyPercentJump(t *testing.T) {
	policy := safety.DefaultPolicy()
	p := profile(safety.LevelIntermediate, safety.GoalHypertrophy)
	h := history(session(0, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)))
	plan := progression.NextPlan(h, progression.Suggestion{
		ExerciseID: "bench-press",
		Type:       progression.TypeIncreaseWeight,
		Delta:      24,
		Unit:       progression.UnitKg,
	}, safety.ResolveLimits(policy, p), false)

	got := safety.Validate(plan, safety.ResolveLimits(policy, p), false)
	if got.Verdict != safety.VerdictRejected {
		t.Fatalf("Verdict = %s, want rejected", got.Verdict)
	}
	if got.Violations[0].Field != "exercises[0].weight_kg" ||
		got.Violations[0].LimitExceeded != safety.LimitMaxProgressionPct {
		t.Errorf("Violations = %+v, want the progression cap on weight_kg", got.Violations)
	}
}

// lowInjuryCap caps injured users below the minimum effort of most fitness levels.
const lowInjuryCap = "injury: {max_load_increase_pct: 2.5, max_rpe: 5}\n"

// The analyzer's own plans must never be rejected by the validator for the same profile.
func TestNextPlan_neverRejected(t *testing.T) {
	lowCap, err := safety.ParsePolicy([]byte(lowInjuryCap))
	if err != nil {
		t.Fatalf("ParsePolicy() = %v", err)
	}
	policies := []struct {
		name   string
		policy safety.Policy
	}{
		{name: "default", policy: safety.DefaultPolicy()},
		{name: "low injury cap", policy: lowCap},
	}
	for _, tt := range policies {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := progression.NewAnalyzer(tt.policy)
			r := rand.New(rand.NewPCG(7, 11)) //nolint:gosec // deterministic test input.

			for range 3000 {
				p := safety.UserProfile{
					Age:            r.IntN(90) + 10,
					FitnessLevel:   safety.Levels[r.IntN(len(safety.Levels))],
					TrainingGoal:   safety.Goals[r.IntN(len(safety.Goals))],
					ReportedInjury: r.IntN(4) == 0,
				}
				n := r.IntN(6)
				sessions := make([]progression.ExerciseSession, n)
				weight := float64(r.IntN(80)) * 2.5
				for i := range sessions {
					target := r.IntN(25) + 1
					reps := make([]int, r.IntN(8)+1)
					for j := range reps {
						reps[j] = target + r.IntN(5) - 2
					}
					var rpe *float64
					if r.IntN(3) > 0 {
						rpe = ptr.Ref(float64(r.IntN(11)+1) / 1.1)
					}
					sessions[i] = session(i*3, weight, target, reps, rpe)
				}
				h := history(sessions...)

				suggestion := analyzer.Analyze(h, p)
				limits := safety.ResolveLimits(tt.policy, p)
				plan := progression.NextPlan(h, suggestion, limits, p.ReportedInjury)
				if got := safety.Validate(plan, limits, p.ReportedInjury); got.Verdict == safety.VerdictRejected {
					t.Fatalf("profile %+v suggestion %+v: plan rejected: %+v", p, suggestion, got.Violations)
				}
			}
		})
	}
}

// An injured intermediate whose injury cap sits below the level's minimum RPE is prescribed the minimum.
func TestNextPlan_injuryCapBelowMinimumEffort(t *testing.T) {
	policy, err := safety.ParsePolicy([]byte(lowInjuryCap))
	if err != nil {
		t.Fatalf("ParsePolicy() = %v", err)
	}
	p := profile(safety.LevelIntermediate, safety.GoalHypertrophy)
	p.ReportedInjury = true
	h := history(
		session(0, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
		session(3, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
		session(6, 60, 10, []int{10, 10, 10}, ptr.Ref(6.0)),
	)
	limits := safety.ResolveLimits(policy, p)
	plan := progression.NextPlan(h, progression.NewAnalyzer(policy).Analyze(h, p), limits, true)

	if got := *plan.Exercises[0].TargetRPE; got != limits.RPE.Min {
		t.Errorf("target RPE = %v, want the level minimum %v", got, limits.RPE.Min)
	}
	if got := safety.Validate(plan, limits, true); got.Verdict == safety.VerdictRejected {
		t.Errorf("Validate() rejected the plan: %+v", got.Violations)
	}
}
