// Package safety holds the limits every workout plan must respect and the validator that enforces them.
//
// Nothing in this package keeps state. Limits are resolved per evaluation from an explicit [Policy] and a
// [UserProfile], and [Validate] is a pure function of the plan and the resolved limits.
package safety

import (
	"math"
	"strconv"
)

// FitnessLevel is the user's self-declared training experience.
type FitnessLevel string

const (
	LevelBeginner     FitnessLevel = "beginner"
	LevelIntermediate FitnessLevel = "intermediate"
	LevelAdvanced     FitnessLevel = "advanced"
	LevelElite        FitnessLevel = "elite"
)

// Levels lists fitness levels from least to most experienced.
var Levels = []FitnessLevel{LevelBeginner, LevelIntermediate, LevelAdvanced, LevelElite} //nolint:gochecknoglobals // enum.

// Rank is the ordinal of the level. Unknown levels rank as beginner.
func (l FitnessLevel) Rank() int {
	for i, level := range Levels {
		if level == l {
			return i
		}
	}
	return 0
}

// Normalize maps unknown levels to the most conservative tier.
func (l FitnessLevel) Normalize() FitnessLevel {
	return Levels[l.Rank()]
}

// TrainingGoal selects the rep range, the target effort band and the prompt template of a plan.
type TrainingGoal string

const (
	GoalCutting     TrainingGoal = "cutting"
	GoalBulking     TrainingGoal = "bulking"
	GoalBalanced    TrainingGoal = "balanced"
	GoalStrength    TrainingGoal = "strength"
	GoalHypertrophy TrainingGoal = "hypertrophy"
	GoalEndurance   TrainingGoal = "endurance"
)

// Goals lists every known training goal.
var Goals = []TrainingGoal{ //nolint:gochecknoglobals // enum.
	GoalCutting, GoalBulking, GoalBalanced, GoalStrength, GoalHypertrophy, GoalEndurance,
}

// Normalize maps unknown goals to balanced.
func (g TrainingGoal) Normalize() TrainingGoal {
	for _, goal := range Goals {
		if goal == g {
			return g
		}
	}
	return GoalBalanced
}

// FavorsLoad reports whether progress for the goal is made by adding weight before adding reps.
func (g TrainingGoal) FavorsLoad() bool {
	switch g.Normalize() { //nolint:exhaustive // the rest favor reps.
	case GoalStrength, GoalBulking, GoalBalanced:
		return true
	default:
		return false
	}
}

// UserProfile describes the person a plan is evaluated for. It is never modified by this package.
type UserProfile struct {
	Age            int          `json:"age"`
	FitnessLevel   FitnessLevel `json:"fitness_level"`
	TrainingGoal   TrainingGoal `json:"training_goal"`
	HeightCm       *float64     `json:"height_cm,omitempty"`
	WeightKg       *float64     `json:"weight_kg,omitempty"`
	Gender         string       `json:"gender,omitempty"`
	ActivityLevel  string       `json:"activity_level,omitempty"`
	ReportedInjury bool         `json:"reported_injury,omitempty"`
}

const maxPlausibleAge = 120

// Validate returns a violation for every malformed profile field. An empty result means the profile is usable.
func (p UserProfile) Validate() []Violation {
	var violations []Violation
	if p.Age < 0 || p.Age > maxPlausibleAge {
		violations = append(violations, Violation{
			Field:         "profile.age",
			LimitExceeded: LimitWellFormed,
			ProposedValue: float64(p.Age),
			AllowedRange:  Range{Min: 0, Max: maxPlausibleAge},
			Severity:      SeverityHard,
			Message:       "age must be between 0 and 120",
		})
	}
	if p.HeightCm != nil && !positive(*p.HeightCm) {
		violations = append(violations, Violation{
			Field:         "profile.height_cm",
			LimitExceeded: LimitWellFormed,
			ProposedValue: *p.HeightCm,
			AllowedRange:  Range{},
			Severity:      SeverityHard,
			Message:       "height must be a positive number",
		})
	}
	if p.WeightKg != nil && !positive(*p.WeightKg) {
		violations = append(violations, Violation{
			Field:         "profile.weight_kg",
			LimitExceeded: LimitWellFormed,
			ProposedValue: *p.WeightKg,
			AllowedRange:  Range{},
			Severity:      SeverityHard,
			Message:       "body weight must be a positive number",
		})
	}
	return violations
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Clamp returns the bound nearest to v when v is outside the range.
func (r Range) Clamp(v float64) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

func (r Range) String() string {
	return formatNumber(r.Min) + " to " + formatNumber(r.Max)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) //nolint:mnd // two decimals.
}

func (r Range) wellFormed() bool {
	return finite(r.Min) && finite(r.Max) && r.Min <= r.Max
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positive(v float64) bool {
	return finite(v) && v > 0
}

// PlanSource tells where a candidate plan came from.
type PlanSource string

const (
	SourceAnalyzer PlanSource = "analyzer"
	SourceAI       PlanSource = "ai"
	SourceFallback PlanSource = "fallback"
	SourceUser     PlanSource = "user"
)

// WorkoutPlan is a candidate for the validator. Zero plan-level fields mean unspecified and are not checked.
type WorkoutPlan struct {
	Source          PlanSource        `json:"source,omitempty"`
	SessionsPerWeek int               `json:"sessions_per_week,omitempty"`
	SessionMinutes  int               `json:"session_minutes,omitempty"`
	Exercises       []PlannedExercise `json:"exercises"`
}

// PlannedExercise is one exercise of a plan.
type PlannedExercise struct {
	ExerciseID string `json:"exercise_id,omitempty"`
	Name       string `json:"name"`
	Sets       int    `json:"sets"`
	MinReps    int    `json:"min_reps"`
	MaxReps    int    `json:"max_reps"`
	// WeightKg is nil for bodyweight exercises.
	WeightKg *float64 `json:"weight_kg,omitempty"`
	// BaselineWeightKg is the last weight the user performed. The progression check is skipped without it.
	BaselineWeightKg *float64 `json:"baseline_weight_kg,omitempty"`
	TargetRPE        *float64 `json:"target_rpe,omitempty"`
	RestSeconds      int      `json:"rest_seconds,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// Clone returns a deep copy of the plan.
func (p WorkoutPlan) Clone() WorkoutPlan {
	c := p
	if p.Exercises == nil {
		return c
	}
	c.Exercises = make([]PlannedExercise, len(p.Exercises))
	for i, e := range p.Exercises {
		c.Exercises[i] = e
		c.Exercises[i].WeightKg = clonePtr(e.WeightKg)
		c.Exercises[i].BaselineWeightKg = clonePtr(e.BaselineWeightKg)
		c.Exercises[i].TargetRPE = clonePtr(e.TargetRPE)
	}
	return c
}

// WeeklySets is the total number of working sets per week, or zero when the plan does not say how often it runs.
func (p WorkoutPlan) WeeklySets() int {
	if p.SessionsPerWeek <= 0 {
		return 0
	}
	total := 0
	for _, e := range p.Exercises {
		total += e.Sets
	}
	return total * p.SessionsPerWeek
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Verdict is the outcome of validating a plan.
type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictClamped  Verdict = "clamped"
	VerdictRejected Verdict = "rejected"
)

// Severity classifies a violation.
type Severity string

const (
	// SeveritySoft violations were clamped to the nearest bound.
	SeveritySoft Severity = "soft"
	// SeverityHard violations reject the plan.
	SeverityHard Severity = "hard"
)

// Names of the limits a violation can exceed.
const (
	LimitSessionsPerWeek       = "sessionsPerWeek"
	LimitSessionMinutes        = "sessionMinutes"
	LimitSetsPerExercise       = "setsPerExercise"
	LimitRepsPerSet            = "repsPerSet"
	LimitMaxProgressionPct     = "maxWeeklyProgressionPct"
	LimitRPE                   = "rpe"
	LimitRestSeconds           = "restSeconds"
	LimitWeeklySets            = "weeklySets"
	LimitInjuryMaxLoadIncrease = "injuryMaxLoadIncreasePct"
	LimitInjuryMaxRPE          = "injuryMaxRPE"
	LimitRequired              = "required"
	LimitWellFormed            = "wellFormed"
	LimitContract              = "limitsContract"
)

// Violation records a single field that did not fit its limit.
type Violation struct {
	Field         string   `json:"field"`
	LimitExceeded string   `json:"limit_exceeded"`
	ProposedValue float64  `json:"proposed_value"`
	AllowedRange  Range    `json:"allowed_range"`
	Severity      Severity `json:"severity"`
	Message       string   `json:"message"`
}

// ValidationResult is the decision artifact surfaced to callers.
type ValidationResult struct {
	Verdict Verdict `json:"verdict"`
	// ClampedPlan is the plan cleared for the user. It equals the input when accepted, holds the clamped values when
	// clamped and is nil when rejected.
	ClampedPlan *WorkoutPlan `json:"clamped_plan,omitempty"`
	Violations  []Violation  `json:"violations"`
}

// Rejected builds a rejected result from violations.
func Rejected(violations ...Violation) ValidationResult {
	return ValidationResult{
		Verdict:     VerdictRejected,
		ClampedPlan: nil,
		Violations:  violations,
	}
}
