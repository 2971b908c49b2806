package safety

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/myrjola/liftguard/internal/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is returned when a policy would produce inverted or widened limits.
var ErrInvalidPolicy = errors.NewSentinel("invalid safety policy")

// Policy is the versioned table of numeric bounds. It is passed explicitly to every resolver call so that tests and
// deployments can swap tolerance bands without code changes.
type Policy struct {
	Version string `json:"version" yaml:"version"`
	// TolerancePct is how far past a bound, relative to the bound, a value may be before it is a hard violation.
	TolerancePct float64                      `json:"tolerance_pct" yaml:"tolerance_pct"`
	Levels       map[FitnessLevel]LevelLimits `json:"levels"        yaml:"levels"`
	Goals        map[TrainingGoal]GoalLimits  `json:"goals"         yaml:"goals"`
	AgeBrackets  []AgeBracket                 `json:"age_brackets"  yaml:"age_brackets"`
	Injury       InjuryLimits                 `json:"injury"        yaml:"injury"`
	Analyzer     AnalyzerPolicy               `json:"analyzer"      yaml:"analyzer"`
}

// LevelLimits are the base bounds for a fitness level.
type LevelLimits struct {
	SessionsPerWeek   Range   `json:"sessions_per_week"   yaml:"sessions_per_week"`
	SessionMinutes    Range   `json:"session_minutes"     yaml:"session_minutes"`
	SetsPerExercise   Range   `json:"sets_per_exercise"   yaml:"sets_per_exercise"`
	WeeklySets        Range   `json:"weekly_sets"         yaml:"weekly_sets"`
	RPE               Range   `json:"rpe"                 yaml:"rpe"`
	RestSeconds       Range   `json:"rest_seconds"        yaml:"rest_seconds"`
	MaxProgressionPct float64 `json:"max_progression_pct" yaml:"max_progression_pct"`
}

// GoalLimits are the goal specific bounds combined with the level limits.
type GoalLimits struct {
	RepsPerSet Range `json:"reps_per_set" yaml:"reps_per_set"`
	// TargetRPE is the effort band the progression analyzer aims for.
	TargetRPE   Range `json:"target_rpe"   yaml:"target_rpe"`
	RestSeconds Range `json:"rest_seconds" yaml:"rest_seconds"`
}

// AgeBracket narrows the limits for an inclusive age interval. A MaxAge of zero means no upper bound.
//
// Upper bound factors must be in (0, 1] and RestFactor, which multiplies the minimum rest, must be at least 1 so that
// a bracket can only ever tighten the base limits.
type AgeBracket struct {
	Name              string  `json:"name"               yaml:"name"`
	MinAge            int     `json:"min_age"            yaml:"min_age"`
	MaxAge            int     `json:"max_age"            yaml:"max_age"`
	VolumeFactor      float64 `json:"volume_factor"      yaml:"volume_factor"`
	IntensityFactor   float64 `json:"intensity_factor"   yaml:"intensity_factor"`
	DurationFactor    float64 `json:"duration_factor"    yaml:"duration_factor"`
	ProgressionFactor float64 `json:"progression_factor" yaml:"progression_factor"`
	RestFactor        float64 `json:"rest_factor"        yaml:"rest_factor"`
}

func (b AgeBracket) contains(age int) bool {
	return age >= b.MinAge && (b.MaxAge == 0 || age <= b.MaxAge)
}

// moreConservative reports whether b tightens the limits more than other.
func (b AgeBracket) moreConservative(other AgeBracket) bool {
	if b.ProgressionFactor != other.ProgressionFactor {
		return b.ProgressionFactor < other.ProgressionFactor
	}
	if b.VolumeFactor != other.VolumeFactor {
		return b.VolumeFactor < other.VolumeFactor
	}
	return b.IntensityFactor < other.IntensityFactor
}

// InjuryLimits apply when the user reports an injury. Exceeding them is always a hard violation.
type InjuryLimits struct {
	MaxLoadIncreasePct float64 `json:"max_load_increase_pct" yaml:"max_load_increase_pct"`
	MaxRPE             float64 `json:"max_rpe"               yaml:"max_rpe"`
}

// AnalyzerPolicy holds the progression analyzer thresholds.
type AnalyzerPolicy struct {
	// WindowSize is how many of the most recent sessions are analyzed.
	WindowSize int `json:"window_size" yaml:"window_size"`
	// MinSessions is the minimum history needed before anything other than maintain is suggested.
	MinSessions int `json:"min_sessions" yaml:"min_sessions"`
	// DeloadCompletionRate is the average completion rate below which a deload is suggested.
	DeloadCompletionRate float64 `json:"deload_completion_rate" yaml:"deload_completion_rate"`
	// DeloadRPEHits is how many sessions in the window above the target band trigger a deload.
	DeloadRPEHits int `json:"deload_rpe_hits" yaml:"deload_rpe_hits"`
	// HighConfidenceSessions is how many consistent sessions make an increase high confidence.
	HighConfidenceSessions int     `json:"high_confidence_sessions" yaml:"high_confidence_sessions"`
	WeightIncrementKg      float64 `json:"weight_increment_kg"      yaml:"weight_increment_kg"`
	WeightRoundingKg       float64 `json:"weight_rounding_kg"       yaml:"weight_rounding_kg"`
	RepIncrement           int     `json:"rep_increment"            yaml:"rep_increment"`
	// DeloadPct is the weight reduction of a deload.
	DeloadPct float64 `json:"deload_pct" yaml:"deload_pct"`
}

// DefaultPolicy returns the built-in limits. Each call returns a fresh copy.
func DefaultPolicy() Policy {
	return Policy{
		Version:      "2026-10-01",
		TolerancePct: 10, //nolint:mnd // policy value.
		Levels: map[FitnessLevel]LevelLimits{
			LevelBeginner: {
				SessionsPerWeek:   Range{Min: 2, Max: 4},
				SessionMinutes:    Range{Min: 20, Max: 60},
				SetsPerExercise:   Range{Min: 1, Max: 4},
				WeeklySets:        Range{Min: 8, Max: 60},
				RPE:               Range{Min: 5, Max: 8.5},
				RestSeconds:       Range{Min: 45, Max: 300},
				MaxProgressionPct: 10,
			},
			LevelIntermediate: {
				SessionsPerWeek:   Range{Min: 3, Max: 5},
				SessionMinutes:    Range{Min: 30, Max: 75},
				SetsPerExercise:   Range{Min: 2, Max: 5},
				WeeklySets:        Range{Min: 10, Max: 90},
				RPE:               Range{Min: 6, Max: 9},
				RestSeconds:       Range{Min: 30, Max: 300},
				MaxProgressionPct: 7.5,
			},
			LevelAdvanced: {
				SessionsPerWeek:   Range{Min: 3, Max: 6},
				SessionMinutes:    Range{Min: 30, Max: 90},
				SetsPerExercise:   Range{Min: 2, Max: 6},
				WeeklySets:        Range{Min: 12, Max: 120},
				RPE:               Range{Min: 6, Max: 9.5},
				RestSeconds:       Range{Min: 30, Max: 420},
				MaxProgressionPct: 5,
			},
			LevelElite: {
				SessionsPerWeek:   Range{Min: 4, Max: 6},
				SessionMinutes:    Range{Min: 30, Max: 120},
				SetsPerExercise:   Range{Min: 2, Max: 8},
				WeeklySets:        Range{Min: 12, Max: 150},
				RPE:               Range{Min: 6, Max: 10},
				RestSeconds:       Range{Min: 30, Max: 600},
				MaxProgressionPct: 2.5,
			},
		},
		Goals: map[TrainingGoal]GoalLimits{
			GoalStrength: {
				RepsPerSet:  Range{Min: 1, Max: 6},
				TargetRPE:   Range{Min: 7, Max: 9},
				RestSeconds: Range{Min: 120, Max: 420},
			},
			GoalHypertrophy: {
				RepsPerSet:  Range{Min: 6, Max: 15},
				TargetRPE:   Range{Min: 8, Max: 9},
				RestSeconds: Range{Min: 45, Max: 180},
			},
			GoalEndurance: {
				RepsPerSet:  Range{Min: 12, Max: 25},
				TargetRPE:   Range{Min: 6, Max: 8},
				RestSeconds: Range{Min: 30, Max: 90},
			},
			GoalCutting: {
				RepsPerSet:  Range{Min: 8, Max: 15},
				TargetRPE:   Range{Min: 7, Max: 8.5},
				RestSeconds: Range{Min: 30, Max: 120},
			},
			GoalBulking: {
				RepsPerSet:  Range{Min: 6, Max: 12},
				TargetRPE:   Range{Min: 7.5, Max: 9},
				RestSeconds: Range{Min: 60, Max: 240},
			},
			GoalBalanced: {
				RepsPerSet:  Range{Min: 6, Max: 12},
				TargetRPE:   Range{Min: 7, Max: 8.5},
				RestSeconds: Range{Min: 45, Max: 180},
			},
		},
		AgeBrackets: []AgeBracket{
			{
				Name: "youth", MinAge: 0, MaxAge: 17,
				VolumeFactor: 0.8, IntensityFactor: 0.9, DurationFactor: 0.8, ProgressionFactor: 0.5, RestFactor: 1,
			},
			{
				Name: "adult", MinAge: 18, MaxAge: 39,
				VolumeFactor: 1, IntensityFactor: 1, DurationFactor: 1, ProgressionFactor: 1, RestFactor: 1,
			},
			{
				Name: "masters", MinAge: 40, MaxAge: 59,
				VolumeFactor: 0.9, IntensityFactor: 0.95, DurationFactor: 0.9, ProgressionFactor: 0.75, RestFactor: 1.25,
			},
			{
				Name: "senior", MinAge: 60, MaxAge: 0,
				VolumeFactor: 0.75, IntensityFactor: 0.9, DurationFactor: 0.8, ProgressionFactor: 0.5, RestFactor: 1.5,
			},
		},
		Injury: InjuryLimits{
			MaxLoadIncreasePct: 2.5,
			MaxRPE:             7,
		},
		Analyzer: AnalyzerPolicy{
			WindowSize:             3,
			MinSessions:            2,
			DeloadCompletionRate:   0.8,
			DeloadRPEHits:          2,
			HighConfidenceSessions: 3,
			WeightIncrementKg:      2.5,
			WeightRoundingKg:       0.25,
			RepIncrement:           1,
			DeloadPct:              10,
		},
	}
}

// ParsePolicy decodes a YAML policy on top of [DefaultPolicy] and validates the result.
//
// Top-level scalars and individual level or goal entries override the defaults. A level or goal entry replaces the
// default entry as a whole and a listed age_brackets sequence replaces all default brackets.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, errors.Wrap(err, "decode policy")
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicy reads a YAML policy file. See [ParsePolicy].
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, errors.Wrap(err, "read policy file", slog.String("path", path))
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return Policy{}, errors.Wrap(err, "parse policy file", slog.String("path", path))
	}
	return p, nil
}

// Validate reports every table entry that would invert a range or loosen the limits. Problems are reported in table
// order so the same policy always produces the same error.
func (p Policy) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, errors.Wrap(ErrInvalidPolicy, fmt.Sprintf(format, args...)))
	}

	if p.Version == "" {
		invalid("version is required")
	}
	if !finite(p.TolerancePct) || p.TolerancePct < 0 || p.TolerancePct > 100 {
		invalid("tolerance_pct %v outside [0, 100]", p.TolerancePct)
	}

	if _, ok := p.Levels[LevelBeginner]; !ok {
		invalid("levels.%s is required as the conservative fallback", LevelBeginner)
	}
	for _, level := range Levels {
		ll, ok := p.Levels[level]
		if !ok {
			continue
		}
		for _, r := range []struct {
			name string
			r    Range
		}{
			{"sessions_per_week", ll.SessionsPerWeek},
			{"session_minutes", ll.SessionMinutes},
			{"sets_per_exercise", ll.SetsPerExercise},
			{"weekly_sets", ll.WeeklySets},
			{"rpe", ll.RPE},
			{"rest_seconds", ll.RestSeconds},
		} {
			if !r.r.wellFormed() || r.r.Min < 0 {
				invalid("levels.%s.%s: inverted or negative range %v", level, r.name, r.r)
			}
		}
		if ll.SetsPerExercise.Min < 1 {
			invalid("levels.%s.sets_per_exercise must require at least one set", level)
		}
		if !finite(ll.MaxProgressionPct) || ll.MaxProgressionPct < 0 {
			invalid("levels.%s.max_progression_pct must be non-negative", level)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(p.Levels)) {
		if name.Normalize() != name {
			invalid("levels.%s: unknown fitness level", name)
		}
	}

	if _, ok := p.Goals[GoalBalanced]; !ok {
		invalid("goals.%s is required as the fallback", GoalBalanced)
	}
	for _, goal := range slices.Sorted(maps.Keys(p.Goals)) {
		gl := p.Goals[goal]
		if goal.Normalize() != goal {
			invalid("goals.%s: unknown training goal", goal)
		}
		if !gl.RepsPerSet.wellFormed() || gl.RepsPerSet.Min < 1 {
			invalid("goals.%s.reps_per_set: invalid range %v", goal, gl.RepsPerSet)
		}
		if !gl.TargetRPE.wellFormed() || gl.TargetRPE.Min < 1 || gl.TargetRPE.Max > 10 {
			invalid("goals.%s.target_rpe: invalid range %v", goal, gl.TargetRPE)
		}
		if !gl.RestSeconds.wellFormed() || gl.RestSeconds.Min < 0 {
			invalid("goals.%s.rest_seconds: invalid range %v", goal, gl.RestSeconds)
		}
	}

	if len(p.AgeBrackets) == 0 {
		invalid("at least one age bracket is required")
	}
	for i, b := range p.AgeBrackets {
		if b.MinAge < 0 || b.MaxAge != 0 && b.MaxAge < b.MinAge {
			invalid("age_brackets[%d] %q: inverted ages %d-%d", i, b.Name, b.MinAge, b.MaxAge)
		}
		for _, f := range []struct {
			name string
			v    float64
		}{
			{"volume_factor", b.VolumeFactor},
			{"intensity_factor", b.IntensityFactor},
			{"duration_factor", b.DurationFactor},
			{"progression_factor", b.ProgressionFactor},
		} {
			if !finite(f.v) || f.v <= 0 || f.v > 1 {
				invalid("age_brackets[%d] %q: %s %v must be in (0, 1]", i, b.Name, f.name, f.v)
			}
		}
		if !finite(b.RestFactor) || b.RestFactor < 1 {
			invalid("age_brackets[%d] %q: rest_factor %v must be at least 1", i, b.Name, b.RestFactor)
		}
	}

	if !finite(p.Injury.MaxLoadIncreasePct) || p.Injury.MaxLoadIncreasePct < 0 {
		invalid("injury.max_load_increase_pct must be non-negative")
	}
	if !finite(p.Injury.MaxRPE) || p.Injury.MaxRPE < 1 || p.Injury.MaxRPE > 10 {
		invalid("injury.max_rpe %v outside [1, 10]", p.Injury.MaxRPE)
	}

	a := p.Analyzer
	if a.WindowSize < 1 || a.MinSessions < 1 || a.MinSessions > a.WindowSize {
		invalid("analyzer: need 1 <= min_sessions <= window_size, got %d and %d", a.MinSessions, a.WindowSize)
	}
	if a.DeloadRPEHits < 1 || a.DeloadRPEHits > a.WindowSize {
		invalid("analyzer.deload_rpe_hits %d outside [1, window_size]", a.DeloadRPEHits)
	}
	if a.HighConfidenceSessions < 1 {
		invalid("analyzer.high_confidence_sessions must be positive")
	}
	if !(a.DeloadCompletionRate > 0 && a.DeloadCompletionRate <= 1) {
		invalid("analyzer.deload_completion_rate %v outside (0, 1]", a.DeloadCompletionRate)
	}
	if !(a.WeightIncrementKg > 0) || !(a.WeightRoundingKg > 0) || a.RepIncrement < 1 {
		invalid("analyzer increments must be positive")
	}
	if !(a.DeloadPct > 0 && a.DeloadPct < 100) {
		invalid("analyzer.deload_pct %v outside (0, 100)", a.DeloadPct)
	}

	return errors.Join(errs...)
}
