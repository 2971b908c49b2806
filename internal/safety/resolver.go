package safety

import (
	"fmt"
	"math"

	"github.com/myrjola/liftguard/internal/errors"
)

// ErrIncompleteLimits means a [SafetyLimits] value was not produced by [ResolveLimits] from a valid policy.
var ErrIncompleteLimits = errors.NewSentinel("incomplete safety limits")

// SafetyLimits is the bundle of bounds resolved for one evaluation. It is recomputed for every request and never
// persisted.
type SafetyLimits struct {
	PolicyVersion string       `json:"policy_version"`
	FitnessLevel  FitnessLevel `json:"fitness_level"`
	TrainingGoal  TrainingGoal `json:"training_goal"`
	AgeBracket    string       `json:"age_bracket"`

	SessionsPerWeek Range `json:"sessions_per_week"`
	SessionMinutes  Range `json:"session_minutes"`
	SetsPerExercise Range `json:"sets_per_exercise"`
	RepsPerSet      Range `json:"reps_per_set"`
	WeeklySets      Range `json:"weekly_sets"`
	RPE             Range `json:"rpe"`
	RestSeconds     Range `json:"rest_seconds"`
	// TargetRPE is the effort band progression aims for. It always lies within RPE.
	TargetRPE Range `json:"target_rpe"`

	MaxProgressionPct        float64 `json:"max_progression_pct"`
	InjuryMaxLoadIncreasePct float64 `json:"injury_max_load_increase_pct"`
	InjuryMaxRPE             float64 `json:"injury_max_rpe"`
	TolerancePct             float64 `json:"tolerance_pct"`
}

// Check reports missing or inverted ranges. Limits failing Check indicate a broken caller, not bad user input.
func (l SafetyLimits) Check() error {
	var errs []error
	for _, r := range []struct {
		name string
		r    Range
	}{
		{"sessions_per_week", l.SessionsPerWeek},
		{"session_minutes", l.SessionMinutes},
		{"sets_per_exercise", l.SetsPerExercise},
		{"reps_per_set", l.RepsPerSet},
		{"weekly_sets", l.WeeklySets},
		{"rpe", l.RPE},
		{"rest_seconds", l.RestSeconds},
		{"target_rpe", l.TargetRPE},
	} {
		if !r.r.wellFormed() || r.r.Max <= 0 {
			errs = append(errs, errors.Wrap(ErrIncompleteLimits, fmt.Sprintf("%s %v", r.name, r.r)))
		}
	}
	for _, v := range []struct {
		name string
		v    float64
	}{
		{"max_progression_pct", l.MaxProgressionPct},
		{"injury_max_load_increase_pct", l.InjuryMaxLoadIncreasePct},
		{"tolerance_pct", l.TolerancePct},
	} {
		if !finite(v.v) || v.v < 0 {
			errs = append(errs, errors.Wrap(ErrIncompleteLimits, fmt.Sprintf("%s %v", v.name, v.v)))
		}
	}
	if !positive(l.InjuryMaxRPE) || l.InjuryMaxRPE < l.RPE.Min || l.InjuryMaxRPE > l.RPE.Max {
		errs = append(errs, errors.Wrap(ErrIncompleteLimits, fmt.Sprintf("injury_max_rpe %v outside rpe %v",
			l.InjuryMaxRPE, l.RPE)))
	}
	return errors.Join(errs...)
}

// ResolveLimits derives the limits for profile. It never fails: unknown levels resolve as beginner, unknown goals as
// balanced and ages outside every bracket get the most conservative bracket.
func ResolveLimits(policy Policy, profile UserProfile) SafetyLimits {
	level := profile.FitnessLevel.Normalize()
	ll, ok := policy.Levels[level]
	if !ok {
		level = LevelBeginner
		ll = policy.Levels[level]
	}
	goal := profile.TrainingGoal.Normalize()
	gl, ok := policy.Goals[goal]
	if !ok {
		goal = GoalBalanced
		gl = policy.Goals[goal]
	}
	bracket := policy.bracketFor(profile.Age)

	l := SafetyLimits{
		PolicyVersion:   policy.Version,
		FitnessLevel:    level,
		TrainingGoal:    goal,
		AgeBracket:      bracket.Name,
		SessionsPerWeek: wholeNumbers(scaleUpper(ll.SessionsPerWeek, bracket.VolumeFactor)),
		SessionMinutes:  wholeNumbers(scaleUpper(ll.SessionMinutes, bracket.DurationFactor)),
		SetsPerExercise: wholeNumbers(scaleUpper(ll.SetsPerExercise, bracket.VolumeFactor)),
		RepsPerSet:      wholeNumbers(gl.RepsPerSet),
		WeeklySets:      wholeNumbers(scaleUpper(ll.WeeklySets, bracket.VolumeFactor)),
		RPE:             halfSteps(scaleUpper(ll.RPE, bracket.IntensityFactor)),
		RestSeconds:     wholeNumbers(scaleLower(intersect(ll.RestSeconds, gl.RestSeconds), bracket.RestFactor)),
		TargetRPE:       Range{},

		MaxProgressionPct:        ll.MaxProgressionPct * bracket.ProgressionFactor,
		InjuryMaxLoadIncreasePct: 0,
		InjuryMaxRPE:             0,
		TolerancePct:             policy.TolerancePct,
	}
	l.TargetRPE = within(gl.TargetRPE, l.RPE)
	l.InjuryMaxLoadIncreasePct = math.Min(policy.Injury.MaxLoadIncreasePct, l.MaxProgressionPct)
	// An injury cap below the level's minimum effort would leave no prescribable RPE, so it stops at RPE.Min.
	l.InjuryMaxRPE = l.RPE.Clamp(policy.Injury.MaxRPE)
	return l
}

// bracketFor picks the most conservative bracket containing age, or the most conservative bracket overall when none
// contains it.
func (p Policy) bracketFor(age int) AgeBracket {
	var (
		chosen AgeBracket
		found  bool
	)
	for _, b := range p.AgeBrackets {
		if b.contains(age) && (!found || b.moreConservative(chosen)) {
			chosen, found = b, true
		}
	}
	if found {
		return chosen
	}
	for i, b := range p.AgeBrackets {
		if i == 0 || b.moreConservative(chosen) {
			chosen, found = b, true
		}
	}
	if found {
		return chosen
	}
	return AgeBracket{
		Name:              "unbracketed",
		MinAge:            0,
		MaxAge:            0,
		VolumeFactor:      1,
		IntensityFactor:   1,
		DurationFactor:    1,
		ProgressionFactor: 1,
		RestFactor:        1,
	}
}

// scaleUpper multiplies the upper bound by factor without letting it drop below the lower bound.
func scaleUpper(r Range, factor float64) Range {
	return Range{Min: r.Min, Max: math.Max(r.Min, r.Max*factor)}
}

// scaleLower multiplies the lower bound by factor without letting it rise above the upper bound.
func scaleLower(r Range, factor float64) Range {
	return Range{Min: math.Min(r.Max, r.Min*factor), Max: r.Max}
}

// intersect returns the overlap of a and b. Disjoint ranges collapse onto the smaller upper bound.
func intersect(a, b Range) Range {
	r := Range{Min: math.Max(a.Min, b.Min), Max: math.Min(a.Max, b.Max)}
	if r.Min > r.Max {
		r.Min = r.Max
	}
	return r
}

// within narrows band so that it lies inside outer.
func within(band, outer Range) Range {
	r := Range{Max: math.Min(band.Max, outer.Max)}
	r.Min = math.Min(math.Max(band.Min, outer.Min), r.Max)
	return r
}

// wholeNumbers rounds the bounds inwards to integers.
func wholeNumbers(r Range) Range {
	return roundInwards(r, 1)
}

// halfSteps rounds the bounds inwards to the half point steps used on the RPE scale.
func halfSteps(r Range) Range {
	return roundInwards(r, 0.5) //nolint:mnd // RPE is reported in half points.
}

func roundInwards(r Range, step float64) Range {
	out := Range{Min: math.Ceil(r.Min/step) * step, Max: math.Floor(r.Max/step) * step}
	if out.Min > out.Max {
		out.Min = out.Max
	}
	return out
}
