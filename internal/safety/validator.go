package safety

import (
	"fmt"
	"math"
	"strconv"
)

// loadEpsilon absorbs floating point noise when comparing progression percentages.
const loadEpsilon = 1e-6

// Validate checks every numeric field of plan against limits and decides whether the plan may reach the user.
//
// Fields are checked in declaration order, plan level fields first, then every exercise and finally the derived weekly
// volume, so identical input always yields identical violations. A value outside its range by no more than the
// tolerance is clamped to the nearest bound. Anything further out, any injury cap breach and any malformed value
// rejects the plan as a whole. The input plan is never modified.
func Validate(plan WorkoutPlan, limits SafetyLimits, priorInjury bool) ValidationResult {
	if err := limits.Check(); err != nil {
		return Rejected(Violation{
			Field:         "limits",
			LimitExceeded: LimitContract,
			ProposedValue: 0,
			AllowedRange:  Range{},
			Severity:      SeverityHard,
			Message:       err.Error(),
		})
	}

	v := &validator{
		limits:      limits,
		injured:     priorInjury,
		plan:        plan.Clone(),
		violations:  []Violation{},
		hasHardFail: false,
	}
	v.checkPlan()

	switch {
	case v.hasHardFail:
		return Rejected(v.violations...)
	case len(v.violations) > 0:
		return ValidationResult{Verdict: VerdictClamped, ClampedPlan: &v.plan, Violations: v.violations}
	default:
		return ValidationResult{Verdict: VerdictAccepted, ClampedPlan: &v.plan, Violations: v.violations}
	}
}

type validator struct {
	limits      SafetyLimits
	injured     bool
	plan        WorkoutPlan
	violations  []Violation
	hasHardFail bool
}

func (v *validator) checkPlan() {
	v.optionalInt("sessions_per_week", "sessions per week", &v.plan.SessionsPerWeek,
		v.limits.SessionsPerWeek, LimitSessionsPerWeek)
	v.optionalInt("session_minutes", "session length in minutes", &v.plan.SessionMinutes,
		v.limits.SessionMinutes, LimitSessionMinutes)

	if len(v.plan.Exercises) == 0 {
		v.hard("exercises", LimitRequired, 0, Range{}, "the plan contains no exercises")
	}
	for i := range v.plan.Exercises {
		v.checkExercise(i, &v.plan.Exercises[i])
	}

	if weekly := v.plan.WeeklySets(); weekly > 0 && float64(weekly) > v.limits.WeeklySets.Max {
		v.hard("weekly_sets", LimitWeeklySets, float64(weekly), v.limits.WeeklySets,
			fmt.Sprintf("%d working sets per week exceed the weekly maximum of %s, reduce sets or sessions",
				weekly, formatNumber(v.limits.WeeklySets.Max)))
	}
}

func (v *validator) checkExercise(i int, e *PlannedExercise) {
	field := func(name string) string { return "exercises[" + strconv.Itoa(i) + "]." + name }
	label := e.Name
	if label == "" {
		label = "exercise " + strconv.Itoa(i+1)
	}

	if e.Sets <= 0 {
		v.hard(field("sets"), LimitRequired, float64(e.Sets), v.limits.SetsPerExercise,
			label+" needs at least one set")
	} else {
		v.clampInt(field("sets"), label+" sets", &e.Sets, v.limits.SetsPerExercise, LimitSetsPerExercise)
	}

	switch {
	case e.MinReps <= 0:
		v.hard(field("min_reps"), LimitRequired, float64(e.MinReps), v.limits.RepsPerSet,
			label+" needs a positive minimum rep count")
	case e.MaxReps <= 0:
		v.hard(field("max_reps"), LimitRequired, float64(e.MaxReps), v.limits.RepsPerSet,
			label+" needs a positive maximum rep count")
	case e.MinReps > e.MaxReps:
		v.hard(field("min_reps"), LimitWellFormed, float64(e.MinReps), Range{Min: 1, Max: float64(e.MaxReps)},
			label+" has a minimum rep count above its maximum")
	default:
		v.clampInt(field("min_reps"), label+" minimum reps", &e.MinReps, v.limits.RepsPerSet, LimitRepsPerSet)
		v.clampInt(field("max_reps"), label+" maximum reps", &e.MaxReps, v.limits.RepsPerSet, LimitRepsPerSet)
	}

	v.checkLoad(field("weight_kg"), field("baseline_weight_kg"), label, e)

	if e.TargetRPE != nil {
		rpe := *e.TargetRPE
		switch {
		case !positive(rpe):
			v.hard(field("target_rpe"), LimitWellFormed, rpe, v.limits.RPE, label+" has an invalid target RPE")
		case v.injured && rpe > v.limits.InjuryMaxRPE:
			injuryRange := Range{Min: v.limits.RPE.Min, Max: v.limits.InjuryMaxRPE}
			v.hard(field("target_rpe"), LimitInjuryMaxRPE, rpe, injuryRange,
				fmt.Sprintf("%s target RPE %s is above the post-injury cap of %s",
					label, formatNumber(rpe), formatNumber(v.limits.InjuryMaxRPE)))
		default:
			*e.TargetRPE = v.clamp(field("target_rpe"), label+" target RPE", rpe, v.limits.RPE, LimitRPE)
		}
	}

	switch {
	case e.RestSeconds < 0:
		v.hard(field("rest_seconds"), LimitWellFormed, float64(e.RestSeconds), v.limits.RestSeconds,
			label+" has negative rest")
	case e.RestSeconds > 0:
		v.clampInt(field("rest_seconds"), label+" rest in seconds", &e.RestSeconds, v.limits.RestSeconds,
			LimitRestSeconds)
	}
}

// checkLoad compares the proposed weight with the last performed weight. Decreases are always allowed.
func (v *validator) checkLoad(field, baseField, label string, e *PlannedExercise) {
	if e.WeightKg == nil {
		return
	}
	weight := *e.WeightKg
	if !finite(weight) || weight < 0 {
		v.hard(field, LimitWellFormed, weight, Range{}, label+" has an invalid weight")
		return
	}
	if e.BaselineWeightKg == nil {
		return
	}
	base := *e.BaselineWeightKg
	if !finite(base) || base < 0 {
		v.hard(baseField, LimitWellFormed, base, Range{}, label+" has an invalid baseline weight")
		return
	}
	if base == 0 || weight <= base {
		return
	}

	increasePct := (weight - base) / base * 100 //nolint:mnd // percent.
	if v.injured && increasePct > v.limits.InjuryMaxLoadIncreasePct+loadEpsilon {
		allowed := Range{Min: 0, Max: base * (1 + v.limits.InjuryMaxLoadIncreasePct/100)} //nolint:mnd // percent.
		v.hard(field, LimitInjuryMaxLoadIncrease, weight, allowed,
			fmt.Sprintf("%s load increase of %s%% is above the post-injury cap of %s%%",
				label, formatNumber(increasePct), formatNumber(v.limits.InjuryMaxLoadIncreasePct)))
		return
	}
	if increasePct <= v.limits.MaxProgressionPct+loadEpsilon {
		return
	}

	allowed := Range{Min: 0, Max: base * (1 + v.limits.MaxProgressionPct/100)} //nolint:mnd // percent.
	if increasePct <= v.limits.MaxProgressionPct*(1+v.limits.TolerancePct/100)+loadEpsilon { //nolint:mnd // percent.
		*e.WeightKg = allowed.Max
		v.add(Violation{
			Field:         field,
			LimitExceeded: LimitMaxProgressionPct,
			ProposedValue: weight,
			AllowedRange:  allowed,
			Severity:      SeveritySoft,
			Message: fmt.Sprintf("%s weight lowered from %s kg to %s kg, the largest allowed step is %s%%",
				label, formatNumber(weight), formatNumber(allowed.Max), formatNumber(v.limits.MaxProgressionPct)),
		})
		return
	}
	v.hard(field, LimitMaxProgressionPct, weight, allowed,
		fmt.Sprintf("%s weight increase of %s%% exceeds the largest allowed step of %s%%",
			label, formatNumber(increasePct), formatNumber(v.limits.MaxProgressionPct)))
}

func (v *validator) optionalInt(field, label string, p *int, r Range, limit string) {
	switch {
	case *p < 0:
		v.hard(field, LimitWellFormed, float64(*p), r, label+" cannot be negative")
	case *p > 0:
		v.clampInt(field, label, p, r, limit)
	}
}

func (v *validator) clampInt(field, label string, p *int, r Range, limit string) {
	*p = int(math.Round(v.clamp(field, label, float64(*p), r, limit)))
}

// clamp returns value when it is in range, the nearest bound for a soft violation and value unchanged for a hard one.
func (v *validator) clamp(field, label string, value float64, r Range, limit string) float64 {
	if r.Contains(value) {
		return value
	}
	bound, direction := r.Max, "above"
	if value < r.Min {
		bound, direction = r.Min, "below"
	}
	if bound != 0 && math.Abs(value-bound) <= math.Abs(bound)*v.limits.TolerancePct/100 { //nolint:mnd // percent.
		v.add(Violation{
			Field:         field,
			LimitExceeded: limit,
			ProposedValue: value,
			AllowedRange:  r,
			Severity:      SeveritySoft,
			Message: fmt.Sprintf("%s adjusted from %s to %s to stay within %s",
				label, formatNumber(value), formatNumber(bound), r),
		})
		return bound
	}
	v.hard(field, limit, value, r,
		fmt.Sprintf("%s of %s is too far %s the allowed %s", label, formatNumber(value), direction, r))
	return value
}

func (v *validator) hard(field, limit string, value float64, r Range, msg string) {
	v.hasHardFail = true
	v.add(Violation{
		Field:         field,
		LimitExceeded: limit,
		ProposedValue: value,
		AllowedRange:  r,
		Severity:      SeverityHard,
		Message:       msg,
	})
}

func (v *validator) add(violation Violation) {
	v.violations = append(v.violations, violation)
}
