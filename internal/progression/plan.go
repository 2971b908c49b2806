package progression

import (
	"math"

	"github.com/myrjola/liftguard/internal/ptr"
	"github.com/myrjola/liftguard/internal/safety"
)

// NextPlan applies suggestion to the most recent session of history and returns the single-exercise candidate for the
// validator. Every value is clamped into limits, so the validator only ever sees an analyzer plan it can accept.
//
// The plan carries the last working weight as baseline so that the validator re-checks the progression step on its
// own. History without sessions yields a plan at the lower limits.
func NextPlan(history ExerciseHistory, suggestion Suggestion, limits safety.SafetyLimits, injured bool) safety.WorkoutPlan {
	sessions := history.Chronological()
	var last ExerciseSession
	if len(sessions) > 0 {
		last = sessions[len(sessions)-1]
	}

	sets := last.prescribed()
	reps := last.targetReps()
	weight := last.WorkingWeightKg()
	newWeight := weight

	switch suggestion.Unit {
	case UnitKg:
		newWeight = math.Max(0, weight+suggestion.Delta)
	case UnitReps:
		reps += int(suggestion.Delta)
	case UnitSets:
		sets += int(suggestion.Delta)
	case UnitNone:
	}

	sets = clampInt(sets, limits.SetsPerExercise)
	reps = clampInt(reps, limits.RepsPerSet)

	rpe := limits.TargetRPE.Min
	if suggestion.Type == TypeDeload {
		rpe = limits.RPE.Clamp(limits.TargetRPE.Min - 1)
	}
	if injured {
		rpe = math.Min(rpe, limits.InjuryMaxRPE)
	}

	exercise := safety.PlannedExercise{
		ExerciseID:       history.ExerciseID,
		Name:             history.ExerciseID,
		Sets:             sets,
		MinReps:          reps,
		MaxReps:          reps,
		WeightKg:         nil,
		BaselineWeightKg: nil,
		TargetRPE:        ptr.Ref(rpe),
		RestSeconds:      restMidpoint(limits.RestSeconds),
		Notes:            suggestion.Rationale,
	}
	if weight > 0 {
		exercise.WeightKg = ptr.Ref(newWeight)
		exercise.BaselineWeightKg = ptr.Ref(weight)
	}

	return safety.WorkoutPlan{
		Source:          safety.SourceAnalyzer,
		SessionsPerWeek: 0,
		SessionMinutes:  0,
		Exercises:       []safety.PlannedExercise{exercise},
	}
}

func restMidpoint(r safety.Range) int {
	return clampInt(int(math.Round((r.Min+r.Max)/2)), r) //nolint:mnd // midpoint.
}

func clampInt(v int, r safety.Range) int {
	return int(r.Clamp(float64(v)))
}
