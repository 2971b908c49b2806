package ai

import (
	"math"

	"github.com/myrjola/liftguard/internal/ptr"
	"github.com/myrjola/liftguard/internal/safety"
)

// fallbackExercises are the canned session templates per goal, compound lifts first.
var fallbackExercises = map[safety.TrainingGoal][]string{ //nolint:gochecknoglobals // lookup table.
	safety.GoalStrength:    {"Back Squat", "Bench Press", "Romanian Deadlift", "Overhead Press", "Barbell Row"},
	safety.GoalHypertrophy: {"Bench Press", "Lat Pulldown", "Leg Press", "Dumbbell Shoulder Press", "Seated Cable Row", "Leg Curl"},
	safety.GoalEndurance:   {"Goblet Squat", "Push-Up", "Walking Lunge", "Inverted Row", "Kettlebell Swing"},
	safety.GoalCutting:     {"Goblet Squat", "Dumbbell Bench Press", "Lat Pulldown", "Walking Lunge", "Seated Cable Row"},
	safety.GoalBulking:     {"Back Squat", "Bench Press", "Barbell Row", "Overhead Press", "Romanian Deadlift", "Chin-Up"},
	safety.GoalBalanced:    {"Goblet Squat", "Push-Up", "Dumbbell Row", "Romanian Deadlift", "Plank Shoulder Tap"},
}

const (
	fallbackSets = 3
	// fallbackRepSpan widens the rep prescription above the goal's minimum.
	fallbackRepSpan = 4
)

// FallbackPlan is the deterministic plan used when the model is unavailable or its answer cannot be used.
//
// Every value is taken from limits, so the plan validates as accepted against the same limits. Weights are left
// unset because the fallback does not know the user's working weights.
func FallbackPlan(profile safety.UserProfile, limits safety.SafetyLimits) safety.WorkoutPlan {
	names, ok := fallbackExercises[limits.TrainingGoal]
	if !ok {
		names = fallbackExercises[safety.GoalBalanced]
	}

	sessions := int(math.Ceil(limits.SessionsPerWeek.Min))
	sets := clampWhole(fallbackSets, limits.SetsPerExercise)
	count := len(names)
	// Trim the session until the weekly volume fits, dropping exercises before sets.
	for count > 1 && sessions*count*sets > int(limits.WeeklySets.Max) {
		count--
	}
	for sets > int(limits.SetsPerExercise.Min) && sessions*count*sets > int(limits.WeeklySets.Max) {
		sets--
	}

	minReps := clampWhole(int(limits.RepsPerSet.Min), limits.RepsPerSet)
	maxReps := clampWhole(minReps+fallbackRepSpan, limits.RepsPerSet)

	rpe := limits.TargetRPE.Min
	if profile.ReportedInjury {
		rpe = math.Min(rpe, limits.InjuryMaxRPE)
	}
	rest := clampWhole(int(math.Round((limits.RestSeconds.Min+limits.RestSeconds.Max)/2)), limits.RestSeconds) //nolint:mnd // midpoint.

	plan := safety.WorkoutPlan{
		Source:          safety.SourceFallback,
		SessionsPerWeek: sessions,
		SessionMinutes:  clampWhole(int(math.Round((limits.SessionMinutes.Min+limits.SessionMinutes.Max)/2)), limits.SessionMinutes), //nolint:mnd,lll // midpoint.
		Exercises:       make([]safety.PlannedExercise, 0, count),
	}
	for _, name := range names[:count] {
		plan.Exercises = append(plan.Exercises, safety.PlannedExercise{
			ExerciseID:       Slug(name),
			Name:             name,
			Sets:             sets,
			MinReps:          minReps,
			MaxReps:          maxReps,
			WeightKg:         nil,
			BaselineWeightKg: nil,
			TargetRPE:        ptr.Ref(rpe),
			RestSeconds:      rest,
			Notes:            "",
		})
	}
	return plan
}

func clampWhole(v int, r safety.Range) int {
	return int(math.Round(r.Clamp(float64(v))))
}
