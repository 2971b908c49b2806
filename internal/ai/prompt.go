package ai

import (
	"fmt"
	"strings"

	"github.com/myrjola/liftguard/internal/progression"
	"github.com/myrjola/liftguard/internal/safety"
)

const systemPrompt = `You are a certified strength and conditioning coach writing a weekly workout plan.
Respond only with JSON matching the provided schema.
Stay strictly inside every limit you are given. Plans outside the limits are discarded.
Use weight_kg null for bodyweight exercises and when the user's working weight is unknown.`

// goalFocus is the coaching emphasis per training goal.
var goalFocus = map[safety.TrainingGoal]string{ //nolint:gochecknoglobals // lookup table.
	safety.GoalStrength:    "maximal strength on the main barbell lifts with low reps and long rest",
	safety.GoalHypertrophy: "muscle growth with moderate reps close to failure and balanced volume across muscle groups",
	safety.GoalEndurance:   "muscular endurance with high reps, short rest and circuit-friendly exercises",
	safety.GoalCutting:     "keeping strength while losing fat with moderate reps and short rest",
	safety.GoalBulking:     "gaining muscle and strength with compound lifts and steady overload",
	safety.GoalBalanced:    "general fitness with a full body mix of compound and accessory exercises",
}

// maxRecentSessions bounds how much history is quoted in a prompt.
const maxRecentSessions = 12

// BuildPrompt writes the request for a plan suited to profile within limits. Recent sessions, newest last, give the
// model the user's current working weights.
func BuildPrompt(profile safety.UserProfile, limits safety.SafetyLimits, recent []progression.ExerciseSession) Prompt {
	var b strings.Builder

	goal := limits.TrainingGoal
	focus, ok := goalFocus[goal]
	if !ok {
		focus = goalFocus[safety.GoalBalanced]
	}

	fmt.Fprintf(&b, "Write a plan for a %d year old %s lifter training for %s.\n", profile.Age, limits.FitnessLevel, goal)
	fmt.Fprintf(&b, "Focus on %s.\n", focus)
	if profile.Gender != "" {
		fmt.Fprintf(&b, "Gender: %s.\n", profile.Gender)
	}
	if profile.WeightKg != nil {
		fmt.Fprintf(&b, "Body weight: %g kg.\n", *profile.WeightKg)
	}
	if profile.ActivityLevel != "" {
		fmt.Fprintf(&b, "Activity level outside training: %s.\n", profile.ActivityLevel)
	}
	if profile.ReportedInjury {
		fmt.Fprintf(&b, "The user reports an injury. Keep target RPE at or below %g and avoid load increases above %g%%.\n",
			limits.InjuryMaxRPE, limits.InjuryMaxLoadIncreasePct)
	}

	b.WriteString("\nLimits:\n")
	fmt.Fprintf(&b, "- sessions per week: %s\n", limits.SessionsPerWeek)
	fmt.Fprintf(&b, "- session length in minutes: %s\n", limits.SessionMinutes)
	fmt.Fprintf(&b, "- sets per exercise: %s\n", limits.SetsPerExercise)
	fmt.Fprintf(&b, "- reps per set: %s\n", limits.RepsPerSet)
	fmt.Fprintf(&b, "- total working sets per week: %s\n", limits.WeeklySets)
	fmt.Fprintf(&b, "- target RPE: %s\n", limits.TargetRPE)
	fmt.Fprintf(&b, "- rest between sets in seconds: %s\n", limits.RestSeconds)
	fmt.Fprintf(&b, "- weekly load increase per exercise: at most %g%%\n", limits.MaxProgressionPct)

	if len(recent) > maxRecentSessions {
		recent = recent[len(recent)-maxRecentSessions:]
	}
	if len(recent) > 0 {
		b.WriteString("\nRecent sessions, oldest first:\n")
		for _, s := range recent {
			fmt.Fprintf(&b, "- %s %s: %d sets", s.Date.Format("2006-01-02"), s.ExerciseID, len(s.Sets))
			if w := s.WorkingWeightKg(); w > 0 {
				fmt.Fprintf(&b, " at %g kg", w)
			}
			fmt.Fprintf(&b, ", completion %.0f%%\n", s.CompletionRate()*100) //nolint:mnd // percent.
		}
	}

	return Prompt{System: systemPrompt, User: b.String()}
}
