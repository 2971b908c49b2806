package ai_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/liftguard/internal/ai"
	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/ptr"
	"github.com/myrjola/liftguard/internal/safety"
)

const validSuggestion = `{
  "sessions_per_week": 4,
  "session_minutes": 60,
  "exercises": [
    {"name": " Barbell Back Squat ", "sets": 3, "reps_min": 8, "reps_max": 10.0, "weight_kg": 80,
     "target_rpe": 8, "rest_seconds": 120, "notes": "Brace before each rep"},
    {"name": "Push-Up", "sets": 3, "reps_min": 10, "reps_max": 15, "weight_kg": null,
     "target_rpe": null, "rest_seconds": 60, "notes": ""}
  ]
}`

func TestAdaptSuggestion(t *testing.T) {
	got, err := ai.AdaptSuggestion(validSuggestion, safety.UserProfile{Age: 30, WeightKg: ptr.Ref(80.0)})
	if err != nil {
		t.Fatalf("AdaptSuggestion() error = %v", err)
	}
	want := safety.WorkoutPlan{
		Source:          safety.SourceAI,
		SessionsPerWeek: 4,
		SessionMinutes:  60,
		Exercises: []safety.PlannedExercise{
			{
				ExerciseID:  "barbell-back-squat",
				Name:        "Barbell Back Squat",
				Sets:        3,
				MinReps:     8,
				MaxReps:     10,
				WeightKg:    ptr.Ref(80.0),
				TargetRPE:   ptr.Ref(8.0),
				RestSeconds: 120,
				Notes:       "Brace before each rep",
			},
			{
				ExerciseID:  "push-up",
				Name:        "Push-Up",
				Sets:        3,
				MinReps:     10,
				MaxReps:     15,
				RestSeconds: 60,
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AdaptSuggestion() mismatch (-want +got):\n%s", diff)
	}
}

func TestAdaptSuggestion_failsClosed(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantKind  ai.AdapterErrorKind
		wantField string
	}{
		{
			name:     "not json",
			raw:      "Here is your plan: squat three times a week",
			wantKind: ai.AdapterMalformed,
		},
		{
			name:     "empty",
			raw:      "",
			wantKind: ai.AdapterMalformed,
		},
		{
			name:     "unknown field",
			raw:      `{"sessions_per_week": 3, "session_minutes": 45, "exercises": [], "motivation": "go"}`,
			wantKind: ai.AdapterMalformed,
		},
		{
			name:     "trailing data",
			raw:      `{"sessions_per_week": 3, "session_minutes": 45, "exercises": []} {}`,
			wantKind: ai.AdapterMalformed,
		},
		{
			name:     "wrong type",
			raw:      `{"sessions_per_week": "three", "session_minutes": 45, "exercises": []}`,
			wantKind: ai.AdapterMalformed,
		},
		{
			name:      "missing sessions per week",
			raw:       `{"session_minutes": 45, "exercises": []}`,
			wantKind:  ai.AdapterMissingField,
			wantField: "sessions_per_week",
		},
		{
			name:      "null session minutes",
			raw:       `{"sessions_per_week": 3, "session_minutes": null, "exercises": []}`,
			wantKind:  ai.AdapterMissingField,
			wantField: "session_minutes",
		},
		{
			name:      "no exercises",
			raw:       `{"sessions_per_week": 3, "session_minutes": 45, "exercises": []}`,
			wantKind:  ai.AdapterMissingField,
			wantField: "exercises",
		},
		{
			name: "blank name",
			raw: `{"sessions_per_week": 3, "session_minutes": 45, "exercises": [
				{"name": " ", "sets": 3, "reps_min": 8, "reps_max": 10, "rest_seconds": 60}]}`,
			wantKind:  ai.AdapterMissingField,
			wantField: "exercises[0].name",
		},
		{
			name: "missing sets on second exercise",
			raw: `{"sessions_per_week": 3, "session_minutes": 45, "exercises": [
				{"name": "Squat", "sets": 3, "reps_min": 8, "reps_max": 10, "rest_seconds": 60},
				{"name": "Row", "reps_min": 8, "reps_max": 10, "rest_seconds": 60}]}`,
			wantKind:  ai.AdapterMissingField,
			wantField: "exercises[1].sets",
		},
		{
			name: "fractional reps",
			raw: `{"sessions_per_week": 3, "session_minutes": 45, "exercises": [
				{"name": "Squat", "sets": 3, "reps_min": 8.5, "reps_max": 10, "rest_seconds": 60}]}`,
			wantKind:  ai.AdapterInvalidValue,
			wantField: "exercises[0].reps_min",
		},
		{
			name: "huge rest",
			raw: `{"sessions_per_week": 3, "session_minutes": 45, "exercises": [
				{"name": "Squat", "sets": 3, "reps_min": 8, "reps_max": 10, "rest_seconds": 1e300}]}`,
			wantKind:  ai.AdapterInvalidValue,
			wantField: "exercises[0].rest_seconds",
		},
		{
			name: "negative weight",
			raw: `{"sessions_per_week": 3, "session_minutes": 45, "exercises": [
				{"name": "Squat", "sets": 3, "reps_min": 8, "reps_max": 10, "rest_seconds": 60, "weight_kg": -20}]}`,
			wantKind:  ai.AdapterInvalidValue,
			wantField: "exercises[0].weight_kg",
		},
		{
			name: "implausible weight",
			raw: `{"sessions_per_week": 3, "session_minutes": 45, "exercises": [
				{"name": "Squat", "sets": 3, "reps_min": 8, "reps_max": 10, "rest_seconds": 60, "weight_kg": 900}]}`,
			wantKind:  ai.AdapterInvalidValue,
			wantField: "exercises[0].weight_kg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ai.AdaptSuggestion(tt.raw, safety.UserProfile{Age: 30, WeightKg: ptr.Ref(80.0)})
			var adapterErr *ai.AdapterError
			if !errors.As(err, &adapterErr) {
				t.Fatalf("AdaptSuggestion() error = %v, want *ai.AdapterError", err)
			}
			if adapterErr.Kind != tt.wantKind || adapterErr.Field != tt.wantField {
				t.Errorf("AdaptSuggestion() error kind, field = %q, %q, want %q, %q",
					adapterErr.Kind, adapterErr.Field, tt.wantKind, tt.wantField)
			}
			if len(plan.Exercises) != 0 {
				t.Errorf("AdaptSuggestion() returned %d exercises alongside an error", len(plan.Exercises))
			}
		})
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Barbell Back Squat":  "barbell-back-squat",
		"  Push-Up  ":         "push-up",
		"Dumbbell (Incline)!": "dumbbell-incline",
		"Öljy 3x":             "öljy-3x",
	}
	for in, want := range tests {
		if got := ai.Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}
