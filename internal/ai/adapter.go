package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/safety"
)

// AdapterErrorKind tells why a raw suggestion could not be used.
type AdapterErrorKind string

const (
	// AdapterMalformed means the payload is not a single JSON object of the expected shape.
	AdapterMalformed AdapterErrorKind = "malformed"
	// AdapterMissingField means a required field is absent or null.
	AdapterMissingField AdapterErrorKind = "missing_field"
	// AdapterInvalidValue means a field holds a value no plan can carry.
	AdapterInvalidValue AdapterErrorKind = "invalid_value"
)

// AdapterError is returned by [AdaptSuggestion]. Field is empty for payload level problems.
type AdapterError struct {
	Kind  AdapterErrorKind
	Field string
	Err   error
}

func (e *AdapterError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("adapt ai suggestion: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("adapt ai suggestion: %s %s: %v", e.Kind, e.Field, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

var (
	errMissing     = errors.NewSentinel("value is required")
	errNotInteger  = errors.NewSentinel("value must be a whole number")
	errOutOfBounds = errors.NewSentinel("value is out of bounds")
)

// Values beyond these bounds are never a plan, they are a broken response.
const (
	maxWholeValue          = 100_000
	maxBodyweightMultiple  = 5
	implausibleLoadMessage = "load is implausible for the user's body weight"
)

type rawPlan struct {
	SessionsPerWeek *float64      `json:"sessions_per_week"`
	SessionMinutes  *float64      `json:"session_minutes"`
	Exercises       []rawExercise `json:"exercises"`
}

type rawExercise struct {
	Name        *string  `json:"name"`
	Sets        *float64 `json:"sets"`
	RepsMin     *float64 `json:"reps_min"`
	RepsMax     *float64 `json:"reps_max"`
	WeightKg    *float64 `json:"weight_kg"`
	TargetRPE   *float64 `json:"target_rpe"`
	RestSeconds *float64 `json:"rest_seconds"`
	Notes       *string  `json:"notes"`
}

// AdaptSuggestion converts the raw structured text returned by the model into a [safety.WorkoutPlan] with source ai.
//
// It fails closed: a missing required field, an unknown field, a fractional count or trailing data returns an
// [*AdapterError] instead of a plan with defaults filled in. Values are only normalized, never checked against the
// safety limits, which is the validator's job. The profile body weight is used to reject loads no person could lift.
func AdaptSuggestion(raw string, profile safety.UserProfile) (safety.WorkoutPlan, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var payload rawPlan
	if err := dec.Decode(&payload); err != nil {
		return safety.WorkoutPlan{}, &AdapterError{Kind: AdapterMalformed, Field: "", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return safety.WorkoutPlan{}, &AdapterError{
			Kind:  AdapterMalformed,
			Field: "",
			Err:   errors.New("trailing data after the plan object"),
		}
	}

	plan := safety.WorkoutPlan{
		Source:          safety.SourceAI,
		SessionsPerWeek: 0,
		SessionMinutes:  0,
		Exercises:       make([]safety.PlannedExercise, 0, len(payload.Exercises)),
	}

	var err error
	if plan.SessionsPerWeek, err = wholeNumber("sessions_per_week", payload.SessionsPerWeek); err != nil {
		return safety.WorkoutPlan{}, err
	}
	if plan.SessionMinutes, err = wholeNumber("session_minutes", payload.SessionMinutes); err != nil {
		return safety.WorkoutPlan{}, err
	}
	if len(payload.Exercises) == 0 {
		return safety.WorkoutPlan{}, &AdapterError{Kind: AdapterMissingField, Field: "exercises", Err: errMissing}
	}

	for i, re := range payload.Exercises {
		prefix := "exercises[" + strconv.Itoa(i) + "]."
		e, adaptErr := adaptExercise(prefix, re, profile)
		if adaptErr != nil {
			return safety.WorkoutPlan{}, adaptErr
		}
		plan.Exercises = append(plan.Exercises, e)
	}
	return plan, nil
}

func adaptExercise(prefix string, re rawExercise, profile safety.UserProfile) (safety.PlannedExercise, error) {
	var (
		e   safety.PlannedExercise
		err error
	)
	if re.Name == nil || strings.TrimSpace(*re.Name) == "" {
		return e, &AdapterError{Kind: AdapterMissingField, Field: prefix + "name", Err: errMissing}
	}
	e.Name = strings.TrimSpace(*re.Name)
	e.ExerciseID = Slug(e.Name)

	if e.Sets, err = wholeNumber(prefix+"sets", re.Sets); err != nil {
		return e, err
	}
	if e.MinReps, err = wholeNumber(prefix+"reps_min", re.RepsMin); err != nil {
		return e, err
	}
	if e.MaxReps, err = wholeNumber(prefix+"reps_max", re.RepsMax); err != nil {
		return e, err
	}
	if e.RestSeconds, err = wholeNumber(prefix+"rest_seconds", re.RestSeconds); err != nil {
		return e, err
	}
	if re.WeightKg != nil {
		w := *re.WeightKg
		switch {
		case !finiteNumber(w) || w < 0:
			return e, &AdapterError{Kind: AdapterInvalidValue, Field: prefix + "weight_kg", Err: errOutOfBounds}
		case profile.WeightKg != nil && *profile.WeightKg > 0 && w > *profile.WeightKg*maxBodyweightMultiple:
			return e, &AdapterError{
				Kind:  AdapterInvalidValue,
				Field: prefix + "weight_kg",
				Err:   errors.New(implausibleLoadMessage),
			}
		case w > 0:
			e.WeightKg = &w
		}
	}
	if re.TargetRPE != nil {
		rpe := *re.TargetRPE
		if !finiteNumber(rpe) {
			return e, &AdapterError{Kind: AdapterInvalidValue, Field: prefix + "target_rpe", Err: errOutOfBounds}
		}
		e.TargetRPE = &rpe
	}
	if re.Notes != nil {
		e.Notes = strings.TrimSpace(*re.Notes)
	}
	return e, nil
}

func wholeNumber(field string, v *float64) (int, error) {
	if v == nil {
		return 0, &AdapterError{Kind: AdapterMissingField, Field: field, Err: errMissing}
	}
	if !finiteNumber(*v) || math.Abs(*v) > maxWholeValue {
		return 0, &AdapterError{Kind: AdapterInvalidValue, Field: field, Err: errOutOfBounds}
	}
	if math.Trunc(*v) != *v {
		return 0, &AdapterError{Kind: AdapterInvalidValue, Field: field, Err: errNotInteger}
	}
	return int(*v), nil
}

func finiteNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Slug derives a stable exercise identifier from a display name, "Barbell Back Squat" becomes "barbell-back-squat".
func Slug(name string) string {
	var b bytes.Buffer
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
