// Package progression turns recent exercise history into a single next-session adjustment.
//
// The analyzer reads the most recent sessions oldest first, derives completion rate and effort, and picks one
// adjustment from a decision table whose thresholds live in [safety.AnalyzerPolicy]. Increases are pre-clamped to the
// resolved progression limits before the resulting plan is handed to the safety validator.
package progression

import (
	"fmt"
	"math"

	"github.com/myrjola/liftguard/internal/safety"
)

// Type is the kind of adjustment suggested.
type Type string

const (
	TypeIncreaseWeight Type = "increase_weight"
	TypeIncreaseReps   Type = "increase_reps"
	TypeAddSet         Type = "add_set"
	TypeMaintain       Type = "maintain"
	TypeDeload         Type = "deload"
)

// Confidence labels how much history backs a suggestion.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Unit of a suggestion delta.
type Unit string

const (
	UnitNone Unit = ""
	UnitKg   Unit = "kg"
	UnitReps Unit = "reps"
	UnitSets Unit = "sets"
)

// Signals are the trend values a suggestion is based on.
type Signals struct {
	Sessions       int     `json:"sessions"`
	CompletionRate float64 `json:"completion_rate"`
	AverageRPE     float64 `json:"average_rpe"`
	// RPEEstimated is true when at least one session had no reported RPE and effort was estimated from reps.
	RPEEstimated  bool `json:"rpe_estimated"`
	AboveBand     int  `json:"above_band"`
	ConsistentRun int  `json:"consistent_run"`
}

// Suggestion is the analyzer output. It is recomputed on demand and never persisted.
type Suggestion struct {
	ExerciseID string     `json:"exercise_id"`
	Type       Type       `json:"type"`
	Confidence Confidence `json:"confidence"`
	Delta      float64    `json:"delta"`
	Unit       Unit       `json:"unit,omitempty"`
	Rationale  string     `json:"rationale"`
	Signals    Signals    `json:"signals"`
}

// Analyzer suggests progressions. It holds only the immutable policy and is safe for concurrent use.
type Analyzer struct {
	policy safety.Policy
}

// NewAnalyzer creates an Analyzer using policy for both the limits and the decision thresholds.
func NewAnalyzer(policy safety.Policy) *Analyzer {
	return &Analyzer{policy: policy}
}

// Analyze suggests the next adjustment for the exercise in history.
//
// Fewer than the minimum number of sessions always yields maintain with low confidence.
func (a *Analyzer) Analyze(history ExerciseHistory, profile safety.UserProfile) Suggestion {
	limits := safety.ResolveLimits(a.policy, profile)
	cfg := a.policy.Analyzer

	sessions := history.Chronological()
	if len(sessions) > cfg.WindowSize {
		sessions = sessions[len(sessions)-cfg.WindowSize:]
	}

	s := Suggestion{
		ExerciseID: history.ExerciseID,
		Type:       TypeMaintain,
		Confidence: ConfidenceLow,
		Delta:      0,
		Unit:       UnitNone,
		Rationale:  "",
		Signals:    a.signals(sessions, limits.TargetRPE),
	}
	sig := s.Signals

	if len(sessions) < cfg.MinSessions {
		s.Rationale = fmt.Sprintf("only %d recent session(s) logged, keep the current prescription until there are %d",
			len(sessions), cfg.MinSessions)
		return s
	}

	last := sessions[len(sessions)-1]

	if sig.CompletionRate < cfg.DeloadCompletionRate || sig.AboveBand >= cfg.DeloadRPEHits {
		s.Type = TypeDeload
		s.Confidence = ConfidenceHigh
		s.Delta, s.Unit = a.deload(last, limits)
		if sig.CompletionRate < cfg.DeloadCompletionRate {
			s.Rationale = fmt.Sprintf("completed %.0f%% of prescribed sets over the last %d sessions, reduce the load to recover",
				sig.CompletionRate*100, sig.Sessions) //nolint:mnd // percent.
		} else {
			s.Rationale = fmt.Sprintf("effort was above the RPE %s band in %d of the last %d sessions, reduce the load to recover",
				limits.TargetRPE, sig.AboveBand, sig.Sessions)
		}
		return s
	}

	if sig.CompletionRate >= 1 && sig.AverageRPE < limits.TargetRPE.Min {
		typ, delta, unit := a.increase(last, profile, limits)
		if typ != TypeMaintain {
			s.Type, s.Delta, s.Unit = typ, delta, unit
			s.Confidence = ConfidenceMedium
			if sig.ConsistentRun >= cfg.HighConfidenceSessions {
				s.Confidence = ConfidenceHigh
			}
			s.Rationale = fmt.Sprintf("all sets completed at an average RPE of %.1f, below the %s target band, %s",
				sig.AverageRPE, limits.TargetRPE, describe(typ, delta, unit))
			return s
		}
		s.Confidence = ConfidenceMedium
		s.Rationale = "sessions are easy but the exercise is already at the weight, rep and set limits for this profile"
		return s
	}

	s.Confidence = ConfidenceMedium
	s.Rationale = fmt.Sprintf("completion %.0f%% at an average RPE of %.1f is on target, keep the current prescription",
		sig.CompletionRate*100, sig.AverageRPE) //nolint:mnd // percent.
	return s
}

func (a *Analyzer) signals(sessions []ExerciseSession, band safety.Range) Signals {
	sig := Signals{
		Sessions:       len(sessions),
		CompletionRate: 0,
		AverageRPE:     0,
		RPEEstimated:   false,
		AboveBand:      0,
		ConsistentRun:  0,
	}
	if len(sessions) == 0 {
		return sig
	}
	var completionSum, rpeSum float64
	for _, s := range sessions {
		completion := s.CompletionRate()
		rpe, reported := s.reportedRPE()
		if !reported {
			rpe = estimateRPE(s, band)
			sig.RPEEstimated = true
		}
		completionSum += completion
		rpeSum += rpe
		if rpe > band.Max {
			sig.AboveBand++
		}
		if completion >= 1 && rpe < band.Min {
			sig.ConsistentRun++
		} else {
			sig.ConsistentRun = 0
		}
	}
	sig.CompletionRate = completionSum / float64(len(sessions))
	sig.AverageRPE = rpeSum / float64(len(sessions))
	return sig
}

// estimateRPE infers effort from rep performance when no RPE was reported. Beating the target by two or more reps on
// every set counts as easy, hitting it as on target and missing it as too hard.
func estimateRPE(s ExerciseSession, band safety.Range) float64 {
	const repsInReserve = 2
	target := s.targetReps()
	if len(s.Sets) == 0 || target <= 0 {
		return band.Max + 0.5 //nolint:mnd // no performance counts as too hard.
	}
	fewest := s.Sets[0].Reps
	for _, set := range s.Sets[1:] {
		fewest = min(fewest, set.Reps)
	}
	switch {
	case fewest >= target+repsInReserve:
		return band.Min - 1
	case fewest >= target:
		return band.Min
	default:
		return band.Max + 0.5 //nolint:mnd // half a point above the band.
	}
}

// increase picks the progression allowed by the limits, preferring load or reps depending on the goal.
func (a *Analyzer) increase(last ExerciseSession, profile safety.UserProfile, limits safety.SafetyLimits) (
	Type, float64, Unit) {
	cfg := a.policy.Analyzer
	weight := last.WorkingWeightKg()
	weightDelta := a.weightIncrement(weight, profile.ReportedInjury, limits)
	repsOK := last.targetReps()+cfg.RepIncrement <= int(limits.RepsPerSet.Max)
	setOK := last.prescribed()+1 <= int(limits.SetsPerExercise.Max)

	order := []Type{TypeIncreaseReps, TypeIncreaseWeight, TypeAddSet}
	if profile.TrainingGoal.FavorsLoad() {
		order = []Type{TypeIncreaseWeight, TypeIncreaseReps, TypeAddSet}
	}
	for _, typ := range order {
		switch typ { //nolint:exhaustive // only increases are ordered.
		case TypeIncreaseWeight:
			if weightDelta > 0 {
				return typ, weightDelta, UnitKg
			}
		case TypeIncreaseReps:
			if repsOK {
				return typ, float64(cfg.RepIncrement), UnitReps
			}
		case TypeAddSet:
			if setOK {
				return typ, 1, UnitSets
			}
		}
	}
	return TypeMaintain, 0, UnitNone
}

// weightIncrement returns the largest standard increment within the progression cap, rounded down to the plate
// rounding. Zero means no weight increase is possible.
func (a *Analyzer) weightIncrement(weight float64, injured bool, limits safety.SafetyLimits) float64 {
	if weight <= 0 {
		return 0
	}
	cfg := a.policy.Analyzer
	capPct := limits.MaxProgressionPct
	if injured {
		capPct = math.Min(capPct, limits.InjuryMaxLoadIncreasePct)
	}
	raw := math.Min(cfg.WeightIncrementKg, weight*capPct/100) //nolint:mnd // percent.
	return roundDown(raw, cfg.WeightRoundingKg)
}

// deload returns the reduction for a recovery session. Loaded exercises drop weight, bodyweight exercises drop a
// set while above the minimum and reps otherwise.
func (a *Analyzer) deload(last ExerciseSession, limits safety.SafetyLimits) (float64, Unit) {
	cfg := a.policy.Analyzer
	if weight := last.WorkingWeightKg(); weight > 0 {
		reduced := roundDown(weight*(1-cfg.DeloadPct/100), cfg.WeightRoundingKg) //nolint:mnd // percent.
		return reduced - weight, UnitKg
	}
	if last.prescribed()-1 >= int(limits.SetsPerExercise.Min) {
		return -1, UnitSets
	}
	return -float64(cfg.RepIncrement), UnitReps
}

func roundDown(v, step float64) float64 {
	// The epsilon keeps exact multiples like 2.5 from flooring to the step below.
	return math.Floor(v/step+1e-9) * step
}

func describe(typ Type, delta float64, unit Unit) string {
	switch typ { //nolint:exhaustive // only increases are described.
	case TypeIncreaseWeight:
		return fmt.Sprintf("add %g %s", delta, unit)
	case TypeIncreaseReps:
		return fmt.Sprintf("add %g rep(s) per set", delta)
	case TypeAddSet:
		return "add one set"
	default:
		return "keep the current prescription"
	}
}
