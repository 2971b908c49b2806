package progression

import (
	"slices"
	"time"
)

// SetPerformance is one performed set.
type SetPerformance struct {
	// WeightKg is zero for bodyweight sets.
	WeightKg float64 `json:"weight_kg"`
	Reps     int     `json:"reps"`
	// RPE is the reported effort on the 1 to 10 scale, nil when the user did not report it.
	RPE *float64 `json:"rpe,omitempty"`
}

// ExerciseSession is the record of one exercise within a workout.
type ExerciseSession struct {
	ExerciseID     string           `json:"exercise_id"`
	Date           time.Time        `json:"date"`
	PrescribedSets int              `json:"prescribed_sets"`
	TargetReps     int              `json:"target_reps"`
	Sets           []SetPerformance `json:"sets"`
	Completed      bool             `json:"completed"`
}

// ExerciseHistory holds the sessions of one exercise. Sessions may be stored in any order, the analyzer works on a
// chronologically sorted copy.
type ExerciseHistory struct {
	ExerciseID string            `json:"exercise_id"`
	Sessions   []ExerciseSession `json:"sessions"`
}

// Chronological returns the sessions of the history's exercise sorted oldest first.
func (h ExerciseHistory) Chronological() []ExerciseSession {
	sessions := make([]ExerciseSession, 0, len(h.Sessions))
	for _, s := range h.Sessions {
		if h.ExerciseID == "" || s.ExerciseID == "" || s.ExerciseID == h.ExerciseID {
			sessions = append(sessions, s)
		}
	}
	slices.SortStableFunc(sessions, func(a, b ExerciseSession) int {
		return a.Date.Compare(b.Date)
	})
	return sessions
}

// prescribed is the number of sets the session called for.
func (s ExerciseSession) prescribed() int {
	if s.PrescribedSets > 0 {
		return s.PrescribedSets
	}
	return len(s.Sets)
}

// targetReps is the rep goal of the session, falling back to the fewest reps performed.
func (s ExerciseSession) targetReps() int {
	if s.TargetReps > 0 {
		return s.TargetReps
	}
	fewest := 0
	for i, set := range s.Sets {
		if i == 0 || set.Reps < fewest {
			fewest = set.Reps
		}
	}
	return fewest
}

// CompletionRate is the fraction of prescribed sets performed at the target reps, capped at 1.
func (s ExerciseSession) CompletionRate() float64 {
	prescribed := s.prescribed()
	if prescribed == 0 {
		if s.Completed {
			return 1
		}
		return 0
	}
	target := s.targetReps()
	done := 0
	for _, set := range s.Sets {
		if set.Reps > 0 && set.Reps >= target {
			done++
		}
	}
	return min(1, float64(done)/float64(prescribed))
}

// WorkingWeightKg is the heaviest weight used in the session, zero for bodyweight work.
func (s ExerciseSession) WorkingWeightKg() float64 {
	heaviest := 0.0
	for _, set := range s.Sets {
		heaviest = max(heaviest, set.WeightKg)
	}
	return heaviest
}

// reportedRPE returns the average reported RPE of the session.
func (s ExerciseSession) reportedRPE() (float64, bool) {
	var (
		sum float64
		n   int
	)
	for _, set := range s.Sets {
		if set.RPE != nil {
			sum += *set.RPE
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
