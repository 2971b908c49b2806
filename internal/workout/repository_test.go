package workout_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/progression"
	"github.com/myrjola/liftguard/internal/ptr"
	"github.com/myrjola/liftguard/internal/sqlite"
	"github.com/myrjola/liftguard/internal/testhelpers"
	"github.com/myrjola/liftguard/internal/workout"
)

func newSQLiteRepository(t *testing.T) workout.HistoryRepository {
	t.Helper()
	// The optimizer goroutine logs after the test returns.
	logger := testhelpers.NewDiscardLogger()
	db, err := sqlite.NewDatabase(t.Context(), ":memory:", logger)
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return workout.NewSQLiteHistoryRepository(db, logger)
}

func TestSQLiteHistoryRepository(t *testing.T) {
	ctx := t.Context()
	repo := newSQLiteRepository(t)

	squatEarly := session("back-squat", 0, 100, 5, 3, 7)
	squatEarly.Sets[2].RPE = nil
	squatMid := session("back-squat", 3, 102.5, 5, 3, 7.5)
	squatLate := session("back-squat", 6, 105, 5, 2, 8)
	squatLate.Sets = append(squatLate.Sets, progression.SetPerformance{WeightKg: 80, Reps: 8, RPE: ptr.Ref(6.0)})
	squatLate.Completed = false
	bench := session("bench-press", 4, 60, 8, 3, 8)

	for _, s := range []progression.ExerciseSession{squatLate, squatEarly, bench, squatMid} {
		if err := repo.RecordSession(ctx, "ada", s); err != nil {
			t.Fatalf("RecordSession() error = %v", err)
		}
	}
	if err := repo.RecordSession(ctx, "bob", session("back-squat", 9, 40, 5, 3, 9)); err != nil {
		t.Fatalf("RecordSession() error = %v", err)
	}

	t.Run("exercise history is the latest sessions oldest first", func(t *testing.T) {
		got, err := repo.ExerciseHistory(ctx, "ada", "back-squat", 2)
		if err != nil {
			t.Fatalf("ExerciseHistory() error = %v", err)
		}
		want := progression.ExerciseHistory{
			ExerciseID: "back-squat",
			Sessions:   []progression.ExerciseSession{squatMid, squatLate},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("ExerciseHistory() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing rpe stays missing", func(t *testing.T) {
		got, err := repo.ExerciseHistory(ctx, "ada", "back-squat", 10)
		if err != nil {
			t.Fatalf("ExerciseHistory() error = %v", err)
		}
		if len(got.Sessions) != 3 {
			t.Fatalf("got %d sessions, want 3", len(got.Sessions))
		}
		if diff := cmp.Diff(squatEarly, got.Sessions[0]); diff != "" {
			t.Errorf("first session mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("recent sessions span exercises", func(t *testing.T) {
		got, err := repo.RecentSessions(ctx, "ada", 3)
		if err != nil {
			t.Fatalf("RecentSessions() error = %v", err)
		}
		var ids []string
		for _, s := range got {
			ids = append(ids, s.ExerciseID)
		}
		if diff := cmp.Diff([]string{"back-squat", "bench-press", "back-squat"}, ids); diff != "" {
			t.Errorf("RecentSessions() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("latest weight is the heaviest set of the latest session", func(t *testing.T) {
		got, err := repo.LatestWeight(ctx, "ada", "back-squat")
		if err != nil {
			t.Fatalf("LatestWeight() error = %v", err)
		}
		if got != 105 {
			t.Errorf("LatestWeight() = %v, want 105", got)
		}
	})

	t.Run("unknown exercise", func(t *testing.T) {
		if _, err := repo.LatestWeight(ctx, "bob", "bench-press"); !errors.Is(err, workout.ErrNotFound) {
			t.Errorf("LatestWeight() error = %v, want ErrNotFound", err)
		}
		got, err := repo.ExerciseHistory(ctx, "carol", "back-squat", 5)
		if err != nil {
			t.Fatalf("ExerciseHistory() error = %v", err)
		}
		if len(got.Sessions) != 0 {
			t.Errorf("got %d sessions for a new user, want 0", len(got.Sessions))
		}
	})
}

func TestSQLiteHistoryRepository_rejectsInvalidRPE(t *testing.T) {
	repo := newSQLiteRepository(t)
	s := session("row", 0, 50, 8, 1, 12)
	if err := repo.RecordSession(t.Context(), "ada", s); err == nil {
		t.Fatal("RecordSession() error = nil, want check constraint failure")
	}
	got, err := repo.ExerciseHistory(t.Context(), "ada", "row", 5)
	if err != nil {
		t.Fatalf("ExerciseHistory() error = %v", err)
	}
	if len(got.Sessions) != 0 {
		t.Errorf("failed insert left %d sessions behind", len(got.Sessions))
	}
}
