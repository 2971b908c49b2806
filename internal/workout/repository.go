package workout

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/progression"
	"github.com/myrjola/liftguard/internal/sqlite"
)

// ErrNotFound is returned when a user has no history for an exercise.
var ErrNotFound = errors.NewSentinel("not found")

// HistoryRepository stores performed exercise sessions per user.
type HistoryRepository interface {
	// ExerciseHistory returns the latest limit sessions of one exercise, oldest first.
	ExerciseHistory(ctx context.Context, userID, exerciseID string, limit int) (progression.ExerciseHistory, error)
	// RecentSessions returns the latest limit sessions across exercises, oldest first.
	RecentSessions(ctx context.Context, userID string, limit int) ([]progression.ExerciseSession, error)
	// RecordSession stores a performed session.
	RecordSession(ctx context.Context, userID string, session progression.ExerciseSession) error
	// LatestWeight returns the working weight of the most recent session of an exercise. It returns [ErrNotFound] when
	// the user never performed the exercise.
	LatestWeight(ctx context.Context, userID, exerciseID string) (float64, error)
}

// timestampFormat is fixed width in UTC so that text order is time order.
const timestampFormat = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

// sqliteHistoryRepository implements HistoryRepository.
type sqliteHistoryRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

// NewSQLiteHistoryRepository creates a HistoryRepository backed by db.
func NewSQLiteHistoryRepository(db *sqlite.Database, logger *slog.Logger) HistoryRepository {
	return &sqliteHistoryRepository{db: db, logger: logger}
}

func (r *sqliteHistoryRepository) ExerciseHistory(
	ctx context.Context,
	userID, exerciseID string,
	limit int,
) (progression.ExerciseHistory, error) {
	sessions, err := r.querySessions(ctx, `
		SELECT id, exercise_id, performed_at, prescribed_sets, target_reps, completed
		FROM exercise_sessions
		WHERE user_id = ? AND exercise_id = ?
		ORDER BY performed_at DESC, id DESC
		LIMIT ?`, userID, exerciseID, limit)
	if err != nil {
		return progression.ExerciseHistory{}, errors.Wrap(err, "query exercise history",
			slog.String("exercise_id", exerciseID))
	}
	return progression.ExerciseHistory{ExerciseID: exerciseID, Sessions: sessions}, nil
}

func (r *sqliteHistoryRepository) RecentSessions(
	ctx context.Context,
	userID string,
	limit int,
) ([]progression.ExerciseSession, error) {
	sessions, err := r.querySessions(ctx, `
		SELECT id, exercise_id, performed_at, prescribed_sets, target_reps, completed
		FROM exercise_sessions
		WHERE user_id = ?
		ORDER BY performed_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query recent sessions")
	}
	return sessions, nil
}

// querySessions runs a newest first session query and returns the sessions with their sets oldest first.
func (r *sqliteHistoryRepository) querySessions(
	ctx context.Context,
	query string,
	args ...any,
) (_ []progression.ExerciseSession, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query sessions")
	}
	defer func() {
		err = errors.Join(err, rows.Close())
	}()

	var (
		ids      []int64
		sessions []progression.ExerciseSession
	)
	for rows.Next() {
		var (
			id          int64
			s           progression.ExerciseSession
			performedAt string
		)
		if err = rows.Scan(&id, &s.ExerciseID, &performedAt, &s.PrescribedSets, &s.TargetReps, &s.Completed); err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		if s.Date, err = time.Parse(timestampFormat, performedAt); err != nil {
			return nil, errors.Wrap(err, "parse performed_at", slog.String("value", performedAt))
		}
		ids = append(ids, id)
		sessions = append(sessions, s)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate sessions")
	}

	for i, id := range ids {
		if sessions[i].Sets, err = r.querySets(ctx, id); err != nil {
			return nil, err
		}
	}

	// Newest first from the query, callers get oldest first.
	for i, j := 0, len(sessions)-1; i < j; i, j = i+1, j-1 {
		sessions[i], sessions[j] = sessions[j], sessions[i]
	}
	return sessions, nil
}

func (r *sqliteHistoryRepository) querySets(ctx context.Context, sessionID int64) (_ []progression.SetPerformance, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT weight_kg, reps, rpe
		FROM session_sets
		WHERE session_id = ?
		ORDER BY set_number`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "query sets", slog.Int64("session_id", sessionID))
	}
	defer func() {
		err = errors.Join(err, rows.Close())
	}()

	sets := []progression.SetPerformance{}
	for rows.Next() {
		var (
			set progression.SetPerformance
			rpe sql.NullFloat64
		)
		if err = rows.Scan(&set.WeightKg, &set.Reps, &rpe); err != nil {
			return nil, errors.Wrap(err, "scan set")
		}
		if rpe.Valid {
			set.RPE = &rpe.Float64
		}
		sets = append(sets, set)
	}
	return sets, errors.Wrap(rows.Err(), "iterate sets")
}

func (r *sqliteHistoryRepository) RecordSession(
	ctx context.Context,
	userID string,
	session progression.ExerciseSession,
) error {
	tx, err := r.db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer r.db.Rollback(ctx, tx)

	var sessionID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO exercise_sessions (user_id, exercise_id, performed_at, prescribed_sets, target_reps, completed)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		userID, session.ExerciseID, formatTimestamp(session.Date), session.PrescribedSets, session.TargetReps,
		session.Completed).Scan(&sessionID)
	if err != nil {
		return errors.Wrap(err, "insert session")
	}

	for i, set := range session.Sets {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO session_sets (session_id, set_number, weight_kg, reps, rpe)
			VALUES (?, ?, ?, ?, ?)`,
			sessionID, i+1, set.WeightKg, set.Reps, set.RPE); err != nil {
			return errors.Wrap(err, "insert set", slog.Int("set_number", i+1))
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "recorded session",
		slog.Int64("session_id", sessionID),
		slog.String("exercise_id", session.ExerciseID),
		slog.Int("sets", len(session.Sets)))
	return nil
}

func (r *sqliteHistoryRepository) LatestWeight(ctx context.Context, userID, exerciseID string) (float64, error) {
	var weight sql.NullFloat64
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT (SELECT max(weight_kg) FROM session_sets WHERE session_id = es.id)
		FROM exercise_sessions es
		WHERE es.user_id = ? AND es.exercise_id = ?
		ORDER BY es.performed_at DESC, es.id DESC
		LIMIT 1`, userID, exerciseID).Scan(&weight)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "query latest weight", slog.String("exercise_id", exerciseID))
	}
	if !weight.Valid {
		return 0, nil
	}
	return weight.Float64, nil
}
