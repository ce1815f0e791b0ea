package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/studyforge/backend/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateSession(ctx context.Context, ss *models.StudySession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO study_sessions (id, user_id, sheet_id, quiz_id, session_type,
		        score, total_questions, correct_answers, time_spent,
		        status, started_at, completed_at, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ss.ID, ss.UserID, ss.SheetID, ss.QuizID, ss.SessionType,
		nullFloat(ss.Results.Score), ss.Results.TotalQuestions, ss.Results.CorrectAnswers, ss.Results.TimeSpent,
		ss.Status, ss.StartedAt, nullTime(ss.CompletedAt), ss.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert study session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM study_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete study session: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountQuizSessionsSince(ctx context.Context, userID string, since time.Time, excludeID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM study_sessions
		 WHERE user_id = $1 AND session_type = $2 AND created_at >= $3 AND id <> $4`,
		userID, models.SessionQuiz, since, excludeID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count quiz sessions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) RecentSessions(ctx context.Context, userID string, limit int) ([]models.StudySession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, COALESCE(sheet_id, ''), COALESCE(quiz_id, ''), session_type,
		        score, total_questions, correct_answers, time_spent,
		        status, started_at, completed_at, created_at
		 FROM study_sessions WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	out := []models.StudySession{}
	for rows.Next() {
		var (
			ss        models.StudySession
			score     sql.NullFloat64
			completed sql.NullTime
		)
		if err := rows.Scan(&ss.ID, &ss.UserID, &ss.SheetID, &ss.QuizID, &ss.SessionType,
			&score, &ss.Results.TotalQuestions, &ss.Results.CorrectAnswers, &ss.Results.TimeSpent,
			&ss.Status, &ss.StartedAt, &completed, &ss.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan study session: %w", err)
		}
		if score.Valid {
			v := score.Float64
			ss.Results.Score = &v
		}
		if completed.Valid {
			t := completed.Time
			ss.CompletedAt = &t
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SessionStats(ctx context.Context, userID string) (*models.SessionStats, error) {
	var stats models.SessionStats
	err := s.db.QueryRowContext(ctx,
		`SELECT
		    COUNT(*) FILTER (WHERE session_type = $2 AND status = $3),
		    COALESCE(SUM(time_spent), 0)
		 FROM study_sessions WHERE user_id = $1`,
		userID, models.SessionQuiz, models.SessionCompleted,
	).Scan(&stats.QuizzesCompleted, &stats.TotalStudyTime)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	return &stats, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
