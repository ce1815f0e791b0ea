package leveling

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/studyforge/backend/internal/models"
)

// PostgresStore keeps progress in user_progress and badges in user_achievements.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	var (
		p               models.UserProgress
		lastStudy       sql.NullTime
		topicJSON       []byte
		recommendations []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, level, experience, total_study_time,
		        streak_current, streak_longest, last_study_date,
		        topic_progress, recommendations, version, created_at, updated_at
		 FROM user_progress WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.Overall.Level, &p.Overall.Experience, &p.Overall.TotalStudyTime,
		&p.Overall.Streak.Current, &p.Overall.Streak.Longest, &lastStudy,
		&topicJSON, &recommendations, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	if lastStudy.Valid {
		t := lastStudy.Time
		p.Overall.Streak.LastStudyDate = &t
	}
	if len(topicJSON) > 0 {
		if err := json.Unmarshal(topicJSON, &p.TopicProgress); err != nil {
			return nil, fmt.Errorf("decode topic progress: %w", err)
		}
	}
	if len(recommendations) > 0 {
		if err := json.Unmarshal(recommendations, &p.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
	}

	p.Achievements, err = s.getAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) getAchievements(ctx context.Context, userID string) ([]models.Achievement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT badge_id, name, description, category, earned_at
		 FROM user_achievements WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get achievements: %w", err)
	}
	defer rows.Close()

	achievements := []models.Achievement{}
	for rows.Next() {
		var a models.Achievement
		if err := rows.Scan(&a.BadgeID, &a.Name, &a.Description, &a.Category, &a.EarnedAt); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}

func (s *PostgresStore) CreateProgress(ctx context.Context, p *models.UserProgress) error {
	topicJSON, recommendations, err := encodeOwnedFields(p)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO user_progress (user_id, level, experience, total_study_time,
		        streak_current, streak_longest, last_study_date,
		        topic_progress, recommendations, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11)
		 ON CONFLICT (user_id) DO NOTHING`,
		p.UserID, p.Overall.Level, p.Overall.Experience, p.Overall.TotalStudyTime,
		p.Overall.Streak.Current, p.Overall.Streak.Longest, nullTime(p),
		topicJSON, recommendations, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProgressExists
	}

	if err := insertAchievements(ctx, tx, p.UserID, p.Achievements); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	p.Version = 1
	return nil
}

func (s *PostgresStore) SaveProgress(ctx context.Context, p *models.UserProgress) error {
	topicJSON, recommendations, err := encodeOwnedFields(p)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE user_progress SET
		    level = $3, experience = $4, total_study_time = $5,
		    streak_current = $6, streak_longest = $7, last_study_date = $8,
		    topic_progress = $9, recommendations = $10,
		    version = version + 1, updated_at = $11
		 WHERE user_id = $1 AND version = $2`,
		p.UserID, p.Version, p.Overall.Level, p.Overall.Experience, p.Overall.TotalStudyTime,
		p.Overall.Streak.Current, p.Overall.Streak.Longest, nullTime(p),
		topicJSON, recommendations, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionConflict
	}

	if err := insertAchievements(ctx, tx, p.UserID, p.Achievements); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	p.Version++
	return nil
}

// insertAchievements adds badges not yet stored. Existing rows keep their position.
func insertAchievements(ctx context.Context, tx *sql.Tx, userID string, achievements []models.Achievement) error {
	if len(achievements) == 0 {
		return nil
	}

	badgeIDs := make([]string, len(achievements))
	names := make([]string, len(achievements))
	descriptions := make([]string, len(achievements))
	categories := make([]string, len(achievements))
	earnedAt := make([]string, len(achievements))
	for i, a := range achievements {
		badgeIDs[i] = a.BadgeID
		names[i] = a.Name
		descriptions[i] = a.Description
		categories[i] = a.Category
		earnedAt[i] = a.EarnedAt.UTC().Format("2006-01-02T15:04:05.999999Z07:00")
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO user_achievements (user_id, badge_id, name, description, category, earned_at)
		 SELECT $1, t.badge_id, t.name, t.description, t.category, t.earned_at::timestamptz
		 FROM unnest($2::text[], $3::text[], $4::text[], $5::text[], $6::text[])
		      WITH ORDINALITY AS t(badge_id, name, description, category, earned_at, ord)
		 ORDER BY t.ord
		 ON CONFLICT (user_id, badge_id) DO NOTHING`,
		userID, pq.Array(badgeIDs), pq.Array(names), pq.Array(descriptions),
		pq.Array(categories), pq.Array(earnedAt),
	)
	if err != nil {
		return fmt.Errorf("insert achievements: %w", err)
	}
	return nil
}

func encodeOwnedFields(p *models.UserProgress) ([]byte, []byte, error) {
	topicJSON, err := json.Marshal(p.TopicProgress)
	if err != nil {
		return nil, nil, fmt.Errorf("encode topic progress: %w", err)
	}
	recommendations, err := json.Marshal(p.Recommendations)
	if err != nil {
		return nil, nil, fmt.Errorf("encode recommendations: %w", err)
	}
	return topicJSON, recommendations, nil
}

func nullTime(p *models.UserProgress) sql.NullTime {
	if p.Overall.Streak.LastStudyDate == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p.Overall.Streak.LastStudyDate, Valid: true}
}
