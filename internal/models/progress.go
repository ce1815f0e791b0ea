package models

import "time"

// ── Core Progress Structs ─────────────────────────────────

// UserProgress is the single per-user progress record. Overall.Level is derived
// from Overall.Experience and is never set independently.
type UserProgress struct {
	UserID          string          `json:"user_id" bson:"user"`
	Overall         OverallProgress `json:"overall" bson:"overall"`
	Achievements    []Achievement   `json:"achievements" bson:"achievements"`
	TopicProgress   []TopicProgress `json:"topic_progress" bson:"topicProgress"`
	Recommendations Recommendations `json:"recommendations" bson:"recommendations"`
	Version         int64           `json:"-" bson:"version"`
	CreatedAt       time.Time       `json:"created_at" bson:"createdAt"`
	UpdatedAt       time.Time       `json:"updated_at" bson:"updatedAt"`
}

type OverallProgress struct {
	Level          int    `json:"level" bson:"level"`
	Experience     int64  `json:"experience" bson:"experience"`
	TotalStudyTime int    `json:"total_study_time" bson:"totalStudyTime"`
	Streak         Streak `json:"streak" bson:"streak"`
}

type Streak struct {
	Current       int        `json:"current" bson:"current"`
	Longest       int        `json:"longest" bson:"longest"`
	LastStudyDate *time.Time `json:"last_study_date" bson:"lastStudyDate,omitempty"`
}

type Achievement struct {
	BadgeID     string    `json:"badge_id" bson:"badgeId"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description" bson:"description"`
	EarnedAt    time.Time `json:"earned_at" bson:"earnedAt"`
	Category    string    `json:"category" bson:"category"`
}

// TopicProgress and Recommendations belong to other subsystems; they are stored
// and returned as-is.
type TopicProgress struct {
	Topic         string     `json:"topic" bson:"topic"`
	Domain        string     `json:"domain" bson:"domain"`
	Mastery       int        `json:"mastery" bson:"mastery"`
	LastStudied   *time.Time `json:"last_studied,omitempty" bson:"lastStudied,omitempty"`
	TotalTime     int        `json:"total_time" bson:"totalTime"`
	SessionsCount int        `json:"sessions_count" bson:"sessionsCount"`
	AverageScore  float64    `json:"average_score" bson:"averageScore"`
}

type Recommendations struct {
	NextTopics  []string    `json:"next_topics,omitempty" bson:"nextTopics,omitempty"`
	StudyPlan   []StudyStep `json:"study_plan,omitempty" bson:"studyPlan,omitempty"`
	LastUpdated *time.Time  `json:"last_updated,omitempty" bson:"lastUpdated,omitempty"`
}

type StudyStep struct {
	Topic         string `json:"topic" bson:"topic"`
	Priority      int    `json:"priority" bson:"priority"`
	EstimatedTime int    `json:"estimated_time" bson:"estimatedTime"`
	Reason        string `json:"reason" bson:"reason"`
}

// Achievement categories.
const (
	CategoryStudyTime   = "study_time"
	CategoryStreak      = "streak"
	CategoryScore       = "score"
	CategoryCompletion  = "completion"
	CategoryExploration = "exploration"
	CategoryLevel       = "level"
)

// NewUserProgress returns the default record created on a user's first award.
func NewUserProgress(userID string, now time.Time) *UserProgress {
	return &UserProgress{
		UserID: userID,
		Overall: OverallProgress{
			Level: 1,
		},
		Achievements: []Achievement{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasAchievement reports whether badgeID is already earned.
func (p *UserProgress) HasAchievement(badgeID string) bool {
	for _, a := range p.Achievements {
		if a.BadgeID == badgeID {
			return true
		}
	}
	return false
}

// ── Level Info ────────────────────────────────────────────

type LevelInfo struct {
	Level             int     `json:"level"`
	CurrentXP         int64   `json:"current_xp"`
	XPForCurrentLevel int64   `json:"xp_for_current_level"`
	XPForNextLevel    *int64  `json:"xp_for_next_level"`
	ProgressToNext    float64 `json:"progress_to_next"`
}

// ── Request Types ─────────────────────────────────────────

type AwardXPRequest struct {
	ActivityType string         `json:"activity_type" validate:"required,max=64"`
	Metadata     *AwardMetadata `json:"metadata"`
}

type AwardMetadata struct {
	Score *float64 `json:"score" validate:"omitempty,gte=0,lte=100"`
}

// ── Response Types ────────────────────────────────────────

type AwardResult struct {
	XPEarned  int       `json:"xp_earned"`
	BonusXP   int       `json:"bonus_xp"`
	LeveledUp bool      `json:"leveled_up"`
	OldLevel  int       `json:"old_level"`
	NewLevel  int       `json:"new_level"`
	TotalXP   int64     `json:"total_xp"`
	LevelInfo LevelInfo `json:"level_info"`
	// Achievements unlocked by this award, empty when none.
	AchievementsUnlocked []Achievement `json:"achievements_unlocked"`
}

type ProgressResponse struct {
	LevelInfo
	Streak       Streak        `json:"streak"`
	Achievements []Achievement `json:"achievements"`
}
