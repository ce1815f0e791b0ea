package models

import "time"

// Session types.
const (
	SessionStudy  = "study"
	SessionQuiz   = "quiz"
	SessionReview = "review"
	SessionAIChat = "ai_chat"
)

// Session statuses.
const (
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
	SessionAbandoned  = "abandoned"
)

type StudySession struct {
	ID          string         `json:"id" bson:"_id,omitempty"`
	UserID      string         `json:"user_id" bson:"user"`
	SheetID     string         `json:"sheet_id,omitempty" bson:"fiche,omitempty"`
	QuizID      string         `json:"quiz_id,omitempty" bson:"quiz,omitempty"`
	SessionType string         `json:"session_type" bson:"sessionType"`
	Results     SessionResults `json:"results" bson:"results"`
	Status      string         `json:"status" bson:"status"`
	StartedAt   time.Time      `json:"started_at" bson:"startedAt"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" bson:"completedAt,omitempty"`
	CreatedAt   time.Time      `json:"created_at" bson:"createdAt"`
}

type SessionResults struct {
	Score          *float64 `json:"score,omitempty" bson:"score,omitempty"`
	TotalQuestions int      `json:"total_questions" bson:"totalQuestions"`
	CorrectAnswers int      `json:"correct_answers" bson:"correctAnswers"`
	TimeSpent      int      `json:"time_spent" bson:"timeSpent"`
	CompletionRate float64  `json:"completion_rate" bson:"completionRate"`
}

// ── Request Types ─────────────────────────────────────────

type RecordSessionRequest struct {
	SheetID        string   `json:"sheet_id" validate:"omitempty,max=64"`
	QuizID         string   `json:"quiz_id" validate:"omitempty,max=64"`
	SessionType    string   `json:"session_type" validate:"required,oneof=study quiz review ai_chat"`
	Status         string   `json:"status" validate:"omitempty,oneof=in_progress completed abandoned"`
	Score          *float64 `json:"score" validate:"omitempty,gte=0,lte=100"`
	TotalQuestions int      `json:"total_questions" validate:"gte=0"`
	CorrectAnswers int      `json:"correct_answers" validate:"gte=0,ltefield=TotalQuestions"`
	TimeSpent      int      `json:"time_spent" validate:"gte=0"`
}

// ── Response Types ────────────────────────────────────────

type RecordSessionResponse struct {
	Session StudySession `json:"session"`
	Award   *AwardResult `json:"award,omitempty"`
}

type SessionStats struct {
	QuizzesCompleted int `json:"quizzes_completed"`
	TotalStudyTime   int `json:"total_study_time"`
}
