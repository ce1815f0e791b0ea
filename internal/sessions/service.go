package sessions

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/studyforge/backend/internal/leveling"
	"github.com/studyforge/backend/internal/locks"
	"github.com/studyforge/backend/internal/logger"
	"github.com/studyforge/backend/internal/models"
)

// RecentLimit is the number of sessions returned by Recent.
const RecentLimit = 20

// Awarder is the part of the leveling engine a completed quiz reports to.
type Awarder interface {
	AwardXP(ctx context.Context, userID string, activity leveling.ActivityType, md leveling.Metadata) (*models.AwardResult, error)
	UpdateStreak(ctx context.Context, userID string) error
}

type Service struct {
	store   Store
	awarder Awarder
	locker  locks.Locker
	log     *logger.Logger
	now     func() time.Time
}

func NewService(store Store, awarder Awarder, locker locks.Locker, log *logger.Logger) *Service {
	return &Service{store: store, awarder: awarder, locker: locker, log: log.With("service", "sessions"), now: time.Now}
}

func lockKey(userID string) string {
	return "sessions:" + userID
}

// Record stores a study session. A completed quiz then earns QUIZ_COMPLETED XP, with the
// new session left out of the first-quiz-of-day count, and advances the streak. Records
// for the same user are serialized so two quizzes cannot both count as the first.
// If the award fails the session is deleted again, so a retry never pays twice.
func (s *Service) Record(ctx context.Context, userID string, req models.RecordSessionRequest) (*models.RecordSessionResponse, error) {
	unlock, err := s.locker.Lock(ctx, lockKey(userID))
	if err != nil {
		return nil, fmt.Errorf("lock sessions: %w", err)
	}
	defer unlock()

	now := s.now()

	status := req.Status
	if status == "" {
		status = models.SessionInProgress
	}

	ss := models.StudySession{
		ID:          uuid.NewString(),
		UserID:      userID,
		SheetID:     req.SheetID,
		QuizID:      req.QuizID,
		SessionType: req.SessionType,
		Results: models.SessionResults{
			Score:          req.Score,
			TotalQuestions: req.TotalQuestions,
			CorrectAnswers: req.CorrectAnswers,
			TimeSpent:      req.TimeSpent,
		},
		Status:    status,
		StartedAt: now,
		CreatedAt: now,
	}
	if status == models.SessionCompleted {
		ss.CompletedAt = &now
		ss.Results.CompletionRate = 100
	}

	if ss.Results.Score == nil && req.TotalQuestions > 0 {
		score := QuizScore(req.CorrectAnswers, req.TotalQuestions)
		ss.Results.Score = &score
	}

	if err := s.store.CreateSession(ctx, &ss); err != nil {
		return nil, err
	}
	resp := &models.RecordSessionResponse{Session: ss}

	if ss.SessionType != models.SessionQuiz || ss.Status != models.SessionCompleted {
		return resp, nil
	}

	log := s.log.FromContext(ctx).With("user_id", userID, "session_id", ss.ID)

	award, err := s.awarder.AwardXP(ctx, userID, leveling.ActivityQuizCompleted, leveling.Metadata{
		Score:     ss.Results.Score,
		SessionID: ss.ID,
	})
	if err != nil {
		// Undo the session so the client can retry. The request context may already be done.
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if delErr := s.store.DeleteSession(delCtx, ss.ID); delErr != nil {
			log.Error("failed to remove session after award error", "error", delErr)
		}
		return nil, fmt.Errorf("award quiz xp: %w", err)
	}
	resp.Award = award

	if err := s.awarder.UpdateStreak(ctx, userID); err != nil {
		// XP and the session are already stored; a missed streak day is not worth failing the request.
		log.Warn("streak update failed after quiz", "error", err)
	}

	return resp, nil
}

// QuizScore returns the percentage of correct answers, rounded to the nearest integer.
func QuizScore(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct) / float64(total) * 100)
}

func (s *Service) Recent(ctx context.Context, userID string) ([]models.StudySession, error) {
	return s.store.RecentSessions(ctx, userID, RecentLimit)
}

func (s *Service) Stats(ctx context.Context, userID string) (*models.SessionStats, error) {
	return s.store.SessionStats(ctx, userID)
}
