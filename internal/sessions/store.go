package sessions

import (
	"context"
	"time"

	"github.com/studyforge/backend/internal/models"
)

// Store persists study sessions. It also satisfies leveling.SessionCounter.
type Store interface {
	CreateSession(ctx context.Context, s *models.StudySession) error
	// DeleteSession removes a session; deleting a missing id is not an error.
	DeleteSession(ctx context.Context, id string) error
	CountQuizSessionsSince(ctx context.Context, userID string, since time.Time, excludeID string) (int64, error)
	RecentSessions(ctx context.Context, userID string, limit int) ([]models.StudySession, error)
	SessionStats(ctx context.Context, userID string) (*models.SessionStats, error)
}
