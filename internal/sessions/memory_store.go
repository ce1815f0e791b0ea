package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/studyforge/backend/internal/models"
)

// MemoryStore is an in-process Store used by tests and STORE_BACKEND=memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions []models.StudySession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *models.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, *s)
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.sessions {
		if s.ID == id {
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) CountQuizSessionsSince(ctx context.Context, userID string, since time.Time, excludeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.sessions {
		if excludeID != "" && s.ID == excludeID {
			continue
		}
		if s.UserID == userID && s.SessionType == models.SessionQuiz && !s.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) RecentSessions(ctx context.Context, userID string, limit int) ([]models.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.StudySession{}
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SessionStats(ctx context.Context, userID string) (*models.SessionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &models.SessionStats{}
	for _, s := range m.sessions {
		if s.UserID != userID {
			continue
		}
		stats.TotalStudyTime += s.Results.TimeSpent
		if s.SessionType == models.SessionQuiz && s.Status == models.SessionCompleted {
			stats.QuizzesCompleted++
		}
	}
	return stats, nil
}
