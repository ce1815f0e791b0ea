package leveling

import (
	"context"
	"sync"

	"github.com/studyforge/backend/internal/models"
)

// MemoryStore is an in-process ProgressStore used by tests and STORE_BACKEND=memory.
// Records are copied on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.UserProgress
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.UserProgress)}
}

func (m *MemoryStore) GetProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.records[userID]
	if !ok {
		return nil, ErrProgressNotFound
	}
	return cloneProgress(p), nil
}

func (m *MemoryStore) CreateProgress(ctx context.Context, p *models.UserProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[p.UserID]; ok {
		return ErrProgressExists
	}
	p.Version = 1
	m.records[p.UserID] = cloneProgress(p)
	return nil
}

func (m *MemoryStore) SaveProgress(ctx context.Context, p *models.UserProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.records[p.UserID]
	if !ok || cur.Version != p.Version {
		return ErrVersionConflict
	}
	p.Version++
	m.records[p.UserID] = cloneProgress(p)
	return nil
}

func cloneProgress(p *models.UserProgress) *models.UserProgress {
	c := *p
	if p.Overall.Streak.LastStudyDate != nil {
		t := *p.Overall.Streak.LastStudyDate
		c.Overall.Streak.LastStudyDate = &t
	}
	if p.Achievements != nil {
		c.Achievements = append([]models.Achievement(nil), p.Achievements...)
	}
	if p.TopicProgress != nil {
		c.TopicProgress = append([]models.TopicProgress(nil), p.TopicProgress...)
	}
	c.Recommendations.NextTopics = append([]string(nil), p.Recommendations.NextTopics...)
	c.Recommendations.StudyPlan = append([]models.StudyStep(nil), p.Recommendations.StudyPlan...)
	return &c
}
