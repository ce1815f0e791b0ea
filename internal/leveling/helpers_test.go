package leveling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studyforge/backend/internal/locks"
	"github.com/studyforge/backend/internal/logger"
	"github.com/studyforge/backend/internal/models"
)

// stubCounter is a SessionCounter returning a fixed count.
type stubCounter struct {
	mu      sync.Mutex
	count   int64
	err     error
	calls   int
	since   time.Time
	exclude string
}

func (c *stubCounter) CountQuizSessionsSince(ctx context.Context, userID string, since time.Time, excludeID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.since = since
	c.exclude = excludeID
	return c.count, c.err
}

// noopLocker never blocks, leaving versioning as the only guard.
type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type testEnv struct {
	service *Service
	store   *MemoryStore
	counter *stubCounter
}

func newTestEnv(t *testing.T, locker locks.Locker, opts Options) *testEnv {
	t.Helper()
	if locker == nil {
		locker = locks.NewKeyedMutex()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}

	env := &testEnv{store: NewMemoryStore(), counter: &stubCounter{}}
	env.service = NewService(env.store, env.counter, locker, logger.NewNop(), opts)
	return env
}

// seed stores a progress record for userID, applying mutate first.
func (e *testEnv) seed(t *testing.T, userID string, mutate func(p *models.UserProgress)) {
	t.Helper()
	p := models.NewUserProgress(userID, testNow.Add(-48*time.Hour))
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, e.store.CreateProgress(context.Background(), p))
}

func (e *testEnv) load(t *testing.T, userID string) *models.UserProgress {
	t.Helper()
	p, err := e.store.GetProgress(context.Background(), userID)
	require.NoError(t, err)
	return p
}

func timePtr(t time.Time) *time.Time {
	return &t
}
