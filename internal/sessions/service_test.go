package sessions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/studyforge/backend/internal/leveling"
	"github.com/studyforge/backend/internal/locks"
	"github.com/studyforge/backend/internal/logger"
	"github.com/studyforge/backend/internal/models"
)

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type mockAwarder struct {
	mock.Mock
}

func (m *mockAwarder) AwardXP(ctx context.Context, userID string, activity leveling.ActivityType, md leveling.Metadata) (*models.AwardResult, error) {
	args := m.Called(ctx, userID, activity, md)
	r, _ := args.Get(0).(*models.AwardResult)
	return r, args.Error(1)
}

func (m *mockAwarder) UpdateStreak(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

// newEngine wires sessions to a real leveling engine over memory stores.
func newEngine(t *testing.T) (*Service, *MemoryStore, *leveling.MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc, progress := newEngineOver(t, store)
	return svc, store, progress
}

// newEngineOver is newEngine with a caller-supplied session store, which also serves
// the quiz counts.
func newEngineOver(t *testing.T, store Store) (*Service, *leveling.MemoryStore) {
	t.Helper()
	clock := func() time.Time { return testNow }

	progress := leveling.NewMemoryStore()
	locker := locks.NewKeyedMutex()
	levels := leveling.NewService(progress, store, locker, logger.NewNop(), leveling.Options{
		Location: time.UTC,
		Now:      clock,
	})

	svc := NewService(store, levels, locker, logger.NewNop())
	svc.now = clock
	return svc, progress
}

// slowStore widens the window between counting quizzes and storing a session.
type slowStore struct {
	*MemoryStore
	delay time.Duration
}

func (s slowStore) CreateSession(ctx context.Context, ss *models.StudySession) error {
	time.Sleep(s.delay)
	return s.MemoryStore.CreateSession(ctx, ss)
}

// failingStore rejects every session write.
type failingStore struct {
	*MemoryStore
	err error
}

func (s failingStore) CreateSession(ctx context.Context, ss *models.StudySession) error {
	return s.err
}

func completedQuiz(score float64) models.RecordSessionRequest {
	return models.RecordSessionRequest{
		SessionType: models.SessionQuiz,
		Status:      models.SessionCompleted,
		Score:       &score,
		TimeSpent:   300,
	}
}

func TestRecordCompletedQuizEarnsFirstQuizBonus(t *testing.T) {
	svc, store, progress := newEngine(t)
	ctx := context.Background()

	first, err := svc.Record(ctx, "u1", completedQuiz(100))
	require.NoError(t, err)
	require.NotNil(t, first.Award)
	// 75 base + 15 daily + 50 perfect + 25 first quiz
	assert.Equal(t, 165, first.Award.XPEarned)
	assert.Equal(t, 2, first.Award.NewLevel)

	second, err := svc.Record(ctx, "u1", completedQuiz(100))
	require.NoError(t, err)
	require.NotNil(t, second.Award)
	// Daily and first-quiz bonuses are spent.
	assert.Equal(t, 125, second.Award.XPEarned)

	p, err := progress.GetProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(290), p.Overall.Experience)
	assert.Equal(t, 1, p.Overall.Streak.Current)
	require.NotNil(t, p.Overall.Streak.LastStudyDate)
	assert.Equal(t, testNow, *p.Overall.Streak.LastStudyDate)

	n, err := store.CountQuizSessionsSince(ctx, "u1", testNow.Truncate(24*time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRecordNonQuizDoesNotAward(t *testing.T) {
	awarder := &mockAwarder{}
	store := NewMemoryStore()
	svc := NewService(store, awarder, locks.NewKeyedMutex(), logger.NewNop())
	svc.now = func() time.Time { return testNow }

	resp, err := svc.Record(context.Background(), "u1", models.RecordSessionRequest{
		SessionType: models.SessionStudy,
		SheetID:     "sheet-1",
		TimeSpent:   600,
	})
	require.NoError(t, err)

	assert.Nil(t, resp.Award)
	assert.Equal(t, models.SessionInProgress, resp.Session.Status)
	assert.Nil(t, resp.Session.CompletedAt)
	assert.Zero(t, resp.Session.Results.CompletionRate)
	assert.NotEmpty(t, resp.Session.ID)
	awarder.AssertNotCalled(t, "AwardXP", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	awarder.AssertNotCalled(t, "UpdateStreak", mock.Anything, mock.Anything)
}

func TestRecordDerivesScoreFromAnswers(t *testing.T) {
	awarder := &mockAwarder{}
	awarder.On("AwardXP", mock.Anything, "u1", leveling.ActivityQuizCompleted, mock.MatchedBy(func(md leveling.Metadata) bool {
		return md.Score != nil && *md.Score == 78
	})).Return(&models.AwardResult{XPEarned: 36}, nil)
	awarder.On("UpdateStreak", mock.Anything, "u1").Return(nil)

	svc := NewService(NewMemoryStore(), awarder, locks.NewKeyedMutex(), logger.NewNop())
	svc.now = func() time.Time { return testNow }

	resp, err := svc.Record(context.Background(), "u1", models.RecordSessionRequest{
		SessionType:    models.SessionQuiz,
		Status:         models.SessionCompleted,
		TotalQuestions: 9,
		CorrectAnswers: 7,
	})
	require.NoError(t, err)

	require.NotNil(t, resp.Session.Results.Score)
	assert.Equal(t, 78.0, *resp.Session.Results.Score)
	require.NotNil(t, resp.Session.CompletedAt)
	assert.Equal(t, testNow, *resp.Session.CompletedAt)
	assert.Equal(t, 100.0, resp.Session.Results.CompletionRate)
	awarder.AssertExpectations(t)
}

func TestRecordAwardFailureRemovesSession(t *testing.T) {
	boom := errors.New("progress store down")
	awarder := &mockAwarder{}
	awarder.On("AwardXP", mock.Anything, "u1", leveling.ActivityQuizCompleted, mock.Anything).Return(nil, boom)

	store := NewMemoryStore()
	svc := NewService(store, awarder, locks.NewKeyedMutex(), logger.NewNop())

	_, err := svc.Record(context.Background(), "u1", completedQuiz(80))
	assert.ErrorIs(t, err, boom)

	recent, err := store.RecentSessions(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	awarder.AssertNotCalled(t, "UpdateStreak", mock.Anything, mock.Anything)
}

func TestRecordStreakFailureKeepsSession(t *testing.T) {
	awarder := &mockAwarder{}
	awarder.On("AwardXP", mock.Anything, "u1", leveling.ActivityQuizCompleted, mock.Anything).
		Return(&models.AwardResult{XPEarned: 45}, nil)
	awarder.On("UpdateStreak", mock.Anything, "u1").Return(errors.New("conflict"))

	store := NewMemoryStore()
	svc := NewService(store, awarder, locks.NewKeyedMutex(), logger.NewNop())

	resp, err := svc.Record(context.Background(), "u1", completedQuiz(85))
	require.NoError(t, err)
	assert.Equal(t, 45, resp.Award.XPEarned)

	recent, err := store.RecentSessions(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestQuizScore(t *testing.T) {
	assert.Equal(t, 0.0, QuizScore(3, 0))
	assert.Equal(t, 100.0, QuizScore(4, 4))
	assert.Equal(t, 67.0, QuizScore(2, 3))
	assert.Equal(t, 50.0, QuizScore(1, 2))
}

func TestRecentAndStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, &mockAwarder{}, locks.NewKeyedMutex(), logger.NewNop())

	for i := 0; i < RecentLimit+5; i++ {
		require.NoError(t, store.CreateSession(ctx, &models.StudySession{
			ID:          string(rune('a' + i)),
			UserID:      "u1",
			SessionType: models.SessionQuiz,
			Status:      models.SessionCompleted,
			Results:     models.SessionResults{TimeSpent: 60},
			CreatedAt:   testNow.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.CreateSession(ctx, &models.StudySession{
		ID: "other", UserID: "u2", SessionType: models.SessionStudy, CreatedAt: testNow,
	}))

	recent, err := svc.Recent(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recent, RecentLimit)
	assert.True(t, recent[0].CreatedAt.After(recent[1].CreatedAt))
	assert.Equal(t, testNow.Add(time.Duration(RecentLimit+4)*time.Minute), recent[0].CreatedAt)

	stats, err := svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, RecentLimit+5, stats.QuizzesCompleted)
	assert.Equal(t, (RecentLimit+5)*60, stats.TotalStudyTime)
}

func TestMemoryStoreCountsOnlyQuizzesSince(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	midnight := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	sessions := []models.StudySession{
		{UserID: "u1", SessionType: models.SessionQuiz, CreatedAt: midnight.Add(-time.Minute)},
		{UserID: "u1", SessionType: models.SessionQuiz, CreatedAt: midnight},
		{UserID: "u1", SessionType: models.SessionStudy, CreatedAt: midnight.Add(time.Hour)},
		{UserID: "u2", SessionType: models.SessionQuiz, CreatedAt: midnight.Add(time.Hour)},
	}
	for i := range sessions {
		require.NoError(t, store.CreateSession(ctx, &sessions[i]))
	}

	n, err := store.CountQuizSessionsSince(ctx, "u1", midnight, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecordConcurrentQuizzesShareFirstQuizBonus(t *testing.T) {
	store := slowStore{MemoryStore: NewMemoryStore(), delay: 50 * time.Millisecond}
	svc, progress := newEngineOver(t, store)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		bonuses []int
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			resp, err := svc.Record(gctx, "u1", completedQuiz(70))
			if err != nil {
				return err
			}
			mu.Lock()
			bonuses = append(bonuses, resp.Award.BonusXP)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// The first quiz earns the daily and first-quiz bonuses; the second earns neither.
	sort.Ints(bonuses)
	assert.Equal(t, []int{0, leveling.DailyActivityBonus + leveling.FirstQuizOfDayBonus}, bonuses)

	p, err := progress.GetProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(36+36+40), p.Overall.Experience)
}

func TestRecordSessionWriteFailureAwardsNothing(t *testing.T) {
	diskFull := errors.New("disk full")
	svc, progress := newEngineOver(t, failingStore{MemoryStore: NewMemoryStore(), err: diskFull})
	ctx := context.Background()

	for attempt := 0; attempt < 2; attempt++ {
		_, err := svc.Record(ctx, "u1", completedQuiz(100))
		assert.ErrorIs(t, err, diskFull)
	}

	_, err := progress.GetProgress(ctx, "u1")
	assert.ErrorIs(t, err, leveling.ErrProgressNotFound)
}

func TestRecordRetryAfterAwardFailurePaysOnce(t *testing.T) {
	boom := errors.New("progress store down")
	awarder := &mockAwarder{}
	awarder.On("AwardXP", mock.Anything, "u1", leveling.ActivityQuizCompleted, mock.Anything).Return(nil, boom).Once()
	awarder.On("AwardXP", mock.Anything, "u1", leveling.ActivityQuizCompleted, mock.MatchedBy(func(md leveling.Metadata) bool {
		return md.SessionID != ""
	})).Return(&models.AwardResult{XPEarned: 75}, nil).Once()
	awarder.On("UpdateStreak", mock.Anything, "u1").Return(nil)

	store := NewMemoryStore()
	svc := NewService(store, awarder, locks.NewKeyedMutex(), logger.NewNop())
	ctx := context.Background()

	_, err := svc.Record(ctx, "u1", completedQuiz(100))
	require.ErrorIs(t, err, boom)

	resp, err := svc.Record(ctx, "u1", completedQuiz(100))
	require.NoError(t, err)
	assert.Equal(t, 75, resp.Award.XPEarned)

	recent, err := store.RecentSessions(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, resp.Session.ID, recent[0].ID)
	awarder.AssertExpectations(t)
}

func TestMemoryStoreCountExcludesSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, store.CreateSession(ctx, &models.StudySession{
			ID: id, UserID: "u1", SessionType: models.SessionQuiz, CreatedAt: testNow,
		}))
	}

	n, err := store.CountQuizSessionsSince(ctx, "u1", testNow, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.DeleteSession(ctx, "a"))
	require.NoError(t, store.DeleteSession(ctx, "missing"))
	n, err = store.CountQuizSessionsSince(ctx, "u1", testNow, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
