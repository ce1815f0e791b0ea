package leveling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/studyforge/backend/internal/logger"
	"github.com/studyforge/backend/internal/models"
)

// mockStore lets tests script persistence failures.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*models.UserProgress)
	return p, args.Error(1)
}

func (m *mockStore) CreateProgress(ctx context.Context, p *models.UserProgress) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockStore) SaveProgress(ctx context.Context, p *models.UserProgress) error {
	return m.Called(ctx, p).Error(0)
}

// ── Award XP ────────────────────────────────────────────

func TestAwardXPCreatesProgressAndLevelsUp(t *testing.T) {
	env := newTestEnv(t, nil, Options{})

	result, err := env.service.AwardXP(context.Background(), "u1", ActivityQuizCompleted, WithScore(100))
	require.NoError(t, err)

	// 75 base + 15 daily + 50 perfect + 25 first quiz
	assert.Equal(t, 165, result.XPEarned)
	assert.Equal(t, 90, result.BonusXP)
	assert.True(t, result.LeveledUp)
	assert.Equal(t, 1, result.OldLevel)
	assert.Equal(t, 2, result.NewLevel)
	assert.Equal(t, int64(165), result.TotalXP)
	assert.Equal(t, 2, result.LevelInfo.Level)
	assert.InDelta(t, 38.93, result.LevelInfo.ProgressToNext, 0.01)
	assert.Empty(t, result.AchievementsUnlocked)

	p := env.load(t, "u1")
	assert.Equal(t, int64(165), p.Overall.Experience)
	assert.Equal(t, 2, p.Overall.Level)
	assert.Nil(t, p.Overall.Streak.LastStudyDate)
	assert.Equal(t, testNow, p.UpdatedAt)
}

func TestAwardXPWithoutLevelUp(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.seed(t, "u1", func(p *models.UserProgress) {
		p.Overall.Streak.LastStudyDate = timePtr(testNow)
	})

	result, err := env.service.AwardXP(context.Background(), "u1", ActivitySheetCreated, Metadata{})
	require.NoError(t, err)

	assert.Equal(t, 50, result.XPEarned)
	assert.Zero(t, result.BonusXP)
	assert.False(t, result.LeveledUp)
	assert.Equal(t, 1, result.NewLevel)
	assert.NotNil(t, result.AchievementsUnlocked)
}

func TestAwardXPUnlocksMilestone(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.seed(t, "u1", func(p *models.UserProgress) {
		p.Overall.Experience = 560
		p.Overall.Level = 4
		p.Overall.Streak.LastStudyDate = timePtr(testNow)
	})

	result, err := env.service.AwardXP(context.Background(), "u1", ActivitySheetCreated, Metadata{})
	require.NoError(t, err)

	assert.Equal(t, 5, result.NewLevel)
	require.Len(t, result.AchievementsUnlocked, 1)
	assert.Equal(t, "level_5", result.AchievementsUnlocked[0].BadgeID)

	p := env.load(t, "u1")
	require.Len(t, p.Achievements, 1)
	assert.Equal(t, "level_5", p.Achievements[0].BadgeID)
	assert.Equal(t, testNow, p.Achievements[0].EarnedAt)
}

func TestAwardXPDoesNotDuplicateMilestone(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.seed(t, "u1", func(p *models.UserProgress) {
		// Level is stale; the badge was already earned.
		p.Overall.Experience = 560
		p.Overall.Level = 4
		p.Overall.Streak.LastStudyDate = timePtr(testNow)
		p.Achievements = []models.Achievement{LevelAchievement(5, testNow.Add(-time.Hour))}
	})

	result, err := env.service.AwardXP(context.Background(), "u1", ActivitySheetCreated, Metadata{})
	require.NoError(t, err)

	assert.True(t, result.LeveledUp)
	assert.Empty(t, result.AchievementsUnlocked)
	assert.Len(t, env.load(t, "u1").Achievements, 1)
}

func TestAwardXPUnknownActivity(t *testing.T) {
	env := newTestEnv(t, nil, Options{})

	result, err := env.service.AwardXP(context.Background(), "u1", "BOOKMARK_ADDED", Metadata{})
	require.NoError(t, err)

	// Only the daily bonus.
	assert.Equal(t, DailyActivityBonus, result.XPEarned)
	assert.Equal(t, int64(DailyActivityBonus), env.load(t, "u1").Overall.Experience)
}

func TestAwardXPConcurrentAwardsAreNotLost(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.seed(t, "u1", func(p *models.UserProgress) {
		p.Overall.Streak.LastStudyDate = timePtr(testNow)
	})

	const n = 10
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := env.service.AwardXP(ctx, "u1", ActivitySheetCreated, Metadata{})
			return err
		})
	}
	require.NoError(t, g.Wait())

	p := env.load(t, "u1")
	assert.Equal(t, int64(n*50), p.Overall.Experience)
	assert.Equal(t, env.service.CalculateLevel(n*50).Level, p.Overall.Level)
}

func TestAwardXPVersionRetriesWithoutLocking(t *testing.T) {
	env := newTestEnv(t, noopLocker{}, Options{MaxRetries: 1000})
	env.seed(t, "u1", func(p *models.UserProgress) {
		p.Overall.Streak.LastStudyDate = timePtr(testNow)
	})

	const n = 20
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := env.service.AwardXP(ctx, "u1", ActivitySheetCreated, Metadata{})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(n*50), env.load(t, "u1").Overall.Experience)
}

func TestAwardXPConcurrentFirstAwardsCreateOneRecord(t *testing.T) {
	env := newTestEnv(t, noopLocker{}, Options{MaxRetries: 1000})

	const n = 8
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := env.service.AwardXP(ctx, "new-user", ActivityAIInteraction, Metadata{})
			return err
		})
	}
	require.NoError(t, g.Wait())

	// lastStudyDate never moves during awards, so every award earns the daily bonus.
	assert.Equal(t, int64(n*(5+DailyActivityBonus)), env.load(t, "new-user").Overall.Experience)
}

func TestAwardXPGivesUpAfterMaxRetries(t *testing.T) {
	store := &mockStore{}
	store.On("GetProgress", mock.Anything, "u1").
		Return(models.NewUserProgress("u1", testNow), nil)
	store.On("SaveProgress", mock.Anything, mock.Anything).Return(ErrVersionConflict)

	svc := NewService(store, &stubCounter{}, noopLocker{}, logger.NewNop(), Options{
		MaxRetries: 3,
		Now:        func() time.Time { return testNow },
	})

	_, err := svc.AwardXP(context.Background(), "u1", ActivitySheetCreated, Metadata{})
	assert.ErrorIs(t, err, ErrVersionConflict)
	store.AssertNumberOfCalls(t, "SaveProgress", 3)
}

func TestAwardXPPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection refused")
	store := &mockStore{}
	store.On("GetProgress", mock.Anything, "u1").Return(nil, boom)

	svc := NewService(store, &stubCounter{}, noopLocker{}, logger.NewNop(), Options{})

	_, err := svc.AwardXP(context.Background(), "u1", ActivitySheetCreated, Metadata{})
	assert.ErrorIs(t, err, boom)
	store.AssertNumberOfCalls(t, "GetProgress", 1)
	store.AssertNotCalled(t, "SaveProgress", mock.Anything, mock.Anything)
}

func TestAwardXPPropagatesCounterError(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	boom := errors.New("sessions unavailable")
	env.counter.err = boom

	_, err := env.service.AwardXP(context.Background(), "u1", ActivityQuizCompleted, WithScore(80))
	assert.ErrorIs(t, err, boom)
}

func TestAwardXPHonorsCancelledContext(t *testing.T) {
	env := newTestEnv(t, nil, Options{})

	unlock, err := env.service.locker.Lock(context.Background(), lockKey("u1"))
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = env.service.AwardXP(ctx, "u1", ActivitySheetCreated, Metadata{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ── Streak ──────────────────────────────────────────────

func TestAdvanceStreak(t *testing.T) {
	now := testNow

	tests := []struct {
		name        string
		streak      models.Streak
		wantCurrent int
		wantLongest int
		wantResult  string
	}{
		{"first study", models.Streak{}, 1, 1, streakStarted},
		{"consecutive day", models.Streak{Current: 3, Longest: 5, LastStudyDate: timePtr(now.AddDate(0, 0, -1))}, 4, 5, streakExtended},
		{"consecutive day beats longest", models.Streak{Current: 5, Longest: 5, LastStudyDate: timePtr(now.AddDate(0, 0, -1))}, 6, 6, streakExtended},
		{"gap resets", models.Streak{Current: 4, Longest: 9, LastStudyDate: timePtr(now.AddDate(0, 0, -3))}, 1, 9, streakReset},
		{"same day", models.Streak{Current: 2, Longest: 2, LastStudyDate: timePtr(now.Add(-time.Hour))}, 2, 2, streakSameDay},
		{"last study in the future", models.Streak{Current: 2, Longest: 3, LastStudyDate: timePtr(now.AddDate(0, 0, 2))}, 2, 3, streakSameDay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.streak
			got := advanceStreak(&st, now, time.UTC)

			assert.Equal(t, tt.wantResult, got)
			assert.Equal(t, tt.wantCurrent, st.Current)
			assert.Equal(t, tt.wantLongest, st.Longest)
			require.NotNil(t, st.LastStudyDate)
			assert.Equal(t, now, *st.LastStudyDate)
		})
	}
}

func TestAdvanceStreakUsesCalendarDays(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name string
		last time.Time
		now  time.Time
		want string
	}{
		// Two minutes apart but on different days.
		{"across midnight", time.Date(2024, 5, 1, 23, 59, 0, 0, ny), time.Date(2024, 5, 2, 0, 1, 0, 0, ny), streakExtended},
		// Spring forward: only 23 hours elapse.
		{"spring forward", time.Date(2024, 3, 9, 23, 30, 0, 0, ny), time.Date(2024, 3, 10, 23, 30, 0, 0, ny), streakExtended},
		// Fall back: 48.5 hours elapse across two calendar days.
		{"fall back", time.Date(2024, 11, 2, 0, 30, 0, 0, ny), time.Date(2024, 11, 3, 23, 59, 0, 0, ny), streakExtended},
		{"fall back gap", time.Date(2024, 11, 2, 23, 30, 0, 0, ny), time.Date(2024, 11, 4, 0, 30, 0, 0, ny), streakReset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := models.Streak{Current: 1, Longest: 1, LastStudyDate: &tt.last}
			assert.Equal(t, tt.want, advanceStreak(&st, tt.now, ny))
		})
	}
}

func TestUpdateStreakWithoutProgressIsNoop(t *testing.T) {
	env := newTestEnv(t, nil, Options{})

	require.NoError(t, env.service.UpdateStreak(context.Background(), "u1"))

	_, err := env.store.GetProgress(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrProgressNotFound)
}

func TestUpdateStreakPersists(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.seed(t, "u1", func(p *models.UserProgress) {
		p.Overall.Streak = models.Streak{Current: 2, Longest: 2, LastStudyDate: timePtr(testNow.AddDate(0, 0, -1))}
	})

	require.NoError(t, env.service.UpdateStreak(context.Background(), "u1"))

	st := env.load(t, "u1").Overall.Streak
	assert.Equal(t, 3, st.Current)
	assert.Equal(t, 3, st.Longest)
	require.NotNil(t, st.LastStudyDate)
	assert.Equal(t, testNow, *st.LastStudyDate)
}

func TestUpdateStreakStopsDailyBonus(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	ctx := context.Background()

	first, err := env.service.AwardXP(ctx, "u1", ActivitySheetCreated, Metadata{})
	require.NoError(t, err)
	assert.Equal(t, DailyActivityBonus, first.BonusXP)

	require.NoError(t, env.service.UpdateStreak(ctx, "u1"))

	second, err := env.service.AwardXP(ctx, "u1", ActivitySheetCreated, Metadata{})
	require.NoError(t, err)
	assert.Zero(t, second.BonusXP)
}

// ── Progress ────────────────────────────────────────────

func TestGetProgress(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	ctx := context.Background()

	_, err := env.service.GetProgress(ctx, "u1")
	assert.ErrorIs(t, err, ErrProgressNotFound)

	env.seed(t, "u1", func(p *models.UserProgress) {
		p.Overall.Experience = 600
		p.Overall.Level = 5
		p.Overall.Streak = models.Streak{Current: 1, Longest: 4}
		p.Achievements = nil
	})

	resp, err := env.service.GetProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Level)
	assert.Equal(t, int64(600), resp.CurrentXP)
	assert.Equal(t, 4, resp.Streak.Longest)
	assert.NotNil(t, resp.Achievements)
	assert.Empty(t, resp.Achievements)
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(NewMemoryStore(), &stubCounter{}, noopLocker{}, logger.NewNop(), Options{})

	assert.Equal(t, defaultMaxRetries, svc.maxRetries)
	assert.Equal(t, time.Local, svc.loc)
	assert.NotNil(t, svc.now)
}
