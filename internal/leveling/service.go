package leveling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studyforge/backend/internal/locks"
	"github.com/studyforge/backend/internal/logger"
	"github.com/studyforge/backend/internal/metrics"
	"github.com/studyforge/backend/internal/models"
)

const defaultMaxRetries = 5

// Streak transitions, also used as metric labels.
const (
	streakStarted  = "started"
	streakExtended = "extended"
	streakReset    = "reset"
	streakSameDay  = "same_day"
)

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	// Location defines calendar days for streaks and daily bonuses. Defaults to time.Local.
	Location *time.Location
	// MaxRetries bounds load-compute-save attempts after version conflicts.
	MaxRetries int
	// Now overrides the clock.
	Now func() time.Time
}

type Service struct {
	store      ProgressStore
	sessions   SessionCounter
	locker     locks.Locker
	table      *LevelTable
	log        *logger.Logger
	loc        *time.Location
	now        func() time.Time
	maxRetries int
}

func NewService(store ProgressStore, sessions SessionCounter, locker locks.Locker, log *logger.Logger, opts Options) *Service {
	s := &Service{
		store:      store,
		sessions:   sessions,
		locker:     locker,
		table:      NewLevelTable(),
		log:        log.With("service", "leveling"),
		loc:        opts.Location,
		now:        opts.Now,
		maxRetries: opts.MaxRetries,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	return s
}

// CalculateLevel maps a cumulative XP total to level info.
func (s *Service) CalculateLevel(totalXP int64) models.LevelInfo {
	return s.table.CalculateLevel(totalXP)
}

func lockKey(userID string) string {
	return "progress:" + userID
}

// ── Award XP ────────────────────────────────────────────

// AwardXP adds the XP for an activity plus any bonuses to the user's progress, creating
// the record on first use, and unlocks milestone achievements on level-up. Awards for
// the same user are serialized; persistence errors are returned as-is.
func (s *Service) AwardXP(ctx context.Context, userID string, activity ActivityType, md Metadata) (*models.AwardResult, error) {
	log := s.log.FromContext(ctx).With("user_id", userID, "activity", string(activity))
	if !KnownActivity(activity) {
		log.Warn("unknown activity type, awarding 0 base XP")
	}

	unlock, err := s.locker.Lock(ctx, lockKey(userID))
	if err != nil {
		return nil, fmt.Errorf("lock progress: %w", err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		result, err := s.awardOnce(ctx, userID, activity, md)
		if err == nil {
			metrics.XPAwarded.WithLabelValues(string(activity)).Add(float64(result.XPEarned))
			if result.LeveledUp {
				metrics.LevelUps.Inc()
				log.Info("user leveled up", "old_level", result.OldLevel, "new_level", result.NewLevel)
			}
			return result, nil
		}
		if !isRetryable(err) || attempt >= s.maxRetries {
			return nil, err
		}
		metrics.AwardConflicts.Inc()
		log.Debug("progress changed during award, retrying", "attempt", attempt, "error", err)
	}
}

func (s *Service) awardOnce(ctx context.Context, userID string, activity ActivityType, md Metadata) (*models.AwardResult, error) {
	p, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	xpEarned := CalculateXPForActivity(activity, md)

	bonusXP, err := s.CalculateBonusXP(ctx, userID, p, md)
	if err != nil {
		return nil, err
	}
	xpEarned += bonusXP

	oldLevel := p.Overall.Level
	p.Overall.Experience += int64(xpEarned)

	levelInfo := s.table.CalculateLevel(p.Overall.Experience)
	p.Overall.Level = levelInfo.Level
	leveledUp := levelInfo.Level > oldLevel

	now := s.now()
	unlocked := []models.Achievement{}
	if leveledUp {
		unlocked = append(unlocked, UnlockLevelAchievements(p, levelInfo.Level, now)...)
	}

	p.UpdatedAt = now
	if err := s.store.SaveProgress(ctx, p); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}

	return &models.AwardResult{
		XPEarned:             xpEarned,
		BonusXP:              bonusXP,
		LeveledUp:            leveledUp,
		OldLevel:             oldLevel,
		NewLevel:             levelInfo.Level,
		TotalXP:              p.Overall.Experience,
		LevelInfo:            levelInfo,
		AchievementsUnlocked: unlocked,
	}, nil
}

func (s *Service) loadOrCreate(ctx context.Context, userID string) (*models.UserProgress, error) {
	p, err := s.store.GetProgress(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProgressNotFound) {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	p = models.NewUserProgress(userID, s.now())
	if err := s.store.CreateProgress(ctx, p); err != nil {
		return nil, fmt.Errorf("create progress: %w", err)
	}
	return p, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrProgressExists)
}

// ── Streak ──────────────────────────────────────────────

// UpdateStreak advances the user's daily streak. It is a no-op for users without a
// progress record; only AwardXP creates records.
func (s *Service) UpdateStreak(ctx context.Context, userID string) error {
	unlock, err := s.locker.Lock(ctx, lockKey(userID))
	if err != nil {
		return fmt.Errorf("lock progress: %w", err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		err := s.updateStreakOnce(ctx, userID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= s.maxRetries {
			return err
		}
		metrics.AwardConflicts.Inc()
	}
}

func (s *Service) updateStreakOnce(ctx context.Context, userID string) error {
	p, err := s.store.GetProgress(ctx, userID)
	if errors.Is(err, ErrProgressNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get progress: %w", err)
	}

	now := s.now()
	transition := advanceStreak(&p.Overall.Streak, now, s.loc)
	p.UpdatedAt = now

	if err := s.store.SaveProgress(ctx, p); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	metrics.StreakUpdates.WithLabelValues(transition).Inc()
	return nil
}

// advanceStreak applies one study day at now to st and returns the transition taken.
// lastStudyDate always moves to now.
func advanceStreak(st *models.Streak, now time.Time, loc *time.Location) string {
	transition := streakSameDay

	if st.LastStudyDate == nil {
		st.Current = 1
		st.Longest = 1
		transition = streakStarted
	} else {
		switch daysSince := daysBetween(*st.LastStudyDate, now, loc); {
		case daysSince == 1:
			st.Current++
			transition = streakExtended
		case daysSince > 1:
			st.Current = 1
			transition = streakReset
		}
	}
	if st.Current > st.Longest {
		st.Longest = st.Current
	}

	today := now
	st.LastStudyDate = &today
	return transition
}

// ── Progress ────────────────────────────────────────────

// GetProgress returns the user's level info, streak and achievements.
func (s *Service) GetProgress(ctx context.Context, userID string) (*models.ProgressResponse, error) {
	p, err := s.store.GetProgress(ctx, userID)
	if err != nil {
		return nil, err
	}

	achievements := p.Achievements
	if achievements == nil {
		achievements = []models.Achievement{}
	}

	return &models.ProgressResponse{
		LevelInfo:    s.table.CalculateLevel(p.Overall.Experience),
		Streak:       p.Overall.Streak,
		Achievements: achievements,
	}, nil
}
