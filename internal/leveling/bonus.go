package leveling

import (
	"context"
	"fmt"
	"time"

	"github.com/studyforge/backend/internal/models"
)

const (
	DailyActivityBonus  = 15
	PerfectScoreBonus   = 50
	HighScoreBonus      = 25
	FirstQuizOfDayBonus = 25
)

// SessionCounter reports how many quiz sessions a user has recorded since a point in time,
// ignoring the session with id excludeID (empty ignores nothing).
type SessionCounter interface {
	CountQuizSessionsSince(ctx context.Context, userID string, since time.Time, excludeID string) (int64, error)
}

// CalculateBonusXP sums the bonuses that apply to an award. It reads session history
// but never writes.
func (s *Service) CalculateBonusXP(ctx context.Context, userID string, p *models.UserProgress, md Metadata) (int, error) {
	now := s.now()
	bonus := 0

	// First award of the calendar day. Reads lastStudyDate, never advances it.
	last := p.Overall.Streak.LastStudyDate
	if last == nil || !sameDay(*last, now, s.loc) {
		bonus += DailyActivityBonus
	}

	if !md.HasScore() {
		return bonus, nil
	}

	if score := *md.Score; score == 100 {
		bonus += PerfectScoreBonus
	} else if score >= 90 {
		bonus += HighScoreBonus
	}

	quizzesToday, err := s.sessions.CountQuizSessionsSince(ctx, userID, startOfDay(now, s.loc), md.SessionID)
	if err != nil {
		return 0, fmt.Errorf("count quiz sessions today: %w", err)
	}
	if quizzesToday == 0 {
		bonus += FirstQuizOfDayBonus
	}

	return bonus, nil
}
