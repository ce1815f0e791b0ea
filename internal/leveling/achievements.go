package leveling

import (
	"fmt"
	"time"

	"github.com/studyforge/backend/internal/models"
)

// LevelMilestones are the levels that grant a badge when reached.
var LevelMilestones = []int{5, 10, 25, 50, 75, 100}

func isMilestone(level int) bool {
	for _, m := range LevelMilestones {
		if m == level {
			return true
		}
	}
	return false
}

// LevelAchievement returns the badge granted for reaching level.
func LevelAchievement(level int, earnedAt time.Time) models.Achievement {
	return models.Achievement{
		BadgeID:     fmt.Sprintf("level_%d", level),
		Name:        fmt.Sprintf("Level %d Master", level),
		Description: fmt.Sprintf("Reached level %d!", level),
		EarnedAt:    earnedAt,
		Category:    models.CategoryLevel,
	}
}

// UnlockLevelAchievements appends the milestone badge for newLevel unless the user already
// has it, and returns what was appended. Levels skipped over in a single award are not granted.
func UnlockLevelAchievements(p *models.UserProgress, newLevel int, now time.Time) []models.Achievement {
	if !isMilestone(newLevel) {
		return nil
	}

	a := LevelAchievement(newLevel, now)
	if p.HasAchievement(a.BadgeID) {
		return nil
	}
	p.Achievements = append(p.Achievements, a)
	return []models.Achievement{a}
}
