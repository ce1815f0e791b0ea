package leveling

import (
	"math"

	"github.com/studyforge/backend/internal/models"
)

const (
	// MaxLevel is the number of levels in the threshold table.
	MaxLevel = 100

	baseLevelIncrement   = 100
	levelIncrementGrowth = 1.15
)

// LevelTable holds cumulative XP thresholds; index 0 is level 1. It is built once
// and never mutated, so a single table is safe to share between goroutines.
type LevelTable struct {
	thresholds []int64
}

// NewLevelTable builds the table. Each level's increment is floor(previous increment * 1.15),
// starting from 100, and each threshold adds that increment to the previous threshold.
// The product is taken in float64, so the first increment is 114 (100*1.15 is just below 115).
func NewLevelTable() *LevelTable {
	thresholds := make([]int64, MaxLevel)
	increment := float64(baseLevelIncrement)
	for level := 2; level <= MaxLevel; level++ {
		increment = math.Floor(increment * levelIncrementGrowth)
		thresholds[level-1] = thresholds[level-2] + int64(increment)
	}
	return &LevelTable{thresholds: thresholds}
}

// Threshold returns the cumulative XP needed to reach level.
func (t *LevelTable) Threshold(level int) (int64, bool) {
	if level < 1 || level > len(t.thresholds) {
		return 0, false
	}
	return t.thresholds[level-1], true
}

// Len returns the number of levels.
func (t *LevelTable) Len() int {
	return len(t.thresholds)
}

// CalculateLevel maps a cumulative XP total to its level and the progress within it.
func (t *LevelTable) CalculateLevel(totalXP int64) models.LevelInfo {
	for i := len(t.thresholds) - 1; i >= 0; i-- {
		if totalXP < t.thresholds[i] {
			continue
		}

		info := models.LevelInfo{
			Level:             i + 1,
			CurrentXP:         totalXP,
			XPForCurrentLevel: t.thresholds[i],
			ProgressToNext:    100,
		}
		if i+1 < len(t.thresholds) {
			next := t.thresholds[i+1]
			info.XPForNextLevel = &next
			info.ProgressToNext = float64(totalXP-t.thresholds[i]) / float64(next-t.thresholds[i]) * 100
		}
		return info
	}

	// Only reachable for negative totals.
	info := models.LevelInfo{Level: 1, CurrentXP: totalXP}
	if len(t.thresholds) > 1 {
		next := t.thresholds[1]
		info.XPForNextLevel = &next
	}
	return info
}
