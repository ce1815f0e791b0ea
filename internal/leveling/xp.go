package leveling

import "math"

// ActivityType tags the study activity an award is for.
type ActivityType string

const (
	ActivitySheetCreated            ActivityType = "SHEET_CREATED"
	ActivityQuizGenerated           ActivityType = "QUIZ_GENERATED"
	ActivityQuizCompleted           ActivityType = "QUIZ_COMPLETED"
	ActivitySheetEvaluated          ActivityType = "SHEET_EVALUATED"
	ActivityPersonalizedPathCreated ActivityType = "PERSONALIZED_PATH_CREATED"
	ActivityAIInteraction           ActivityType = "AI_INTERACTION"
)

// Metadata carries optional per-award details. A nil Score means no score was supplied.
type Metadata struct {
	Score *float64
	// SessionID names the already-stored session this award is for. It is not counted
	// as an earlier quiz of the day.
	SessionID string
}

// WithScore returns Metadata carrying score.
func WithScore(score float64) Metadata {
	return Metadata{Score: &score}
}

// HasScore reports whether a score was supplied.
func (m Metadata) HasScore() bool {
	return m.Score != nil
}

func (m Metadata) score() float64 {
	if m.Score == nil {
		return 0
	}
	return *m.Score
}

// xpRates is the base XP per activity. QUIZ_COMPLETED is further scaled by ScoreMultiplier.
var xpRates = map[ActivityType]int{
	ActivitySheetCreated:   50,
	ActivityQuizGenerated:  40,
	ActivityQuizCompleted:  30,
	ActivitySheetEvaluated: 35,
	ActivityAIInteraction:  5,
}

// KnownActivity reports whether the activity has a base XP rate.
func KnownActivity(activity ActivityType) bool {
	if activity == ActivityPersonalizedPathCreated {
		return true
	}
	_, ok := xpRates[activity]
	return ok
}

// CalculateXPForActivity returns the base XP for an activity. Unknown activities earn 0.
func CalculateXPForActivity(activity ActivityType, md Metadata) int {
	switch activity {
	case ActivityQuizCompleted:
		return int(math.Floor(float64(xpRates[ActivityQuizCompleted]) * ScoreMultiplier(md.score())))
	case ActivityPersonalizedPathCreated:
		// Paid at the AI_INTERACTION rate. Product has not confirmed whether it should
		// earn the 50 XP listed for it in the rate sheet, so keep 5 for now.
		return xpRates[ActivityAIInteraction]
	default:
		return xpRates[activity]
	}
}

// ScoreMultiplier returns the quiz-completion multiplier for a 0-100 score.
func ScoreMultiplier(score float64) float64 {
	if score >= 100 {
		return 2.5
	}
	if score >= 90 {
		return 2.0
	}
	if score >= 80 {
		return 1.5
	}
	if score >= 70 {
		return 1.2
	}
	if score >= 60 {
		return 1.0
	}
	return 0.5
}
