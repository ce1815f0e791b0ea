package sessions

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/studyforge/backend/internal/models"
)

// CollectionSessions is the Mongo collection holding study sessions.
const CollectionSessions = "studysessions"

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(CollectionSessions)}
}

func (s *MongoStore) CreateSession(ctx context.Context, ss *models.StudySession) error {
	if _, err := s.coll.InsertOne(ctx, ss); err != nil {
		return fmt.Errorf("insert study session: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete study session: %w", err)
	}
	return nil
}

func (s *MongoStore) CountQuizSessionsSince(ctx context.Context, userID string, since time.Time, excludeID string) (int64, error) {
	filter := bson.M{
		"user":        userID,
		"sessionType": models.SessionQuiz,
		"createdAt":   bson.M{"$gte": since},
	}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	n, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count quiz sessions: %w", err)
	}
	return n, nil
}

func (s *MongoStore) RecentSessions(ctx context.Context, userID string, limit int) ([]models.StudySession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, bson.M{"user": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find recent sessions: %w", err)
	}

	out := []models.StudySession{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode recent sessions: %w", err)
	}
	return out, nil
}

func (s *MongoStore) SessionStats(ctx context.Context, userID string) (*models.SessionStats, error) {
	quizzes, err := s.coll.CountDocuments(ctx, bson.M{
		"user":        userID,
		"sessionType": models.SessionQuiz,
		"status":      models.SessionCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("count completed quizzes: %w", err)
	}

	cur, err := s.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user": userID}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "totalTime": bson.M{"$sum": "$results.timeSpent"}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate study time: %w", err)
	}
	var totals []struct {
		TotalTime int `bson:"totalTime"`
	}
	if err := cur.All(ctx, &totals); err != nil {
		return nil, fmt.Errorf("decode study time: %w", err)
	}

	stats := &models.SessionStats{QuizzesCompleted: int(quizzes)}
	if len(totals) > 0 {
		stats.TotalStudyTime = totals[0].TotalTime
	}
	return stats, nil
}
