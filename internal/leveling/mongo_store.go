package leveling

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/studyforge/backend/internal/models"
)

// CollectionProgress is the Mongo collection holding progress documents.
const CollectionProgress = "userprogresses"

// MongoStore keeps one document per user in CollectionProgress. A unique index on
// "user" is expected (see database.EnsureMongoIndexes).
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(CollectionProgress)}
}

func (s *MongoStore) GetProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	var p models.UserProgress
	err := s.coll.FindOne(ctx, bson.M{"user": userID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find progress: %w", err)
	}
	if p.Achievements == nil {
		p.Achievements = []models.Achievement{}
	}
	return &p, nil
}

func (s *MongoStore) CreateProgress(ctx context.Context, p *models.UserProgress) error {
	doc := *p
	doc.Version = 1
	if _, err := s.coll.InsertOne(ctx, &doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrProgressExists
		}
		return fmt.Errorf("insert progress: %w", err)
	}
	p.Version = 1
	return nil
}

func (s *MongoStore) SaveProgress(ctx context.Context, p *models.UserProgress) error {
	doc := *p
	doc.Version = p.Version + 1

	res, err := s.coll.ReplaceOne(ctx, bson.M{"user": p.UserID, "version": p.Version}, &doc)
	if err != nil {
		return fmt.Errorf("replace progress: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	p.Version = doc.Version
	return nil
}
