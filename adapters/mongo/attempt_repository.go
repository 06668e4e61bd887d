package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
)

const attemptsCollection = "attempts"

// AttemptRepository stores evaluation history in MongoDB
type AttemptRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.AttemptRepository = (*AttemptRepository)(nil)

// NewAttemptRepository creates a new MongoDB attempt repository
func NewAttemptRepository(db *mongo.Database, logger *zap.Logger) *AttemptRepository {
	return &AttemptRepository{
		collection: db.Collection(attemptsCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the indexes used by history listing and pruning
func (r *AttemptRepository) EnsureIndexes(ctx context.Context) error {
	learnerIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "learner_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
	}
	createdIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: 1}},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{learnerIndex, createdIndex}); err != nil {
		return fmt.Errorf("failed to create attempt indexes: %w", err)
	}
	r.logger.Info("Attempt indexes created successfully")
	return nil
}

// Create implements repositories.AttemptRepository
func (r *AttemptRepository) Create(ctx context.Context, attempt *entities.Attempt) error {
	if attempt == nil {
		return errors.New("attempt cannot be nil")
	}
	if err := attempt.Validate(); err != nil {
		return err
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, attempt); err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

// GetByID implements repositories.AttemptRepository
func (r *AttemptRepository) GetByID(ctx context.Context, id string) (*entities.Attempt, error) {
	if id == "" {
		return nil, errors.New("attempt ID cannot be empty")
	}

	var attempt entities.Attempt
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&attempt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt %s: %w", id, err)
	}
	return &attempt, nil
}

// ListByLearner implements repositories.AttemptRepository
func (r *AttemptRepository) ListByLearner(ctx context.Context, learnerID string, limit int) ([]*entities.Attempt, error) {
	if learnerID == "" {
		return nil, errors.New("learner ID cannot be empty")
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"learner_id": learnerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts for learner %s: %w", learnerID, err)
	}
	defer cursor.Close(ctx)

	attempts := make([]*entities.Attempt, 0)
	if err := cursor.All(ctx, &attempts); err != nil {
		return nil, fmt.Errorf("failed to decode attempts: %w", err)
	}
	return attempts, nil
}

// DeleteOlderThan implements repositories.AttemptRepository
func (r *AttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete old attempts: %w", err)
	}
	return result.DeletedCount, nil
}
