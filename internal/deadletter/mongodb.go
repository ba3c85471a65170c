package deadletter

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eventrouter/internal/constants"
	"eventrouter/pkg/metrics"
	"eventrouter/pkg/models"
)

const DefaultMongoCollection = "dead_letters"

type MongoSink struct {
	collection *mongo.Collection
}

// NewMongoSink decodes nested event detail into plain maps so listed
// records render as JSON objects.
func NewMongoSink(db *mongo.Database, collection string) *MongoSink {
	if collection == "" {
		collection = DefaultMongoCollection
	}
	opts := options.Collection().SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	return &MongoSink{collection: db.Collection(collection, opts)}
}

func (s *MongoSink) Name() string { return constants.SinkMongoDB }

func observeMongo(operation string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery("mongodb", operation, status)
	metrics.ObserveDatabaseQueryDuration("mongodb", operation, time.Since(start))
}

func (s *MongoSink) Record(ctx context.Context, attempt models.DeliveryAttempt) (err error) {
	defer observeMongo("insert_dead_letter", time.Now(), &err)

	_, err = s.collection.InsertOne(ctx, attempt)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}
	return nil
}

func (s *MongoSink) List(ctx context.Context, limit, offset int) (records []models.DeliveryAttempt, err error) {
	defer observeMongo("list_dead_letters", time.Now(), &err)

	opts := options.Find().
		SetSort(bson.D{{Key: "recorded_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer cursor.Close(ctx)

	records = make([]models.DeliveryAttempt, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode dead letters: %w", err)
	}
	return records, nil
}
