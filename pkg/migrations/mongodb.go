package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureDeadLetterIndexes creates the indexes the dead-letter listing relies on.
// The collection itself is created on first insert.
func EnsureDeadLetterIndexes(ctx context.Context, db *mongo.Database, collection string) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("idx_dead_letters_recorded_at"),
		},
		{
			Keys:    bson.D{{Key: "rule_id", Value: 1}, {Key: "target_id", Value: 1}},
			Options: options.Index().SetName("idx_dead_letters_rule_target"),
		},
		{
			Keys:    bson.D{{Key: "reason", Value: 1}, {Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("idx_dead_letters_reason_recorded_at"),
		},
	}

	_, err := db.Collection(collection).Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
