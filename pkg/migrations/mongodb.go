package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureRecordsCollection creates the primary key and secondary indexes of
// the single-table record collection.
func EnsureRecordsCollection(ctx context.Context, db *mongo.Database, name string) error {
	collection := db.Collection(name)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "PK", Value: 1}, {Key: "SK", Value: 1}},
			Options: options.Index().SetName("idx_records_pk_sk").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "GSI1-PK", Value: 1}, {Key: "GSI1-SK", Value: 1}},
			Options: options.Index().
				SetName("idx_records_gsi1").
				SetPartialFilterExpression(bson.M{"GSI1-PK": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "GSI2-PK", Value: 1}, {Key: "Timestamp", Value: 1}},
			Options: options.Index().
				SetName("idx_records_gsi2").
				SetPartialFilterExpression(bson.M{"GSI2-PK": bson.M{"$exists": true}}),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}

	return nil
}
