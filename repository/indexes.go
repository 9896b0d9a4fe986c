package repository

import (
	"context"
	"fmt"
	"time"

	"cityfix-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the unique and feed indexes the repositories rely on.
// users.email and payments.sessionId must be unique for bootstrap and payment
// reconciliation to stay idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		"users": {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "role", Value: 1}}},
		},
		"payments": {
			{
				Keys:    bson.D{{Key: "sessionId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "email", Value: 1}, {Key: "paidAt", Value: -1}}},
		},
		"issues": {
			{Keys: feedSort},
			{Keys: bson.D{{Key: "submittedBy", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "assignedStaff.email", Value: 1}}},
		},
	}

	for name, specs := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

// BackfillPriorityRank sets priorityRank on issues stored before the field
// existed.
func BackfillPriorityRank(ctx context.Context, db *mongo.Database) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"priorityRank": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$priority", string(models.PriorityHigh)}},
				models.PriorityHigh.Rank(),
				models.PriorityNormal.Rank(),
			}},
		}}},
	}
	res, err := db.Collection("issues").UpdateMany(ctx, bson.M{"priorityRank": bson.M{"$exists": false}}, pipeline)
	if err != nil {
		return 0, fmt.Errorf("backfill priorityRank: %w", err)
	}
	return res.ModifiedCount, nil
}
