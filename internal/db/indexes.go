package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the unique and partial indexes the write paths
// rely on. Several invariants (one live offer per dealer per auction, one
// deal per auction, idempotent commission posting) are enforced here
// rather than in application code, so this must run before serving.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		"auction_participants": {
			{
				Keys:    bson.D{{Key: "auction_id", Value: 1}, {Key: "dealer_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"offers": {
			{
				Keys: bson.D{{Key: "auction_id", Value: 1}, {Key: "participant_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(
					bson.D{{Key: "status", Value: "PENDING"}},
				),
			},
			{Keys: bson.D{{Key: "auction_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		"auctions": {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "ends_at", Value: 1}}},
			{Keys: bson.D{{Key: "buyer_id", Value: 1}}},
		},
		"deals": {
			{
				Keys:    bson.D{{Key: "auction_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "buyer_id", Value: 1}}},
			{Keys: bson.D{{Key: "dealer_id", Value: 1}}},
		},
		"deposit_payments": {
			{
				Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "auction_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(
					bson.D{
						{Key: "status", Value: "SUCCEEDED"},
						{Key: "refunded", Value: false},
					},
				),
			},
		},
		"service_fee_payments": {
			{
				Keys:    bson.D{{Key: "deal_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"commissions": {
			{
				Keys: bson.D{
					{Key: "affiliate_id", Value: 1},
					{Key: "deal_id", Value: 1},
					{Key: "level", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "matures_at", Value: 1}}},
			{Keys: bson.D{{Key: "affiliate_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		"referrals": {
			{
				Keys:    bson.D{{Key: "referred_user_id", Value: 1}, {Key: "level", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "affiliate_id", Value: 1}, {Key: "level", Value: 1}}},
		},
		"affiliates": {
			{
				Keys:    bson.D{{Key: "referral_code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"users": {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for coll, models := range specs {
		if _, err := database.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("creating indexes for %s: %w", coll, err)
		}
	}
	return nil
}
