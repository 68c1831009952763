package db

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
)

// InsertOne inserts a document that carries a models.Base, generating a
// fresh random ID on each attempt so that an _id collision (vanishingly
// rare but possible with 6-byte IDs) is retried rather than surfaced.
// Unique-index collisions on other fields exhaust the retries and are
// returned to the caller. The inserted document is returned for chaining.
func InsertOne[T models.IBase](ctx context.Context, coll *mongo.Collection, doc T) (T, error) {
	err := Try(func() error {
		doc.GenID()
		_, err := coll.InsertOne(ctx, doc)
		return err
	})
	return doc, err
}

// InsertOnePreserveID inserts a document keeping its existing ID if set,
// without retrying. Used where the caller has already reserved an ID.
func InsertOnePreserveID(ctx context.Context, coll *mongo.Collection, doc models.IBase) error {
	doc.GenIDIfEmpty()
	_, err := coll.InsertOne(ctx, doc)
	return err
}
