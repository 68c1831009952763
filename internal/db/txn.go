package db

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// InTransaction runs fn inside a MongoDB session transaction when the
// deployment supports them. Standalone servers reject transactions with an
// IllegalOperation error; in that case fn runs once without a session. The
// write paths using this are designed so a single conditional update acts
// as the commit point, which keeps them correct either way.
func InTransaction(ctx context.Context, client *mongo.Client, fn func(ctx context.Context) error) error {
	session, err := client.StartSession()
	if err != nil {
		return fn(ctx)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && transactionsUnsupported(err) {
		return fn(ctx)
	}
	return err
}

func transactionsUnsupported(err error) bool {
	if mongo.IsTimeout(err) {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		// 20 = IllegalOperation, raised by standalone mongod for
		// startTransaction.
		if ce.Code == 20 {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction numbers are only allowed") ||
		strings.Contains(msg, "transactions are not supported")
}
