package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// duplicateKeyError builds an error that IsMongoDuplicateKeyError
// recognizes, mimicking what the driver returns on a unique-index hit.
func duplicateKeyError(key string) error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: test.collection index: _id_ dup key: { : %q }", key),
	}}}
}

func TestWithRetries_FirstAttemptSucceeds(t *testing.T) {
	var calls int
	err := WithRetries(func() error {
		calls++
		return nil
	}, 3, IsMongoDuplicateKeyError)

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetries_OtherErrorsNotRetried(t *testing.T) {
	var calls int
	boom := errors.New("connection reset")
	err := WithRetries(func() error {
		calls++
		return boom
	}, 3, IsMongoDuplicateKeyError)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithRetries_ExhaustsOnPersistentCollision(t *testing.T) {
	var calls int
	err := WithRetries(func() error {
		calls++
		return duplicateKeyError("AAAAAAAAAA")
	}, 3, IsMongoDuplicateKeyError)

	assert.Error(t, err)
	assert.True(t, IsMongoDuplicateKeyError(err))
	assert.Equal(t, 4, calls, "initial attempt plus maxRetries")
}

func TestTry_CollisionResolvesWithFreshID(t *testing.T) {
	originalHook := utils.NewSixIDHook
	defer func() { utils.NewSixIDHook = originalHook }()

	colliding := utils.SixID{1, 2, 3, 4, 5, 1}
	fresh := utils.SixID{1, 2, 3, 4, 5, 2}
	script := []utils.SixID{colliding, fresh}
	var hookCalls int
	utils.NewSixIDHook = func() (utils.SixID, bool) {
		if hookCalls < len(script) {
			id := script[hookCalls]
			hookCalls++
			return id, true
		}
		return utils.SixID{}, false
	}

	// colliding is already "in the collection".
	taken := map[utils.SixID]bool{colliding: true}
	var calls int
	err := Try(func() error {
		calls++
		id := utils.NewSixID()
		if taken[id] {
			return duplicateKeyError(id.String())
		}
		taken[id] = true
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls, "first attempt collides, second succeeds with a regenerated ID")
	assert.True(t, taken[fresh])
}

func TestIsMongoDuplicateKeyError_BulkWrite(t *testing.T) {
	bulk := mongo.BulkWriteException{WriteErrors: []mongo.BulkWriteError{{
		WriteError: mongo.WriteError{Code: 11000, Message: "E11000 duplicate key"},
	}}}
	assert.True(t, IsMongoDuplicateKeyError(bulk))
	assert.False(t, IsMongoDuplicateKeyError(errors.New("not a mongo error")))
	assert.False(t, IsMongoDuplicateKeyError(nil))
}
