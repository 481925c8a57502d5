package repository

import (
	"context"
	"testing"
	"time"

	"github.com/sifan077/shortlink/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newMockMongoRepository(mt *mtest.T, now time.Time) URLRepository {
	return &mongoURLRepository{collection: mt.Coll, now: func() time.Time { return now }}
}

func TestMongoURLRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("create inserts the record", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt, now)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		record := model.NewURLRecord("abcd1234", "https://example.com", testBaseURL, time.Time{})
		require.NoError(mt, repo.Create(ctx, record))
		assert.Equal(mt, now, record.CreatedAt)
		assert.Equal(mt, now, record.LastAccessed)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "insert", evt.CommandName)
		assert.Equal(mt, "abcd1234", evt.Command.Lookup("documents", "0", "identifier").StringValue())
	})

	mt.Run("create maps duplicate key", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt, now)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: test.urls index: identifier_1",
		}))

		err := repo.Create(ctx, model.NewURLRecord("abcd1234", "https://example.com", testBaseURL, now))
		assert.ErrorIs(mt, err, ErrDuplicateURL)
	})

	mt.Run("find enabled only", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt, now)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "identifier", Value: "abcd1234"},
			{Key: "original_url", Value: "https://example.com"},
			{Key: "enabled", Value: true},
			{Key: "hits", Value: int64(7)},
		}))

		got, err := repo.FindByIdentifier(ctx, "abcd1234", true)
		require.NoError(mt, err)
		assert.Equal(mt, "https://example.com", got.OriginalURL)
		assert.Equal(mt, int64(7), got.Hits)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.True(mt, evt.Command.Lookup("filter", "enabled").Boolean())
	})

	mt.Run("find missing", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt, now)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := repo.FindByIdentifier(ctx, "abcd1234", false)
		assert.ErrorIs(mt, err, ErrURLNotFound)
	})

	mt.Run("update returns the new document", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt, now)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "identifier", Value: "abcd1234"},
			{Key: "original_url", Value: "https://example.com"},
			{Key: "enabled", Value: false},
		}}))

		got, err := repo.UpdateEnabled(ctx, "abcd1234", false)
		require.NoError(mt, err)
		assert.False(mt, got.Enabled)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "findAndModify", evt.CommandName)
		assert.True(mt, evt.Command.Lookup("new").Boolean(), "post-update document is requested")
		assert.False(mt, evt.Command.Lookup("update", "$set", "enabled").Boolean())
	})

	mt.Run("update unknown identifier", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt, now)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := repo.UpdateOriginalURL(ctx, "missing1", "https://example.org")
		assert.ErrorIs(mt, err, ErrURLNotFound)
	})

	mt.Run("increment hits", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt, now)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		require.NoError(mt, repo.IncrementHits(ctx, "abcd1234"))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		assert.Equal(mt, "abcd1234", evt.Command.Lookup("updates", "0", "q", "identifier").StringValue())
		assert.Equal(mt, int64(1), evt.Command.Lookup("updates", "0", "u", "$inc", "hits").AsInt64())
		assert.True(mt, now.Equal(evt.Command.Lookup("updates", "0", "u", "$set", "last_accessed").Time()))
	})

	mt.Run("increment unknown identifier", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt, now)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		assert.ErrorIs(mt, repo.IncrementHits(ctx, "missing1"), ErrURLNotFound)
	})
}
