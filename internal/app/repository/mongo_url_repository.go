package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/shortlink/internal/app/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoURLRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoURLRepository returns a URLRepository backed by a MongoDB collection.
// Call EnsureIndexes once at startup so duplicate identifiers are rejected.
func NewMongoURLRepository(collection *mongo.Collection) URLRepository {
	return &mongoURLRepository{collection: collection, now: time.Now}
}

// EnsureIndexes creates the unique indexes the repository relies on.
func EnsureIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "identifier", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "short_url", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: create indexes: %w", err)
	}
	return nil
}

func (r *mongoURLRepository) Create(ctx context.Context, record *model.URLRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now()
	}
	if record.LastAccessed.IsZero() {
		record.LastAccessed = record.CreatedAt
	}
	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateURL
		}
		return err
	}
	return nil
}

func (r *mongoURLRepository) FindByIdentifier(ctx context.Context, identifier string, enabledOnly bool) (*model.URLRecord, error) {
	filter := Filter{Identifier: identifier}
	if enabledOnly {
		enabled := true
		filter.Enabled = &enabled
	}
	return r.FindOne(ctx, filter)
}

func (r *mongoURLRepository) FindOne(ctx context.Context, filter Filter) (*model.URLRecord, error) {
	var record model.URLRecord
	if err := r.collection.FindOne(ctx, mongoFilter(filter)).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrURLNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *mongoURLRepository) UpdateEnabled(ctx context.Context, identifier string, enabled bool) (*model.URLRecord, error) {
	return r.findOneAndSet(ctx, identifier, bson.M{"enabled": enabled})
}

func (r *mongoURLRepository) UpdateOriginalURL(ctx context.Context, identifier, originalURL string) (*model.URLRecord, error) {
	return r.findOneAndSet(ctx, identifier, bson.M{"original_url": originalURL})
}

func (r *mongoURLRepository) IncrementHits(ctx context.Context, identifier string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"identifier": identifier},
		bson.M{
			"$inc": bson.M{"hits": 1},
			"$set": bson.M{"last_accessed": r.now()},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrURLNotFound
	}
	return nil
}

func (r *mongoURLRepository) findOneAndSet(ctx context.Context, identifier string, fields bson.M) (*model.URLRecord, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var record model.URLRecord
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"identifier": identifier},
		bson.M{"$set": fields},
		opts,
	).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrURLNotFound
		}
		return nil, err
	}
	return &record, nil
}

func mongoFilter(filter Filter) bson.M {
	m := bson.M{}
	if filter.Identifier != "" {
		m["identifier"] = filter.Identifier
	}
	if filter.ShortURL != "" {
		m["short_url"] = filter.ShortURL
	}
	if filter.Enabled != nil {
		m["enabled"] = *filter.Enabled
	}
	return m
}
