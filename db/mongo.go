package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoDatabase  = "samplemind"
	analysisColl   = "analysis_cache"
	mongoOpTimeout = 10 * time.Second
)

type analysisDocument struct {
	Key       string    `bson:"_id"`
	Result    string    `bson:"result"`
	CostSaved float64   `bson:"cost_saved"`
	CachedAt  time.Time `bson:"cached_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// MongoClient stores AI responses in MongoDB. A TTL index on expires_at lets
// the server drop stale entries on its own.
type MongoClient struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoClient(ctx context.Context, uri string) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging MongoDB: %w", err)
	}

	collection := client.Database(mongoDatabase).Collection(analysisColl)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error creating TTL index: %w", err)
	}

	return &MongoClient{client: client, collection: collection}, nil
}

func (m *MongoClient) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoClient) PutAnalysis(ctx context.Context, a StoredAnalysis) error {
	doc := analysisDocument{
		Key:       a.Key,
		Result:    string(a.Data),
		CostSaved: a.CostSaved,
		CachedAt:  a.CachedAt.UTC(),
		ExpiresAt: a.ExpiresAt.UTC(),
	}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": a.Key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("error storing cached analysis: %w", err)
	}
	return nil
}

// GetAnalysis returns a live cached response. The TTL monitor only runs once
// a minute, so expiry is also checked here.
func (m *MongoClient) GetAnalysis(ctx context.Context, key string, now time.Time) (StoredAnalysis, bool, error) {
	var doc analysisDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return StoredAnalysis{}, false, nil
		}
		return StoredAnalysis{}, false, fmt.Errorf("failed to retrieve cached analysis: %w", err)
	}
	if !now.Before(doc.ExpiresAt) {
		return StoredAnalysis{}, false, nil
	}
	return StoredAnalysis{
		Key:       doc.Key,
		Data:      []byte(doc.Result),
		CostSaved: doc.CostSaved,
		CachedAt:  doc.CachedAt,
		ExpiresAt: doc.ExpiresAt,
	}, true, nil
}

func (m *MongoClient) ClearAnalyses(ctx context.Context) error {
	if _, err := m.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear analysis cache: %w", err)
	}
	return nil
}
