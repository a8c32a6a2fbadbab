package records

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultDatabaseName = "aiAgentcaller"
	callsCollection     = "calls"
)

// MongoStore writes call records to the calls collection.
type MongoStore struct {
	client *mongo.Client
	calls  *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = DefaultDatabaseName
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	return &MongoStore{
		client: client,
		calls:  client.Database(database).Collection(callsCollection),
	}, nil
}

func (s *MongoStore) InsertCallRecord(ctx context.Context, rec CallRecord) (string, error) {
	prepare(&rec, time.Now().UTC())
	res, err := s.calls.InsertOne(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("insert call record: %w", err)
	}
	switch id := res.InsertedID.(type) {
	case primitive.ObjectID:
		return id.Hex(), nil
	default:
		return fmt.Sprint(id), nil
	}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
