package agent

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hometrics/rentbot/foundation/client"
	"github.com/hometrics/rentbot/foundation/mongodb"
)

// MongoStore persists sessions in a mongo collection so conversations
// survive restarts. Select it with SESSION_STORE=mongo.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(ctx context.Context, cln *mongo.Client, dbName string) (*MongoStore, error) {
	col, err := mongodb.CreateCollection(ctx, cln.Database(dbName), "sessions")
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &MongoStore{col: col}, nil
}

type sessionDoc struct {
	ID       string     `bson:"_id"`
	Messages []client.D `bson:"messages"`
}

func (ms *MongoStore) Load(ctx context.Context, sessionID string) ([]client.D, error) {
	var doc sessionDoc

	err := ms.col.FindOne(ctx, bson.D{{Key: "_id", Value: sessionID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}

		return nil, fmt.Errorf("find: %w", err)
	}

	return doc.Messages, nil
}

func (ms *MongoStore) Save(ctx context.Context, sessionID string, conversation []client.D) error {
	doc := sessionDoc{
		ID:       sessionID,
		Messages: conversation,
	}

	opts := options.Replace().SetUpsert(true)

	if _, err := ms.col.ReplaceOne(ctx, bson.D{{Key: "_id", Value: sessionID}}, doc, opts); err != nil {
		return fmt.Errorf("replace: %w", err)
	}

	return nil
}
