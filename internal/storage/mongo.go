package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ilnaes/linepad/internal/document"
)

// MongoStore keeps one mongo document per saved document in the
// "documents" collection.
type MongoStore struct {
	client *mongo.Client
	docs   *mongo.Collection
}

type mongoRecord struct {
	ID        string              `bson:"_id"`
	Title     string              `bson:"title"`
	SavedAt   time.Time           `bson:"savedAt"`
	TopLineID int64               `bson:"topLineId"`
	Lines     []document.LineData `bson:"lines,omitempty"`
}

func NewMongoStore(ctx context.Context, uri, db string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{
		client: client,
		docs:   client.Database(db).Collection("documents"),
	}, nil
}

func (m *MongoStore) Save(ctx context.Context, id, title string, snap document.Snapshot) error {
	snap = stripHolders(snap)
	rec := mongoRecord{
		ID:        id,
		Title:     title,
		SavedAt:   time.Now().UTC(),
		TopLineID: snap.TopLineID,
		Lines:     snap.Lines,
	}

	filter := bson.D{{Key: "_id", Value: id}}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.docs.ReplaceOne(ctx, filter, rec, opts); err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}
	return nil
}

func (m *MongoStore) Load(ctx context.Context, id string) (Record, error) {
	var rec mongoRecord
	err := m.docs.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load %s: %w", id, err)
	}

	return Record{
		Meta:     Meta{ID: rec.ID, Title: rec.Title, SavedAt: rec.SavedAt},
		Snapshot: document.Snapshot{TopLineID: rec.TopLineID, Lines: rec.Lines},
	}, nil
}

func (m *MongoStore) List(ctx context.Context) ([]Meta, error) {
	opts := options.Find().
		SetProjection(bson.D{{Key: "lines", Value: 0}}).
		SetSort(bson.D{{Key: "title", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := m.docs.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var recs []mongoRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	res := make([]Meta, len(recs))
	for i, rec := range recs {
		res[i] = Meta{ID: rec.ID, Title: rec.Title, SavedAt: rec.SavedAt}
	}
	return res, nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
