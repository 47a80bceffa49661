// Package mongo reads user profile documents owned by the profile service.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vovakirdan/educhat/internal/store"
)

// profileDocument mirrors the fields of the users collection this service reads.
type profileDocument struct {
	UID         string `bson:"uid"`
	Name        string `bson:"name"`
	DisplayName string `bson:"displayName"`
}

func (d profileDocument) toProfile() *store.Profile {
	return &store.Profile{UID: d.UID, Name: d.Name, DisplayName: d.DisplayName}
}

// ProfileStore implements store.ProfileStore on a MongoDB collection.
type ProfileStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewProfileStore connects to uri and binds database.collection.
func NewProfileStore(ctx context.Context, uri, database, collection string) (*ProfileStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &ProfileStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// GetProfile looks a profile up by uid.
func (s *ProfileStore) GetProfile(ctx context.Context, uid string) (*store.Profile, error) {
	opts := options.FindOne().SetProjection(bson.M{"uid": 1, "name": 1, "displayName": 1})

	var doc profileDocument
	err := s.collection.FindOne(ctx, bson.M{"uid": uid}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("profile %s: %w", uid, store.ErrNotFound)
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return doc.toProfile(), nil
}

// Close disconnects the client.
func (s *ProfileStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
