/*
 * Copyright 2024 The Redline Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mongo implements the storage interface on MongoDB for durable
// snapshot persistence.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/redline-team/redline/server/backend/storage"
)

const colSnapshots = "snapshots"

// snapshotInfo is a document of the snapshots collection.
type snapshotInfo struct {
	DocID     string    `bson:"doc_id"`
	Snapshot  []byte    `bson:"snapshot"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Storage is a MongoDB-backed snapshot store.
type Storage struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Dial connects to MongoDB and prepares the snapshot collection.
func Dial(conf *Config) (*Storage, error) {
	connTimeout, err := conf.ParseConnectionTimeout()
	if err != nil {
		return nil, err
	}
	pingTimeout, err := conf.ParsePingTimeout()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.ConnectionURI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), pingTimeout)
	defer cancelPing()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	collection := client.Database(conf.Database).Collection(colSnapshots)
	if _, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "doc_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("create snapshot index: %w", err)
	}

	return &Storage{
		client:     client,
		collection: collection,
	}, nil
}

// Load returns the last-saved snapshot of the document.
func (s *Storage) Load(ctx context.Context, docID string) ([]byte, error) {
	info := snapshotInfo{}
	if err := s.collection.FindOne(ctx, bson.M{"doc_id": docID}).Decode(&info); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("find snapshot of %s: %w", docID, err)
	}

	return info.Snapshot, nil
}

// Save stores the snapshot of the document, replacing any previous one.
func (s *Storage) Save(ctx context.Context, docID string, snapshot []byte) error {
	if _, err := s.collection.UpdateOne(
		ctx,
		bson.M{"doc_id": docID},
		bson.M{"$set": bson.M{
			"snapshot":   snapshot,
			"updated_at": time.Now(),
		}},
		options.Update().SetUpsert(true),
	); err != nil {
		return fmt.Errorf("upsert snapshot of %s: %w", docID, err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close() error {
	if err := s.client.Disconnect(context.Background()); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}
