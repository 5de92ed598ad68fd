package receipt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoTimeout = 10 * time.Second
	mongoBucket  = "snapshots"
)

// MongoKV implements the KV interface on a GridFS bucket, one file per key,
// so values are not bound by the BSON document size limit.
type MongoKV struct {
	client *mongo.Client
	db     *mongo.Database

	// gridfs.Bucket shares its buffers and deadlines between calls
	mu     sync.Mutex
	bucket *gridfs.Bucket
}

// NewMongoKV connects to MongoDB and uses the snapshots bucket of dbName
func NewMongoKV(ctx context.Context, uri, dbName string) (*MongoKV, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	db := client.Database(dbName)
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(mongoBucket))
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("opening gridfs bucket: %w", err)
	}

	return &MongoKV{
		client: client,
		db:     db,
		bucket: bucket,
	}, nil
}

// Get returns the latest revision stored under key
func (m *MongoKV) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.bucket.SetReadDeadline(time.Now().Add(mongoTimeout)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	_, err := m.bucket.DownloadToStreamByName(key, &buf)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	if buf.Len() == 0 {
		return []byte{}, nil
	}
	return buf.Bytes(), nil
}

// Put uploads a new revision for key and then drops the older ones, so a
// failed upload leaves the previous value readable.
func (m *MongoKV) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.bucket.SetWriteDeadline(time.Now().Add(mongoTimeout)); err != nil {
		return err
	}

	id, err := m.bucket.UploadFromStream(key, bytes.NewReader(value))
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	if err := m.deleteRevisions(ctx, bson.M{"filename": key, "_id": bson.M{"$ne": id}}); err != nil {
		return fmt.Errorf("pruning %s: %w", key, err)
	}
	return nil
}

// Delete removes every revision of key
func (m *MongoKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	if err := m.deleteRevisions(ctx, bson.M{"filename": key}); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (m *MongoKV) deleteRevisions(ctx context.Context, filter bson.M) error {
	cursor, err := m.bucket.FindContext(ctx, filter)
	if err != nil {
		return err
	}

	var files []struct {
		ID any `bson:"_id"`
	}
	if err := cursor.All(ctx, &files); err != nil {
		return err
	}

	for _, f := range files {
		err := m.bucket.DeleteContext(ctx, f.ID)
		if err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return err
		}
	}
	return nil
}

// Close disconnects from MongoDB
func (m *MongoKV) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
