// Package mongostore keeps layer documents in native MongoDB collections.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/core/observability"
	"github.com/mohammed-shakir/geoportal/internal/docstore"
	"github.com/mohammed-shakir/geoportal/internal/keys"
)

const backend = "mongo"

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ docstore.Store = (*Store)(nil)

// Connect dials uri and verifies the deployment with a ping.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" || database == "" {
		return nil, errors.New("mongo uri and database are required")
	}
	opts := options.Client().ApplyURI(uri).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	s := &Store{client: client, db: client.Database(database)}
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// NewFromDatabase wraps an existing database handle; Close is then a no-op.
func NewFromDatabase(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Backend() string { return backend }

func observe(op string, start time.Time, err error) {
	observability.ObserveDocstoreOp(backend, op, err, time.Since(start).Seconds())
}

func (s *Store) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.db.Client().Ping(ctx, nil)
	observe("ping", start, err)
	if err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	return nil
}

// ReplaceRows drops the collection and inserts docs into a fresh one.
func (s *Store) ReplaceRows(ctx context.Context, collection string, docs []docstore.Document) error {
	if err := s.DropCollection(ctx, collection); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	batch := make([]any, len(docs))
	for i, d := range docs {
		batch[i] = bson.M(d)
	}
	start := time.Now()
	_, err := s.db.Collection(collection).InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	observe("replace", start, err)
	if err != nil {
		return fmt.Errorf("mongo insertMany %q (%d docs): %w", collection, len(docs), err)
	}
	return nil
}

func (s *Store) Rows(ctx context.Context, collection string) ([]docstore.Document, error) {
	start := time.Now()
	cur, err := s.db.Collection(collection).Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		observe("rows", start, err)
		return nil, fmt.Errorf("mongo find %q: %w", collection, err)
	}
	defer func() { _ = cur.Close(ctx) }()

	out := []docstore.Document{}
	for cur.Next(ctx) {
		d, err := toDocument(cur.Current)
		if err != nil {
			observe("rows", start, err)
			return nil, err
		}
		out = append(out, d)
	}
	err = cur.Err()
	observe("rows", start, err)
	if err != nil {
		return nil, fmt.Errorf("mongo cursor %q: %w", collection, err)
	}
	return out, nil
}

func (s *Store) Row(ctx context.Context, collection, id string) (docstore.Document, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "row %q not found", id)
	}
	start := time.Now()
	raw, err := s.db.Collection(collection).FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).DecodeBytes()
	if errors.Is(err, mongo.ErrNoDocuments) {
		observe("row", start, nil)
		return nil, apperr.New(apperr.KindNotFound, "row %q not found", id)
	}
	observe("row", start, err)
	if err != nil {
		return nil, fmt.Errorf("mongo findOne %q: %w", collection, err)
	}
	return toDocument(raw)
}

// toDocument flattens BSON into plain JSON types and renders the ObjectID as hex.
func toDocument(raw bson.Raw) (docstore.Document, error) {
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	id := m["_id"]
	delete(m, "_id")

	ext, err := bson.MarshalExtJSON(m, false, false)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var d docstore.Document
	if err := json.Unmarshal(ext, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	switch v := id.(type) {
	case primitive.ObjectID:
		d[docstore.IDField] = v.Hex()
	case nil:
	default:
		d[docstore.IDField] = fmt.Sprint(v)
	}
	return d, nil
}

func (s *Store) DropCollection(ctx context.Context, collection string) error {
	start := time.Now()
	err := s.db.Collection(collection).Drop(ctx)
	observe("drop", start, err)
	if err != nil {
		return fmt.Errorf("mongo drop %q: %w", collection, err)
	}
	return nil
}

func (s *Store) columns() *mongo.Collection { return s.db.Collection(keys.ColumnsCollection) }

func (s *Store) SaveColumns(ctx context.Context, meta model.ColumnMetadata) error {
	start := time.Now()
	_, err := s.columns().ReplaceOne(ctx, bson.D{{Key: "code", Value: meta.Code}}, meta, options.Replace().SetUpsert(true))
	observe("save_columns", start, err)
	if err != nil {
		return fmt.Errorf("mongo save columns %q: %w", meta.Code, err)
	}
	return nil
}

func (s *Store) Columns(ctx context.Context, code string) (model.ColumnMetadata, error) {
	start := time.Now()
	var meta model.ColumnMetadata
	err := s.columns().FindOne(ctx, bson.D{{Key: "code", Value: code}}).Decode(&meta)
	if errors.Is(err, mongo.ErrNoDocuments) {
		observe("columns", start, nil)
		return model.ColumnMetadata{}, apperr.New(apperr.KindNotFound, "no column metadata for %q", code)
	}
	observe("columns", start, err)
	if err != nil {
		return model.ColumnMetadata{}, fmt.Errorf("mongo columns %q: %w", code, err)
	}
	return meta, nil
}

func (s *Store) DeleteColumns(ctx context.Context, code string) error {
	start := time.Now()
	_, err := s.columns().DeleteOne(ctx, bson.D{{Key: "code", Value: code}})
	observe("delete_columns", start, err)
	if err != nil {
		return fmt.Errorf("mongo delete columns %q: %w", code, err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}
	return nil
}
