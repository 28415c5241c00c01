// Package redisstore keeps layer documents in Redis: a list per collection and a hash of
// column metadata keyed by layer code.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/core/observability"
	"github.com/mohammed-shakir/geoportal/internal/docstore"
	"github.com/mohammed-shakir/geoportal/internal/keys"
)

const (
	backend   = "redis"
	namespace = "geoportal"
	pushBatch = 500
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Store struct {
	rdb *redis.Client
}

var _ docstore.Store = (*Store)(nil)

func New(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	s := &Store{rdb: redis.NewClient(ro)}
	if err := s.Ping(ctx); err != nil {
		_ = s.rdb.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Backend() string { return backend }

func observe(op string, start time.Time, err error) {
	observability.ObserveDocstoreOp(backend, op, err, time.Since(start).Seconds())
}

func collectionKey(collection string) string { return keys.RedisKey(namespace, collection) }

func columnsKey() string { return keys.RedisKey(namespace, keys.ColumnsCollection) }

func (s *Store) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.rdb.Ping(ctx).Err()
	observe("ping", start, err)
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// ReplaceRows pushes docs onto a staging list in pipelined batches and renames it over the
// collection, so readers see either the old rows or all of the new ones.
func (s *Store) ReplaceRows(ctx context.Context, collection string, docs []docstore.Document) (err error) {
	start := time.Now()
	defer func() { observe("replace", start, err) }()

	key := collectionKey(collection)
	if len(docs) == 0 {
		if err = s.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis DEL %q: %w", key, err)
		}
		return nil
	}

	staging := key + ":staging"
	if err = s.rdb.Del(ctx, staging).Err(); err != nil {
		return fmt.Errorf("redis DEL %q: %w", staging, err)
	}
	defer func() {
		if err != nil {
			_ = s.rdb.Del(context.WithoutCancel(ctx), staging).Err()
		}
	}()
	for lo := 0; lo < len(docs); lo += pushBatch {
		hi := min(lo+pushBatch, len(docs))
		vals := make([]any, 0, hi-lo)
		for _, d := range docs[lo:hi] {
			b, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("encode document: %w", err)
			}
			vals = append(vals, b)
		}
		_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			p.RPush(ctx, staging, vals...)
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis RPUSH %q (%d docs): %w", staging, len(vals), err)
		}
	}
	if err = s.rdb.Rename(ctx, staging, key).Err(); err != nil {
		return fmt.Errorf("redis RENAME %q: %w", key, err)
	}
	return nil
}

// Rows returns every document; the list position is the document id.
func (s *Store) Rows(ctx context.Context, collection string) ([]docstore.Document, error) {
	start := time.Now()
	key := collectionKey(collection)
	raw, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	observe("rows", start, err)
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE %q: %w", key, err)
	}
	out := make([]docstore.Document, 0, len(raw))
	for i, r := range raw {
		d, err := decode(r, i)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) Row(ctx context.Context, collection, id string) (docstore.Document, error) {
	idx, err := strconv.Atoi(id)
	if err != nil || idx < 0 {
		return nil, apperr.New(apperr.KindNotFound, "row %q not found", id)
	}
	start := time.Now()
	key := collectionKey(collection)
	raw, err := s.rdb.LIndex(ctx, key, int64(idx)).Result()
	if errors.Is(err, redis.Nil) {
		observe("row", start, nil)
		return nil, apperr.New(apperr.KindNotFound, "row %q not found", id)
	}
	observe("row", start, err)
	if err != nil {
		return nil, fmt.Errorf("redis LINDEX %q: %w", key, err)
	}
	return decode(raw, idx)
}

func decode(raw string, idx int) (docstore.Document, error) {
	var d docstore.Document
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("decode document %d: %w", idx, err)
	}
	d[docstore.IDField] = strconv.Itoa(idx)
	return d, nil
}

func (s *Store) DropCollection(ctx context.Context, collection string) error {
	start := time.Now()
	key := collectionKey(collection)
	err := s.rdb.Del(ctx, key).Err()
	observe("drop", start, err)
	if err != nil {
		return fmt.Errorf("redis DEL %q: %w", key, err)
	}
	return nil
}

func (s *Store) SaveColumns(ctx context.Context, meta model.ColumnMetadata) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode column metadata: %w", err)
	}
	start := time.Now()
	err = s.rdb.HSet(ctx, columnsKey(), meta.Code, b).Err()
	observe("save_columns", start, err)
	if err != nil {
		return fmt.Errorf("redis HSET columns %q: %w", meta.Code, err)
	}
	return nil
}

func (s *Store) Columns(ctx context.Context, code string) (model.ColumnMetadata, error) {
	start := time.Now()
	raw, err := s.rdb.HGet(ctx, columnsKey(), code).Bytes()
	if errors.Is(err, redis.Nil) {
		observe("columns", start, nil)
		return model.ColumnMetadata{}, apperr.New(apperr.KindNotFound, "no column metadata for %q", code)
	}
	observe("columns", start, err)
	if err != nil {
		return model.ColumnMetadata{}, fmt.Errorf("redis HGET columns %q: %w", code, err)
	}
	var meta model.ColumnMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return model.ColumnMetadata{}, fmt.Errorf("decode column metadata %q: %w", code, err)
	}
	return meta, nil
}

func (s *Store) DeleteColumns(ctx context.Context, code string) error {
	start := time.Now()
	err := s.rdb.HDel(ctx, columnsKey(), code).Err()
	observe("delete_columns", start, err)
	if err != nil {
		return fmt.Errorf("redis HDEL columns %q: %w", code, err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
