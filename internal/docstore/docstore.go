// Package docstore defines the document side of a published layer: one collection of
// row documents per layer plus the shared column metadata collection.
package docstore

import (
	"context"

	"github.com/mohammed-shakir/geoportal/internal/core/model"
)

// IDField is set on every document returned by a Store.
const IDField = "_id"

// Document values are strings, nil, or (for the geometry and cell fields) JSON-compatible values.
type Document map[string]any

type Store interface {
	// Backend names the implementation for logs and metrics.
	Backend() string
	// ReplaceRows makes docs the whole content of collection; an empty docs clears it.
	ReplaceRows(ctx context.Context, collection string, docs []Document) error
	Rows(ctx context.Context, collection string) ([]Document, error)
	Row(ctx context.Context, collection, id string) (Document, error)
	DropCollection(ctx context.Context, collection string) error

	SaveColumns(ctx context.Context, meta model.ColumnMetadata) error
	Columns(ctx context.Context, code string) (model.ColumnMetadata, error)
	DeleteColumns(ctx context.Context, code string) error

	Ping(ctx context.Context) error
	Close() error
}
