// Package catalog records published layers and guards layer code uniqueness.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/core/ogc"
	"github.com/mohammed-shakir/geoportal/internal/relational"
	"github.com/mohammed-shakir/geoportal/internal/wms"
)

const table = "layer_catalog"

type Status string

const (
	StatusStaged   Status = "staged"
	StatusActive   Status = "active"
	StatusRejected Status = "rejected"
	StatusDeleted  Status = "deleted"
)

type Options struct {
	GeoServerURL string
	Workspace    string
}

// Reservation is the staged entry created before any storage is touched.
type Reservation struct {
	ID          string
	Code        string
	Name        string
	Description string
}

// Activation carries the artifacts recorded when a layer reaches Registered.
type Activation struct {
	Schema       string
	Table        string
	View         string
	Collection   string
	FeatureCount int
}

type Catalog struct {
	db      *sql.DB
	dialect relational.Dialect
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

func New(db *sql.DB, d relational.Dialect, opts Options, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts.GeoServerURL = strings.TrimRight(opts.GeoServerURL, "/")
	return &Catalog{db: db, dialect: d, opts: opts, logger: logger, now: time.Now}
}

// Migrate creates the catalog table and the partial unique index on live codes.
func (c *Catalog) Migrate(ctx context.Context) error {
	q := c.dialect.Qualified(table)
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + q + ` (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			schema_name TEXT NOT NULL DEFAULT '',
			table_name TEXT NOT NULL DEFAULT '',
			view_name TEXT NOT NULL DEFAULT '',
			document_collection TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			feature_count BIGINT NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS layer_catalog_live_code ON ` + q +
			` (code) WHERE status IN ('staged', 'active')`,
	}
	for _, s := range stmts {
		if _, err := c.db.ExecContext(ctx, s); err != nil {
			return apperr.StorageWrite(apperr.StageCatalog, err, "migrate catalog")
		}
	}
	return nil
}

func (c *Catalog) ph(n int) string { return c.dialect.Placeholder(n) }

// Exists reports whether code is staged or active.
func (c *Catalog) Exists(ctx context.Context, code string) (bool, error) {
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE code = %s AND status IN ('staged', 'active')`,
		c.dialect.Qualified(table), c.ph(1))
	if err := c.db.QueryRowContext(ctx, q, code).Scan(&n); err != nil {
		return false, fmt.Errorf("catalog lookup %s: %w", code, err)
	}
	return n > 0, nil
}

// Reserve stages code. A concurrent or earlier live entry yields AlreadyExists.
func (c *Catalog) Reserve(ctx context.Context, code, name, description string) (Reservation, error) {
	r := Reservation{ID: uuid.NewString(), Code: code, Name: name, Description: description}
	now := c.now().UnixMilli()
	q := fmt.Sprintf(`INSERT INTO %s (id, code, name, description, status, created_at, updated_at) VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		c.dialect.Qualified(table), c.ph(1), c.ph(2), c.ph(3), c.ph(4), c.ph(5), c.ph(6), c.ph(7))
	if _, err := c.db.ExecContext(ctx, q, r.ID, code, name, description, string(StatusStaged), now, now); err != nil {
		if c.dialect.IsUniqueViolation(err) {
			return Reservation{}, apperr.Wrap(apperr.KindAlreadyExists, err, "layer code %q already exists", code)
		}
		return Reservation{}, apperr.StorageWrite(apperr.StageCatalog, err, "reserve %s", code)
	}
	return r, nil
}

// Activate promotes a staged reservation and records its artifacts.
func (c *Catalog) Activate(ctx context.Context, id string, a Activation) error {
	q := fmt.Sprintf(`UPDATE %s SET status = %s, schema_name = %s, table_name = %s, view_name = %s, document_collection = %s, feature_count = %s, updated_at = %s WHERE id = %s AND status = %s`,
		c.dialect.Qualified(table), c.ph(1), c.ph(2), c.ph(3), c.ph(4), c.ph(5), c.ph(6), c.ph(7), c.ph(8), c.ph(9))
	return c.transition(ctx, q, "activate", id,
		string(StatusActive), a.Schema, a.Table, a.View, a.Collection, a.FeatureCount, c.now().UnixMilli(), id, string(StatusStaged))
}

// Reject releases a staged reservation so the code can be reused.
func (c *Catalog) Reject(ctx context.Context, id, reason string) error {
	q := fmt.Sprintf(`UPDATE %s SET status = %s, error = %s, updated_at = %s WHERE id = %s AND status = %s`,
		c.dialect.Qualified(table), c.ph(1), c.ph(2), c.ph(3), c.ph(4), c.ph(5))
	return c.transition(ctx, q, "reject", id, string(StatusRejected), reason, c.now().UnixMilli(), id, string(StatusStaged))
}

// MarkDeleted retires every entry for code that is not deleted yet, including rejected ones
// and reservations left staged by an interrupted publish.
func (c *Catalog) MarkDeleted(ctx context.Context, code string) error {
	q := fmt.Sprintf(`UPDATE %s SET status = %s, updated_at = %s WHERE code = %s AND status <> %s`,
		c.dialect.Qualified(table), c.ph(1), c.ph(2), c.ph(3), c.ph(4))
	return c.transition(ctx, q, "delete", code, string(StatusDeleted), c.now().UnixMilli(), code, string(StatusDeleted))
}

func (c *Catalog) transition(ctx context.Context, q, op, key string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return apperr.StorageWrite(apperr.StageCatalog, err, "%s %s", op, key)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.KindNotFound, "%s: no catalog entry %s in the expected state", op, key)
	}
	return nil
}

const selectColumns = `code, name, description, schema_name, table_name, view_name, document_collection, feature_count, created_at`

// Get returns the active layer registered under code.
func (c *Catalog) Get(ctx context.Context, code string) (model.RegisteredLayer, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE code = %s AND status = %s`,
		selectColumns, c.dialect.Qualified(table), c.ph(1), c.ph(2))
	l, err := c.scan(c.db.QueryRowContext(ctx, q, code, string(StatusActive)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.RegisteredLayer{}, apperr.New(apperr.KindNotFound, "layer %q not found", code)
	}
	if err != nil {
		return model.RegisteredLayer{}, fmt.Errorf("catalog get %s: %w", code, err)
	}
	return l, nil
}

// Latest returns the newest entry for code that is not deleted, whatever its status.
func (c *Catalog) Latest(ctx context.Context, code string) (model.RegisteredLayer, Status, error) {
	q := fmt.Sprintf(`SELECT %s, status FROM %s WHERE code = %s AND status <> %s ORDER BY created_at DESC, updated_at DESC LIMIT 1`,
		selectColumns, c.dialect.Qualified(table), c.ph(1), c.ph(2))
	var st string
	l, err := c.scan(c.db.QueryRowContext(ctx, q, code, string(StatusDeleted)), &st)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RegisteredLayer{}, "", apperr.New(apperr.KindNotFound, "layer %q not found", code)
	}
	if err != nil {
		return model.RegisteredLayer{}, "", fmt.Errorf("catalog latest %s: %w", code, err)
	}
	return l, Status(st), nil
}

// List returns active layers, newest first.
func (c *Catalog) List(ctx context.Context) ([]model.RegisteredLayer, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE status = %s ORDER BY created_at DESC, code`,
		selectColumns, c.dialect.Qualified(table), c.ph(1))
	rows, err := c.db.QueryContext(ctx, q, string(StatusActive))
	if err != nil {
		return nil, fmt.Errorf("catalog list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.RegisteredLayer{}
	for rows.Next() {
		l, err := c.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog list: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

// scan reads selectColumns followed by any extra destinations.
func (c *Catalog) scan(s scanner, extra ...any) (model.RegisteredLayer, error) {
	var (
		l       model.RegisteredLayer
		count   int64
		created int64
	)
	dest := append([]any{&l.Code, &l.Name, &l.Description, &l.SchemaName, &l.TableName, &l.ViewName,
		&l.DocumentCollection, &count, &created}, extra...)
	if err := s.Scan(dest...); err != nil {
		return model.RegisteredLayer{}, err
	}
	l.FeatureCount = int(count)
	l.CreatedAt = time.UnixMilli(created).UTC()
	l.WMSURL = c.WMSURL(l.ViewName)
	l.WFSURL = c.WFSURL(l.ViewName)
	l.LegendURL = c.LegendURL(l.ViewName)
	return l, nil
}

// WMSURL is the per-layer GeoServer WMS endpoint.
func (c *Catalog) WMSURL(view string) string {
	return c.opts.GeoServerURL + "/" + c.opts.Workspace + "/" + view + "/wms"
}

func (c *Catalog) WFSURL(view string) string {
	return c.opts.GeoServerURL + "/" + c.opts.Workspace + "/" + view + "/wfs"
}

func (c *Catalog) LegendURL(view string) string {
	return wms.LegendURL(c.opts.GeoServerURL+"/"+c.opts.Workspace+"/"+view, c.opts.Workspace+":"+view)
}

// DownloadURL builds a WFS GetFeature request for the whole layer in the given output format.
func (c *Catalog) DownloadURL(view, outputFormat string) string {
	return c.WFSURL(view) + "?" + ogc.GetFeatureParams(c.opts.Workspace+":"+view, outputFormat).Encode()
}
