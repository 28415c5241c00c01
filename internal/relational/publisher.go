package relational

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/model"
	"github.com/mohammed-shakir/geoportal/internal/geo"
	"github.com/mohammed-shakir/geoportal/internal/keys"
)

const (
	maxRowsPerInsert = 1000
	// keeps a single statement under the pgx bind parameter limit
	maxParamsPerInsert = 30000
)

// Result describes the relational artifacts of a published layer.
type Result struct {
	Schema  string
	Table   string
	View    string
	Rows    int
	Columns []model.Column
	// Aliases maps raw column names to their view aliases.
	Aliases map[string]string
}

type Publisher struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

func New(db *sql.DB, d Dialect, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{db: db, dialect: d, logger: logger}
}

func (p *Publisher) Dialect() Dialect { return p.dialect }

// Publish replaces the layer's table and view with the contents of fc in one transaction.
func (p *Publisher) Publish(ctx context.Context, code string, fc *model.FeatureCollection) (Result, error) {
	if err := keys.ValidCode(code); err != nil {
		return Result{}, apperr.Wrap(apperr.KindInvalidRequest, err, "publish")
	}
	d := p.dialect
	res := Result{
		Schema:  d.Schema(),
		Table:   keys.Table(code),
		View:    keys.View(code),
		Columns: CoerceColumns(fc),
		Aliases: make(map[string]string, len(fc.Columns)),
	}
	for _, c := range res.Columns {
		res.Aliases[c.Name] = keys.Prefixed(c.Name, d.MaxIdentifier())
	}

	start := time.Now()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, apperr.StorageWrite(apperr.StageRelational, err, "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmts := []string{
		"DROP VIEW IF EXISTS " + d.Qualified(res.View),
		d.DropTable(res.Table),
		createTable(d, res.Table, res.Columns),
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return Result{}, apperr.StorageWrite(apperr.StageRelational, err, "prepare table %s", res.Table)
		}
	}

	n, err := insertRows(ctx, tx, d, res.Table, res.Columns, fc.Features)
	if err != nil {
		return Result{}, apperr.StorageWrite(apperr.StageRelational, err, "insert into %s", res.Table)
	}
	res.Rows = n

	if s := d.RepairStatement(res.Table); s != "" {
		r, err := tx.ExecContext(ctx, s)
		if err != nil {
			return Result{}, apperr.StorageWrite(apperr.StageRelational, err, "repair geometries in %s", res.Table)
		}
		if fixed, _ := r.RowsAffected(); fixed > 0 {
			p.logger.WarnContext(ctx, "repaired invalid geometries", "table", res.Table, "count", fixed)
		}
	}

	if _, err := tx.ExecContext(ctx, createView(d, res.View, res.Table, res.Columns, res.Aliases)); err != nil {
		return Result{}, apperr.StorageWrite(apperr.StageRelational, err, "create view %s", res.View)
	}
	if err := tx.Commit(); err != nil {
		return Result{}, apperr.StorageWrite(apperr.StageRelational, err, "commit %s", res.Table)
	}
	committed = true

	p.logger.InfoContext(ctx, "relational layer published",
		"dialect", d.Name(), "table", d.Qualified(res.Table), "view", res.View,
		"rows", res.Rows, "dur", time.Since(start))
	return res, nil
}

// Drop removes the layer's view and table; missing objects are not an error.
func (p *Publisher) Drop(ctx context.Context, code string) error {
	d := p.dialect
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StorageWrite(apperr.StageRelational, err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()
	for _, s := range []string{"DROP VIEW IF EXISTS " + d.Qualified(keys.View(code)), d.DropTable(keys.Table(code))} {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return apperr.StorageWrite(apperr.StageRelational, err, "drop layer %s", code)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.StorageWrite(apperr.StageRelational, err, "drop layer %s", code)
	}
	return nil
}

// Count returns the number of rows behind the layer's view.
func (p *Publisher) Count(ctx context.Context, code string) (int, error) {
	var n int
	q := "SELECT COUNT(*) FROM " + p.dialect.Qualified(keys.View(code))
	if err := p.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", code, err)
	}
	return n, nil
}

func createTable(d Dialect, table string, cols []model.Column) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(d.Qualified(table))
	b.WriteString(" (")
	for _, c := range cols {
		b.WriteString(QuoteIdent(c.Name))
		b.WriteByte(' ')
		b.WriteString(d.ColumnType(c.Type))
		b.WriteString(", ")
	}
	b.WriteString(QuoteIdent(model.GeometryColumn))
	b.WriteByte(' ')
	b.WriteString(d.GeometryType())
	b.WriteString(")")
	return b.String()
}

func createView(d Dialect, view, table string, cols []model.Column, aliases map[string]string) string {
	sel := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		sel = append(sel, QuoteIdent(c.Name)+" AS "+QuoteIdent(aliases[c.Name]))
	}
	sel = append(sel, QuoteIdent(model.GeometryColumn))
	return fmt.Sprintf("CREATE VIEW %s AS SELECT %s FROM %s", d.Qualified(view), strings.Join(sel, ", "), d.Qualified(table))
}

// ChunkSize bounds rows per INSERT so a statement never exceeds maxParamsPerInsert.
func ChunkSize(ncols int) int {
	n := maxParamsPerInsert / (ncols + 1)
	if n > maxRowsPerInsert {
		n = maxRowsPerInsert
	}
	if n < 1 {
		n = 1
	}
	return n
}

func insertRows(ctx context.Context, tx *sql.Tx, d Dialect, table string, cols []model.Column, feats []model.Feature) (int, error) {
	names := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		names = append(names, QuoteIdent(c.Name))
	}
	names = append(names, QuoteIdent(model.GeometryColumn))
	head := "INSERT INTO " + d.Qualified(table) + " (" + strings.Join(names, ", ") + ") VALUES "

	chunk := ChunkSize(len(cols))
	written := 0
	for lo := 0; lo < len(feats); lo += chunk {
		hi := min(lo+chunk, len(feats))
		var b strings.Builder
		b.WriteString(head)
		args := make([]any, 0, (hi-lo)*(len(cols)+1))
		for i, f := range feats[lo:hi] {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			for _, c := range cols {
				args = append(args, CoerceValue(c.Type, f.Properties[c.Name]))
				b.WriteString(d.Placeholder(len(args)))
				b.WriteString(", ")
			}
			args = append(args, geo.WKT(f.Geometry))
			b.WriteString(d.GeometryValue(d.Placeholder(len(args))))
			b.WriteByte(')')
		}
		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			return written, err
		}
		written += hi - lo
	}
	return written, nil
}
