package relational

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mohammed-shakir/geoportal/internal/core/model"
)

// Dialect isolates the SQL differences between the supported engines.
type Dialect interface {
	Name() string
	DriverName() string
	Schema() string
	// MaxIdentifier is the longest identifier in bytes, 0 for unlimited.
	MaxIdentifier() int
	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder(n int) string
	Qualified(name string) string
	ColumnType(t model.ColumnType) string
	GeometryType() string
	// GeometryValue wraps a placeholder carrying WKT.
	GeometryValue(placeholder string) string
	// GeometrySelect reads the geometry column back as WKT.
	GeometrySelect(col string) string
	// RepairStatement rewrites invalid polygons with a zero width buffer, "" if unsupported.
	RepairStatement(table string) string
	DropTable(table string) string
	IsUniqueViolation(err error) bool
}

func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// DialectFor maps a configured driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgis", "postgres", "pgx":
		return PostGIS{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

type PostGIS struct{}

func (PostGIS) Name() string { return "postgis" }
func (PostGIS) DriverName() string { return "pgx" }
func (PostGIS) Schema() string { return "public" }
func (PostGIS) MaxIdentifier() int { return 63 }
func (PostGIS) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (d PostGIS) Qualified(name string) string {
	return QuoteIdent(d.Schema()) + "." + QuoteIdent(name)
}

func (PostGIS) ColumnType(t model.ColumnType) string {
	switch t {
	case model.ColumnInteger:
		return "bigint"
	case model.ColumnReal:
		return "double precision"
	case model.ColumnBoolean:
		return "boolean"
	case model.ColumnTemporal:
		return "timestamp"
	default:
		return "text"
	}
}

func (PostGIS) GeometryType() string { return fmt.Sprintf("geometry(Geometry,%d)", model.SRID) }

func (PostGIS) GeometryValue(ph string) string {
	return fmt.Sprintf("ST_GeomFromText(%s, %d)", ph, model.SRID)
}

func (PostGIS) GeometrySelect(col string) string { return "ST_AsText(" + QuoteIdent(col) + ")" }

func (d PostGIS) RepairStatement(table string) string {
	g := QuoteIdent(model.GeometryColumn)
	return fmt.Sprintf(
		`UPDATE %s SET %s = ST_Buffer(%s, 0) WHERE NOT ST_IsValid(%s) AND GeometryType(%s) IN ('POLYGON','MULTIPOLYGON')`,
		d.Qualified(table), g, g, g, g)
}

func (d PostGIS) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + d.Qualified(table) + " CASCADE"
}

func (PostGIS) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// SQLite stores geometry as WKT text; used for local runs and tests.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }
func (SQLite) DriverName() string { return "sqlite" }
func (SQLite) Schema() string { return "main" }
func (SQLite) MaxIdentifier() int { return 0 }
func (SQLite) Placeholder(int) string { return "?" }

// views may not reference schema qualified tables, so names stay unqualified
func (SQLite) Qualified(name string) string { return QuoteIdent(name) }

func (SQLite) ColumnType(t model.ColumnType) string {
	switch t {
	case model.ColumnInteger:
		return "INTEGER"
	case model.ColumnReal:
		return "REAL"
	case model.ColumnBoolean:
		return "BOOLEAN"
	case model.ColumnTemporal:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (SQLite) GeometryType() string { return "TEXT" }
func (SQLite) GeometryValue(ph string) string { return ph }
func (SQLite) GeometrySelect(col string) string { return QuoteIdent(col) }
func (SQLite) RepairStatement(string) string { return "" }
func (d SQLite) DropTable(table string) string { return "DROP TABLE IF EXISTS " + d.Qualified(table) }
func (SQLite) IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
