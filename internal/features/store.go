package features

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/jackc/pgx/v4/stdlib"
	_ "modernc.org/sqlite"

	"shapelearner/internal/config"
	"shapelearner/internal/services"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store accesses one feature table.
type Store struct {
	db      *sql.DB
	goquDb  *goqu.Database
	driver  string
	table   string
	tableID exp.IdentifierExpression
}

// Open connects to the feature table. driver is sqlite or postgres; for sqlite
// the dsn is a file path.
func Open(ctx context.Context, driver, dsn, table string) (*Store, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, services.Wrap(services.ErrConfiguration, "features", "open", fmt.Sprintf("invalid table name %q", table), nil)
	}

	var sqlDriver, dialect string
	switch driver {
	case DriverSQLite:
		sqlDriver, dialect = "sqlite", "sqlite3"
	case DriverPostgres:
		sqlDriver, dialect = "pgx", "postgres"
	default:
		return nil, services.Wrap(services.ErrConfiguration, "features", "open", fmt.Sprintf("unsupported driver %q", driver), nil)
	}

	if driver == DriverSQLite {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "features", "open", driver, err)
	}
	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, services.Wrap(services.ErrStoreUnavailable, "features", "open", "journal mode", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStoreUnavailable, "features", "open", driver, err)
	}

	return &Store{
		db:      db,
		goquDb:  goqu.New(dialect, db),
		driver:  driver,
		table:   table,
		tableID: goqu.T(table),
	}, nil
}

// OpenConfig opens the feature store described by cfg.
func OpenConfig(ctx context.Context, cfg *config.Config) (*Store, error) {
	return Open(ctx, cfg.Store.Driver, cfg.FeatureDSN(), cfg.Store.FeaturesTable)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Table returns the feature table name.
func (s *Store) Table() string { return s.table }

// Ping verifies the backing database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

// EnsureTable creates the feature table with width feature columns when it does
// not exist yet. An existing table must already have that width.
func (s *Store) EnsureTable(ctx context.Context, width int) error {
	if width < 1 {
		return services.Wrap(services.ErrValidation, "features", "ensure table", "feature width must be positive", nil)
	}
	idType, floatType := "INTEGER", "REAL"
	if s.driver == DriverPostgres {
		idType, floatType = "BIGINT", "DOUBLE PRECISION"
	}
	columns := make([]string, 0, width+2)
	columns = append(columns, `"id" `+idType+` PRIMARY KEY`, `"label" TEXT`)
	for i := 0; i < width; i++ {
		columns = append(columns, fmt.Sprintf(`"%s" %s NOT NULL`, FeatureColumn(i), floatType))
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (%s)`, s.table, strings.Join(columns, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return storeError("ensure table", err)
	}

	existing, err := s.columns(ctx)
	if err != nil {
		return err
	}
	if got := len(existing) - 2; got != width {
		return services.Wrap(services.ErrValidation, "features", "ensure table",
			fmt.Sprintf("table %s has %d feature columns, expected %d", s.table, got, width), nil)
	}
	return nil
}

// FeatureColumn names the i-th feature column of tables created by EnsureTable.
func FeatureColumn(i int) string {
	return fmt.Sprintf("feature_%d", i)
}

// columns returns the table's column names in positional order.
func (s *Store) columns(ctx context.Context) ([]string, error) {
	query, args, err := s.goquDb.From(s.tableID).Select(goqu.Star()).Limit(1).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build column query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("columns", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, storeError("columns", err)
	}
	if len(cols) < 3 {
		return nil, services.Wrap(services.ErrValidation, "features", "columns",
			fmt.Sprintf("table %s needs id, label, and at least one feature column", s.table), nil)
	}
	return cols, nil
}

func storeError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "features", operation, "", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return services.Wrap(services.ErrStoreUnavailable, "features", operation, "", err)
}
