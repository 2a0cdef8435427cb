package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// PersistenceConfig describes the database the persistence client connects to.
type PersistenceConfig struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

func (c PersistenceConfig) GetDebug() bool { return c.Debug }

func (c PersistenceConfig) GetDriver() string { return c.Driver }

func (c PersistenceConfig) GetServer() string { return c.DSN }

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string { return "" }

// NewPersistence opens the database for cfg.Driver and registers the
// embedded migrations on the returned client. SQLite is limited to a single
// open connection so writers serialize instead of failing with SQLITE_BUSY.
func NewPersistence(cfg PersistenceConfig) (*persistence.Client, error) {
	sqldb, dialect, err := openSQL(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	client, err := persistence.New(cfg, sqldb, dialect)
	if err != nil {
		sqldb.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create persistence client")
	}

	dir, err := MigrationsDir()
	if err != nil {
		sqldb.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "load migrations")
	}
	client.RegisterDialectMigrations(
		dir,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets(DriverPostgres, DriverSQLite),
	)

	return client, nil
}

// Migrate validates the embedded migrations against both dialects and
// applies the pending ones.
func Migrate(ctx context.Context, client *persistence.Client) error {
	if err := client.ValidateDialects(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "validate migrations")
	}
	if err := client.Migrate(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "apply migrations")
	}
	return nil
}

func openSQL(driver, dsn string) (*sql.DB, schema.Dialect, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "open sqlite database")
		}
		sqldb.SetMaxOpenConns(1)
		return sqldb, sqlitedialect.New(), nil
	case DriverPostgres, "pgx", "postgresql":
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "open postgres database")
		}
		return sqldb, pgdialect.New(), nil
	default:
		return nil, nil, goerrors.New(fmt.Sprintf("unsupported database driver %q", driver), goerrors.CategoryBadInput)
	}
}
