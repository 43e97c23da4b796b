package db

import (
	"embed"
	"fmt"
	"time"

	_ "github.com/DIGIT-HABs/back/db/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql migrations/*.go
var embedMigrations embed.FS

// Supported database dialects. SQLite backs development and single-host
// deployments; PostgreSQL backs production. Both run the same migration
// chain, so the schemas cannot drift apart.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Repository provides a centralized structure for database operations, embedding the database connection.
// It acts as a receiver for methods that implement the various repository interfaces defined in the domain package.
type Repository struct {
	dbConn *sqlx.DB // dbConn is the active database connection pool.
}

// NewCRMRepo initializes a new Repository with the given sqlx.DB database connection.
func NewCRMRepo(db *sqlx.DB) *Repository {
	return &Repository{
		dbConn: db,
	}
}

// Close terminates the database connection.
// It is critical to call this to free up database resources.
func (repo *Repository) Close() error {
	err := repo.dbConn.Close()
	if err != nil {
		return fmt.Errorf("closing repo : %w", err)
	}
	return nil
}

// New establishes a database connection for the given dialect and applies all
// pending migrations.
//
// For DialectSQLite, `dsn` is the database file path; the connection is
// configured for data integrity with WAL mode and foreign keys enabled.
// For DialectPostgres, `dsn` is a PostgreSQL connection string and a small
// connection pool is configured.
//
// It returns a ready-to-use sqlx.DB connection pool or an error if the
// connection or migrations fail.
func New(dialect string, dsn string) (*sqlx.DB, error) {
	db, err := connect(dialect, dsn)
	if err != nil {
		return nil, err
	}

	if err := prepareMigrations(dialect); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migration : %w", err)
	}
	return db, nil
}

// Reset rolls every migration back and reapplies the whole chain, dropping
// all data. It returns a connection to the fresh schema.
func Reset(dialect string, dsn string) (*sqlx.DB, error) {
	db, err := connect(dialect, dsn)
	if err != nil {
		return nil, err
	}

	if err := prepareMigrations(dialect); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.DownTo(db.DB, "migrations", 0); err != nil {
		db.Close()
		return nil, fmt.Errorf("rolling back migrations : %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migration : %w", err)
	}
	return db, nil
}

func connect(dialect string, dsn string) (*sqlx.DB, error) {
	var db *sqlx.DB
	var err error

	switch dialect {
	case DialectSQLite:
		db, err = sqlx.Connect("sqlite", fmt.Sprintf("%s?_journal=WAL&_timeout=5000&_fk=true", dsn))
		if err != nil {
			return nil, fmt.Errorf("connecting to db : %w", err)
		}

		db.SetMaxOpenConns(1)

		_, err = db.Exec("PRAGMA foreign_keys = ON;")
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	case DialectPostgres:
		db, err = sqlx.Connect("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("connecting to db : %w", err)
		}

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}
	return db, nil
}

func prepareMigrations(dialect string) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	gooseDialect := goose.DialectSQLite3
	if dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}

	if err := goose.SetDialect(string(gooseDialect)); err != nil {
		return fmt.Errorf("setting dialect for migrations : %w", err)
	}
	return nil
}
