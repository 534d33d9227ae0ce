// Package sqlstore stores feedback rows in Postgres (pgx) or SQLite (go-sqlite3)
// and owns the goose migrations for both.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

type dialect struct {
	driver string
	goose  goose.Dialect
	dir    string
	insert string
}

var (
	postgresDialect = dialect{
		driver: "pgx",
		goose:  goose.DialectPostgres,
		dir:    "migrations/postgres",
		insert: `INSERT INTO feedback (task_completed, human_score, feedback_text, agent) VALUES ($1, $2, $3, $4)`,
	}
	sqliteDialect = dialect{
		driver: "sqlite3",
		goose:  goose.DialectSQLite3,
		dir:    "migrations/sqlite",
		insert: `INSERT INTO feedback (task_completed, human_score, feedback_text, agent) VALUES (?, ?, ?, ?)`,
	}
)

// Store implements feedback.Store on database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// OpenPostgres connects through the pgx stdlib driver and pings once.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required for the postgres feedback store")
	}
	return open(ctx, postgresDialect, dsn)
}

// OpenSQLite opens (creating if needed) a local database file.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	s, err := open(ctx, sqliteDialect, "file:"+path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY under concurrent requests
	s.db.SetMaxOpenConns(1)
	return s, nil
}

func open(ctx context.Context, d dialect, dsn string) (*Store, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", d.driver)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s database", d.driver)
	}
	return &Store{db: db, dialect: d}, nil
}

// Migrate applies every pending migration for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, s.dialect.dir)
	if err != nil {
		return errors.Wrap(err, "load migrations")
	}

	provider, err := goose.NewProvider(s.dialect.goose, s.db, fsys)
	if err != nil {
		return errors.Wrap(err, "create migration provider")
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "apply migrations")
	}
	for _, res := range results {
		log.Info().
			Str("component", "sqlstore").
			Int64("version", res.Source.Version).
			Dur("took", res.Duration).
			Msg("migration applied")
	}
	return nil
}

func (s *Store) Save(ctx context.Context, record feedback.Record) error {
	_, err := s.db.ExecContext(ctx, s.dialect.insert,
		record.TaskCompleted,
		record.HumanScore,
		record.FeedbackText,
		record.Agent,
	)
	if err != nil {
		return errors.Wrap(err, "insert feedback")
	}
	return nil
}

// DB exposes the underlying handle for maintenance commands.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}
