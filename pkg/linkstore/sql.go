package linkstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"   // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
)

type dialect struct {
	driver string
	schema string
	insert string
	get    string
	pragma []string
}

var sqliteDialect = dialect{
	driver: "sqlite",
	schema: `CREATE TABLE IF NOT EXISTS links (
		id         TEXT PRIMARY KEY,
		message_id INTEGER NOT NULL
	)`,
	insert: `INSERT INTO links (id, message_id) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
	get:    `SELECT message_id FROM links WHERE id = ?`,
	pragma: []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	},
}

var postgresDialect = dialect{
	driver: "postgres",
	schema: `CREATE TABLE IF NOT EXISTS links (
		id         TEXT PRIMARY KEY,
		message_id BIGINT NOT NULL
	)`,
	insert: `INSERT INTO links (id, message_id) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
	get:    `SELECT message_id FROM links WHERE id = $1`,
}

// SQLStore keeps links in a single SQL table.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

var _ Store = &SQLStore{}

func NewSQLiteStore(ctx context.Context, dsn string) (*SQLStore, error) {
	return newSQLStore(ctx, sqliteDialect, dsn)
}

func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	return newSQLStore(ctx, postgresDialect, dsn)
}

func newSQLStore(ctx context.Context, d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", d.driver, err)
	}
	s := &SQLStore{db: db, dialect: d}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing %s database: %w", d.driver, err)
	}
	return s, nil
}

func (s *SQLStore) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	for _, p := range s.dialect.pragma {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("creating links table: %w", err)
	}
	return nil
}

func (s *SQLStore) Save(ctx context.Context, id string, h remote.Handle) error {
	res, err := s.db.ExecContext(ctx, s.dialect.insert, id, int64(h))
	if err != nil {
		return fmt.Errorf("saving link %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving link %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (remote.Handle, error) {
	var h int64
	err := s.db.QueryRowContext(ctx, s.dialect.get, id).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("reading link %s: %w", id, err)
	}
	return remote.Handle(h), nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
