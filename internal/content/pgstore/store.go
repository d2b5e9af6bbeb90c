// Package pgstore is a PostgreSQL backed content store.
//
// Entries live in one table keyed by (content_type, entry_id, locale)
// with a unique constraint enforcing the one-entry-per-identity rule.
// The schema is managed by embedded goose migrations.
package pgstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Options configures the pool.
type Options struct {
	DatabaseURL string
	MaxConns    int32
}

// Store implements content.Store and content.Writer over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects and verifies the database is reachable.
func Open(ctx context.Context, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(opts.DatabaseURL)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse database url")
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(err, "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, xerrors.Wrap(err, "ping database")
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping reports database reachability for readiness checks.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return xerrors.Wrap(err, "set goose dialect")
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return xerrors.Wrap(err, "apply migrations")
	}
	return nil
}

const selectColumns = `content_type, entry_id, locale, fields, published_at, updated_at`

func scanEntry(row pgx.Row) (content.Entry, error) {
	var (
		e      content.Entry
		fields []byte
	)
	if err := row.Scan(&e.ContentType, &e.EntryID, &e.Locale, &fields, &e.PublishedAt, &e.UpdatedAt); err != nil {
		return content.Entry{}, err
	}
	if err := json.Unmarshal(fields, &e.Fields); err != nil {
		return content.Entry{}, xerrors.Wrapf(err, "decode fields of %s", e.Key())
	}
	return e, nil
}

func (s *Store) Get(ctx context.Context, contentType, entryID, locale string) (content.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM content_entries
		 WHERE content_type = $1 AND entry_id = $2 AND locale = $3`,
		contentType, entryID, locale)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return content.Entry{}, &content.NotFoundError{ContentType: contentType, EntryID: entryID, Locale: locale}
	}
	if err != nil {
		return content.Entry{}, xerrors.Wrap(err, "select content entry")
	}
	return e, nil
}

func (s *Store) List(ctx context.Context, contentType, locale string) ([]content.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM content_entries
		 WHERE content_type = $1 AND locale = $2 ORDER BY entry_id`,
		contentType, locale)
	if err != nil {
		return nil, xerrors.Wrap(err, "list content entries")
	}
	defer rows.Close()

	var out []content.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, xerrors.Wrap(err, "scan content entry")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, "list content entries")
	}
	return out, nil
}

func (s *Store) Locales(ctx context.Context, contentType, entryID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT locale FROM content_entries WHERE content_type = $1 AND entry_id = $2 ORDER BY locale`,
		contentType, entryID)
	if err != nil {
		return nil, xerrors.Wrap(err, "list locales")
	}
	locales, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, xerrors.Wrap(err, "list locales")
	}
	return locales, nil
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Put inserts a new entry. An existing identity yields content.ErrDuplicateEntry.
func (s *Store) Put(ctx context.Context, e content.Entry) error {
	return insert(ctx, s.pool, e)
}

// Import inserts entries in one transaction. Nothing is written if any
// entry is invalid or duplicated.
func (s *Store) Import(ctx context.Context, entries []content.Entry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, e := range entries {
			if err := insert(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM content_entries`).Scan(&n); err != nil {
		return 0, xerrors.Wrap(err, "count entries")
	}
	return n, nil
}

func insert(ctx context.Context, db execer, e content.Entry) error {
	if err := e.Validate(); err != nil {
		return xerrors.Wrapf(err, "invalid entry %s", e.Key())
	}
	fields := e.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return xerrors.Wrapf(err, "encode fields of %s", e.Key())
	}
	updated := e.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err = db.Exec(ctx,
		`INSERT INTO content_entries (id, content_type, entry_id, locale, fields, published_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), e.ContentType, e.EntryID, e.Locale, raw, e.PublishedAt, updated)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return xerrors.Mark(xerrors.Wrapf(err, "insert %s", e.Key()), content.ErrDuplicateEntry)
	}
	return xerrors.Wrapf(err, "insert %s", e.Key())
}
