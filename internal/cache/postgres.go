package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore keeps entries in a single table keyed by cache_key.
type PostgresStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewPostgresStore creates a new cache store over table.
func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table), now: time.Now}
}

// EnsureSchema creates the cache table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			cache_key  TEXT PRIMARY KEY,
			payload    BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, s.table))
	if err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	e := Entry{Key: key}
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT payload, updated_at FROM %s WHERE cache_key = $1`, s.table),
		key,
	).Scan(&e.Payload, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (cache_key, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`, s.table),
		key, payload, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE cache_key LIKE $1 ESCAPE '\'`, s.table),
		likePrefix(prefix),
	)
	if err != nil {
		return 0, fmt.Errorf("delete cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

func (s *PostgresStore) Latest(ctx context.Context, prefix string) (*Entry, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT cache_key, payload, updated_at FROM %s
			WHERE cache_key LIKE $1 ESCAPE '\'
			ORDER BY updated_at DESC, cache_key DESC LIMIT 1`, s.table),
		likePrefix(prefix),
	).Scan(&e.Key, &e.Payload, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest cache entry: %w", err)
	}
	return &e, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
