package selections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store against PostgreSQL.
type PostgresStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewPostgresStore creates a Postgres-backed selection store over table.
func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = "event_selections"
	}
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table), now: time.Now}
}

// EnsureSchema creates the selections table if missing. New apps default to
// active.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			app_id     TEXT PRIMARY KEY,
			event1     TEXT NOT NULL DEFAULT '',
			event2     TEXT NOT NULL DEFAULT '',
			is_active  BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.table))
	if err != nil {
		return fmt.Errorf("create selections table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, appID string) (*Selection, error) {
	sel := &Selection{}
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT app_id, event1, event2, is_active, updated_at
		FROM %s
		WHERE app_id = $1`, s.table), appID,
	).Scan(&sel.AppID, &sel.Event1, &sel.Event2, &sel.IsActive, &sel.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get selection: %w", err)
	}
	return sel, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Selection, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT app_id, event1, event2, is_active, updated_at
		FROM %s
		ORDER BY app_id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("list selections: %w", err)
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var sel Selection
		if err := rows.Scan(&sel.AppID, &sel.Event1, &sel.Event2, &sel.IsActive, &sel.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan selection: %w", err)
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, sel Selection) error {
	if sel.AppID == "" {
		return errors.New("selection needs an app id")
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (app_id, event1, event2, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (app_id) DO UPDATE
		SET event1 = EXCLUDED.event1, event2 = EXCLUDED.event2,
		    is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`, s.table),
		sel.AppID, strings.TrimSpace(sel.Event1), strings.TrimSpace(sel.Event2), sel.IsActive, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetActive(ctx context.Context, appID string, active bool) error {
	if appID == "" {
		return errors.New("selection needs an app id")
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (app_id, is_active, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (app_id) DO UPDATE
		SET is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`, s.table),
		appID, active, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveAppIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT app_id, is_active FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("list active flags: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		var active bool
		if err := rows.Scan(&id, &active); err != nil {
			return nil, fmt.Errorf("scan active flag: %w", err)
		}
		out[id] = active
	}
	return out, rows.Err()
}
