package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/brreg-matcher/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: empty dsn")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Timestamps are unix seconds so expiry comparisons are numeric.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS enrichment_cache (
	org_number TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	fetched_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires_at ON enrichment_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetEnrichment(ctx context.Context, orgNumber string) (*model.Enrichment, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM enrichment_cache WHERE org_number = ? AND expires_at > ?`,
		orgNumber, s.now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get enrichment")
	}

	var e model.Enrichment
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal enrichment")
	}
	return &e, nil
}

func (s *SQLiteStore) PutEnrichment(ctx context.Context, e model.Enrichment, ttl time.Duration) error {
	if e.OrgNumber == "" {
		return eris.New("sqlite: put enrichment without org number")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enrichment")
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache (org_number, data, fetched_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (org_number) DO UPDATE SET data = excluded.data, fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		e.OrgNumber, string(data), now.Unix(), now.Add(ttl).Unix(),
	)
	return eris.Wrap(err, "sqlite: put enrichment")
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM enrichment_cache WHERE expires_at <= ?`, s.now().Unix(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}
