// Package store persists the fetch proxy's cache entries and the set of
// URLs tracked for background refresh in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"
	"time"

	"github.com/hazyhaar/cardcrafter/dbopen"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the goose migration set for this store.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Entry is one cached payload. Timestamps are Unix milliseconds.
type Entry struct {
	Key       string
	URL       string
	Payload   []byte
	FetchedAt int64
	ExpiresAt int64
}

// Store wraps the database handle.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// NewStore creates a Store. The schema must already be migrated.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

// SetClock overrides the time source (tests).
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Get returns the live entry for key, or nil when absent or expired.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	e := &Entry{}
	var payload string
	err := s.DB.QueryRowContext(ctx, `
		SELECT key, url, payload, fetched_at, expires_at
		FROM cache_entries WHERE key = ? AND expires_at > ?`,
		key, s.now().UnixMilli()).Scan(&e.Key, &e.URL, &payload, &e.FetchedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Payload = []byte(payload)
	return e, nil
}

// Put upserts the payload for key with a fresh TTL. Concurrent writers for
// the same key resolve last-write-wins.
func (s *Store) Put(ctx context.Context, key, url string, payload []byte, ttl time.Duration) error {
	now := s.now()
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO cache_entries (key, url, payload, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			url = excluded.url,
			payload = excluded.payload,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at`,
		key, url, string(payload), now.UnixMilli(), now.Add(ttl).UnixMilli())
	return err
}

// DeleteExpired removes entries past their expires_at timestamp.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TrackURL appends url to the tracked set unless already present, then
// drops the oldest entries beyond max.
func (s *Store) TrackURL(ctx context.Context, url string, max int) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tracked_urls (url, added_at) VALUES (?, ?)`,
			url, s.now().UnixMilli()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM tracked_urls WHERE id NOT IN (
				SELECT id FROM tracked_urls ORDER BY id DESC LIMIT ?
			)`, max)
		return err
	})
}

// TrackedURLs returns the tracked set, oldest first.
func (s *Store) TrackedURLs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT url FROM tracked_urls ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// Stats counts live cache entries and tracked URLs.
type Stats struct {
	Entries int `json:"entries"`
	Tracked int `json:"tracked"`
}

// Stats returns entry and tracked-URL counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM cache_entries WHERE expires_at > ?),
			(SELECT COUNT(*) FROM tracked_urls)`, s.now().UnixMilli()).Scan(&st.Entries, &st.Tracked)
	if err != nil {
		return nil, err
	}
	return st, nil
}
