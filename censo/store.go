// CLAUDE:SUMMARY SQLite verification log — hashed/masked identifiers, authoritative-result lookup for the cache, kind counts, retention purge.
package censo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/censo/dbopen"
	"github.com/hazyhaar/censo/idgen"
	"github.com/hazyhaar/censo/verifier"
)

// Schema is the verification log. Identifiers are stored hashed for
// lookups and masked for display, never in clear.
const Schema = `
CREATE TABLE IF NOT EXISTS verifications (
    id              TEXT PRIMARY KEY,
    identifier_hash TEXT NOT NULL,
    identifier_mask TEXT NOT NULL,
    kind            TEXT NOT NULL,
    found           INTEGER NOT NULL,
    result          TEXT NOT NULL,
    duration_ms     INTEGER NOT NULL DEFAULT 0,
    transport       TEXT NOT NULL DEFAULT '',
    trace_id        TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verifications_lookup
    ON verifications (identifier_hash, created_at);
CREATE INDEX IF NOT EXISTS idx_verifications_created
    ON verifications (created_at);
`

// Record is one stored verification.
type Record struct {
	ID         string          `json:"id"`
	Identifier string          `json:"cedula"` // masked
	Kind       verifier.Kind   `json:"kind"`
	Result     verifier.Result `json:"resultado"`
	DurationMS int64           `json:"duracion_ms"`
	Transport  string          `json:"transport,omitempty"`
	TraceID    string          `json:"trace_id,omitempty"`
	CreatedAt  time.Time       `json:"creado"`
}

// recordIDPrefix marks verification record IDs ("ver_<uuidv7>").
const recordIDPrefix = "ver_"

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Store persists verification records in SQLite.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// NewStore wraps db. Call Init before use.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:    db,
		newID: idgen.Prefixed(recordIDPrefix, idgen.Default),
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the tables if needed.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("censo: init store: %w", err)
	}
	return nil
}

// HashIdentifier is the lookup key stored for an identifier.
func HashIdentifier(identifier string) string {
	sum := sha256.Sum256([]byte("censo:" + identifier))
	return hex.EncodeToString(sum[:])
}

// Insert stores a verification of identifier. rec.ID and rec.CreatedAt are
// filled when empty; rec.Identifier is set to the masked identifier.
func (s *Store) Insert(ctx context.Context, identifier string, rec *Record) error {
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.Identifier = verifier.Mask(identifier)
	rec.Kind = rec.Result.Kind

	body, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("censo: marshal result: %w", err)
	}
	_, err = dbopen.Exec(ctx, s.db, `INSERT INTO verifications
		(id, identifier_hash, identifier_mask, kind, found, result,
		 duration_ms, transport, trace_id, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, HashIdentifier(identifier), rec.Identifier, string(rec.Kind), rec.Result.Found, string(body),
		rec.DurationMS, rec.Transport, rec.TraceID, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("censo: insert verification: %w", err)
	}
	return nil
}

const selectRecord = `SELECT id, identifier_mask, kind, result, duration_ms,
	transport, trace_id, created_at FROM verifications`

// Get returns one record or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+` WHERE id = ?`, id)
	return scanRecord(row)
}

// LatestAuthoritative returns the newest found / not_registered record of
// identifier created at or after since, or ErrNotFound.
func (s *Store) LatestAuthoritative(ctx context.Context, identifier string, since time.Time) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+`
		WHERE identifier_hash = ? AND created_at >= ? AND kind IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		HashIdentifier(identifier), since.UnixMilli(),
		string(verifier.KindFound), string(verifier.KindNotRegistered))
	return scanRecord(row)
}

// KindCounts returns the number of records per kind since the given time.
func (s *Store) KindCounts(ctx context.Context, since time.Time) (map[verifier.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM verifications WHERE created_at >= ? GROUP BY kind`,
		since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("censo: count kinds: %w", err)
	}
	defer rows.Close()

	out := make(map[verifier.Kind]int)
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, fmt.Errorf("censo: count kinds: %w", err)
		}
		out[verifier.Kind(k)] = n
	}
	return out, rows.Err()
}

// Purge deletes records created before the given time.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM verifications WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("censo: purge: %w", err)
	}
	return res.RowsAffected()
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	var kind, body string
	var created int64
	err := row.Scan(&rec.ID, &rec.Identifier, &kind, &body, &rec.DurationMS,
		&rec.Transport, &rec.TraceID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("censo: scan verification: %w", err)
	}
	if err := json.Unmarshal([]byte(body), &rec.Result); err != nil {
		return nil, fmt.Errorf("censo: decode result %s: %w", rec.ID, err)
	}
	rec.Kind = verifier.Kind(kind)
	rec.CreatedAt = time.UnixMilli(created)
	return &rec, nil
}
