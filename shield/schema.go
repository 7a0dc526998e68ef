package shield

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema defines the SQLite tables used by shield middlewares:
//   - rate_limits: per-endpoint rate limiting rules (used by RateLimiter)
//   - maintenance: global maintenance mode flag (used by MaintenanceMode)
//
// All statements are idempotent. The validation endpoint is seeded with a
// conservative rule since every call drives a browser.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_limits (
    endpoint       TEXT PRIMARY KEY,
    max_requests   INTEGER NOT NULL DEFAULT 60,
    window_seconds INTEGER NOT NULL DEFAULT 60,
    enabled        INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS maintenance (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    active  INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT 'Servicio en mantenimiento. Intente más tarde.'
);

INSERT OR IGNORE INTO maintenance (id, active, message)
VALUES (1, 0, 'Servicio en mantenimiento. Intente más tarde.');

INSERT OR IGNORE INTO rate_limits (endpoint, max_requests, window_seconds, enabled)
VALUES ('POST /api/validar-cedula', 10, 60, 1);
`

// Init creates the shield tables if they don't exist.
func Init(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("shield: init schema: %w", err)
	}
	return nil
}

// SetRule inserts or replaces the rate limit of one endpoint
// ("METHOD /path"). Running limiters pick it up on their next reload.
func SetRule(ctx context.Context, db *sql.DB, endpoint string, cfg RateLimitConfig) error {
	enabled := 0
	if cfg.Enabled {
		enabled = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO rate_limits (endpoint, max_requests, window_seconds, enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			max_requests = excluded.max_requests,
			window_seconds = excluded.window_seconds,
			enabled = excluded.enabled`,
		endpoint, cfg.MaxRequests, cfg.WindowSeconds, enabled)
	if err != nil {
		return fmt.Errorf("shield: set rule %s: %w", endpoint, err)
	}
	return nil
}

// SetMaintenance turns maintenance mode on or off.
func SetMaintenance(ctx context.Context, db *sql.DB, active bool, message string) error {
	on := 0
	if active {
		on = 1
	}
	_, err := db.ExecContext(ctx,
		`UPDATE maintenance SET active = ?, message = COALESCE(NULLIF(?, ''), message) WHERE id = 1`,
		on, message)
	if err != nil {
		return fmt.Errorf("shield: set maintenance: %w", err)
	}
	return nil
}
