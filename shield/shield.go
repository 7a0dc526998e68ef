// CLAUDE:SUMMARY HTTP middleware stack for the censo JSON API: headers, body limit, trace IDs, SQLite-driven rate limits and maintenance.
// Package shield provides the HTTP protection middleware of the censo API.
// It consolidates security headers, JSON body limits, request tracing,
// per-endpoint rate limiting and maintenance mode.
//
// Usage:
//
//	stack, rl, mm := shield.APIStack(db, 4<<10)
//	rl.StartReloader(ctx)
//	mm.StartReloader(ctx)
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// APIStack returns the standard middleware stack for the JSON API.
// Order: Maintenance → SecurityHeaders → MaxJSONBody → TraceID → RateLimiter.
// /healthz and /metrics bypass maintenance and rate limits.
func APIStack(db *sql.DB, maxBody int64) ([]func(http.Handler) http.Handler, *RateLimiter, *MaintenanceMode) {
	rl := NewRateLimiter(db, "/healthz", "/metrics")
	mm := NewMaintenanceMode(db, "/healthz", "/metrics")
	return []func(http.Handler) http.Handler{
		mm.Middleware,
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(maxBody),
		TraceID,
		rl.Middleware,
	}, rl, mm
}

// writeJSON is shared by the middlewares that answer on their own.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("shield: write response", "error", err)
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
