// CLAUDE:SUMMARY Verification service: identifier validation, cache of authoritative records, paced and collapsed browser lookups over a lease pool.
// Package censo is the caller side of the verifier: it validates
// identifiers, paces lookups against the external site, collapses
// concurrent requests for the same identifier, keeps an audit log of every
// outcome and serves it over HTTP and MCP.
package censo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/censo/idgen"
	"github.com/hazyhaar/censo/kit"
	"github.com/hazyhaar/censo/verifier"
)

// Option configures a Service.
type Option func(*Service)

// WithStore records every outcome and enables the cache.
func WithStore(st *Store) Option {
	return func(s *Service) { s.store = st }
}

// WithLimiter paces lookups against the external site.
func WithLimiter(l *rate.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithCacheTTL answers from a stored found / not_registered record younger
// than ttl. Zero disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithAcquireTimeout bounds the wait for pacing and a free session.
// Default: 45s.
func WithAcquireTimeout(d time.Duration) Option {
	return func(s *Service) { s.acquireTimeout = d }
}

// WithLookupTimeout bounds one browser lookup once a session is leased.
// Default: 2m.
func WithLookupTimeout(d time.Duration) Option {
	return func(s *Service) { s.lookupTimeout = d }
}

// WithSiteGuard rejects lookups for cooldown after threshold consecutive
// blocked or timed-out answers.
func WithSiteGuard(threshold int, cooldown time.Duration) Option {
	return func(s *Service) { s.guard = newSiteGuard(threshold, cooldown) }
}

// WithMetrics sets the metrics. Defaults to a private registry.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service runs verifications.
type Service struct {
	pool           *verifier.Pool
	store          *Store
	limiter        *rate.Limiter
	guard          *siteGuard
	group          singleflight.Group
	metrics        *Metrics
	logger         *slog.Logger
	cacheTTL       time.Duration
	acquireTimeout time.Duration
	lookupTimeout  time.Duration
	now            func() time.Time
}

// NewService creates a Service drawing sessions from pool.
func NewService(pool *verifier.Pool, opts ...Option) *Service {
	s := &Service{
		pool:           pool,
		logger:         slog.Default(),
		acquireTimeout: 45 * time.Second,
		lookupTimeout:  2 * time.Minute,
		now:            time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return s
}

// Verify checks identifier against the census. Outcomes of the external
// site, including failures, are in the Result. Errors are
// ErrInvalidIdentifier, ErrUnavailable, *verifier.SessionInitError or the
// caller's context error.
func (s *Service) Verify(ctx context.Context, identifier string) (verifier.Result, error) {
	rec, err := s.verify(ctx, identifier)
	if err != nil {
		return verifier.Failure(verifier.KindError, verifier.MsgError), err
	}
	return rec.Result, nil
}

// verify returns the stored record of the outcome. Its ID is empty when
// no store is configured.
func (s *Service) verify(ctx context.Context, identifier string) (*Record, error) {
	if err := ValidateIdentifier(identifier); err != nil {
		return nil, err
	}
	log := s.logger.With(
		"identifier", verifier.Mask(identifier),
		"transport", kit.GetTransport(ctx),
		"trace_id", kit.GetTraceID(ctx),
	)

	if rec, ok := s.cached(ctx, identifier, log); ok {
		return rec, nil
	}

	// Followers wait on their own context; the lookup itself runs to
	// completion so its outcome is recorded for them.
	ch := s.group.DoChan(identifier, func() (any, error) {
		return s.lookup(context.WithoutCancel(ctx), identifier, log)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			log.Debug("censo: shared in-flight verification")
		}
		return r.Val.(*Record), nil
	}
}

func (s *Service) cached(ctx context.Context, identifier string, log *slog.Logger) (*Record, bool) {
	if s.store == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	rec, err := s.store.LatestAuthoritative(ctx, identifier, s.now().Add(-s.cacheTTL))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn("censo: cache lookup failed", "error", err)
		}
		return nil, false
	}
	s.metrics.CacheHits.Inc()
	log.Info("censo: served from cache", "record", rec.ID, "kind", rec.Kind)
	return rec, true
}

func (s *Service) lookup(ctx context.Context, identifier string, log *slog.Logger) (*Record, error) {
	if s.guard == nil {
		return s.run(ctx, identifier, log)
	}
	if !s.guard.allow() {
		log.Warn("censo: lookup site cooling down")
		return nil, fmt.Errorf("%w: lookup site cooling down", ErrUnavailable)
	}
	rec, err := s.run(ctx, identifier, log)
	if err != nil {
		s.guard.abort()
		return nil, err
	}
	before := s.guard.current()
	after := s.guard.record(rec.Kind)
	if after != before {
		log.Warn("censo: site guard changed", "from", before.String(), "to", after.String(), "kind", rec.Kind)
	}
	open := 0.0
	if after == guardOpen {
		open = 1
	}
	s.metrics.GuardOpen.Set(open)
	return rec, nil
}

func (s *Service) run(ctx context.Context, identifier string, log *slog.Logger) (*Record, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(waitCtx); err != nil {
			log.Warn("censo: pacing wait exceeded", "error", err)
			return nil, fmt.Errorf("%w: pacing: %w", ErrUnavailable, err)
		}
	}
	lease, err := s.pool.Acquire(waitCtx)
	if err != nil {
		log.Warn("censo: no session available", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	s.metrics.LeasesInUse.Set(float64(s.pool.InUse()))
	defer func() {
		lease.Release()
		s.metrics.LeasesInUse.Set(float64(s.pool.InUse()))
	}()

	runCtx, cancelRun := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancelRun()
	start := time.Now()
	res, err := lease.Verify(runCtx, identifier)
	if err != nil {
		var sie *verifier.SessionInitError
		if errors.As(err, &sie) {
			log.Error("censo: browser session unavailable", "error", err)
		}
		return nil, err
	}
	s.metrics.ObserveVerification(res.Kind, start)

	rec := &Record{
		Result:     res,
		Kind:       res.Kind,
		DurationMS: time.Since(start).Milliseconds(),
		Transport:  kit.GetTransport(ctx),
		TraceID:    kit.GetTraceID(ctx),
	}
	if s.store != nil {
		if err := s.store.Insert(ctx, identifier, rec); err != nil {
			log.Warn("censo: record verification", "error", err)
		}
	}
	return rec, nil
}

// Record returns a stored verification.
func (s *Service) Record(ctx context.Context, id string) (*Record, error) {
	if s.store == nil {
		return nil, ErrNotFound
	}
	canon, err := idgen.ParsePrefixed(recordIDPrefix, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, canon)
}

// StartJanitor purges records older than retention every interval until
// ctx ends.
func (s *Service) StartJanitor(ctx context.Context, retention, interval time.Duration) {
	if s.store == nil || retention <= 0 {
		return
	}
	tick := time.NewTicker(interval)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				n, err := s.store.Purge(ctx, s.now().Add(-retention))
				if err != nil {
					s.logger.Warn("censo: purge failed", "error", err)
					continue
				}
				if n > 0 {
					s.logger.Info("censo: purged verifications", "count", n)
				}
			}
		}
	}()
}
