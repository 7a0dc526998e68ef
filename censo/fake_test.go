package censo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/censo/dbopen"
	"github.com/hazyhaar/censo/verifier"
)

const (
	foundPage = `<html><body><table>
		<tr><td>Nombre: ANA MARIA PEREZ</td><td>Puesto: 45</td><td>Mesa: 3</td><td>Ciudad: Bogotá</td></tr>
	</table></body></html>`
	absentPage  = `<html><body><div class="alert">La cédula no se encuentra registrada.</div></body></html>`
	blockedPage = `<html><body><div class="cf-im-under-attack">Checking your browser</div></body></html>`
)

var errLaunch = errors.New("chrome not found")

// fakeSite serves the lookup form. After a submit it answers with
// results[typed identifier], absentPage when unknown.
type fakeSite struct {
	mu        sync.Mutex
	results   map[string]string
	launchErr error

	// When gate is set, submits announce themselves on entered and wait
	// for gate to close.
	gate    chan struct{}
	entered chan struct{}

	lookups atomic.Int32
}

func newFakeSite(results map[string]string) *fakeSite {
	if results == nil {
		results = make(map[string]string)
	}
	return &fakeSite{results: results}
}

func (s *fakeSite) hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	s.entered = make(chan struct{}, 8)
}

func (s *fakeSite) launch(context.Context) (verifier.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.launchErr != nil {
		return nil, s.launchErr
	}
	return &siteBrowser{site: s}, nil
}

type siteBrowser struct{ site *fakeSite }

func (b *siteBrowser) NewPage(context.Context) (verifier.Page, error) {
	return &sitePage{site: b.site}, nil
}

func (b *siteBrowser) Close() error { return nil }

type sitePage struct {
	site    *fakeSite
	mu      sync.Mutex
	typed   string
	clicked bool
}

func (p *sitePage) Navigate(context.Context, string) error {
	p.mu.Lock()
	p.typed, p.clicked = "", false
	p.mu.Unlock()
	return nil
}

func (p *sitePage) Has(context.Context, string) (bool, error) { return false, nil }

func (p *sitePage) WaitAny(_ context.Context, selectors []string) (string, error) {
	return selectors[0], nil
}

func (p *sitePage) Clear(context.Context, []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed = ""
	return nil
}

func (p *sitePage) Type(_ context.Context, _ string, text string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed += text
	return nil
}

func (p *sitePage) Click(ctx context.Context, _ string) error {
	p.site.lookups.Add(1)
	p.site.mu.Lock()
	gate, entered := p.site.gate, p.site.entered
	p.site.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicked = true
	return nil
}

func (p *sitePage) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.clicked {
		return `<html><body><form><input name="cedula"><button type="submit">Consultar</button></form></body></html>`, nil
	}
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	if doc, ok := p.site.results[p.typed]; ok {
		return doc, nil
	}
	return absentPage, nil
}

func (p *sitePage) Screenshot(context.Context) ([]byte, error) { return nil, nil }
func (p *sitePage) Close() error                                { return nil }

func testVerifierConfig() verifier.Config {
	return verifier.Config{
		LookupURL:         "https://censo.test/consultar/",
		NavigationTimeout: 200 * time.Millisecond,
		SelectorTimeout:   50 * time.Millisecond,
		PostNavigateDelay: -1,
		KeystrokeDelay:    -1,
		PostTypeDelay:     -1,
		SettleDelay:       -1,
	}
}

// newTestPool builds a pool of size clients, all driving site.
func newTestPool(t *testing.T, site *fakeSite, size int) *verifier.Pool {
	t.Helper()
	pool := verifier.NewPool(size, func() *verifier.Client {
		return verifier.New(testVerifierConfig(), site.launch)
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		pool.Close(ctx)
	})
	return pool
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewStore(db)
}

type testEnv struct {
	site    *fakeSite
	pool    *verifier.Pool
	store   *Store
	reg     *prometheus.Registry
	metrics *Metrics
	svc     *Service
}

func newTestEnv(t *testing.T, results map[string]string, opts ...Option) *testEnv {
	t.Helper()
	e := &testEnv{site: newFakeSite(results), store: newTestStore(t), reg: prometheus.NewRegistry()}
	e.pool = newTestPool(t, e.site, 1)
	e.metrics = NewMetrics(e.reg)
	base := []Option{
		WithStore(e.store),
		WithMetrics(e.metrics),
		WithAcquireTimeout(100 * time.Millisecond),
	}
	e.svc = NewService(e.pool, append(base, opts...)...)
	return e
}
