package verifier

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakePage scripts one lookup page. Selectors in present exist from the
// start; result is the document served after a click.
type fakePage struct {
	mu sync.Mutex

	present  map[string]bool
	result   string
	navErr   error
	navHang  bool
	closeErr error

	typed   string
	clicked string
	cleared int
	closed  int
	navs    int
}

func newFakePage(result string, present ...string) *fakePage {
	p := &fakePage{present: make(map[string]bool), result: result}
	for _, s := range present {
		p.present[s] = true
	}
	return p
}

// formPage has the default input and submit controls.
func formPage(result string) *fakePage {
	return newFakePage(result, `input[name="cedula"]`, `button[type="submit"]`)
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.navs++
	hang, err := p.navHang, p.navErr
	p.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (p *fakePage) Has(_ context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present[selector], nil
}

func (p *fakePage) WaitAny(ctx context.Context, selectors []string) (string, error) {
	p.mu.Lock()
	for _, s := range selectors {
		if p.present[s] {
			p.mu.Unlock()
			return s, nil
		}
	}
	p.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func (p *fakePage) Clear(context.Context, []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared++
	p.typed = ""
	return nil
}

func (p *fakePage) Type(_ context.Context, _ string, text string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed += text
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicked = selector
	return nil
}

func (p *fakePage) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clicked == "" {
		return "<html><body><form><input name=cedula></form></body></html>", nil
	}
	return p.result, nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return p.closeErr
}

type fakeBrowser struct {
	mu       sync.Mutex
	newPage  func() *fakePage
	pages    []*fakePage
	closed   int
	closeErr error
	pageErr  error
	uptime   time.Duration
}

func (b *fakeBrowser) Uptime() time.Duration { return b.uptime }

func (b *fakeBrowser) NewPage(context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	p := b.newPage()
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return b.closeErr
}

// fakeLauncher counts launches and hands out browsers serving pages from
// newPage.
type fakeLauncher struct {
	mu       sync.Mutex
	newPage  func() *fakePage
	err      error
	uptime   time.Duration // reported by every browser
	browsers []*fakeBrowser
}

func (l *fakeLauncher) launch(context.Context) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	b := &fakeBrowser{newPage: l.newPage, uptime: l.uptime}
	l.browsers = append(l.browsers, b)
	return b, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.browsers)
}

type captureLog struct {
	mu   sync.Mutex
	seen []Capture
	err  error
}

func (c *captureLog) Capture(_ context.Context, cp Capture) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, cp)
	return c.err
}

func (c *captureLog) all() []Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Capture(nil), c.seen...)
}

// testConfig removes every wait so tests run fast.
func testConfig() Config {
	return Config{
		LookupURL:         "https://censo.test/consultar/",
		NavigationTimeout: 200 * time.Millisecond,
		SelectorTimeout:   50 * time.Millisecond,
		PostNavigateDelay: -1,
		KeystrokeDelay:    -1,
		PostTypeDelay:     -1,
		SettleDelay:       -1,
	}
}

var errBoom = errors.New("boom")
