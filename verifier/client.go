// CLAUDE:SUMMARY Browser-driven identifier lookup: lazy session, bounded navigation, form fill, page classification.
// Package verifier checks whether an identifier (a Colombian cédula) is
// present in the electoral census by driving a browser through the public
// lookup form and classifying the page it returns.
//
// A Client owns one browser and one page. It is not safe for concurrent
// Verify calls; hand out Clients through a Pool instead.
package verifier

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Page is the subset of a browser tab the verification flow needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Has reports whether selector currently matches an element.
	Has(ctx context.Context, selector string) (bool, error)
	// WaitAny waits until one of selectors matches and returns it.
	WaitAny(ctx context.Context, selectors []string) (string, error)
	// Clear empties the value of every input matching any of selectors.
	Clear(ctx context.Context, selectors []string) error
	Type(ctx context.Context, selector, text string, delay time.Duration) error
	Click(ctx context.Context, selector string) error
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Browser opens pages.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts a Browser.
type Launcher func(ctx context.Context) (Browser, error)

// Capture is the page state recorded when a lookup ends without an
// authoritative answer.
type Capture struct {
	Identifier string
	Kind       Kind
	Step       string
	URL        string
	HTML       string
	Screenshot []byte
	Err        string
	At         time.Time
}

// Capturer persists captures for later inspection.
type Capturer interface {
	Capture(ctx context.Context, c Capture) error
}

// Config holds the lookup target and the waits around it.
type Config struct {
	LookupURL         string        `yaml:"lookup_url"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	SelectorTimeout   time.Duration `yaml:"selector_timeout"`
	PostNavigateDelay time.Duration `yaml:"post_navigate_delay"`
	KeystrokeDelay    time.Duration `yaml:"keystroke_delay"`
	PostTypeDelay     time.Duration `yaml:"post_type_delay"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	// RecycleAfter replaces the session once it is older than this.
	// Zero keeps it until Shutdown.
	RecycleAfter    time.Duration `yaml:"recycle_after"`
	BlockSelector   string        `yaml:"block_selector"`
	InputSelectors  []string      `yaml:"input_selectors"`
	SubmitSelectors []string      `yaml:"submit_selectors"`
	Markers         Markers       `yaml:"markers"`
}

// Defaults fills zero fields. A negative delay means no wait at all.
func (c *Config) Defaults() {
	if c.LookupURL == "" {
		c.LookupURL = "https://wsp.registraduria.gov.co/censo/consultar/"
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = 10 * time.Second
	}
	c.PostNavigateDelay = delay(c.PostNavigateDelay, 2*time.Second)
	c.KeystrokeDelay = delay(c.KeystrokeDelay, 100*time.Millisecond)
	c.PostTypeDelay = delay(c.PostTypeDelay, 500*time.Millisecond)
	c.SettleDelay = delay(c.SettleDelay, 3*time.Second)
	if c.BlockSelector == "" {
		c.BlockSelector = ".cf-im-under-attack"
	}
	if len(c.InputSelectors) == 0 {
		c.InputSelectors = []string{`input[name="cedula"]`, `input[placeholder*="cedula"]`, `input[id*="cedula"]`}
	}
	if len(c.SubmitSelectors) == 0 {
		c.SubmitSelectors = []string{`button[type="submit"]`, `input[type="submit"]`, `form button`}
	}
	def := DefaultMarkers()
	if len(c.Markers.Block) == 0 {
		c.Markers.Block = []string{c.BlockSelector}
	}
	if len(c.Markers.Negative) == 0 {
		c.Markers.Negative = def.Negative
	}
	if len(c.Markers.NegativePhrases) == 0 {
		c.Markers.NegativePhrases = def.NegativePhrases
	}
	if len(c.Markers.Results) == 0 {
		c.Markers.Results = def.Results
	}
	if len(c.Markers.Data) == 0 {
		c.Markers.Data = def.Data
	}
	if len(c.Markers.DataWords) == 0 {
		c.Markers.DataWords = def.DataWords
	}
}

func delay(d, def time.Duration) time.Duration {
	switch {
	case d < 0:
		return 0
	case d == 0:
		return def
	}
	return d
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithCapturer records the page on ambiguous, layout-mismatch and error
// outcomes.
func WithCapturer(cp Capturer) Option {
	return func(c *Client) { c.capturer = cp }
}

// Client drives one browser session against the lookup page.
type Client struct {
	cfg      Config
	launch   Launcher
	logger   *slog.Logger
	capturer Capturer

	mu        sync.Mutex
	browser   Browser
	page      Page
	startedAt time.Time
}

// New creates a Client. The browser is not started until Initialize or
// the first Verify.
func New(cfg Config, launch Launcher, opts ...Option) *Client {
	cfg.Defaults()
	c := &Client{cfg: cfg, launch: launch, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Initialize starts the browser and opens the working page. It is a no-op
// when a session is already live.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &SessionInitError{Err: err}
	}

	b, err := c.launch(ctx)
	if err != nil {
		return &SessionInitError{Err: err}
	}
	p, err := b.NewPage(ctx)
	if err != nil {
		if cerr := b.Close(); cerr != nil {
			c.logger.Warn("verifier: close browser after failed page", "error", cerr)
		}
		return &SessionInitError{Err: err}
	}

	c.browser, c.page = b, p
	c.startedAt = time.Now()
	c.logger.Info("verifier: session started", "lookup_url", c.cfg.LookupURL)
	return nil
}

// Shutdown closes the page, then the browser. Both closes are attempted
// and their failures are logged. Calling it on a closed session does
// nothing.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	page, b := c.page, c.browser
	c.page, c.browser = nil, nil
	c.mu.Unlock()

	if page == nil && b == nil {
		return nil
	}
	if page != nil {
		if err := page.Close(); err != nil {
			c.logger.Warn("verifier: close page", "error", err)
		}
	}
	if b != nil {
		if err := b.Close(); err != nil {
			c.logger.Warn("verifier: close browser", "error", err)
		}
	}
	c.logger.Info("verifier: session closed")
	return nil
}

// Live reports whether a session is open.
func (c *Client) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page != nil
}

// Verify looks identifier up and classifies the answer. Every failure of
// the external site or of the browser is reported in the Result. The
// returned error is non-nil only for a *SessionInitError or when ctx
// itself ends.
func (c *Client) Verify(ctx context.Context, identifier string) (Result, error) {
	if c.expired() {
		c.logger.Info("verifier: recycling session", "age", c.age())
		c.Shutdown()
	}
	if err := c.Initialize(ctx); err != nil {
		return Failure(KindError, MsgError), err
	}

	c.mu.Lock()
	page := c.page
	c.mu.Unlock()
	if page == nil {
		return Failure(KindError, MsgError), &SessionInitError{Err: errors.New("session closed during verify")}
	}

	log := c.logger.With("identifier", Mask(identifier))
	start := time.Now()
	res := c.run(ctx, page, identifier, log)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if res.Kind == KindError {
		// The page may be wedged; start over on the next call.
		c.Shutdown()
	}
	log.Info("verifier: verified", "kind", res.Kind, "duration", time.Since(start))
	return res, nil
}

func (c *Client) run(ctx context.Context, page Page, identifier string, log *slog.Logger) Result {
	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
	err := page.Navigate(navCtx, c.cfg.LookupURL)
	timedOut := errors.Is(navCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if timedOut && ctx.Err() == nil {
			log.Warn("verifier: navigation timeout", "timeout", c.cfg.NavigationTimeout)
			return Failure(KindTimeout, MsgTimeout)
		}
		return c.fail(ctx, page, identifier, "navigate", err, log)
	}

	if err := sleep(ctx, c.cfg.PostNavigateDelay); err != nil {
		return Failure(KindError, MsgError)
	}

	blocked, err := page.Has(ctx, c.cfg.BlockSelector)
	if err != nil {
		return c.fail(ctx, page, identifier, "interstitial", err, log)
	}
	if blocked {
		log.Warn("verifier: blocked by interstitial")
		return Failure(KindBlocked, MsgBlocked)
	}

	input, err := c.waitAny(ctx, page, c.cfg.InputSelectors)
	if err != nil {
		return c.mismatch(ctx, page, identifier, "input", MsgInputNotFound, err, log)
	}
	if err := page.Clear(ctx, c.cfg.InputSelectors); err != nil {
		return c.fail(ctx, page, identifier, "clear", err, log)
	}
	if err := page.Type(ctx, input, identifier, c.cfg.KeystrokeDelay); err != nil {
		return c.fail(ctx, page, identifier, "type", err, log)
	}
	if err := sleep(ctx, c.cfg.PostTypeDelay); err != nil {
		return Failure(KindError, MsgError)
	}

	submit, err := c.waitAny(ctx, page, c.cfg.SubmitSelectors)
	if err != nil {
		return c.mismatch(ctx, page, identifier, "submit", MsgSubmitNotFound, err, log)
	}
	if err := page.Click(ctx, submit); err != nil {
		return c.fail(ctx, page, identifier, "submit", err, log)
	}
	if err := sleep(ctx, c.cfg.SettleDelay); err != nil {
		return Failure(KindError, MsgError)
	}

	doc, err := page.HTML(ctx)
	if err != nil {
		return c.fail(ctx, page, identifier, "read", err, log)
	}

	cl := c.cfg.Markers.Classify(doc)
	switch cl.Kind {
	case KindBlocked:
		log.Warn("verifier: blocked after submit")
	case KindAmbiguous:
		log.Warn("verifier: ambiguous response")
		c.capture(ctx, page, Capture{Identifier: identifier, Kind: KindAmbiguous, Step: "classify", HTML: doc}, log)
	case KindFound:
		if !cl.Site.Complete() {
			log.Debug("verifier: voting site partially parsed", "text", cl.Text)
		}
	}
	return cl.Result()
}

func (c *Client) waitAny(ctx context.Context, page Page, selectors []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SelectorTimeout)
	defer cancel()
	return page.WaitAny(ctx, selectors)
}

func (c *Client) mismatch(ctx context.Context, page Page, identifier, step, msg string, err error, log *slog.Logger) Result {
	if ctx.Err() != nil {
		return Failure(KindError, MsgError)
	}
	log.Warn("verifier: form control not found", "step", step, "error", err)
	c.capture(ctx, page, Capture{Identifier: identifier, Kind: KindLayoutMismatch, Step: step, Err: err.Error()}, log)
	return Failure(KindLayoutMismatch, msg)
}

func (c *Client) fail(ctx context.Context, page Page, identifier, step string, err error, log *slog.Logger) Result {
	if ctx.Err() != nil {
		return Failure(KindError, MsgError)
	}
	log.Error("verifier: lookup failed", "step", step, "error", err)
	c.capture(ctx, page, Capture{Identifier: identifier, Kind: KindError, Step: step, Err: err.Error()}, log)
	return Failure(KindError, MsgError)
}

// capture records the page. It runs on a context detached from the
// caller's deadline since it usually follows a timeout.
func (c *Client) capture(ctx context.Context, page Page, cp Capture, log *slog.Logger) {
	if c.capturer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	cp.URL = c.cfg.LookupURL
	cp.At = time.Now()
	if cp.HTML == "" {
		if doc, err := page.HTML(ctx); err == nil {
			cp.HTML = doc
		}
	}
	if shot, err := page.Screenshot(ctx); err == nil {
		cp.Screenshot = shot
	} else {
		log.Debug("verifier: screenshot failed", "error", err)
	}
	if err := c.capturer.Capture(ctx, cp); err != nil {
		log.Warn("verifier: capture failed", "error", err)
	}
}

// age is the uptime reported by the browser when it keeps one, else the
// time since Initialize.
func (c *Client) age() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ageLocked()
}

func (c *Client) ageLocked() time.Duration {
	if u, ok := c.browser.(interface{ Uptime() time.Duration }); ok {
		if d := u.Uptime(); d > 0 {
			return d
		}
	}
	return time.Since(c.startedAt)
}

func (c *Client) expired() bool {
	if c.cfg.RecycleAfter <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page != nil && c.ageLocked() > c.cfg.RecycleAfter
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
