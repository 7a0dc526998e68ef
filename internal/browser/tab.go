package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is a Rod page prepared for form lookups: stealth evasions, desktop
// viewport and user agent, blocked heavy resources.
type Tab struct {
	page   *rod.Page
	router *rod.HijackRouter
	idle   time.Duration
}

// OpenTab creates a new tab on the manager's browser.
func OpenTab(ctx context.Context, mgr *Manager) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	cfg := mgr.cfg

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	page = page.Context(ctx)

	err = proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.ViewportWidth,
		Height:            cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}.Call(page)
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: viewport: %w", err)
	}
	err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      cfg.UserAgent,
		AcceptLanguage: cfg.AcceptLanguage,
	})
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: user agent: %w", err)
	}

	// Drop the setup context so later calls are bounded by their own.
	t := &Tab{page: page.Context(context.Background()), idle: cfg.IdleWait}
	if len(cfg.ResourceBlocking) > 0 {
		t.router = blockResources(t.page, cfg.ResourceBlocking)
	}
	return t, nil
}

// Navigate loads url and waits for the load event and a quiet network.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	p := t.page.Context(ctx)
	wait := p.WaitRequestIdle(t.idle, nil, nil, nil)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", url, err)
	}
	wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

// Has reports whether selector matches an element right now.
func (t *Tab) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := t.page.Context(ctx).Has(selector)
	if err != nil {
		return false, fmt.Errorf("browser: has %q: %w", selector, err)
	}
	return has, nil
}

// WaitAny waits for the first of selectors to match and returns it.
func (t *Tab) WaitAny(ctx context.Context, selectors []string) (string, error) {
	if len(selectors) == 0 {
		return "", fmt.Errorf("browser: no selectors")
	}
	var matched string
	race := t.page.Context(ctx).Race()
	for _, sel := range selectors {
		race = race.Element(sel).Handle(func(*rod.Element) error {
			matched = sel
			return nil
		})
	}
	if _, err := race.Do(); err != nil {
		return "", fmt.Errorf("browser: wait for %v: %w", selectors, err)
	}
	return matched, nil
}

// Clear empties every input matching any of selectors.
func (t *Tab) Clear(ctx context.Context, selectors []string) error {
	_, err := t.page.Context(ctx).Eval(`(sels) => {
		let n = 0;
		for (const s of sels) {
			document.querySelectorAll(s).forEach((el) => { el.value = ''; n++; });
		}
		return n;
	}`, selectors)
	if err != nil {
		return fmt.Errorf("browser: clear: %w", err)
	}
	return nil
}

// Type focuses selector and types text one key at a time, pausing delay
// between keys.
func (t *Tab) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	p := t.page.Context(ctx)
	el, err := p.Element(selector)
	if err != nil {
		return fmt.Errorf("browser: type: find %q: %w", selector, err)
	}
	if err := el.Focus(); err != nil {
		return fmt.Errorf("browser: type: focus %q: %w", selector, err)
	}
	for i, r := range text {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("browser: type: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
		if isKey(r) {
			err = typeKey(p, input.Key(r))
		} else {
			err = p.InsertText(string(r))
		}
		if err != nil {
			return fmt.Errorf("browser: type: %w", err)
		}
	}
	return nil
}

// typeKey sends key down and key up through p. p.Keyboard is bound to the
// page the Tab was opened with, not to p, so it would ignore p's context.
func typeKey(p *rod.Page, k input.Key) error {
	if err := k.Encode(proto.InputDispatchKeyEventTypeKeyDown, 0).Call(p); err != nil {
		return err
	}
	return k.Encode(proto.InputDispatchKeyEventTypeKeyUp, 0).Call(p)
}

func isKey(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Click left-clicks the first element matching selector.
func (t *Tab) Click(ctx context.Context, selector string) error {
	el, err := t.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("browser: click: find %q: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %q: %w", selector, err)
	}
	return nil
}

// HTML returns the serialized document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	s, err := t.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: html: %w", err)
	}
	return s, nil
}

// Screenshot captures the viewport as PNG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	b, err := t.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return b, nil
}

// Close stops request hijacking and closes the tab.
func (t *Tab) Close() error {
	var errs []error
	if t.router != nil {
		if err := t.router.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("browser: stop hijack: %w", err))
		}
		t.router = nil
	}
	if t.page != nil {
		if err := t.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("browser: close tab: %w", err))
		}
		t.page = nil
	}
	return errors.Join(errs...)
}
